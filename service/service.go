// Package service defines the contract shared by a client stub and a server
// handler: a fixed, ordered set of methods, each with a stable ordinal, an
// argument shape, a result shape, and the Error shape for declared failures.
//
// A contract is authored once per service (by hand or by a generator) as
// three coupled pieces:
//
//	// ordinal constants — the stable wire identity of each method
//	const (
//		OrdArithAdd uint32 = iota
//		OrdArithMultiply
//	)
//
//	// the capability set: any type implementing it can serve the contract
//	type ArithService interface {
//		Add(ctx context.Context, args *Args) (*Reply, error)
//		Multiply(ctx context.Context, args *Args) (*Reply, error)
//	}
//
//	// the handler binding, consumed by server.New
//	func NewArithBinding(impl ArithService) *service.Binding {
//		b := service.NewBinding("Arith")
//		service.Bind(b, OrdArithAdd, "Arith.Add", impl.Add)
//		service.Bind(b, OrdArithMultiply, "Arith.Multiply", impl.Multiply)
//		return b
//	}
//
// The client stub is the mirror image: one typed method per ordinal, each
// delegating to client.Invoke with the same ordinal constant. Both sides are
// compiled from the same constants, so an ordinal/shape mismatch is a
// build-time error on one side or a decode error on the other — never a
// silent misinterpretation.
package service

import (
	"context"
	"fmt"
)

// Method is one bound entry of a contract's dispatch table: it knows how to
// allocate its argument shape and how to invoke the handler behind it.
type Method struct {
	Name    string
	Ordinal uint32
	newArgs func() any
	invoke  func(ctx context.Context, args any) (any, error)
}

// NewArgs allocates a zero value of the method's argument shape, ready for
// the codec to decode into.
func (m *Method) NewArgs() any { return m.newArgs() }

// Invoke runs the bound handler. args must be the value produced by NewArgs.
func (m *Method) Invoke(ctx context.Context, args any) (any, error) {
	return m.invoke(ctx, args)
}

// Binding is the server-side artifact of a contract: an ordinal-keyed
// dispatch table from method ordinal to decode/invoke/encode machinery.
//
// A Binding is assembled once with Bind and is read-only afterwards; a single
// Binding is shared by every connection dispatcher serving the service.
type Binding struct {
	name    string
	methods map[uint32]*Method
}

// NewBinding creates an empty binding for the named service.
func NewBinding(name string) *Binding {
	return &Binding{
		name:    name,
		methods: make(map[uint32]*Method),
	}
}

// Name returns the service name the binding was created with.
func (b *Binding) Name() string { return b.name }

// Method looks up the bound method for an ordinal.
func (b *Binding) Method(ordinal uint32) (*Method, bool) {
	m, ok := b.methods[ordinal]
	return m, ok
}

// Bind registers one typed method under its ordinal. It is meant to run at
// construction time only; binding a duplicate ordinal is a programming error
// in the contract artifact and panics.
func Bind[A, R any](b *Binding, ordinal uint32, name string, fn func(context.Context, *A) (*R, error)) {
	if _, dup := b.methods[ordinal]; dup {
		panic(fmt.Sprintf("service: duplicate ordinal %d in binding %q", ordinal, b.name))
	}
	b.methods[ordinal] = &Method{
		Name:    name,
		Ordinal: ordinal,
		newArgs: func() any { return new(A) },
		invoke: func(ctx context.Context, args any) (any, error) {
			a, ok := args.(*A)
			if !ok {
				return nil, fmt.Errorf("service: %s: argument type %T does not match contract", name, args)
			}
			return fn(ctx, a)
		},
	}
}
