package test

// This file is the hand-authored contract artifact for the Arith service —
// the shape a code generator would emit from a service declaration. Client
// stub and handler binding are compiled from the same ordinal constants and
// shapes, which is what keeps the two sides in agreement.

import (
	"context"

	"muxrpc/client"
	"muxrpc/service"
)

const (
	ordArithAdd uint32 = iota
	ordArithMultiply
	ordArithDivide
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

// ArithService is the capability set of the contract: any type implementing
// it can be bound behind a server.
type ArithService interface {
	Add(ctx context.Context, args *Args) (*Reply, error)
	Multiply(ctx context.Context, args *Args) (*Reply, error)
	Divide(ctx context.Context, args *Args) (*Reply, error)
}

// NewArithBinding pairs an implementation with the contract's dispatch table.
func NewArithBinding(impl ArithService) *service.Binding {
	b := service.NewBinding("Arith")
	service.Bind(b, ordArithAdd, "Arith.Add", impl.Add)
	service.Bind(b, ordArithMultiply, "Arith.Multiply", impl.Multiply)
	service.Bind(b, ordArithDivide, "Arith.Divide", impl.Divide)
	return b
}

// ArithClient is the typed stub: one method per contract method, each
// delegating to the multiplexer under its ordinal.
type ArithClient struct {
	c *client.Client
}

func NewArithClient(c *client.Client) *ArithClient {
	return &ArithClient{c: c}
}

func (a *ArithClient) Add(ctx context.Context, args *Args) (*Reply, error) {
	return client.CallPooled[Args, Reply](ctx, a.c, ordArithAdd, args)
}

func (a *ArithClient) Multiply(ctx context.Context, args *Args) (*Reply, error) {
	return client.CallPooled[Args, Reply](ctx, a.c, ordArithMultiply, args)
}

func (a *ArithClient) Divide(ctx context.Context, args *Args) (*Reply, error) {
	return client.CallPooled[Args, Reply](ctx, a.c, ordArithDivide, args)
}

// Arith is the handler instance used by the tests.
type Arith struct{}

func (Arith) Add(ctx context.Context, args *Args) (*Reply, error) {
	return &Reply{Result: args.A + args.B}, nil
}

func (Arith) Multiply(ctx context.Context, args *Args) (*Reply, error) {
	return &Reply{Result: args.A * args.B}, nil
}

func (Arith) Divide(ctx context.Context, args *Args) (*Reply, error) {
	if args.B == 0 {
		return nil, &service.Error{Code: "DIV_ZERO", Message: "division by zero"}
	}
	return &Reply{Result: args.A / args.B}, nil
}
