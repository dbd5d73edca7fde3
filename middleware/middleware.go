// Package middleware provides server-side interception of decoded calls.
// Middlewares sit between the dispatcher's argument decoding and the bound
// handler, so they observe typed arguments rather than payload bytes.
package middleware

import (
	"context"
)

// Call is one decoded request about to be handled.
type Call struct {
	Method  string // contract method name, e.g. "Arith.Add"
	Ordinal uint32
	Args    any // decoded argument shape
}

// Result is what a handler (or a middleware short-circuiting it) produced.
// Exactly one of Reply and Err is meaningful.
type Result struct {
	Reply any
	Err   error
}

type HandlerFunc func(ctx context.Context, call *Call) *Result

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one, onion-style: Chain(A, B, C)(h) runs
// A before B before C before h, and unwinds in reverse.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
