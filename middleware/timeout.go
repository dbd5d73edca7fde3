package middleware

import (
	"context"
	"time"

	"muxrpc/service"
)

// Timeout bounds handler execution. On expiry the caller gets a declared
// error response; the handler goroutine is left to finish on its own and its
// result is discarded.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) *Result {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *Result, 1)
			go func() {
				done <- next(ctx, call)
			}()

			select {
			case result := <-done:
				return result
			case <-ctx.Done():
				return &Result{Err: &service.Error{Code: "DEADLINE_EXCEEDED", Message: "handler timed out"}}
			}
		}
	}
}
