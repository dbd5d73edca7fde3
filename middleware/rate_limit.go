package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"muxrpc/service"
)

// RateLimit rejects calls beyond a token-bucket budget shared by every
// connection of the server. Rejected calls fail fast with a declared error;
// they never reach the handler.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) *Result {
			if !limiter.Allow() {
				return &Result{Err: &service.Error{Code: "RATE_LIMITED", Message: "rate limit exceeded"}}
			}
			return next(ctx, call)
		}
	}
}
