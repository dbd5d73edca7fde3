package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Logging records one line per handled call: method, duration, and the error
// if the call failed.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) *Result {
			start := time.Now()
			result := next(ctx, call)
			fields := []zap.Field{
				zap.String("method", call.Method),
				zap.Uint32("ordinal", call.Ordinal),
				zap.Duration("duration", time.Since(start)),
			}
			if result.Err != nil {
				logger.Warn("call failed", append(fields, zap.Error(result.Err))...)
			} else {
				logger.Info("call served", fields...)
			}
			return result
		}
	}
}
