package server

import (
	"crypto/tls"

	"go.uber.org/zap"

	"muxrpc/codec"
	"muxrpc/frame"
)

type options struct {
	cdc         codec.Codec
	maxFrame    uint32
	maxInFlight int
	tlsConfig   *tls.Config
	logger      *zap.Logger
}

// Option configures a Server.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := options{
		cdc:         codec.Get(codec.TypeJSON),
		maxFrame:    frame.DefaultMaxSize,
		maxInFlight: 64,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithCodec selects the payload serializer. Must match the clients'.
// Default: JSON.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.cdc = c }
}

// WithMaxFrameSize bounds accepted and emitted frame sizes.
func WithMaxFrameSize(max uint32) Option {
	return func(o *options) { o.maxFrame = max }
}

// WithConcurrency bounds how many handlers may execute simultaneously per
// connection. Requests beyond the bound queue in the read loop. Default: 64.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxInFlight = n
		}
	}
}

// WithTLS makes ListenAndServe wrap its listener so every accepted transport
// is TLS-secured before the dispatcher sees it.
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithLogger installs a structured logger. Default: no-op.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}
