package client

import (
	"go.uber.org/zap"

	"muxrpc/codec"
	"muxrpc/frame"
)

type options struct {
	cdc      codec.Codec
	maxFrame uint32
	logger   *zap.Logger
	poolSize int
}

// Option configures a Conn or a Client.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := options{
		cdc:      codec.Get(codec.TypeJSON),
		maxFrame: frame.DefaultMaxSize,
		logger:   zap.NewNop(),
		poolSize: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithCodec selects the payload serializer. Both sides of a contract must
// agree on it. Default: JSON.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.cdc = c }
}

// WithMaxFrameSize bounds encoded and decoded frame sizes.
func WithMaxFrameSize(max uint32) Option {
	return func(o *options) { o.maxFrame = max }
}

// WithLogger installs a structured logger. Default: no-op.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPoolSize sets how many multiplexed connections a Client keeps to its
// address. Only meaningful for Client; a Conn ignores it. Default: 1.
func WithPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.poolSize = n
		}
	}
}
