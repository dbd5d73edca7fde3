package client

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/multierr"
)

// ErrClientClosed rejects calls on a Client after Close.
var ErrClientClosed = errors.New("client: client closed")

// Client maintains a fixed-size pool of multiplexed connections to one
// address and hands them out round-robin. A connection observed dead is
// replaced by redialing on next use; calls that were in flight on it have
// already been resolved with ErrConnClosed by the Conn itself.
type Client struct {
	dial func() (net.Conn, error)
	opts []Option

	mu     sync.Mutex
	conns  []*Conn
	next   int
	closed bool
}

// New creates a Client over the given dial function — typically
// (*transport.Dialer).Dial, which hands back a plain or TLS-secured stream.
// Connections are established lazily, on first use of each pool slot.
func New(dial func() (net.Conn, error), opts ...Option) *Client {
	o := applyOptions(opts)
	return &Client{
		dial:  dial,
		opts:  opts,
		conns: make([]*Conn, o.poolSize),
	}
}

// Conn returns a live multiplexed connection from the pool, dialing or
// redialing its slot if needed.
func (c *Client) Conn() (*Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}

	slot := c.next % len(c.conns)
	c.next++

	cn := c.conns[slot]
	if cn != nil && !cn.Closed() {
		return cn, nil
	}
	nc, err := c.dial()
	if err != nil {
		return nil, err
	}
	cn = NewConn(nc, c.opts...)
	c.conns[slot] = cn
	return cn, nil
}

// Close tears down every pooled connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conns := c.conns
	c.conns = nil
	c.mu.Unlock()

	var err error
	for _, cn := range conns {
		if cn != nil {
			err = multierr.Append(err, cn.Close())
		}
	}
	return err
}

// CallPooled is the pooled counterpart of Invoke: pick a connection, issue
// the typed call on it.
func CallPooled[A, R any](ctx context.Context, c *Client, ordinal uint32, args *A) (*R, error) {
	cn, err := c.Conn()
	if err != nil {
		return nil, err
	}
	return Invoke[A, R](ctx, cn, ordinal, args)
}
