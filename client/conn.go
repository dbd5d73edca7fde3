// Package client implements the calling side of muxrpc: a connection
// multiplexer that correlates concurrent in-flight requests with their
// responses over a single transport, plus a typed stub helper and a small
// pool of multiplexed connections.
//
// Many goroutines may call on one Conn at once:
//
//	goroutine-1 ──Go(id=1)──┐
//	goroutine-2 ──Go(id=2)──┼──→ single conn ──→ server
//	goroutine-3 ──Go(id=3)──┘
//
//	recvLoop: ←── response(id=2) → pending[2] resolved → goroutine-2 wakes up
//
// Responses may arrive in any order; each resolves exactly the call whose
// request id it carries.
package client

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"muxrpc/codec"
	"muxrpc/frame"
)

// ErrConnClosed resolves every call that was in flight when the connection
// died, and rejects every call issued afterwards. Test with errors.Is; the
// wrapped cause names what killed the connection.
var ErrConnClosed = errors.New("client: connection closed")

// ProtocolError is a per-call failure reported by the server's dispatcher
// rather than the handler: unknown method ordinal, or arguments it could not
// decode. The connection stays usable.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "client: server rejected request: " + e.Message
}

// Call is the completion handle for one in-flight request. It is resolved
// exactly once: with the response frame, or with a connection error.
type Call struct {
	ID       uint64
	Ordinal  uint32
	Response *frame.Frame // response frame; nil when Err is set
	Err      error        // connection-level failure
	done     chan *Call
}

// Done returns a channel that delivers the call once it is resolved.
func (c *Call) Done() <-chan *Call { return c.done }

func (c *Call) finish() { c.done <- c }

// Conn multiplexes calls over one established transport. The transport is
// handed over already connected (and already secured, if it is to be); Conn
// is agnostic to how it was produced.
type Conn struct {
	conn     net.Conn
	cdc      codec.Codec
	maxFrame uint32
	logger   *zap.Logger

	writeMu sync.Mutex // serializes whole-frame writes onto the transport

	// mu is the single serialization point for all shared call state:
	// id allocation, the pending table, and the closed flag move together.
	mu      sync.Mutex
	seq     uint64
	pending map[uint64]*Call
	closed  bool
	cause   error // first connection error, set once
}

// NewConn wraps an established transport and starts its read loop.
func NewConn(nc net.Conn, opts ...Option) *Conn {
	o := applyOptions(opts)
	c := &Conn{
		conn:     nc,
		cdc:      o.cdc,
		maxFrame: o.maxFrame,
		logger:   o.logger,
		pending:  make(map[uint64]*Call),
	}
	go c.recvLoop()
	return c
}

// Go issues a request and returns immediately with its completion handle.
// The handle resolves when the matching response frame is read, or when the
// connection is declared dead — whichever comes first, and only once.
func (c *Conn) Go(ordinal uint32, payload []byte) *Call {
	call := &Call{Ordinal: ordinal, done: make(chan *Call, 1)}

	c.mu.Lock()
	if c.closed {
		cause := c.cause
		c.mu.Unlock()
		call.Err = cause
		call.finish()
		return call
	}
	call.ID = c.nextID()
	c.pending[call.ID] = call
	c.mu.Unlock()

	buf, err := frame.Encode(&frame.Frame{
		ID:      call.ID,
		Kind:    frame.KindRequest,
		Ordinal: ordinal,
		Payload: payload,
	}, c.maxFrame)
	if err != nil {
		// Nothing was written, so this failure is scoped to the one call.
		// Whoever removes the pending entry owns the resolution; teardown may
		// have beaten us to it.
		c.mu.Lock()
		_, mine := c.pending[call.ID]
		delete(c.pending, call.ID)
		c.mu.Unlock()
		if mine {
			call.Err = err
			call.finish()
		}
		return call
	}

	c.writeMu.Lock()
	_, werr := c.conn.Write(buf)
	c.writeMu.Unlock()
	if werr != nil {
		// A write error poisons the stream for everyone; fail resolves this
		// call along with every other pending one.
		c.fail(fmt.Errorf("write: %w", werr))
	}
	return call
}

// Close tears the connection down: every pending call resolves with
// ErrConnClosed and later calls are rejected with the same error. Closing an
// already-closed connection is a no-op.
func (c *Conn) Close() error {
	c.fail(errors.New("closed locally"))
	return nil
}

// Closed reports whether the connection has been declared dead.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// nextID allocates a request id unused among currently pending calls.
// Caller holds c.mu.
func (c *Conn) nextID() uint64 {
	for {
		c.seq++
		if _, live := c.pending[c.seq]; !live {
			return c.seq
		}
	}
}

// forget abandons interest in a pending call, typically after a caller-side
// timeout. It races the read loop for the pending entry; whoever removes the
// entry owns the resolution, so a response arriving concurrently is simply
// discarded.
func (c *Conn) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// recvLoop is the single reader of the transport. It demultiplexes response
// frames to their pending calls until the stream dies, then fails the
// connection so nobody hangs.
func (c *Conn) recvLoop() {
	r := frame.NewReader(c.conn, c.maxFrame)
	for {
		f, err := r.Next()
		if err != nil {
			c.fail(err)
			return
		}
		if !f.Kind.IsResponse() {
			c.logger.Warn("ignoring non-response frame from server",
				zap.Uint64("id", f.ID), zap.Uint8("kind", uint8(f.Kind)))
			continue
		}

		c.mu.Lock()
		call, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()

		if !ok {
			// Stale or never-issued id: a protocol violation, but one that
			// must not disturb other pending calls.
			c.logger.Warn("ignoring response for unknown request id", zap.Uint64("id", f.ID))
			continue
		}
		call.Response = f
		call.finish()
	}
}

// fail moves the connection to its terminal closed state: exactly one caller
// wins, records the cause, and resolves every pending call with it.
func (c *Conn) fail(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cause = fmt.Errorf("%w: %v", ErrConnClosed, cause)
	orphans := c.pending
	c.pending = make(map[uint64]*Call)
	c.mu.Unlock()

	c.conn.Close()
	c.logger.Debug("connection closed", zap.Error(cause), zap.Int("pending", len(orphans)))
	for _, call := range orphans {
		call.Err = c.cause
		call.finish()
	}
}
