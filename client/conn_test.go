package client

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"muxrpc/frame"
)

// pipeConn returns a Conn and the server end of its transport.
func pipeConn(t *testing.T, opts ...Option) (*Conn, net.Conn) {
	t.Helper()
	cside, sside := net.Pipe()
	c := NewConn(cside, opts...)
	t.Cleanup(func() {
		c.Close()
		sside.Close()
	})
	return c, sside
}

func waitCall(t *testing.T, call *Call) *Call {
	t.Helper()
	select {
	case done := <-call.Done():
		return done
	case <-time.After(2 * time.Second):
		t.Fatal("call did not resolve in time")
		return nil
	}
}

func writeFrame(t *testing.T, conn net.Conn, f *frame.Frame) {
	t.Helper()
	buf, err := frame.Encode(f, 0)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// Server answers id 2 before id 1; each call must resolve with the payload
// its own id carried, never the other's.
func TestOutOfOrderResponses(t *testing.T) {
	c, sside := pipeConn(t)

	go func() {
		r := frame.NewReader(sside, 0)
		var reqs []*frame.Frame
		for len(reqs) < 2 {
			f, err := r.Next()
			if err != nil {
				return
			}
			reqs = append(reqs, f)
		}
		// Respond in reverse arrival order.
		for i := len(reqs) - 1; i >= 0; i-- {
			buf, _ := frame.Encode(&frame.Frame{
				ID: reqs[i].ID, Kind: frame.KindOK, Payload: reqs[i].Payload,
			}, 0)
			sside.Write(buf)
		}
	}()

	call1 := c.Go(0, []byte("payload-one"))
	call2 := c.Go(0, []byte("payload-two"))
	if call1.ID == call2.ID {
		t.Fatalf("both calls got id %d", call1.ID)
	}

	done2 := waitCall(t, call2)
	if done2.Err != nil {
		t.Fatalf("call 2 failed: %v", done2.Err)
	}
	if !bytes.Equal(done2.Response.Payload, []byte("payload-two")) {
		t.Errorf("call 2 got %q, want %q", done2.Response.Payload, "payload-two")
	}

	done1 := waitCall(t, call1)
	if done1.Err != nil {
		t.Fatalf("call 1 failed: %v", done1.Err)
	}
	if !bytes.Equal(done1.Response.Payload, []byte("payload-one")) {
		t.Errorf("call 1 got %q, want %q", done1.Response.Payload, "payload-one")
	}
}

// Severing the transport with calls pending resolves every one of them with a
// connection error, exactly once, and poisons later calls.
func TestConnFailureResolvesAllPending(t *testing.T) {
	c, sside := pipeConn(t)

	// Drain the three requests so Go does not block on the pipe.
	go func() {
		r := frame.NewReader(sside, 0)
		for i := 0; i < 3; i++ {
			if _, err := r.Next(); err != nil {
				return
			}
		}
		sside.Close()
	}()

	calls := []*Call{
		c.Go(0, []byte("a")),
		c.Go(0, []byte("b")),
		c.Go(0, []byte("c")),
	}

	for i, call := range calls {
		done := waitCall(t, call)
		if !errors.Is(done.Err, ErrConnClosed) {
			t.Errorf("call %d: got %v, want ErrConnClosed", i, done.Err)
		}
		// Exactly once: the handle's channel must not deliver again.
		select {
		case <-call.Done():
			t.Errorf("call %d resolved twice", i)
		case <-time.After(20 * time.Millisecond):
		}
	}

	// Subsequent calls are rejected without touching the transport.
	late := waitCall(t, c.Go(0, []byte("late")))
	if !errors.Is(late.Err, ErrConnClosed) {
		t.Errorf("post-failure call: got %v, want ErrConnClosed", late.Err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	c, _ := pipeConn(t)
	if err := c.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if !c.Closed() {
		t.Error("Closed() is false after Close")
	}
}

// A response carrying an id that was never issued (or already resolved) is
// logged and dropped; pending calls are untouched and resolve normally.
func TestStaleResponseIgnored(t *testing.T) {
	c, sside := pipeConn(t)

	go func() {
		r := frame.NewReader(sside, 0)
		req, err := r.Next()
		if err != nil {
			return
		}
		stale, _ := frame.Encode(&frame.Frame{ID: 0xdead, Kind: frame.KindOK, Payload: []byte("bogus")}, 0)
		sside.Write(stale)
		good, _ := frame.Encode(&frame.Frame{ID: req.ID, Kind: frame.KindOK, Payload: []byte("real")}, 0)
		sside.Write(good)
	}()

	done := waitCall(t, c.Go(0, []byte("x")))
	if done.Err != nil {
		t.Fatalf("call failed: %v", done.Err)
	}
	if !bytes.Equal(done.Response.Payload, []byte("real")) {
		t.Errorf("got %q, want %q", done.Response.Payload, "real")
	}
}

// A caller abandoning its call (context timeout) must win or lose the pending
// entry cleanly: the connection stays usable and a late response for the
// forgotten id is discarded.
func TestAbandonedCallThenLateResponse(t *testing.T) {
	c, sside := pipeConn(t)

	release := make(chan uint64, 1)
	go func() {
		r := frame.NewReader(sside, 0)
		req, err := r.Next()
		if err != nil {
			return
		}
		release <- req.ID
		// Second request gets an immediate answer.
		req2, err := r.Next()
		if err != nil {
			return
		}
		buf, _ := frame.Encode(&frame.Frame{ID: req2.ID, Kind: frame.KindOK, Payload: []byte("ok")}, 0)
		sside.Write(buf)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Call(ctx, 0, []byte("slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}

	// Late response for the abandoned id arrives now.
	id := <-release
	buf, _ := frame.Encode(&frame.Frame{ID: id, Kind: frame.KindOK, Payload: []byte("too late")}, 0)
	if _, err := sside.Write(buf); err != nil {
		t.Fatalf("late write failed: %v", err)
	}

	// The connection is still usable afterwards.
	done := waitCall(t, c.Go(0, []byte("next")))
	if done.Err != nil {
		t.Fatalf("follow-up call failed: %v", done.Err)
	}
	if !bytes.Equal(done.Response.Payload, []byte("ok")) {
		t.Errorf("got %q, want %q", done.Response.Payload, "ok")
	}
}

// A request id stays reserved while its call is pending and may be reused
// only after resolution.
func TestIDNotReusedWhilePending(t *testing.T) {
	c, sside := pipeConn(t)

	go func() {
		r := frame.NewReader(sside, 0)
		for {
			if _, err := r.Next(); err != nil {
				return
			}
		}
	}()

	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		call := c.Go(0, nil)
		if seen[call.ID] {
			t.Fatalf("id %d assigned to two live pending calls", call.ID)
		}
		seen[call.ID] = true
	}
}
