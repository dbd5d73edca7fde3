// Package server implements the accepting side of muxrpc: a listener that
// spins up one connection dispatcher per accepted transport, bounded
// concurrent handler execution, and graceful shutdown.
//
// Per-connection pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → per request: acquire concurrency slot → go handleRequest
//	    → decode args → middleware chain → bound method → encode → write response
//
// Reading is strictly serial (frame boundaries live in the byte stream), but
// handler execution overlaps with reading the next request, so one slow call
// never blocks the others on the same connection. Responses complete in
// whatever order the handlers finish; the request id, not arrival order, is
// what correlates them.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"muxrpc/frame"
	"muxrpc/middleware"
	"muxrpc/service"
)

// Server serves one service binding to any number of connections.
type Server struct {
	binding     *service.Binding
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	opts        options

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup // in-flight handlers, for graceful shutdown
	shutdown atomic.Bool
}

// New creates a server for the given contract binding. The binding is shared
// read-only by every connection dispatcher.
func New(binding *service.Binding, opts ...Option) *Server {
	return &Server{
		binding: binding,
		opts:    applyOptions(opts),
	}
}

// Use registers a middleware. Middlewares run in registration order around
// every handler invocation. Must be called before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// ListenAndServe listens on the address and serves until shutdown. With a
// TLS config set, every accepted transport completes the handshake before
// its first frame is read.
func (s *Server) ListenAndServe(network, address string) error {
	lis, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	if s.opts.tlsConfig != nil {
		lis = tls.NewListener(lis, s.opts.tlsConfig)
	}
	return s.Serve(lis)
}

// Serve accepts transports from lis and dispatches each on its own
// goroutine. Accept errors are logged and do not stop the loop; only closing
// the listener does.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	s.listener = lis
	// Build the middleware chain once, not per request.
	s.handler = middleware.Chain(s.middlewares...)(s.invoke)
	s.mu.Unlock()

	for {
		conn, err := lis.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.opts.logger.Warn("accept failed", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}
		go s.handleConn(conn)
	}
}

// Addr returns the listener address once Serve has been called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting, then waits up to timeout for in-flight handlers
// to drain. Requests still executing after the deadline are abandoned.
func (s *Server) Shutdown(timeout time.Duration) error {
	// Flag before close, so the Accept error is recognized as intentional.
	s.shutdown.Store(true)
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: shutdown timed out with handlers still in flight")
	}
}

// handleConn is the dispatcher for one accepted transport: a single read
// loop, a per-connection concurrency semaphore, and a per-connection write
// mutex shared by every in-flight handler.
//
// The semaphore is acquired between decode and dispatch — that is the
// backpressure point: beyond the bound, newly decoded requests wait here
// instead of piling up as goroutines.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	writeMu := &sync.Mutex{}
	sem := make(chan struct{}, s.opts.maxInFlight)
	r := frame.NewReader(conn, s.opts.maxFrame)

	for {
		f, err := r.Next()
		if err != nil {
			// Fatal to this connection only. Requests already dispatched are
			// abandoned: their responses, if produced, fail to write and are
			// dropped.
			if err != io.EOF {
				s.opts.logger.Debug("connection terminated",
					zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
			return
		}
		if f.Kind != frame.KindRequest {
			s.opts.logger.Warn("ignoring non-request frame",
				zap.Uint64("id", f.ID), zap.Uint8("kind", uint8(f.Kind)))
			continue
		}

		sem <- struct{}{}
		s.wg.Add(1)
		go func(f *frame.Frame) {
			defer s.wg.Done()
			defer func() { <-sem }()
			s.handleRequest(f, conn, writeMu)
		}(f)
	}
}

// handleRequest serves one decoded request frame end to end. Every outcome —
// unknown ordinal, undecodable arguments, handler error, handler panic,
// success — produces exactly one response tagged with the request's id.
func (s *Server) handleRequest(f *frame.Frame, conn net.Conn, writeMu *sync.Mutex) {
	m, ok := s.binding.Method(f.Ordinal)
	if !ok {
		s.writeResponse(conn, writeMu, f.ID, frame.KindProtoError,
			[]byte(fmt.Sprintf("unknown method ordinal %d", f.Ordinal)))
		return
	}

	args := m.NewArgs()
	if err := s.opts.cdc.Decode(f.Payload, args); err != nil {
		s.writeResponse(conn, writeMu, f.ID, frame.KindProtoError,
			[]byte("cannot decode arguments: "+err.Error()))
		return
	}

	result := s.safeHandle(context.Background(), &middleware.Call{
		Method:  m.Name,
		Ordinal: m.Ordinal,
		Args:    args,
	})

	if result.Err != nil {
		payload, err := service.EncodeError(s.opts.cdc, result.Err)
		if err != nil {
			s.writeResponse(conn, writeMu, f.ID, frame.KindProtoError,
				[]byte("cannot encode error: "+err.Error()))
			return
		}
		s.writeResponse(conn, writeMu, f.ID, frame.KindAppError, payload)
		return
	}

	payload, err := s.opts.cdc.Encode(result.Reply)
	if err != nil {
		s.writeResponse(conn, writeMu, f.ID, frame.KindProtoError,
			[]byte("cannot encode reply: "+err.Error()))
		return
	}
	s.writeResponse(conn, writeMu, f.ID, frame.KindOK, payload)
}

// safeHandle runs the middleware chain with a panic fence: a crashing handler
// fails its own call and nothing else.
func (s *Server) safeHandle(ctx context.Context, call *middleware.Call) (result *middleware.Result) {
	defer func() {
		if p := recover(); p != nil {
			s.opts.logger.Error("handler panic",
				zap.String("method", call.Method), zap.Any("panic", p), zap.Stack("stack"))
			result = &middleware.Result{
				Err: &service.Error{Code: "INTERNAL", Message: fmt.Sprintf("handler panic: %v", p)},
			}
		}
	}()
	return s.handler(ctx, call)
}

// invoke is the innermost handler the middleware chain wraps: look the bound
// method up again by ordinal and run it.
func (s *Server) invoke(ctx context.Context, call *middleware.Call) *middleware.Result {
	m, ok := s.binding.Method(call.Ordinal)
	if !ok {
		return &middleware.Result{Err: &service.Error{
			Code: "UNKNOWN_METHOD", Message: fmt.Sprintf("ordinal %d", call.Ordinal),
		}}
	}
	reply, err := m.Invoke(ctx, call.Args)
	return &middleware.Result{Reply: reply, Err: err}
}

// writeResponse encodes and writes one response frame under the connection's
// write mutex, so concurrently completing handlers never interleave bytes
// mid-frame. A write failure means the transport is gone; the response is
// dropped and teardown is left to the read loop.
func (s *Server) writeResponse(conn net.Conn, writeMu *sync.Mutex, id uint64, kind frame.Kind, payload []byte) {
	buf, err := frame.Encode(&frame.Frame{ID: id, Kind: kind, Payload: payload}, s.opts.maxFrame)
	if err != nil {
		// Oversized reply: degrade to a protocol error so the caller still
		// gets a resolution for this id.
		buf, err = frame.Encode(&frame.Frame{
			ID: id, Kind: frame.KindProtoError, Payload: []byte(err.Error()),
		}, s.opts.maxFrame)
		if err != nil {
			return
		}
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if _, err := conn.Write(buf); err != nil {
		s.opts.logger.Debug("dropping response, write failed",
			zap.Uint64("id", id), zap.Error(err))
	}
}
