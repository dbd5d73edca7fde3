package client

import (
	"context"
	"fmt"

	"muxrpc/frame"
	"muxrpc/service"
)

// Call issues a request and blocks until its response frame arrives or ctx
// expires. On expiry the pending entry is forgotten so the table cannot grow
// without bound; a response that loses the race is discarded.
func (c *Conn) Call(ctx context.Context, ordinal uint32, payload []byte) (*frame.Frame, error) {
	call := c.Go(ordinal, payload)
	select {
	case <-call.Done():
		if call.Err != nil {
			return nil, call.Err
		}
		return call.Response, nil
	case <-ctx.Done():
		c.forget(call.ID)
		return nil, ctx.Err()
	}
}

// Invoke is the typed stub primitive: encode arguments, issue the request
// under the method's ordinal, await the response, decode it into the declared
// result or error shape. Generated (or hand-authored) stub methods are thin
// wrappers around it.
func Invoke[A, R any](ctx context.Context, c *Conn, ordinal uint32, args *A) (*R, error) {
	payload, err := c.cdc.Encode(args)
	if err != nil {
		return nil, fmt.Errorf("client: encode args: %w", err)
	}

	resp, err := c.Call(ctx, ordinal, payload)
	if err != nil {
		return nil, err
	}

	switch resp.Kind {
	case frame.KindOK:
		reply := new(R)
		if err := c.cdc.Decode(resp.Payload, reply); err != nil {
			return nil, fmt.Errorf("client: decode reply: %w", err)
		}
		return reply, nil
	case frame.KindAppError:
		return nil, service.DecodeError(c.cdc, resp.Payload)
	default: // frame.KindProtoError
		return nil, &ProtocolError{Message: string(resp.Payload)}
	}
}
