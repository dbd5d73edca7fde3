// Package frame implements the binary frame protocol for muxrpc.
//
// Every unit on the wire is one self-delimiting frame: a length prefix, a
// fixed header, then an opaque payload produced by the codec layer. The
// receiver reads the length prefix first to learn how many bytes complete
// the frame, which solves TCP's sticky packet problem.
//
// Frame layout:
//
//	0        4            12 13        17
//	┌────────┬────────────┬──┬─────────┬───────────────┐
//	│ length │ request id │k │ ordinal │  payload ...  │
//	│ uint32 │   uint64   │  │ uint32  │               │
//	└────────┴────────────┴──┴─────────┴───────────────┘
//
// length counts every byte after the length prefix, big-endian. The ordinal
// field is present on request frames only; a response frame carries its
// status in the kind byte and its header is 9 bytes.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Kind identifies a frame as a request or one of the response statuses.
type Kind byte

const (
	KindRequest    Kind = 0x00 // client → server call
	KindOK         Kind = 0x01 // response: success, payload is the encoded result
	KindAppError   Kind = 0x02 // response: handler-reported error, payload is the encoded error shape
	KindProtoError Kind = 0x03 // response: protocol-level failure, payload is a UTF-8 message
)

func (k Kind) valid() bool { return k <= KindProtoError }

// IsResponse reports whether k is one of the response statuses.
func (k Kind) IsResponse() bool { return k >= KindOK && k <= KindProtoError }

const (
	lenSize        = 4
	respHeaderSize = 8 + 1     // id + kind
	reqHeaderSize  = 8 + 1 + 4 // id + kind + ordinal

	// DefaultMaxSize is the frame size bound applied when a caller passes 0.
	DefaultMaxSize = 4 << 20
)

// ErrMalformed marks frames whose header cannot be valid: a declared length
// smaller than the header, an unknown kind byte, a request frame too short to
// hold its ordinal. Malformed frames are fatal to the connection that
// produced them; other connections are unaffected.
var ErrMalformed = errors.New("frame: malformed frame")

// ErrTooLarge marks frames whose declared length exceeds the configured
// maximum. Like ErrMalformed it is fatal to the connection.
var ErrTooLarge = errors.New("frame: frame exceeds maximum size")

// Frame is one decoded unit of the wire protocol.
type Frame struct {
	ID      uint64 // correlates a request with its response on one connection
	Kind    Kind
	Ordinal uint32 // method ordinal — meaningful on request frames only
	Payload []byte // opaque bytes produced by the codec layer
}

// Encode serializes f into a single contiguous byte slice, ready for one
// Write call. Writing the whole slice at once is what lets a per-connection
// write mutex guarantee frames never interleave mid-frame.
//
// max bounds the encoded size (0 means DefaultMaxSize); oversized frames are
// rejected here rather than discovered by the peer, mirroring the decode-side
// check.
func Encode(f *Frame, max uint32) ([]byte, error) {
	if max == 0 {
		max = DefaultMaxSize
	}
	if !f.Kind.valid() {
		return nil, fmt.Errorf("%w: unknown kind 0x%02x", ErrMalformed, byte(f.Kind))
	}
	header := respHeaderSize
	if f.Kind == KindRequest {
		header = reqHeaderSize
	}
	length := uint64(header) + uint64(len(f.Payload))
	if length > uint64(max) {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, length, max)
	}

	buf := make([]byte, lenSize+int(length))
	binary.BigEndian.PutUint32(buf[0:4], uint32(length))
	binary.BigEndian.PutUint64(buf[4:12], f.ID)
	buf[12] = byte(f.Kind)
	off := lenSize + respHeaderSize
	if f.Kind == KindRequest {
		binary.BigEndian.PutUint32(buf[off:off+4], f.Ordinal)
		off += 4
	}
	copy(buf[off:], f.Payload)
	return buf, nil
}

// Decode attempts to parse one frame from the front of buf.
//
// Return values:
//   - (frame, n, nil): one complete frame parsed, n bytes of buf consumed.
//   - (nil, 0, nil): buf holds less than one complete frame — need more data.
//     Nothing is consumed, so the caller can buffer and retry.
//   - (nil, 0, err): the bytes at the front of buf can never form a valid
//     frame (ErrMalformed / ErrTooLarge). Fatal to the connection.
//
// The returned frame's payload is copied out of buf, so the caller may reuse
// buf immediately. max bounds the declared length (0 means DefaultMaxSize);
// the bound is checked as soon as the length prefix is readable, so a
// corrupted prefix fails fast instead of stalling on bytes that will never
// arrive.
func Decode(buf []byte, max uint32) (*Frame, int, error) {
	if max == 0 {
		max = DefaultMaxSize
	}
	if len(buf) < lenSize {
		return nil, 0, nil
	}
	length := binary.BigEndian.Uint32(buf[:lenSize])
	if length > max {
		return nil, 0, fmt.Errorf("%w: declared length %d (max %d)", ErrTooLarge, length, max)
	}
	if length < respHeaderSize {
		return nil, 0, fmt.Errorf("%w: declared length %d below header size", ErrMalformed, length)
	}
	if len(buf) < lenSize+int(length) {
		return nil, 0, nil
	}

	body := buf[lenSize : lenSize+int(length)]
	kind := Kind(body[8])
	if !kind.valid() {
		return nil, 0, fmt.Errorf("%w: unknown kind 0x%02x", ErrMalformed, body[8])
	}
	f := &Frame{
		ID:   binary.BigEndian.Uint64(body[:8]),
		Kind: kind,
	}
	rest := body[respHeaderSize:]
	if kind == KindRequest {
		if length < reqHeaderSize {
			return nil, 0, fmt.Errorf("%w: request frame length %d below request header size", ErrMalformed, length)
		}
		f.Ordinal = binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
	}
	f.Payload = make([]byte, len(rest))
	copy(f.Payload, rest)
	return f, lenSize + int(length), nil
}

// Reader pulls complete frames off a byte stream, buffering partial reads
// between calls. It is the single-reader side of a connection: exactly one
// goroutine may call Next at a time.
type Reader struct {
	r   io.Reader
	max uint32
	buf []byte
}

// NewReader returns a Reader bounded by max (0 means DefaultMaxSize).
func NewReader(r io.Reader, max uint32) *Reader {
	return &Reader{r: r, max: max}
}

// Next returns the next complete frame from the stream.
//
// A stream that ends cleanly between frames yields io.EOF; one that ends in
// the middle of a frame yields io.ErrUnexpectedEOF — a short read is never
// misinterpreted as a valid frame.
func (r *Reader) Next() (*Frame, error) {
	for {
		f, n, err := Decode(r.buf, r.max)
		if err != nil {
			return nil, err
		}
		if f != nil {
			// Shift unconsumed bytes to the front, reusing the buffer.
			rem := copy(r.buf, r.buf[n:])
			r.buf = r.buf[:rem]
			return f, nil
		}

		var chunk [4096]byte
		n, rerr := r.r.Read(chunk[:])
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
			continue
		}
		if rerr == nil {
			continue
		}
		if rerr == io.EOF && len(r.buf) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, rerr
	}
}
