// Package codec defines the pluggable serializer consumed by the client stub
// and the server dispatch table. The core never interprets payload bytes; it
// only moves them between a frame and a Codec.
package codec

type Type byte

const (
	TypeJSON Type = 0
	TypeGob  Type = 1
)

// Codec turns argument/result values into payload bytes and back.
// Implementations must be safe for concurrent use.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() Type
}

// Get returns the codec for the given type byte, defaulting to Gob for
// anything that is not JSON.
func Get(t Type) Codec {
	if t == TypeJSON {
		return &JSONCodec{}
	}
	return &GobCodec{}
}
