package codec

import (
	"bytes"
	"encoding/gob"
)

// GobCodec uses encoding/gob for serialization. Go-only, but compact and
// strict: a payload that does not match the declared shape fails to decode
// instead of being silently reinterpreted.
type GobCodec struct{}

func (c *GobCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *GobCodec) Decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (c *GobCodec) Type() Type {
	return TypeGob
}
