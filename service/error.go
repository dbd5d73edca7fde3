package service

import (
	"errors"

	"muxrpc/codec"
)

// Error is the declared error shape carried by application-error responses.
// A handler that returns *Error has it delivered to the caller field-for-field;
// any other error is wrapped with its message only.
type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// EncodeError turns a handler error into an application-error payload.
func EncodeError(cdc codec.Codec, err error) ([]byte, error) {
	se := new(Error)
	if !errors.As(err, &se) {
		se = &Error{Message: err.Error()}
	}
	return cdc.Encode(se)
}

// DecodeError turns an application-error payload back into the declared
// error shape. A payload the codec cannot parse degrades to its raw text so
// the caller still sees something rather than a bare decode failure.
func DecodeError(cdc codec.Codec, payload []byte) error {
	se := new(Error)
	if err := cdc.Decode(payload, se); err != nil {
		return &Error{Message: string(payload)}
	}
	return se
}
