package codec

import (
	"testing"
)

type testArgs struct {
	A, B int
	Tag  string
}

func TestJSONCodec(t *testing.T) {
	jsonCodec := &JSONCodec{}

	original := &testArgs{A: 1, B: 2, Tag: "add"}

	data, err := jsonCodec.Encode(original)
	if err != nil {
		t.Fatalf("JSONCodec Encode failed: %v", err)
	}

	var decoded testArgs
	if err := jsonCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("JSONCodec Decode failed: %v", err)
	}

	if decoded != *original {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, *original)
	}
}

func TestGobCodec(t *testing.T) {
	gobCodec := &GobCodec{}

	original := &testArgs{A: 10, B: 20, Tag: "mul"}

	data, err := gobCodec.Encode(original)
	if err != nil {
		t.Fatalf("GobCodec Encode failed: %v", err)
	}

	var decoded testArgs
	if err := gobCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("GobCodec Decode failed: %v", err)
	}

	if decoded != *original {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, *original)
	}
}

func TestGobCodecShapeMismatch(t *testing.T) {
	gobCodec := &GobCodec{}

	data, err := gobCodec.Encode(&testArgs{A: 1})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// A payload that does not match the declared shape must fail to decode,
	// never be silently misread.
	var wrong struct{ A func() }
	if err := gobCodec.Decode(data, &wrong); err == nil {
		t.Error("expected decode error for mismatched shape, got nil")
	}
}

func TestGet(t *testing.T) {
	if _, ok := Get(TypeJSON).(*JSONCodec); !ok {
		t.Error("Get(TypeJSON) did not return a JSONCodec")
	}
	if _, ok := Get(TypeGob).(*GobCodec); !ok {
		t.Error("Get(TypeGob) did not return a GobCodec")
	}
}
