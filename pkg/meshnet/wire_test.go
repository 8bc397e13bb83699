package meshnet

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeWirePassesThroughSmallPayloads(t *testing.T) {
	small := []byte(`{"id":"x"}`)
	got, err := encodeWire(small)
	if err != nil {
		t.Fatalf("encodeWire: %v", err)
	}
	if !bytes.Equal(got, small) {
		t.Fatalf("small payload should pass through unchanged, got %q", got)
	}
}

func TestEncodeDecodeWireRoundTrip(t *testing.T) {
	plain := []byte(`{"id":"` + strings.Repeat("a", 2000) + `"}`)
	wire, err := encodeWire(plain)
	if err != nil {
		t.Fatalf("encodeWire: %v", err)
	}
	if len(wire) >= len(plain) {
		t.Fatalf("expected compression to shrink a repetitive payload: %d >= %d", len(wire), len(plain))
	}
	got, err := decodeWire(wire)
	if err != nil {
		t.Fatalf("decodeWire: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("round trip did not reproduce the original payload")
	}
}

func TestDecodeWirePassesThroughUncompressed(t *testing.T) {
	plain := []byte(`{"id":"x"}`)
	got, err := decodeWire(plain)
	if err != nil {
		t.Fatalf("decodeWire: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("uncompressed frame should pass through unchanged")
	}
}
