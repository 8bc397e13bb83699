package meshnet

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// compressThreshold is the encoded-message size above which encodeWire
// DEFLATE-compresses the payload before it goes out over the data channel
// (spec §6 wire protocol: keeps batched presence/log payloads under the 64
// KiB minimum accepted size with headroom).
const compressThreshold = 1024

// wirePrefixCompressed marks a frame as DEFLATE-compressed. Uncompressed frames are
// plain JSON and always start with '{', which never collides with this
// marker byte.
const wirePrefixCompressed = 0x01

// encodeWire prepares a marshaled Message for the data channel, compressing
// it with flate when it's large enough to be worth the round trip.
func encodeWire(plain []byte) ([]byte, error) {
	if len(plain) < compressThreshold {
		return plain, nil
	}
	var buf bytes.Buffer
	buf.WriteByte(wirePrefixCompressed)
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("meshnet: open flate writer: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("meshnet: compress message: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("meshnet: close flate writer: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeWire reverses encodeWire. Frames not carrying the compressed marker
// pass through unchanged.
func decodeWire(raw []byte) ([]byte, error) {
	if len(raw) == 0 || raw[0] != wirePrefixCompressed {
		return raw, nil
	}
	r := flate.NewReader(bytes.NewReader(raw[1:]))
	defer r.Close()
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("meshnet: decompress message: %w", err)
	}
	return plain, nil
}
