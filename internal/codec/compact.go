// Package codec implements the CompactCodec (threshold-gated deflate
// compression) and the Chunker (fixed-size fragmentation and reassembly for
// link-constrained transports such as LoRa).
package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// CompressionThreshold is the minimum payload size, in bytes, below which
// compression is skipped outright.
const CompressionThreshold = 200

// Compress deflates data at the given level and returns the compressed
// bytes alongside whether compression was actually applied. Compression is
// skipped for payloads under CompressionThreshold, and the compressed
// result is only used when it is strictly shorter than the original.
func Compress(data []byte, level int) (out []byte, compressed bool) {
	if len(data) < CompressionThreshold {
		return data, false
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return data, false
	}
	if _, err := w.Write(data); err != nil {
		return data, false
	}
	if err := w.Close(); err != nil {
		return data, false
	}

	if buf.Len() < len(data) {
		return buf.Bytes(), true
	}
	return data, false
}

// Decompress inflates data written by Compress. It is strict: any framing
// error is returned rather than silently truncated.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}
