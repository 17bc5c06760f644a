package codec

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressSkipsBelowThreshold(t *testing.T) {
	data := []byte("short payload")
	out, compressed := Compress(data, 6)
	if compressed {
		t.Error("compressed should be false below CompressionThreshold")
	}
	if !bytes.Equal(out, data) {
		t.Error("out should equal input when compression is skipped")
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("mycelia credit ledger entropy tax ", 20))
	out, compressed := Compress(data, 6)
	if !compressed {
		t.Fatal("expected highly repetitive data to compress")
	}
	if len(out) >= len(data) {
		t.Error("compressed output should be shorter than the input")
	}
	back, err := Decompress(out)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Error("decompressed output does not match original")
	}
}

func TestCompressKeepsOriginalWhenNotShorter(t *testing.T) {
	data := make([]byte, CompressionThreshold+50)
	for i := range data {
		data[i] = byte(i * 97)
	}
	out, compressed := Compress(data, 6)
	if compressed && len(out) >= len(data) {
		t.Error("should never report compressed with a non-shorter result")
	}
}
