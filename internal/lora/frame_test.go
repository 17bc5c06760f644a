package lora

import (
	"bytes"
	"testing"
)

func TestEncodeFrameTooLarge(t *testing.T) {
	payload := make([]byte, MaxFramePayload+1)
	if _, err := EncodeFrame(payload); err != ErrFrameTooLarge {
		t.Errorf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestFrameScannerSingleFrame(t *testing.T) {
	payload := []byte("hello mesh")
	frame, err := EncodeFrame(payload)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	var s FrameScanner
	s.Feed(frame)
	got, ok := s.Next()
	if !ok {
		t.Fatal("expected a complete frame")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
	if _, ok := s.Next(); ok {
		t.Error("expected no further frames")
	}
}

func TestFrameScannerMultipleFramesOneFeed(t *testing.T) {
	f1, _ := EncodeFrame([]byte("one"))
	f2, _ := EncodeFrame([]byte("two"))

	var s FrameScanner
	s.Feed(append(append([]byte{}, f1...), f2...))

	got1, ok := s.Next()
	if !ok || string(got1) != "one" {
		t.Errorf("first frame = %q, ok=%v", got1, ok)
	}
	got2, ok := s.Next()
	if !ok || string(got2) != "two" {
		t.Errorf("second frame = %q, ok=%v", got2, ok)
	}
}

func TestFrameScannerDesyncRecovery(t *testing.T) {
	f, _ := EncodeFrame([]byte("recovered"))
	garbage := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	var s FrameScanner
	s.Feed(append(garbage, f...))

	got, ok := s.Next()
	if !ok {
		t.Fatal("expected scanner to recover and find the frame")
	}
	if string(got) != "recovered" {
		t.Errorf("payload = %q, want %q", got, "recovered")
	}
	if s.DesyncEvents() == 0 {
		t.Error("expected at least one desync event to be recorded")
	}
}

func TestFrameScannerIncompleteFrameWaits(t *testing.T) {
	f, _ := EncodeFrame([]byte("split across reads"))

	var s FrameScanner
	s.Feed(f[:3])
	if _, ok := s.Next(); ok {
		t.Fatal("expected no frame from a partial header")
	}
	s.Feed(f[3:])
	got, ok := s.Next()
	if !ok || string(got) != "split across reads" {
		t.Errorf("payload = %q, ok=%v", got, ok)
	}
}

func TestFrameScannerSplitMagicAcrossFeeds(t *testing.T) {
	f, _ := EncodeFrame([]byte("ab"))

	var s FrameScanner
	s.Feed(f[:1])
	if _, ok := s.Next(); ok {
		t.Fatal("expected no frame yet")
	}
	s.Feed(f[1:])
	got, ok := s.Next()
	if !ok || string(got) != "ab" {
		t.Errorf("payload = %q, ok=%v", got, ok)
	}
}
