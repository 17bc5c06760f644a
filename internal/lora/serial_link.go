package lora

import (
	"io"
	"os"
)

// SerialLink is a Link backed by a character device (a LoRa radio's USB
// serial port). No corpus example ships a serial transport library, so this
// talks to the device file directly; baud rate and framing are expected to
// already be configured on the device node (e.g. via stty) before the
// bridge starts.
type SerialLink struct {
	path string
	f    *os.File
}

// NewSerialLink returns a Link for the device at path.
func NewSerialLink(path string) *SerialLink {
	return &SerialLink{path: path}
}

func (s *SerialLink) Connect() error {
	f, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	s.f = f
	return nil
}

func (s *SerialLink) Disconnect() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *SerialLink) IsConnected() bool {
	return s.f != nil
}

func (s *SerialLink) Name() string {
	return s.path
}

// ReadPacket reads whatever bytes are currently available. A deadline-free
// blocking read would stall the bridge's housekeeping tick, so callers
// should ensure the device is opened in non-blocking mode at the OS level.
func (s *SerialLink) ReadPacket() ([]byte, error) {
	if s.f == nil {
		return nil, ErrLinkDisconnected
	}
	buf := make([]byte, 512)
	n, err := s.f.Read(buf)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (s *SerialLink) WritePacket(data []byte) error {
	if s.f == nil {
		return ErrLinkDisconnected
	}
	_, err := s.f.Write(data)
	return err
}
