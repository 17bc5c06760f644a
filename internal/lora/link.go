// Package lora implements the LoRaBridge: a bidirectional translator
// between a constrained link-layer mesh and the gossip overlay, with frame
// scanning, deduplication, compact binary codecs, and chunked reassembly
// for oversize payloads.
package lora

import "errors"

var (
	// ErrLinkDisconnected is returned by ReadPacket/WritePacket when the
	// underlying link is not currently connected.
	ErrLinkDisconnected = errors.New("lora: link disconnected")

	// ErrFrameTooLarge is returned when an outgoing frame's payload would
	// exceed MaxFramePayload bytes.
	ErrFrameTooLarge = errors.New("lora: frame payload too large")

	// ErrBadMagic is a desync signal: the reader discarded bytes while
	// scanning for the next frame's magic prefix.
	ErrBadMagic = errors.New("lora: magic mismatch, resynchronizing")

	// ErrInvalidPacket is returned when a frame's payload is too short to
	// contain a Meshtastic packet header.
	ErrInvalidPacket = errors.New("lora: invalid meshtastic packet")

	// ErrMessageTooLarge is returned by SendToLoRa, wrapping the chunker's
	// error, when an outbound gossip message's payload needs more chunks
	// than the chunker allows.
	ErrMessageTooLarge = errors.New("lora: message too large to chunk")

	// ErrUnbridgedTopic is returned when a gossip topic has no LoRa port
	// mapping and should not be carried onto the mesh.
	ErrUnbridgedTopic = errors.New("lora: topic not bridged to lora")
)

// Link is the hardware/transport abstraction LoRaBridge consumes. A real
// implementation wraps a serial port or socket to a LoRa radio; tests
// substitute an in-memory pipe.
type Link interface {
	Connect() error
	Disconnect() error
	ReadPacket() ([]byte, error) // nil, nil on no packet currently available
	WritePacket(data []byte) error
	IsConnected() bool
	Name() string
}
