package lora

import (
	"encoding/binary"
	"time"
)

// Port identifies a Meshtastic-style application port multiplexed over the
// link.
type Port uint16

const (
	PortTextMessage       Port = 1
	PortPosition          Port = 3
	PortNodeInfo          Port = 4
	PortMycelialVouch     Port = 512
	PortMycelialCredit    Port = 513
	PortMycelialGovernance Port = 514
	PortMycelialResource  Port = 515
)

// Priority is the LoRa bridge's outbound priority, which determines the
// hop_limit stamped on an encoded packet.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// HopLimitCap is the hard ceiling on a packet's hop_limit regardless of
// priority.
const HopLimitCap = 7

// HopLimitFor maps a priority to its hop_limit, per the bit-exact table.
func HopLimitFor(p Priority) uint8 {
	switch p {
	case PriorityLow:
		return 2
	case PriorityHigh:
		return 5
	default:
		return 3
	}
}

// portTopics maps a port to the gossip topic it bridges to/from.
var portTopics = map[Port]string{
	PortTextMessage:        "/mycelial/1.0.0/chat",
	PortNodeInfo:           "/mycelial/1.0.0/announce",
	PortPosition:           "/mycelial/1.0.0/announce",
	PortMycelialVouch:      "/mycelial/1.0.0/vouch",
	PortMycelialCredit:     "/mycelial/1.0.0/credit",
	PortMycelialGovernance: "/mycelial/1.0.0/governance",
	PortMycelialResource:   "/mycelial/1.0.0/resource",
}

// topicPorts is the inverse of portTopics, used when bridging gossip to
// LoRa. Position and NodeInfo collide on /announce; LoRa-bound traffic
// for that topic encodes as NodeInfo.
var topicPorts = map[string]Port{
	"/mycelial/1.0.0/chat":       PortTextMessage,
	"/mycelial/1.0.0/announce":   PortNodeInfo,
	"/mycelial/1.0.0/vouch":      PortMycelialVouch,
	"/mycelial/1.0.0/credit":     PortMycelialCredit,
	"/mycelial/1.0.0/governance": PortMycelialGovernance,
	"/mycelial/1.0.0/resource":   PortMycelialResource,
}

// TopicForPort returns the gossip topic a LoRa port bridges to, and
// whether the port is recognized.
func TopicForPort(p Port) (string, bool) {
	t, ok := portTopics[p]
	return t, ok
}

// PortForTopic returns the LoRa port a gossip topic bridges to, and
// whether the bridge should carry that topic onto the mesh at all.
func PortForTopic(topic string) (Port, bool) {
	p, ok := topicPorts[topic]
	return p, ok
}

// BroadcastAddress is the Meshtastic "to everyone" sentinel node id.
const BroadcastAddress uint32 = 0xFFFFFFFF

// MeshtasticPacket is the parsed form of a LoRa frame's payload.
type MeshtasticPacket struct {
	From      uint32
	To        uint32
	PacketID  uint32
	Channel   uint8
	Port      Port
	Payload   []byte
	HopLimit  uint8
	WantAck   bool
	RxTime    time.Time
}

// meshtasticHeaderSize is the fixed-width header preceding the payload:
// from(4) to(4) packet_id(4) channel(1) port(2) hop_limit(1) flags(1).
const meshtasticHeaderSize = 4 + 4 + 4 + 1 + 2 + 1 + 1

const wantAckFlag = 0x01

// EncodeMeshtasticPacket serializes a MeshtasticPacket for transmission as
// a frame payload. RxTime is not carried on the wire; it is set by the
// receiver from local arrival time.
func EncodeMeshtasticPacket(p MeshtasticPacket) []byte {
	buf := make([]byte, meshtasticHeaderSize+len(p.Payload))
	binary.BigEndian.PutUint32(buf[0:4], p.From)
	binary.BigEndian.PutUint32(buf[4:8], p.To)
	binary.BigEndian.PutUint32(buf[8:12], p.PacketID)
	buf[12] = p.Channel
	binary.BigEndian.PutUint16(buf[13:15], uint16(p.Port))
	hopLimit := p.HopLimit
	if hopLimit > HopLimitCap {
		hopLimit = HopLimitCap
	}
	buf[15] = hopLimit
	if p.WantAck {
		buf[16] = wantAckFlag
	}
	copy(buf[meshtasticHeaderSize:], p.Payload)
	return buf
}

// DecodeMeshtasticPacket parses a frame payload into a MeshtasticPacket.
// RxTime is stamped with now.
func DecodeMeshtasticPacket(b []byte, now time.Time) (MeshtasticPacket, error) {
	if len(b) < meshtasticHeaderSize {
		return MeshtasticPacket{}, ErrInvalidPacket
	}
	p := MeshtasticPacket{
		From:     binary.BigEndian.Uint32(b[0:4]),
		To:       binary.BigEndian.Uint32(b[4:8]),
		PacketID: binary.BigEndian.Uint32(b[8:12]),
		Channel:  b[12],
		Port:     Port(binary.BigEndian.Uint16(b[13:15])),
		HopLimit: b[15],
		WantAck:  b[16]&wantAckFlag != 0,
		RxTime:   now,
	}
	payload := make([]byte, len(b)-meshtasticHeaderSize)
	copy(payload, b[meshtasticHeaderSize:])
	p.Payload = payload
	return p, nil
}
