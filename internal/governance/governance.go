// Package governance encodes and decodes the compact CreateProposal wire
// message carried on the governance gossip topic and bridged to LoRa
// port 514.
//
// The LoRa-bound path intentionally loses information relative to the
// gossip-native message: titles are truncated to 64 bytes on encode, and
// the LoRa decode path replaces description with a fixed placeholder. This
// is a deliberate link-layer compromise carried forward from the system
// this bridge replicates, not a bug; round-trip equality does not hold for
// these two fields and should not be "fixed" by strengthening the LoRa
// frame budget.
package governance

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// Tag identifies a governance message variant on the wire.
type Tag byte

const TagCreateProposal Tag = 0x01

// LoRaDescriptionPlaceholder replaces a CreateProposal's description when
// the message is decoded from the LoRa link layer.
const LoRaDescriptionPlaceholder = "[see full message on gossip]"

// LoRaTitleCap is the byte length a CreateProposal's title is truncated to
// when encoded for the LoRa link.
const LoRaTitleCap = 64

var (
	ErrTruncated  = errors.New("governance: truncated buffer")
	ErrUnknownTag = errors.New("governance: unknown tag")
)

// CreateProposal is a governance proposal announcement.
type CreateProposal struct {
	ID          uuid.UUID
	Title       string
	Description string
	Timestamp   int64 // unix seconds
}

func putStr16(buf []byte, s string) []byte {
	if len(s) > 65535 {
		s = s[:65535]
	}
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf = append(buf, n[:]...)
	buf = append(buf, s...)
	return buf
}

func readStr16(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < n {
		return "", nil, ErrTruncated
	}
	return string(b[:n]), b[n:], nil
}

// Marshal encodes the gossip-native form: 0x01 | 16-byte uuid |
// 2-byte-len-prefixed title | 2-byte-len-prefixed description |
// 4-byte unix-seconds. Gossip frames are not link-constrained, so title and
// description are carried in full here.
func (p CreateProposal) Marshal() []byte {
	buf := make([]byte, 0, 1+16+2+len(p.Title)+2+len(p.Description)+4)
	buf = append(buf, byte(TagCreateProposal))
	idBytes, _ := p.ID.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = putStr16(buf, p.Title)
	buf = putStr16(buf, p.Description)
	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], uint32(p.Timestamp))
	buf = append(buf, ts[:]...)
	return buf
}

// Unmarshal decodes bytes produced by Marshal.
func Unmarshal(b []byte) (CreateProposal, error) {
	if len(b) < 1 || Tag(b[0]) != TagCreateProposal {
		return CreateProposal{}, ErrUnknownTag
	}
	b = b[1:]
	if len(b) < 16 {
		return CreateProposal{}, ErrTruncated
	}
	id, err := uuid.FromBytes(b[:16])
	if err != nil {
		return CreateProposal{}, ErrTruncated
	}
	b = b[16:]

	title, b, err := readStr16(b)
	if err != nil {
		return CreateProposal{}, err
	}
	desc, b, err := readStr16(b)
	if err != nil {
		return CreateProposal{}, err
	}
	if len(b) < 4 {
		return CreateProposal{}, ErrTruncated
	}
	ts := binary.BigEndian.Uint32(b[:4])

	return CreateProposal{
		ID:          id,
		Title:       title,
		Description: desc,
		Timestamp:   int64(ts),
	}, nil
}

// MarshalLoRa encodes the link-constrained form consumed by the LoRa
// bridge's port table: the same tagged layout as Marshal, but with title
// truncated to LoRaTitleCap bytes and description omitted in favor of the
// fixed placeholder applied on decode.
func (p CreateProposal) MarshalLoRa() []byte {
	title := p.Title
	if len(title) > LoRaTitleCap {
		title = title[:LoRaTitleCap]
	}
	buf := make([]byte, 0, 1+16+2+len(title)+4)
	buf = append(buf, byte(TagCreateProposal))
	idBytes, _ := p.ID.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = putStr16(buf, title)
	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], uint32(p.Timestamp))
	buf = append(buf, ts[:]...)
	return buf
}

// UnmarshalLoRa decodes a link-constrained CreateProposal written by
// MarshalLoRa. Description is always LoRaDescriptionPlaceholder; Title may
// be a truncated prefix of the original.
func UnmarshalLoRa(b []byte) (CreateProposal, error) {
	if len(b) < 1 || Tag(b[0]) != TagCreateProposal {
		return CreateProposal{}, ErrUnknownTag
	}
	b = b[1:]
	if len(b) < 16 {
		return CreateProposal{}, ErrTruncated
	}
	id, err := uuid.FromBytes(b[:16])
	if err != nil {
		return CreateProposal{}, ErrTruncated
	}
	b = b[16:]

	title, b, err := readStr16(b)
	if err != nil {
		return CreateProposal{}, err
	}
	if len(b) < 4 {
		return CreateProposal{}, ErrTruncated
	}
	ts := binary.BigEndian.Uint32(b[:4])

	return CreateProposal{
		ID:          id,
		Title:       title,
		Description: LoRaDescriptionPlaceholder,
		Timestamp:   int64(ts),
	}, nil
}
