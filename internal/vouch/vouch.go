// Package vouch encodes and decodes the compact VouchRequest/VouchAck wire
// messages carried on the vouch gossip topic and bridged to LoRa port 512.
package vouch

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/google/uuid"
)

// Tag identifies a vouch message variant on the wire.
type Tag byte

const (
	TagVouchRequest Tag = 0x01
	TagVouchAck     Tag = 0x02
)

var (
	// ErrTruncated is returned when a buffer ends before a fixed or
	// length-prefixed field can be read in full.
	ErrTruncated = errors.New("vouch: truncated buffer")

	// ErrUnknownTag is returned when a buffer's leading tag byte does not
	// match a known vouch message variant.
	ErrUnknownTag = errors.New("vouch: unknown tag")
)

// VouchRequest is one node vouching for another's trustworthiness, staking
// a percentage of its own standing.
type VouchRequest struct {
	ID            uuid.UUID
	Voucher       string
	Vouchee       string
	StakePercent  uint8
	Timestamp     int64 // unix seconds
}

// VouchAck is the vouchee's (or a validator's) response to a VouchRequest.
type VouchAck struct {
	ID        uuid.UUID
	From      string
	Accepted  bool
	Timestamp int64
}

func putShortStr(buf []byte, s string) []byte {
	if len(s) > 32 {
		s = s[:32]
	}
	buf = append(buf, byte(len(s)))
	buf = append(buf, s...)
	return buf
}

func readShortStr(b []byte) (string, []byte, error) {
	if len(b) < 1 {
		return "", nil, ErrTruncated
	}
	n := int(b[0])
	b = b[1:]
	if len(b) < n {
		return "", nil, ErrTruncated
	}
	return string(b[:n]), b[n:], nil
}

// Marshal encodes a VouchRequest as 0x01 | 16-byte uuid | short-str voucher
// | short-str vouchee | 1-byte stake-percent | 4-byte unix-seconds.
func (r VouchRequest) Marshal() []byte {
	buf := make([]byte, 0, 1+16+1+32+1+32+1+4)
	buf = append(buf, byte(TagVouchRequest))
	idBytes, _ := r.ID.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = putShortStr(buf, r.Voucher)
	buf = putShortStr(buf, r.Vouchee)
	buf = append(buf, r.StakePercent)
	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], uint32(r.Timestamp))
	buf = append(buf, ts[:]...)
	return buf
}

// UnmarshalVouchRequest decodes bytes produced by VouchRequest.Marshal.
func UnmarshalVouchRequest(b []byte) (VouchRequest, error) {
	if len(b) < 1 || Tag(b[0]) != TagVouchRequest {
		return VouchRequest{}, ErrUnknownTag
	}
	b = b[1:]
	if len(b) < 16 {
		return VouchRequest{}, ErrTruncated
	}
	id, err := uuid.FromBytes(b[:16])
	if err != nil {
		return VouchRequest{}, ErrTruncated
	}
	b = b[16:]

	voucher, b, err := readShortStr(b)
	if err != nil {
		return VouchRequest{}, err
	}
	vouchee, b, err := readShortStr(b)
	if err != nil {
		return VouchRequest{}, err
	}
	if len(b) < 1+4 {
		return VouchRequest{}, ErrTruncated
	}
	stake := b[0]
	b = b[1:]
	ts := binary.BigEndian.Uint32(b[:4])

	return VouchRequest{
		ID:           id,
		Voucher:      voucher,
		Vouchee:      vouchee,
		StakePercent: stake,
		Timestamp:    int64(ts),
	}, nil
}

// Marshal encodes a VouchAck as 0x02 | 16-byte uuid | short-str from |
// 1-byte accepted | 4-byte unix-seconds.
func (a VouchAck) Marshal() []byte {
	buf := make([]byte, 0, 1+16+1+32+1+4)
	buf = append(buf, byte(TagVouchAck))
	idBytes, _ := a.ID.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = putShortStr(buf, a.From)
	if a.Accepted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], uint32(a.Timestamp))
	buf = append(buf, ts[:]...)
	return buf
}

// UnmarshalVouchAck decodes bytes produced by VouchAck.Marshal.
func UnmarshalVouchAck(b []byte) (VouchAck, error) {
	if len(b) < 1 || Tag(b[0]) != TagVouchAck {
		return VouchAck{}, ErrUnknownTag
	}
	b = b[1:]
	if len(b) < 16 {
		return VouchAck{}, ErrTruncated
	}
	id, err := uuid.FromBytes(b[:16])
	if err != nil {
		return VouchAck{}, ErrTruncated
	}
	b = b[16:]

	from, b, err := readShortStr(b)
	if err != nil {
		return VouchAck{}, err
	}
	if len(b) < 1+4 {
		return VouchAck{}, ErrTruncated
	}
	accepted := b[0] != 0
	b = b[1:]
	ts := binary.BigEndian.Uint32(b[:4])

	return VouchAck{
		ID:        id,
		From:      from,
		Accepted:  accepted,
		Timestamp: int64(ts),
	}, nil
}

// NarrowStakePercent converts a float64 percentage into the wire's 1-byte
// field, tolerating the receiver-side rounding the format accepts.
func NarrowStakePercent(pct float64) uint8 {
	if pct < 0 {
		pct = 0
	}
	if pct > 255 {
		pct = 255
	}
	return uint8(math.Round(pct))
}
