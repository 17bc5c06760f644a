package enr

import (
	"encoding/binary"
	"fmt"
)

// Tag discriminates the EnrMessage tagged union.
type Tag byte

const (
	TagGradientUpdate Tag = iota + 1
	TagCreditTransfer
	TagBalanceQuery
	TagBalanceResponse
	TagElectionAnnouncement
	TagElectionCandidacy
	TagElectionVote
	TagElectionResult
	TagSeptalStateChange
	TagSeptalHealthProbe
	TagSeptalHealthResponse
)

// Encode wraps a payload in the envelope's length-prefixed binary framing:
// 1-byte tag | 4-byte big-endian length | payload. Unknown tags are
// rejected at Decode, not at dispatch.
func Encode(tag Tag, payload []byte) []byte {
	buf := make([]byte, 1+4+len(payload))
	buf[0] = byte(tag)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

// Decode splits an encoded envelope into its tag and payload. It validates
// the declared length against the actual buffer so a truncated buffer is a
// protocol error, not a panic.
func Decode(b []byte) (Tag, []byte, error) {
	if len(b) < 5 {
		return 0, nil, fmt.Errorf("%w: envelope shorter than header (%d bytes)", ErrTruncatedBuffer, len(b))
	}
	tag := Tag(b[0])
	n := binary.BigEndian.Uint32(b[1:5])
	rest := b[5:]
	if uint64(n) > uint64(len(rest)) {
		return 0, nil, fmt.Errorf("%w: declared length %d exceeds buffer %d", ErrTruncatedBuffer, n, len(rest))
	}
	if !tag.valid() {
		return 0, nil, fmt.Errorf("%w: tag %d", ErrUnknownTag, tag)
	}
	return tag, rest[:n], nil
}

func (t Tag) valid() bool {
	return t >= TagGradientUpdate && t <= TagSeptalHealthResponse
}

// putShortStr appends a 1-byte length prefix followed by up to 32 bytes,
// the short-str discipline used by the compact economic codecs.
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
		return "", nil, ErrTruncatedBuffer
	}
	n := int(b[0])
	b = b[1:]
	if len(b) < n {
		return "", nil, ErrTruncatedBuffer
	}
	return string(b[:n]), b[n:], nil
}
