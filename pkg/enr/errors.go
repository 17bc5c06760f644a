package enr

import "errors"

var (
	// ErrTruncatedBuffer is returned when a buffer ends before the framing
	// it declares.
	ErrTruncatedBuffer = errors.New("enr: truncated buffer")

	// ErrUnknownTag is returned when an envelope's tag byte does not match
	// any EnrMessage variant.
	ErrUnknownTag = errors.New("enr: unknown envelope tag")

	// ErrMalformedEnvelope names a shape violation inside a message's own
	// payload. The decoders in this package do not return it; they report a
	// short payload as ErrTruncatedBuffer and do not validate enum values.
	ErrMalformedEnvelope = errors.New("enr: malformed envelope payload")
)
