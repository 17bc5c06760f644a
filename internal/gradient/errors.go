package gradient

import "errors"

var (
	// ErrInvalidGradient is returned when a gradient's fields are out of
	// the [0, 1] bound or non-finite.
	ErrInvalidGradient = errors.New("gradient: invalid shape")

	// ErrFutureTimestamp is returned when a gradient's timestamp is more
	// than FutureSkew ahead of local time.
	ErrFutureTimestamp = errors.New("gradient: timestamp in the future")

	// ErrStaleTimestamp is returned when a gradient's timestamp is older
	// than 2*MaxAge.
	ErrStaleTimestamp = errors.New("gradient: timestamp too stale")
)
