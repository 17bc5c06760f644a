package credit

import "errors"

var (
	// ErrZeroAmount is returned when Transfer is called with a zero amount
	//.
	ErrZeroAmount = errors.New("credit: transfer amount must be positive")

	// ErrSelfTransfer is returned when the sender and receiver accounts are
	// the same.
	ErrSelfTransfer = errors.New("credit: cannot transfer to self")

	// ErrReplayedNonce is returned when an ingested transfer's nonce is not
	// strictly greater than the sender's last-applied nonce.
	ErrReplayedNonce = errors.New("credit: replayed nonce")
)
