package raftledger

import "errors"

var (
	// ErrNotLeader is returned by Propose when called on a node that is
	// not the current leader.
	ErrNotLeader = errors.New("raftledger: not leader")

	// ErrInsufficientCredits leads the text of CreditResponse.Err when a
	// Transfer command's sender balance cannot cover amount + entropy cost.
	// Propose returns that text as a new error value, which errors.Is does
	// not match against this sentinel.
	ErrInsufficientCredits = errors.New("raftledger: insufficient credits")

	// ErrUnknownCommand is returned by UnmarshalCreditCommand for an
	// unrecognized command kind; the fsm puts its text in CreditResponse.Err,
	// which Propose returns as a new error value.
	ErrUnknownCommand = errors.New("raftledger: unknown command kind")
)
