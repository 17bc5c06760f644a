package raftledger

import (
	"encoding/binary"
	"fmt"

	"github.com/mycelia-net/mycelia/internal/credit"
	"github.com/mycelia-net/mycelia/internal/netid"
)

// CommandKind tags a CreditCommand's variant.
type CommandKind byte

const (
	CommandTransfer      CommandKind = 0
	CommandGrantCredits  CommandKind = 1
	CommandRecordFailure CommandKind = 2
	CommandNoop          CommandKind = 3
)

// CreditCommand is the tagged union of operations the replicated log
// carries; each committed entry mutates the ledger's state machine exactly
// once, in log-index order, on every node.
type CreditCommand struct {
	Kind CommandKind

	Transfer credit.CreditTransfer // CommandTransfer

	GrantNode   netid.NodeId  // CommandGrantCredits
	GrantAmount credit.Credits

	FailureNode   netid.NodeId // CommandRecordFailure
	FailureReason string
	FailureTime   int64
}

// CreditResponse mirrors a CreditCommand's outcome once applied.
type CreditResponse struct {
	Kind CommandKind
	Err  string // empty on success
}

func putAccount(buf []byte, a netid.AccountId) []byte {
	buf = append(buf, a.Node[:]...)
	tag := a.Tag
	if len(tag) > 255 {
		tag = tag[:255]
	}
	buf = append(buf, byte(len(tag)))
	buf = append(buf, tag...)
	return buf
}

func readAccount(b []byte) (netid.AccountId, []byte, error) {
	if len(b) < 32+1 {
		return netid.AccountId{}, nil, fmt.Errorf("raftledger: truncated account")
	}
	node, err := netid.NodeIdFromBytes(b[:32])
	if err != nil {
		return netid.AccountId{}, nil, err
	}
	b = b[32:]
	n := int(b[0])
	b = b[1:]
	if len(b) < n {
		return netid.AccountId{}, nil, fmt.Errorf("raftledger: truncated account tag")
	}
	return netid.AccountId{Node: node, Tag: string(b[:n])}, b[n:], nil
}

func putStr(buf []byte, s string) []byte {
	if len(s) > 65535 {
		s = s[:65535]
	}
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf = append(buf, n[:]...)
	return append(buf, s...)
}

func readStr(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, fmt.Errorf("raftledger: truncated string length")
	}
	n := int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < n {
		return "", nil, fmt.Errorf("raftledger: truncated string")
	}
	return string(b[:n]), b[n:], nil
}

// Marshal encodes a CreditCommand for the raft log.
func (c CreditCommand) Marshal() []byte {
	buf := []byte{byte(c.Kind)}
	switch c.Kind {
	case CommandTransfer:
		buf = putAccount(buf, c.Transfer.From)
		buf = putAccount(buf, c.Transfer.To)
		var amt, cost [8]byte
		binary.BigEndian.PutUint64(amt[:], uint64(c.Transfer.Amount))
		binary.BigEndian.PutUint64(cost[:], uint64(c.Transfer.EntropyCost))
		buf = append(buf, amt[:]...)
		buf = append(buf, cost[:]...)
	case CommandGrantCredits:
		buf = append(buf, c.GrantNode[:]...)
		var amt [8]byte
		binary.BigEndian.PutUint64(amt[:], uint64(c.GrantAmount))
		buf = append(buf, amt[:]...)
	case CommandRecordFailure:
		buf = append(buf, c.FailureNode[:]...)
		buf = putStr(buf, c.FailureReason)
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(c.FailureTime))
		buf = append(buf, ts[:]...)
	case CommandNoop:
		// no payload
	}
	return buf
}

// UnmarshalCreditCommand decodes bytes produced by CreditCommand.Marshal.
func UnmarshalCreditCommand(b []byte) (CreditCommand, error) {
	if len(b) < 1 {
		return CreditCommand{}, fmt.Errorf("raftledger: empty command")
	}
	kind := CommandKind(b[0])
	b = b[1:]

	switch kind {
	case CommandTransfer:
		from, b, err := readAccount(b)
		if err != nil {
			return CreditCommand{}, err
		}
		to, b, err := readAccount(b)
		if err != nil {
			return CreditCommand{}, err
		}
		if len(b) < 16 {
			return CreditCommand{}, fmt.Errorf("raftledger: truncated transfer amounts")
		}
		amount := binary.BigEndian.Uint64(b[:8])
		cost := binary.BigEndian.Uint64(b[8:16])
		return CreditCommand{
			Kind: CommandTransfer,
			Transfer: credit.CreditTransfer{
				From:        from,
				To:          to,
				Amount:      credit.Credits(amount),
				EntropyCost: credit.Credits(cost),
			},
		}, nil

	case CommandGrantCredits:
		if len(b) < 32+8 {
			return CreditCommand{}, fmt.Errorf("raftledger: truncated grant command")
		}
		node, err := netid.NodeIdFromBytes(b[:32])
		if err != nil {
			return CreditCommand{}, err
		}
		amount := binary.BigEndian.Uint64(b[32:40])
		return CreditCommand{Kind: CommandGrantCredits, GrantNode: node, GrantAmount: credit.Credits(amount)}, nil

	case CommandRecordFailure:
		if len(b) < 32 {
			return CreditCommand{}, fmt.Errorf("raftledger: truncated failure command")
		}
		node, err := netid.NodeIdFromBytes(b[:32])
		if err != nil {
			return CreditCommand{}, err
		}
		b = b[32:]
		reason, b, err := readStr(b)
		if err != nil {
			return CreditCommand{}, err
		}
		if len(b) < 8 {
			return CreditCommand{}, fmt.Errorf("raftledger: truncated failure timestamp")
		}
		ts := binary.BigEndian.Uint64(b[:8])
		return CreditCommand{Kind: CommandRecordFailure, FailureNode: node, FailureReason: reason, FailureTime: int64(ts)}, nil

	case CommandNoop:
		return CreditCommand{Kind: CommandNoop}, nil

	default:
		return CreditCommand{}, ErrUnknownCommand
	}
}
