package raftledger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mycelia-net/mycelia/internal/credit"
	"github.com/mycelia-net/mycelia/internal/netid"
)

// fsm holds the replicated ledger's state: a balances map and a revival
// pool accumulating entropy tax, mutated only by Apply so every node
// converges on the same state given the same command sequence.
type fsm struct {
	mu sync.Mutex

	balances    map[netid.AccountId]credit.Credits
	revivalPool credit.Credits
	lastApplied uint64
}

func newFSM() *fsm {
	return &fsm{balances: make(map[netid.AccountId]credit.Credits)}
}

// Apply mutates state for a single committed command and returns its
// response. index is the log index the command was committed at.
func (f *fsm) Apply(index uint64, cmd CreditCommand) CreditResponse {
	f.mu.Lock()
	defer f.mu.Unlock()

	resp := CreditResponse{Kind: cmd.Kind}

	switch cmd.Kind {
	case CommandTransfer:
		total := cmd.Transfer.Amount.AddSaturating(cmd.Transfer.EntropyCost)
		available := f.balances[cmd.Transfer.From]
		if available < total {
			resp.Err = fmt.Sprintf("%s: available=%d required=%d", ErrInsufficientCredits, available, total)
			break
		}
		f.balances[cmd.Transfer.From] = available.SubSaturating(total)
		f.balances[cmd.Transfer.To] = f.balances[cmd.Transfer.To].AddSaturating(cmd.Transfer.Amount)
		f.revivalPool = f.revivalPool.AddSaturating(cmd.Transfer.EntropyCost)

	case CommandGrantCredits:
		acc := netid.PrimaryAccount(cmd.GrantNode)
		f.balances[acc] = f.balances[acc].AddSaturating(cmd.GrantAmount)

	case CommandRecordFailure:
		// Recorded for the septal gate's distributed view; the ledger
		// itself tracks no per-node failure count.

	case CommandNoop:
		// heartbeat / leadership marker, no state change

	default:
		resp.Err = ErrUnknownCommand.Error()
	}

	f.lastApplied = index
	return resp
}

func (f *fsm) balance(account netid.AccountId) credit.Credits {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[account]
}

func (f *fsm) revival() credit.Credits {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revivalPool
}

func (f *fsm) applied() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastApplied
}

// snapshot is the opaque blob format serialized by (f)Snapshot and read by
// (f)restore: {lastAppliedIndex, revivalPool, len(balances), [account,
// balance]...}.
func (f *fsm) snapshotBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	var buf bytes.Buffer
	var hdr [24]byte
	binary.BigEndian.PutUint64(hdr[0:8], f.lastApplied)
	binary.BigEndian.PutUint64(hdr[8:16], uint64(f.revivalPool))
	binary.BigEndian.PutUint64(hdr[16:24], uint64(len(f.balances)))
	buf.Write(hdr[:])

	for acc, bal := range f.balances {
		buf.Write(acc.Node[:])
		tag := acc.Tag
		if len(tag) > 255 {
			tag = tag[:255]
		}
		buf.WriteByte(byte(len(tag)))
		buf.WriteString(tag)
		var balBytes [8]byte
		binary.BigEndian.PutUint64(balBytes[:], uint64(bal))
		buf.Write(balBytes[:])
	}
	return buf.Bytes()
}

func (f *fsm) restoreBytes(data []byte) error {
	if len(data) < 24 {
		return fmt.Errorf("raftledger: truncated snapshot header")
	}
	lastApplied := binary.BigEndian.Uint64(data[0:8])
	revivalPool := credit.Credits(binary.BigEndian.Uint64(data[8:16]))
	count := binary.BigEndian.Uint64(data[16:24])
	data = data[24:]

	balances := make(map[netid.AccountId]credit.Credits, count)
	for i := uint64(0); i < count; i++ {
		if len(data) < 32+1 {
			return fmt.Errorf("raftledger: truncated snapshot entry")
		}
		node, err := netid.NodeIdFromBytes(data[:32])
		if err != nil {
			return err
		}
		data = data[32:]
		n := int(data[0])
		data = data[1:]
		if len(data) < n+8 {
			return fmt.Errorf("raftledger: truncated snapshot entry tag/balance")
		}
		tag := string(data[:n])
		data = data[n:]
		bal := credit.Credits(binary.BigEndian.Uint64(data[:8]))
		data = data[8:]
		balances[netid.AccountId{Node: node, Tag: tag}] = bal
	}

	f.mu.Lock()
	f.lastApplied = lastApplied
	f.revivalPool = revivalPool
	f.balances = balances
	f.mu.Unlock()
	return nil
}
