// Package raftledger implements the RaftCreditLedger: a strongly
// consistent, replicated credit ledger. When Config.Raft.Enabled is set,
// cmd/mycelia starts it alongside internal/credit's optimistic
// CreditSynchronizer; credit transfers dispatched by internal/bridge still
// go to the CreditSynchronizer, not to this ledger.
//
// Two backends share one fsm. The Sprint-1 bootstrap-leader path applies
// commands directly to the fsm with no real consensus, auto-electing the
// configured bootstrap node; it exists so a single-node deployment and the
// test suite don't need a live raft cluster. The Sprint-2 path wraps the
// same fsm as a hashicorp/raft.FSM and replicates through a real raft.Raft
// instance, selecting a bbolt-backed or in-memory log/stable store by
// Config.Raft.Backend.
package raftledger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/mycelia-net/mycelia/internal/credit"
	"github.com/mycelia-net/mycelia/internal/mcfg"
	"github.com/mycelia-net/mycelia/internal/netid"
	"github.com/mycelia-net/mycelia/internal/raftledger/store"
)

// Ledger is the RaftCreditLedger contract's Go-native home.
type Ledger struct {
	local netid.NodeId
	cfg   mcfg.RaftConfig
	fsm   *fsm
	log   *slog.Logger

	mu             sync.Mutex
	isBootstrap    bool
	bootstrapIndex uint64

	raft      *raft.Raft
	boltStore *store.BBoltStore
}

// New constructs a Ledger. When cfg.Enabled is false, the returned Ledger
// runs the Sprint-1 bootstrap-leader path entirely in-process.
func New(local netid.NodeId, cfg mcfg.RaftConfig, log *slog.Logger) (*Ledger, error) {
	if log == nil {
		log = slog.Default()
	}
	l := &Ledger{local: local, cfg: cfg, fsm: newFSM(), log: log}

	if !cfg.Enabled {
		l.isBootstrap = true
		return l, nil
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(local.String())

	var logStore raft.LogStore
	var stableStore raft.StableStore
	var snapStore raft.SnapshotStore

	switch cfg.Backend {
	case "bbolt":
		dbPath := filepath.Join(cfg.DataDir, "raft.db")
		bs, err := store.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("raftledger: open bbolt store: %w", err)
		}
		logStore, stableStore, l.boltStore = bs, bs, bs

		fss, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("raftledger: open snapshot store: %w", err)
		}
		snapStore = fss

	default: // "memory"
		mem := raft.NewInmemStore()
		logStore, stableStore = mem, mem
		snapStore = raft.NewInmemSnapshotStore()
	}

	addr, transport := raft.NewInmemTransport(raft.ServerAddress(local.String()))
	_ = addr

	rfsm := &raftFSM{f: l.fsm}
	r, err := raft.NewRaft(raftCfg, rfsm, logStore, stableStore, snapStore, transport)
	if err != nil {
		return nil, fmt.Errorf("raftledger: start raft: %w", err)
	}
	l.raft = r

	if cfg.BootstrapID == "" || cfg.BootstrapID == local.String() {
		future := r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
		})
		if err := future.Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			return nil, fmt.Errorf("raftledger: bootstrap cluster: %w", err)
		}
	}

	return l, nil
}

// Close releases the ledger's durable resources, if any.
func (l *Ledger) Close() error {
	if l.raft != nil {
		if err := l.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("raftledger: shutdown: %w", err)
		}
	}
	if l.boltStore != nil {
		return l.boltStore.Close()
	}
	return nil
}

// IsLeader reports whether this node currently accepts proposals.
func (l *Ledger) IsLeader() bool {
	if l.isBootstrap {
		return l.cfg.BootstrapID == "" || l.cfg.BootstrapID == l.local.String()
	}
	return l.raft.State() == raft.Leader
}

// Propose submits cmd for replication. Only the leader may accept it.
func (l *Ledger) Propose(cmd CreditCommand) (CreditResponse, error) {
	if l.isBootstrap {
		return l.applyBootstrap(cmd)
	}

	if l.raft.State() != raft.Leader {
		return CreditResponse{}, ErrNotLeader
	}

	future := l.raft.Apply(cmd.Marshal(), 10*time.Second)
	if err := future.Error(); err != nil {
		return CreditResponse{}, fmt.Errorf("raftledger: apply: %w", err)
	}
	resp, ok := future.Response().(CreditResponse)
	if !ok {
		return CreditResponse{}, fmt.Errorf("raftledger: unexpected apply response type %T", future.Response())
	}
	if resp.Err != "" {
		return resp, errors.New(resp.Err)
	}
	return resp, nil
}

func (l *Ledger) applyBootstrap(cmd CreditCommand) (CreditResponse, error) {
	if !l.IsLeader() {
		return CreditResponse{}, ErrNotLeader
	}
	l.mu.Lock()
	l.bootstrapIndex++
	idx := l.bootstrapIndex
	l.mu.Unlock()

	resp := l.fsm.Apply(idx, cmd)
	if resp.Err != "" {
		return resp, errors.New(resp.Err)
	}
	return resp, nil
}

// HandleMessage decodes a forwarded CreditCommand received over gossip
// (from a non-leader asking the leader to propose on its behalf) and
// applies it when this node is the leader. Non-leaders absorb the message.
func (l *Ledger) HandleMessage(data []byte) error {
	cmd, err := UnmarshalCreditCommand(data)
	if err != nil {
		return err
	}
	_, err = l.Propose(cmd)
	if errors.Is(err, ErrNotLeader) {
		return nil
	}
	return err
}

// Balance returns the current balance of an arbitrary account from local
// state. Reads are not linearizable outside the leader.
func (l *Ledger) Balance(account netid.AccountId) credit.Credits {
	return l.fsm.balance(account)
}

// LocalBalance returns the local node's primary account balance.
func (l *Ledger) LocalBalance() credit.Credits {
	return l.fsm.balance(netid.PrimaryAccount(l.local))
}

// GrantCredits proposes a CommandGrantCredits for node.
func (l *Ledger) GrantCredits(node netid.NodeId, amount credit.Credits) (CreditResponse, error) {
	return l.Propose(CreditCommand{Kind: CommandGrantCredits, GrantNode: node, GrantAmount: amount})
}

// RevivalPool returns the replicated revival pool accumulated from entropy
// tax on every committed transfer.
func (l *Ledger) RevivalPool() credit.Credits {
	return l.fsm.revival()
}

// AppliedIndex returns the highest log index applied to the state machine,
// exposed for the mycelia_raft_applied_index gauge.
func (l *Ledger) AppliedIndex() uint64 {
	return l.fsm.applied()
}
