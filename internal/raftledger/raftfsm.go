package raftledger

import (
	"fmt"
	"io"

	"github.com/hashicorp/raft"
)

// raftFSM adapts fsm to the hashicorp/raft.FSM interface for the Sprint-2
// backend; fsm itself stays raft-agnostic so the Sprint-1 bootstrap-leader
// path can drive it directly.
type raftFSM struct {
	f *fsm
}

var _ raft.FSM = (*raftFSM)(nil)

func (r *raftFSM) Apply(log *raft.Log) interface{} {
	cmd, err := UnmarshalCreditCommand(log.Data)
	if err != nil {
		return CreditResponse{Err: err.Error()}
	}
	return r.f.Apply(log.Index, cmd)
}

func (r *raftFSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{data: r.f.snapshotBytes()}, nil
}

func (r *raftFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("raftledger: read snapshot: %w", err)
	}
	return r.f.restoreBytes(data)
}

type fsmSnapshot struct {
	data []byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := sink.Write(s.data); err != nil {
		sink.Cancel()
		return fmt.Errorf("raftledger: persist snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
