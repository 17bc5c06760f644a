package election

import (
	"log/slog"
	"testing"
	"time"

	"github.com/mycelia-net/mycelia/internal/mcfg"
	"github.com/mycelia-net/mycelia/internal/netid"
	"github.com/mycelia-net/mycelia/pkg/enr"
)

func nodeID(b byte) netid.NodeId {
	var n netid.NodeId
	n[0] = b
	return n
}

func testConfig() mcfg.ElectionConfig {
	return mcfg.ElectionConfig{
		CandidacyPhase: 10 * time.Second,
		VotingPhase:    15 * time.Second,
		ElectionPhase:  30 * time.Second,
		MinUptime:      0.9,
		MinBandwidth:   1,
		MinReputation:  0.5,
	}
}

func eligibleCandidate(node netid.NodeId) NexusCandidate {
	return NexusCandidate{Node: node, Uptime: 1.0, Bandwidth: 10, Reputation: 1.0, ElectionScore: 1.0}
}

func newManager(t *testing.T, local netid.NodeId, clock *time.Time, cand LocalCandidateFunc) *Manager {
	t.Helper()
	m := New(local, testConfig(), cand, func(string, []byte) error { return nil }, slog.Default())
	m.now = func() time.Time { return *clock }
	return m
}

func TestEligibleGatesOnThresholds(t *testing.T) {
	cfg := testConfig()
	if !eligibleCandidate(nodeID(1)).Eligible(cfg) {
		t.Error("candidate meeting every threshold should be eligible")
	}
	low := NexusCandidate{Uptime: 0.1, Bandwidth: 10, Reputation: 1.0}
	if low.Eligible(cfg) {
		t.Error("candidate below MinUptime should not be eligible")
	}
}

func TestAnnounceRejectsDuplicateWhileInProgress(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, nodeID(1), &now, nil)

	if _, err := m.Announce("west"); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if _, err := m.Announce("west"); err != ErrElectionInProgress {
		t.Errorf("err = %v, want ErrElectionInProgress", err)
	}
}

func TestHandleCandidacyRejectsIneligible(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, nodeID(1), &now, nil)
	if _, err := m.Announce("west"); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	wire := enr.NexusCandidacyWire{ElectionID: 1, Node: nodeID(2), Uptime: 0}
	if err := m.HandleCandidacy(wire); err != ErrIneligibleCandidate {
		t.Errorf("err = %v, want ErrIneligibleCandidate", err)
	}
}

func TestHandleCandidacyRejectsUnknownElection(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, nodeID(1), &now, nil)

	wire := enr.NexusCandidacyWire{ElectionID: 99, Node: nodeID(2), Uptime: 1, Bandwidth: 10, Reputation: 1}
	if err := m.HandleCandidacy(wire); err != ErrUnknownElection {
		t.Errorf("err = %v, want ErrUnknownElection", err)
	}
}

// TestFinalizeRequiresQuorum is the P7 quorum property: an election with
// fewer votes than ceil(participants/2) must not seat a nexus, even once
// its voting phase has fully elapsed.
func TestFinalizeRequiresQuorum(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	local := nodeID(1)
	m := newManager(t, local, &now, func() (NexusCandidate, bool) { return eligibleCandidate(local), true })

	if _, err := m.Announce("west"); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	// Two more participants join via candidacy, but neither votes: with 3
	// participants, quorum is ceil(3*0.5) = 2, and only the local vote
	// (cast automatically on the Candidacy->Voting transition) is cast.
	if err := m.HandleCandidacy(enr.NexusCandidacyWire{ElectionID: 1, Node: nodeID(2), Uptime: 1, Bandwidth: 10, Reputation: 1, ElectionScore: 0.5}); err != nil {
		t.Fatalf("HandleCandidacy(2): %v", err)
	}
	if err := m.HandleCandidacy(enr.NexusCandidacyWire{ElectionID: 1, Node: nodeID(3), Uptime: 1, Bandwidth: 10, Reputation: 1, ElectionScore: 0.3}); err != nil {
		t.Fatalf("HandleCandidacy(3): %v", err)
	}

	now = now.Add(testConfig().CandidacyPhase)
	m.Tick(now) // Candidacy -> Voting, local vote cast

	now = now.Add(testConfig().VotingPhase)
	m.Tick(now) // Voting -> Confirming -> finalize

	if _, ok := m.CurrentNexus("west"); ok {
		t.Error("an election without quorum must not seat a nexus")
	}
	if m.Role("west").Kind != RoleUnknown {
		t.Errorf("Role = %+v, want RoleUnknown", m.Role("west"))
	}
}

// TestFinalizeSeatsWinnerOnQuorum checks the quorum-met path: once enough
// votes are collected, the highest-tallied candidate is seated and
// CurrentNexus/Role reflect it.
func TestFinalizeSeatsWinnerOnQuorum(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	local := nodeID(1)
	m := newManager(t, local, &now, func() (NexusCandidate, bool) { return eligibleCandidate(local), true })

	if _, err := m.Announce("west"); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if err := m.HandleCandidacy(enr.NexusCandidacyWire{ElectionID: 1, Node: nodeID(2), Uptime: 1, Bandwidth: 10, Reputation: 1, ElectionScore: 0.5}); err != nil {
		t.Fatalf("HandleCandidacy(2): %v", err)
	}

	now = now.Add(testConfig().CandidacyPhase)
	m.Tick(now) // local casts its vote for the highest-score candidate (itself)

	if err := m.HandleVote(enr.ElectionVoteWire{ElectionID: 1, Voter: nodeID(2), Candidate: local}); err != nil {
		t.Fatalf("HandleVote: %v", err)
	}

	now = now.Add(testConfig().VotingPhase)
	m.Tick(now)

	winner, ok := m.CurrentNexus("west")
	if !ok {
		t.Fatal("expected a seated nexus once quorum is met")
	}
	if winner != local {
		t.Errorf("winner = %x, want local %x", winner, local)
	}
	if m.Role("west").Kind != RoleNexus {
		t.Errorf("Role = %+v, want RoleNexus", m.Role("west"))
	}
}

func TestHandleResultIgnoresUntrackedElection(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, nodeID(1), &now, nil)
	if err := m.HandleResult(enr.ElectionResultWire{ElectionID: 42, Winner: nodeID(2), RegionID: "west"}); err != nil {
		t.Fatalf("HandleResult: %v", err)
	}
	if _, ok := m.CurrentNexus("west"); ok {
		t.Error("an untracked result must not seat a nexus")
	}
}
