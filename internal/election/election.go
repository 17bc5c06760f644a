// Package election implements the DistributedElection state machine: a
// region-scoped nexus election that runs Announce → Candidacy → Voting →
// Confirming with deterministic tie-breaking and quorum.
package election

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mycelia-net/mycelia/internal/mcfg"
	"github.com/mycelia-net/mycelia/internal/netid"
	"github.com/mycelia-net/mycelia/pkg/enr"
)

// Phase is a stage of the per-election state machine.
type Phase uint8

const (
	Idle Phase = iota
	Candidacy
	Voting
	Confirming
)

// NexusCandidate describes a node's fitness to become a region's nexus.
type NexusCandidate struct {
	Node             netid.NodeId
	Uptime           float64
	Bandwidth        float64
	Reputation       float64
	CurrentLeafCount uint32
	ElectionScore    float64
}

// Eligible reports whether the candidate clears the uptime/bandwidth/
// reputation thresholds.
func (c NexusCandidate) Eligible(cfg mcfg.ElectionConfig) bool {
	return c.Uptime >= cfg.MinUptime && c.Bandwidth >= cfg.MinBandwidth && c.Reputation >= cfg.MinReputation
}

// RoleKind distinguishes a node's adopted role after an election resolves.
type RoleKind uint8

const (
	RoleUnknown RoleKind = iota
	RoleNexus
	RoleLeaf
)

// Role is the node's adopted position in a region after an election.
type Role struct {
	Kind   RoleKind
	Parent netid.NodeId
}

// activeElection is the per-region state tracked while an election runs
//.
type activeElection struct {
	id           uint64
	initiator    netid.NodeId
	regionID     string
	phase        Phase
	startedAt    time.Time
	candidates   map[netid.NodeId]NexusCandidate
	votes        map[netid.NodeId]netid.NodeId // voter -> chosen
	participants map[netid.NodeId]struct{}
	votedLocally bool
}

func (e *activeElection) timedOut(now time.Time, cfg mcfg.ElectionConfig) bool {
	return now.Sub(e.startedAt) >= cfg.CandidacyPhase+cfg.VotingPhase
}

// LocalCandidateFunc supplies the local node's current fitness snapshot.
// The second return value is false when the node has nothing to submit
// (e.g. stats not yet warmed up).
type LocalCandidateFunc func() (NexusCandidate, bool)

// Manager implements the DistributedElection contract.
type Manager struct {
	mu sync.Mutex

	elections  map[string]*activeElection // regionID -> election
	byID       map[uint64]*activeElection
	currentNex map[string]netid.NodeId
	roles      map[string]Role
	localCount uint64

	local         netid.NodeId
	cfg           mcfg.ElectionConfig
	localCandFunc LocalCandidateFunc
	publish       enr.PublishFunc
	now           func() time.Time
	log           *slog.Logger
}

// New constructs a Manager for the local node.
func New(local netid.NodeId, cfg mcfg.ElectionConfig, localCand LocalCandidateFunc, publish enr.PublishFunc, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		elections:     make(map[string]*activeElection),
		byID:          make(map[uint64]*activeElection),
		currentNex:    make(map[string]netid.NodeId),
		roles:         make(map[string]Role),
		local:         local,
		cfg:           cfg,
		localCandFunc: localCand,
		publish:       publish,
		now:           time.Now,
		log:           log,
	}
}

// Announce triggers a new election for a region.
func (m *Manager) Announce(regionID string) (netid.ElectionId, error) {
	m.mu.Lock()
	if existing, ok := m.elections[regionID]; ok && !existing.timedOut(m.now(), m.cfg) {
		m.mu.Unlock()
		return 0, ErrElectionInProgress
	}

	m.localCount++
	id := m.localCount
	e := &activeElection{
		id:           id,
		initiator:    m.local,
		regionID:     regionID,
		phase:        Candidacy,
		startedAt:    m.now(),
		candidates:   make(map[netid.NodeId]NexusCandidate),
		votes:        make(map[netid.NodeId]netid.NodeId),
		participants: map[netid.NodeId]struct{}{m.local: {}},
	}
	m.elections[regionID] = e
	m.byID[id] = e
	m.mu.Unlock()

	wire := enr.ElectionAnnouncementWire{
		ElectionID: id,
		Initiator:  m.local,
		RegionID:   regionID,
		Timestamp:  m.now().UnixMilli(),
	}
	data := enr.Encode(enr.TagElectionAnnouncement, wire.Marshal())
	if err := m.publish(enr.ElectionTopic, data); err != nil {
		return netid.ElectionId(id), fmt.Errorf("election: publish announcement: %w", err)
	}

	m.submitLocalCandidacyIfEligible(e)
	return netid.ElectionId(id), nil
}

// HandleAnnouncement adopts a remote election unless the region already
// tracks a non-expired election whose id is equal to or higher than the
// announced one.
func (m *Manager) HandleAnnouncement(wire enr.ElectionAnnouncementWire) error {
	m.mu.Lock()
	if existing, ok := m.elections[wire.RegionID]; ok {
		if existing.id >= wire.ElectionID && !existing.timedOut(m.now(), m.cfg) {
			m.mu.Unlock()
			return nil
		}
		delete(m.byID, existing.id)
	}

	e := &activeElection{
		id:           wire.ElectionID,
		initiator:    wire.Initiator,
		regionID:     wire.RegionID,
		phase:        Candidacy,
		startedAt:    time.UnixMilli(wire.Timestamp),
		candidates:   make(map[netid.NodeId]NexusCandidate),
		votes:        make(map[netid.NodeId]netid.NodeId),
		participants: map[netid.NodeId]struct{}{wire.Initiator: {}, m.local: {}},
	}
	m.elections[wire.RegionID] = e
	m.byID[wire.ElectionID] = e
	m.mu.Unlock()

	m.submitLocalCandidacyIfEligible(e)
	return nil
}

func (m *Manager) submitLocalCandidacyIfEligible(e *activeElection) {
	if m.localCandFunc == nil {
		return
	}
	cand, ok := m.localCandFunc()
	if !ok || !cand.Eligible(m.cfg) {
		return
	}
	cand.Node = m.local

	m.mu.Lock()
	e.candidates[m.local] = cand
	m.mu.Unlock()

	wire := enr.NexusCandidacyWire{
		ElectionID: e.id, Node: cand.Node, Uptime: cand.Uptime, Bandwidth: cand.Bandwidth,
		Reputation: cand.Reputation, CurrentLeafCount: cand.CurrentLeafCount, ElectionScore: cand.ElectionScore,
	}
	data := enr.Encode(enr.TagElectionCandidacy, wire.Marshal())
	if err := m.publish(enr.ElectionTopic, data); err != nil {
		m.log.Error("election: failed to publish candidacy", "election_id", e.id, "error", err)
	}
}

// HandleCandidacy validates and records a remote NexusCandidacy
//.
func (m *Manager) HandleCandidacy(wire enr.NexusCandidacyWire) error {
	cand := NexusCandidate{
		Node: wire.Node, Uptime: wire.Uptime, Bandwidth: wire.Bandwidth,
		Reputation: wire.Reputation, CurrentLeafCount: wire.CurrentLeafCount, ElectionScore: wire.ElectionScore,
	}
	if !cand.Eligible(m.cfg) {
		return ErrIneligibleCandidate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byID[wire.ElectionID]
	if !ok {
		return ErrUnknownElection
	}
	e.candidates[cand.Node] = cand
	e.participants[cand.Node] = struct{}{}
	return nil
}

// HandleVote records a remote ElectionVote.
func (m *Manager) HandleVote(wire enr.ElectionVoteWire) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byID[wire.ElectionID]
	if !ok {
		return ErrUnknownElection
	}
	e.votes[wire.Voter] = wire.Candidate
	e.participants[wire.Voter] = struct{}{}
	return nil
}

// HandleResult unconditionally adopts a remote ElectionResult for a
// tracked election.
// Results for elections the node is not tracking are ignored.
func (m *Manager) HandleResult(wire enr.ElectionResultWire) error {
	m.mu.Lock()
	e, ok := m.byID[wire.ElectionID]
	if !ok {
		m.mu.Unlock()
		return nil
	}

	m.currentNex[e.regionID] = wire.Winner
	if wire.Winner == m.local {
		m.roles[e.regionID] = Role{Kind: RoleNexus}
	} else {
		m.roles[e.regionID] = Role{Kind: RoleLeaf, Parent: wire.Winner}
	}
	delete(m.elections, e.regionID)
	delete(m.byID, e.id)
	m.mu.Unlock()
	return nil
}

// CurrentNexus returns the region's last-known elected nexus.
func (m *Manager) CurrentNexus(regionID string) (netid.NodeId, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.currentNex[regionID]
	return n, ok
}

// Role returns the node's adopted role for a region.
func (m *Manager) Role(regionID string) Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roles[regionID]
}

// Tick is the periodic progress check: it advances
// Candidacy→Voting once the candidacy phase has expired, finalizes once
// the voting phase has also expired, and discards elections that stall in
// Candidacy past the full election timeout without ever seating a
// candidate.
func (m *Manager) Tick(now time.Time) {
	m.mu.Lock()
	var toAdvance, toFinalize []*activeElection
	var toDiscard []*activeElection
	for _, e := range m.elections {
		elapsed := now.Sub(e.startedAt)
		switch e.phase {
		case Candidacy:
			if elapsed >= m.cfg.CandidacyPhase {
				if len(e.candidates) > 0 {
					toAdvance = append(toAdvance, e)
				} else if elapsed >= m.cfg.ElectionPhase {
					toDiscard = append(toDiscard, e)
				}
			}
		case Voting:
			if elapsed >= m.cfg.CandidacyPhase+m.cfg.VotingPhase {
				toFinalize = append(toFinalize, e)
			}
		}
	}
	m.mu.Unlock()

	for _, e := range toAdvance {
		m.advanceToVoting(e)
	}
	for _, e := range toFinalize {
		m.finalize(e)
	}
	for _, e := range toDiscard {
		m.mu.Lock()
		delete(m.elections, e.regionID)
		delete(m.byID, e.id)
		m.mu.Unlock()
		m.log.Warn("election: discarded stalled election", "region", e.regionID, "election_id", e.id)
	}
}

// advanceToVoting casts the local vote (max election_score, ties broken by
// NodeId order) and broadcasts it.
func (m *Manager) advanceToVoting(e *activeElection) {
	m.mu.Lock()
	if e.phase != Candidacy {
		m.mu.Unlock()
		return
	}
	e.phase = Voting

	var chosen netid.NodeId
	var best NexusCandidate
	first := true
	for _, c := range e.candidates {
		if first || c.ElectionScore > best.ElectionScore ||
			(c.ElectionScore == best.ElectionScore && c.Node.Less(best.Node)) {
			best = c
			chosen = c.Node
			first = false
		}
	}

	alreadyVoted := e.votedLocally
	if !alreadyVoted {
		e.votedLocally = true
		e.votes[m.local] = chosen
		e.participants[m.local] = struct{}{}
	}
	regionID, electionID := e.regionID, e.id
	m.mu.Unlock()

	if alreadyVoted {
		return
	}

	wire := enr.ElectionVoteWire{ElectionID: electionID, Voter: m.local, Candidate: chosen, Timestamp: m.now().UnixMilli()}
	data := enr.Encode(enr.TagElectionVote, wire.Marshal())
	if err := m.publish(enr.ElectionTopic, data); err != nil {
		m.log.Error("election: failed to publish vote", "region", regionID, "error", err)
	}
}

// finalize tallies votes, checks quorum, and — on success —
// broadcasts the result and clears the election.
func (m *Manager) finalize(e *activeElection) {
	m.mu.Lock()
	if e.phase == Confirming || e.phase == Idle {
		m.mu.Unlock()
		return
	}
	e.phase = Confirming

	quorum := int(math.Ceil(float64(len(e.participants)) * 0.5))
	if quorum < 1 {
		quorum = 1
	}

	if len(e.votes) < quorum {
		regionID, id := e.regionID, e.id
		m.mu.Unlock()
		m.log.Warn("election: insufficient votes for quorum", "region", regionID, "election_id", id,
			"votes", len(e.votes), "quorum", quorum)
		m.mu.Lock()
		delete(m.elections, regionID)
		delete(m.byID, id)
		m.mu.Unlock()
		return
	}

	tally := make(map[netid.NodeId]int, len(e.votes))
	for _, choice := range e.votes {
		tally[choice]++
	}
	winner, voteCount := tallyWinner(tally)

	regionID, id := e.regionID, e.id
	if winner == m.local {
		m.roles[regionID] = Role{Kind: RoleNexus}
	} else {
		m.roles[regionID] = Role{Kind: RoleLeaf, Parent: winner}
	}
	m.currentNex[regionID] = winner
	delete(m.elections, regionID)
	delete(m.byID, id)
	m.mu.Unlock()

	wire := enr.ElectionResultWire{
		ElectionID: id, Winner: winner, RegionID: regionID,
		VoteCount: uint32(voteCount), Timestamp: m.now().UnixMilli(),
	}
	data := enr.Encode(enr.TagElectionResult, wire.Marshal())
	if err := m.publish(enr.ElectionTopic, data); err != nil {
		m.log.Error("election: failed to publish result", "region", regionID, "error", err)
	}
}

// tallyWinner returns the candidate with the greatest vote count, ties
// broken by NodeId lexicographic order.
func tallyWinner(tally map[netid.NodeId]int) (netid.NodeId, int) {
	candidates := make([]netid.NodeId, 0, len(tally))
	for n := range tally {
		candidates = append(candidates, n)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Less(candidates[j]) })

	var winner netid.NodeId
	best := -1
	for _, n := range candidates {
		if tally[n] > best {
			best = tally[n]
			winner = n
		}
	}
	return winner, best
}
