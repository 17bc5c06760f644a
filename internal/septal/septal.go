// Package septal implements the SeptalGateManager: a per-peer circuit
// breaker with Open/HalfOpen/Closed states, isolation enforcement, and
// eventual convergence across the gossip overlay.
package septal

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mycelia-net/mycelia/internal/mcfg"
	"github.com/mycelia-net/mycelia/internal/netid"
	"github.com/mycelia-net/mycelia/pkg/enr"
)

// State is a septal gate's circuit-breaker state.
type State uint8

const (
	Open State = iota
	HalfOpen
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// gate is the per-peer circuit breaker record.
type gate struct {
	state            State
	failureCount     int
	lastFailure      time.Time
	lastStateChange  time.Time
	sawFailureInHalf bool
}

// Manager implements the SeptalGateManager contract.
type Manager struct {
	mu    sync.Mutex
	gates map[netid.NodeId]*gate

	cfg     mcfg.SeptalConfig
	publish enr.PublishFunc
	now     func() time.Time
	log     *slog.Logger
}

// New constructs a Manager. publish is used to broadcast SeptalStateChange
// events on SeptalTopic.
func New(cfg mcfg.SeptalConfig, publish enr.PublishFunc, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		gates:   make(map[netid.NodeId]*gate),
		cfg:     cfg,
		publish: publish,
		now:     time.Now,
		log:     log,
	}
}

func (m *Manager) gateFor(peer netid.NodeId) *gate {
	g, ok := m.gates[peer]
	if !ok {
		g = &gate{state: Open, lastStateChange: m.now()}
		m.gates[peer] = g
	}
	return g
}

// RecordFailure increments the peer's failure count; crossing the
// threshold while Open closes the gate and broadcasts the transition
//.
func (m *Manager) RecordFailure(peer netid.NodeId, reason string) {
	m.mu.Lock()
	g := m.gateFor(peer)
	g.failureCount++
	g.lastFailure = m.now()

	if g.state == HalfOpen {
		g.sawFailureInHalf = true
	}

	var shouldBroadcast bool
	var from State
	if g.state == Open && g.failureCount >= m.cfg.FailureThreshold {
		from = g.state
		g.state = Closed
		g.lastStateChange = m.now()
		g.sawFailureInHalf = false
		shouldBroadcast = true
	}
	m.mu.Unlock()

	if shouldBroadcast {
		m.log.Warn("septal gate closed", "peer", peer.String(), "reason", reason, "failures", g.failureCount)
		m.broadcastStateChange(peer, from, Closed, reason)
	}
}

// RecordSuccess resets the failure counter. It never reopens a Closed gate
// on its own; that is the recovery path's job.
func (m *Manager) RecordSuccess(peer netid.NodeId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.gateFor(peer)
	g.failureCount = 0
}

// AllowsTraffic reports whether traffic to/from peer is permitted. Unknown
// peers default to Open.
func (m *Manager) AllowsTraffic(peer netid.NodeId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gates[peer]
	return !ok || g.state != Closed
}

// Isolated reports whether some gate for peer is Closed on the local view
//.
func (m *Manager) Isolated(peer netid.NodeId) bool {
	return !m.AllowsTraffic(peer)
}

// ShouldBlockTransaction reports whether either endpoint of a transaction
// is isolated.
func (m *Manager) ShouldBlockTransaction(from, to netid.NodeId) bool {
	return m.Isolated(from) || m.Isolated(to)
}

// Tick runs the periodic recovery attempt over every tracked gate
//: Closed gates past RecoveryTimeout move to HalfOpen;
// HalfOpen gates with no observed failure move to Open, otherwise back to
// Closed.
func (m *Manager) Tick(now time.Time) {
	type transition struct {
		peer netid.NodeId
		from State
		to   State
	}
	var transitions []transition

	m.mu.Lock()
	for peer, g := range m.gates {
		switch g.state {
		case Closed:
			if now.Sub(g.lastStateChange) >= m.cfg.RecoveryTimeout {
				transitions = append(transitions, transition{peer, Closed, HalfOpen})
				g.state = HalfOpen
				g.lastStateChange = now
				g.sawFailureInHalf = false
			}
		case HalfOpen:
			if g.sawFailureInHalf {
				transitions = append(transitions, transition{peer, HalfOpen, Closed})
				g.state = Closed
				g.lastStateChange = now
			} else if now.Sub(g.lastStateChange) >= m.cfg.RecoveryTimeout {
				transitions = append(transitions, transition{peer, HalfOpen, Open})
				g.state = Open
				g.lastStateChange = now
				g.failureCount = 0
			}
		}
	}
	m.mu.Unlock()

	for _, t := range transitions {
		m.broadcastStateChange(t.peer, t.from, t.to, "recovery")
	}
}

// HandleStateChange adopts a remote SeptalStateChange into the local view
//.
func (m *Manager) HandleStateChange(wire enr.SeptalStateChangeWire) error {
	m.mu.Lock()
	g := m.gateFor(wire.Node)
	g.state = State(wire.ToState)
	g.lastStateChange = m.now()
	if g.state != Closed {
		g.failureCount = 0
	}
	m.mu.Unlock()
	return nil
}

// HandleHealthProbe replies with the local node's health. Responders
// always report is_healthy=true if the process can respond.
func (m *Manager) HandleHealthProbe(local netid.NodeId, p enr.SeptalHealthProbeWire) error {
	if p.Target != local {
		return nil
	}
	resp := enr.SeptalHealthResponseWire{
		RequestID: p.RequestID,
		Node:      local,
		IsHealthy: true,
		Timestamp: m.now().UnixMilli(),
	}
	data := enr.Encode(enr.TagSeptalHealthResponse, resp.Marshal())
	if err := m.publish(enr.SeptalTopic, data); err != nil {
		return fmt.Errorf("septal: publish health response: %w", err)
	}
	return nil
}

// HandleHealthResponse resets the remote failure count for a peer that
// reported healthy.
func (m *Manager) HandleHealthResponse(resp enr.SeptalHealthResponseWire) error {
	if !resp.IsHealthy {
		return nil
	}
	m.mu.Lock()
	g := m.gateFor(resp.Node)
	g.failureCount = 0
	m.mu.Unlock()
	return nil
}

func (m *Manager) broadcastStateChange(peer netid.NodeId, from, to State, reason string) {
	wire := enr.SeptalStateChangeWire{
		Node:      peer,
		FromState: uint8(from),
		ToState:   uint8(to),
		Reason:    reason,
		Timestamp: m.now().UnixMilli(),
	}
	data := enr.Encode(enr.TagSeptalStateChange, wire.Marshal())
	if err := m.publish(enr.SeptalTopic, data); err != nil {
		m.log.Error("septal: failed to broadcast state change", "peer", peer.String(), "error", err)
	}
}
