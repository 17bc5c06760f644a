// Package partition implements a test-only application-layer filter for
// simulating network partitions: a direct peer block list plus named
// partition groups. It is never consulted on a production message path.
package partition

import (
	"sync"

	"github.com/mycelia-net/mycelia/internal/netid"
)

// Simulator tracks a local node's view of blocked peers and group
// membership for partition testing.
type Simulator struct {
	mu      sync.RWMutex
	local   netid.NodeId
	blocked map[netid.NodeId]struct{}
	groups  map[netid.NodeId]string
}

// New constructs a Simulator for the given local node, with no blocks or
// group assignments.
func New(local netid.NodeId) *Simulator {
	return &Simulator{
		local:   local,
		blocked: make(map[netid.NodeId]struct{}),
		groups:  make(map[netid.NodeId]string),
	}
}

// Block adds peer to the direct block list.
func (s *Simulator) Block(peer netid.NodeId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[peer] = struct{}{}
}

// Unblock removes peer from the direct block list.
func (s *Simulator) Unblock(peer netid.NodeId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocked, peer)
}

// SetGroup assigns peer to a named partition group. An empty group name
// removes the assignment.
func (s *Simulator) SetGroup(peer netid.NodeId, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if group == "" {
		delete(s.groups, peer)
		return
	}
	s.groups[peer] = group
}

// AllowsCommunication reports whether the local node may exchange traffic
// with peer: false if peer is blocked, or if both the local node and peer
// have group assignments that differ.
func (s *Simulator) AllowsCommunication(peer netid.NodeId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, blocked := s.blocked[peer]; blocked {
		return false
	}

	localGroup, hasLocal := s.groups[s.local]
	peerGroup, hasPeer := s.groups[peer]
	if hasLocal && hasPeer && localGroup != peerGroup {
		return false
	}
	return true
}

// Heal clears every block and group assignment.
func (s *Simulator) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = make(map[netid.NodeId]struct{})
	s.groups = make(map[netid.NodeId]string)
}
