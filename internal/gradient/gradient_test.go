package gradient

import (
	"errors"
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

func testConfig() mcfg.GradientConfig {
	return mcfg.GradientConfig{MaxAge: 10 * time.Second, FutureSkew: 2 * time.Second}
}

func newBroadcaster(t *testing.T, local netid.NodeId, clock *time.Time) *Broadcaster {
	t.Helper()
	b := New(local, testConfig(), func(string, []byte) error { return nil }, slog.Default())
	b.now = func() time.Time { return *clock }
	return b
}

func remoteWire(source netid.NodeId, g ResourceGradient, ts time.Time) enr.GradientUpdateWire {
	return enr.GradientUpdateWire{
		Source: source, CPU: g.CPU, Memory: g.Memory, GPU: g.GPU,
		Storage: g.Storage, Bandwidth: g.Bandwidth, Credit: g.Credit,
		Timestamp: ts.UnixMilli(),
	}
}

// TestHandleGradientRejectsStaleTimestamp is the P3 freshness property: a
// gradient older than 2*MaxAge must never be admitted into the tracked set.
func TestHandleGradientRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	b := newBroadcaster(t, nodeID(1), &now)

	stale := now.Add(-30 * time.Second)
	wire := remoteWire(nodeID(2), ResourceGradient{CPU: 0.5}, stale)
	if err := b.HandleGradient(wire); !errors.Is(err, ErrStaleTimestamp) {
		t.Errorf("err = %v, want ErrStaleTimestamp", err)
	}
	if _, ok := b.NodeGradient(nodeID(2)); ok {
		t.Error("a stale gradient must not be admitted")
	}
}

func TestHandleGradientRejectsFutureTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	b := newBroadcaster(t, nodeID(1), &now)

	future := now.Add(5 * time.Second)
	wire := remoteWire(nodeID(2), ResourceGradient{CPU: 0.5}, future)
	if err := b.HandleGradient(wire); !errors.Is(err, ErrFutureTimestamp) {
		t.Errorf("err = %v, want ErrFutureTimestamp", err)
	}
}

func TestHandleGradientRejectsInvalidShape(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	b := newBroadcaster(t, nodeID(1), &now)

	wire := remoteWire(nodeID(2), ResourceGradient{CPU: 1.5}, now)
	if err := b.HandleGradient(wire); !errors.Is(err, ErrInvalidGradient) {
		t.Errorf("err = %v, want ErrInvalidGradient", err)
	}
}

// TestHandleGradientKeepsNewestOnly checks the last-writer-wins rule: an
// older-or-equal timestamp for a known source must not replace a fresher
// stored entry.
func TestHandleGradientKeepsNewestOnly(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	b := newBroadcaster(t, nodeID(1), &now)

	newer := remoteWire(nodeID(2), ResourceGradient{CPU: 0.9}, now)
	older := remoteWire(nodeID(2), ResourceGradient{CPU: 0.1}, now.Add(-1*time.Second))

	if err := b.HandleGradient(newer); err != nil {
		t.Fatalf("HandleGradient(newer): %v", err)
	}
	if err := b.HandleGradient(older); err != nil {
		t.Fatalf("HandleGradient(older): %v", err)
	}

	got, ok := b.NodeGradient(nodeID(2))
	if !ok {
		t.Fatal("expected a stored gradient")
	}
	if got.CPU != 0.9 {
		t.Errorf("CPU = %v, want 0.9 (the newer sample should survive)", got.CPU)
	}
}

func TestActiveNodeCountExcludesStaleEntries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	b := newBroadcaster(t, nodeID(1), &now)

	fresh := remoteWire(nodeID(2), ResourceGradient{CPU: 0.5}, now)
	if err := b.HandleGradient(fresh); err != nil {
		t.Fatalf("HandleGradient: %v", err)
	}
	if got := b.ActiveNodeCount(); got != 1 {
		t.Errorf("ActiveNodeCount = %d, want 1", got)
	}

	now = now.Add(20 * time.Second)
	if got := b.ActiveNodeCount(); got != 0 {
		t.Errorf("ActiveNodeCount after aging = %d, want 0", got)
	}
}

func TestPruneStaleRemovesAgedEntries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	b := newBroadcaster(t, nodeID(1), &now)

	if err := b.HandleGradient(remoteWire(nodeID(2), ResourceGradient{CPU: 0.5}, now)); err != nil {
		t.Fatalf("HandleGradient: %v", err)
	}
	now = now.Add(20 * time.Second)
	if got := b.PruneStale(); got != 1 {
		t.Errorf("PruneStale removed %d, want 1", got)
	}
	if _, ok := b.NodeGradient(nodeID(2)); ok {
		t.Error("pruned entry should no longer be retrievable")
	}
}

func TestBroadcastUpdateRejectsInvalidGradient(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	b := newBroadcaster(t, nodeID(1), &now)
	if err := b.BroadcastUpdate(ResourceGradient{CPU: -1}); !errors.Is(err, ErrInvalidGradient) {
		t.Errorf("err = %v, want ErrInvalidGradient", err)
	}
}

func TestBroadcastUpdateStoresLocalEntry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	local := nodeID(1)
	b := newBroadcaster(t, local, &now)

	g := ResourceGradient{CPU: 0.4, Memory: 0.3, Bandwidth: 0.2}
	if err := b.BroadcastUpdate(g); err != nil {
		t.Fatalf("BroadcastUpdate: %v", err)
	}
	got, ok := b.NodeGradient(local)
	if !ok {
		t.Fatal("expected the local gradient to be stored")
	}
	if got != g {
		t.Errorf("NodeGradient = %+v, want %+v", got, g)
	}
}
