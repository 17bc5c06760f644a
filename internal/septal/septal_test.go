package septal

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

func testConfig() mcfg.SeptalConfig {
	return mcfg.SeptalConfig{FailureThreshold: 3, RecoveryTimeout: 10 * time.Second}
}

func newManager(t *testing.T, clock *time.Time) *Manager {
	t.Helper()
	m := New(testConfig(), func(string, []byte) error { return nil }, slog.Default())
	m.now = func() time.Time { return *clock }
	return m
}

func TestAllowsTrafficDefaultsToOpen(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, &now)
	peer := nodeID(1)
	if !m.AllowsTraffic(peer) {
		t.Error("an unknown peer should default to open (traffic allowed)")
	}
}

// TestRecordFailureClosesGateAtThreshold is the P4 gate-monotonicity
// property: the gate stays open strictly below FailureThreshold and closes
// exactly at it, never before.
func TestRecordFailureClosesGateAtThreshold(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, &now)
	peer := nodeID(1)

	for i := 0; i < testConfig().FailureThreshold-1; i++ {
		m.RecordFailure(peer, "timeout")
		if !m.AllowsTraffic(peer) {
			t.Fatalf("gate closed early after %d failures, want threshold %d", i+1, testConfig().FailureThreshold)
		}
	}

	m.RecordFailure(peer, "timeout")
	if m.AllowsTraffic(peer) {
		t.Error("gate should be closed once the failure threshold is reached")
	}
	if !m.Isolated(peer) {
		t.Error("Isolated should mirror a closed gate")
	}
}

func TestRecordSuccessResetsFailureCountBeforeThreshold(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, &now)
	peer := nodeID(1)

	m.RecordFailure(peer, "x")
	m.RecordFailure(peer, "x")
	m.RecordSuccess(peer)
	m.RecordFailure(peer, "x")
	if !m.AllowsTraffic(peer) {
		t.Error("a reset failure count should not have reached the threshold yet")
	}
}

// TestTickRecoversClosedGateThroughHalfOpen checks a Closed gate transitions
// to HalfOpen after RecoveryTimeout, and back to Open if no further failure
// is observed while half-open — it never jumps straight from Closed to Open.
func TestTickRecoversClosedGateThroughHalfOpen(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, &now)
	peer := nodeID(1)

	for i := 0; i < testConfig().FailureThreshold; i++ {
		m.RecordFailure(peer, "x")
	}
	if m.AllowsTraffic(peer) {
		t.Fatal("gate should be closed before recovery")
	}

	now = now.Add(testConfig().RecoveryTimeout)
	m.Tick(now) // Closed -> HalfOpen
	if !m.AllowsTraffic(peer) {
		t.Error("a half-open gate should allow traffic")
	}
	if m.gates[peer].state != HalfOpen {
		t.Errorf("state = %v, want HalfOpen", m.gates[peer].state)
	}

	now = now.Add(testConfig().RecoveryTimeout)
	m.Tick(now) // HalfOpen -> Open, no failure observed
	if m.gates[peer].state != Open {
		t.Errorf("state = %v, want Open", m.gates[peer].state)
	}
}

func TestTickReclosesHalfOpenGateOnFailure(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, &now)
	peer := nodeID(1)

	for i := 0; i < testConfig().FailureThreshold; i++ {
		m.RecordFailure(peer, "x")
	}
	now = now.Add(testConfig().RecoveryTimeout)
	m.Tick(now) // Closed -> HalfOpen

	m.RecordFailure(peer, "still bad")
	now = now.Add(testConfig().RecoveryTimeout)
	m.Tick(now) // HalfOpen -> Closed, since a failure was observed while half-open

	if m.AllowsTraffic(peer) {
		t.Error("a gate that fails again while half-open should re-close")
	}
}

func TestShouldBlockTransactionChecksBothEndpoints(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, &now)
	a, b := nodeID(1), nodeID(2)

	for i := 0; i < testConfig().FailureThreshold; i++ {
		m.RecordFailure(a, "x")
	}
	if !m.ShouldBlockTransaction(a, b) {
		t.Error("a transaction touching a closed-gate peer should be blocked")
	}
	if m.ShouldBlockTransaction(b, b) {
		t.Error("a transaction between two open peers should not be blocked")
	}
}

func TestHandleStateChangeAdoptsRemoteState(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, &now)
	peer := nodeID(1)

	wire := enr.SeptalStateChangeWire{Node: peer, FromState: uint8(Open), ToState: uint8(Closed), Reason: "remote observed failures"}
	if err := m.HandleStateChange(wire); err != nil {
		t.Fatalf("HandleStateChange: %v", err)
	}
	if m.AllowsTraffic(peer) {
		t.Error("adopting a remote Closed state should close the local gate")
	}
}

func TestHandleHealthProbeRespondsOnlyWhenTargeted(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, &now)
	local := nodeID(1)

	var published bool
	m.publish = func(topic string, data []byte) error { published = true; return nil }

	if err := m.HandleHealthProbe(local, enr.SeptalHealthProbeWire{Target: nodeID(2)}); err != nil {
		t.Fatalf("HandleHealthProbe: %v", err)
	}
	if published {
		t.Error("a probe targeting another node should not trigger a response")
	}

	if err := m.HandleHealthProbe(local, enr.SeptalHealthProbeWire{Target: local}); err != nil {
		t.Fatalf("HandleHealthProbe: %v", err)
	}
	if !published {
		t.Error("a probe targeting the local node should trigger a response")
	}
}

func TestHandleHealthResponseResetsFailureCount(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := newManager(t, &now)
	peer := nodeID(1)

	m.RecordFailure(peer, "x")
	m.RecordFailure(peer, "x")
	if err := m.HandleHealthResponse(enr.SeptalHealthResponseWire{Node: peer, IsHealthy: true}); err != nil {
		t.Fatalf("HandleHealthResponse: %v", err)
	}
	m.RecordFailure(peer, "x")
	if !m.AllowsTraffic(peer) {
		t.Error("a healthy response should have reset the failure count below threshold")
	}
}
