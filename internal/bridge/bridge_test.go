package bridge

import (
	"log/slog"
	"testing"
	"time"

	"github.com/mycelia-net/mycelia/internal/credit"
	"github.com/mycelia-net/mycelia/internal/election"
	"github.com/mycelia-net/mycelia/internal/gradient"
	"github.com/mycelia-net/mycelia/internal/mcfg"
	"github.com/mycelia-net/mycelia/internal/netid"
	"github.com/mycelia-net/mycelia/internal/septal"
	"github.com/mycelia-net/mycelia/pkg/enr"
)

func nodeID(b byte) netid.NodeId {
	var n netid.NodeId
	n[0] = b
	return n
}

func noopPublish(string, []byte) error { return nil }

func newTestBridge(local netid.NodeId) (*Bridge, *gradient.Broadcaster, *credit.Synchronizer, *election.Manager, *septal.Manager) {
	g := gradient.New(local, mcfg.GradientConfig{MaxAge: time.Hour, FutureSkew: time.Hour}, noopPublish, slog.Default())
	c := credit.New(local, mcfg.EconomicsConfig{InitialGrant: 1000, EntropyTaxRateBp: 200}, noopPublish, slog.Default())
	e := election.New(local, mcfg.ElectionConfig{}, nil, noopPublish, slog.Default())
	s := septal.New(mcfg.SeptalConfig{FailureThreshold: 3}, noopPublish, slog.Default())
	b := New(local, g, c, e, s, slog.Default())
	return b, g, c, e, s
}

func TestDispatchRoutesGradientUpdate(t *testing.T) {
	local := nodeID(1)
	b, g, _, _, _ := newTestBridge(local)

	wire := enr.GradientUpdateWire{
		Source: nodeID(2), CPU: 0.5, Memory: 0.5, GPU: 0.5, Storage: 0.5, Bandwidth: 0.5, Credit: 1,
		Timestamp: time.Now().UnixMilli(),
	}
	data := enr.Encode(enr.TagGradientUpdate, wire.Marshal())
	if err := b.Dispatch(data); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, ok := g.NodeGradient(nodeID(2)); !ok {
		t.Error("gradient update should have been routed to the gradient broadcaster")
	}
}

func TestDispatchRoutesCreditTransfer(t *testing.T) {
	local := nodeID(1)
	b, _, c, _, _ := newTestBridge(local)

	wire := enr.CreditTransferWire{
		From:   enr.AccountWire{Node: nodeID(2)},
		To:     enr.AccountWire{Node: local},
		Amount: 50,
		Nonce:  1,
	}
	data := enr.Encode(enr.TagCreditTransfer, wire.Marshal())
	if err := b.Dispatch(data); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := c.LocalBalance(); got != 1050 {
		t.Errorf("LocalBalance = %d, want 1050", got)
	}
}

func TestDispatchRoutesElectionAnnouncement(t *testing.T) {
	local := nodeID(1)
	b, _, _, e, _ := newTestBridge(local)

	wire := enr.ElectionAnnouncementWire{ElectionID: 1, Initiator: nodeID(2), RegionID: "west"}
	data := enr.Encode(enr.TagElectionAnnouncement, wire.Marshal())
	if err := b.Dispatch(data); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if e.Role("west").Kind == election.RoleNexus {
		t.Error("a freshly announced election should not have seated a nexus yet")
	}
}

func TestDispatchRoutesSeptalStateChange(t *testing.T) {
	local := nodeID(1)
	b, _, _, _, s := newTestBridge(local)

	peer := nodeID(2)
	wire := enr.SeptalStateChangeWire{Node: peer, FromState: uint8(septal.Open), ToState: uint8(septal.Closed), Reason: "test"}
	data := enr.Encode(enr.TagSeptalStateChange, wire.Marshal())
	if err := b.Dispatch(data); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if s.AllowsTraffic(peer) {
		t.Error("septal state change should have closed the gate for the peer")
	}
}

func TestDispatchIgnoresBalanceResponse(t *testing.T) {
	local := nodeID(1)
	b, _, _, _, _ := newTestBridge(local)

	resp := enr.BalanceResponseWire{RequestID: "req-1", Balance: 100, AsOf: 0}
	data := enr.Encode(enr.TagBalanceResponse, resp.Marshal())
	if err := b.Dispatch(data); err != nil {
		t.Errorf("Dispatch: %v, want nil (balance responses are consumed out of band)", err)
	}
}

func TestDispatchRejectsUnknownTag(t *testing.T) {
	local := nodeID(1)
	b, _, _, _, _ := newTestBridge(local)

	data := enr.Encode(enr.Tag(255), nil)
	if err := b.Dispatch(data); err == nil {
		t.Error("expected an error for an unrecognized tag")
	}
}

func TestDispatchRejectsTruncatedEnvelope(t *testing.T) {
	local := nodeID(1)
	b, _, _, _, _ := newTestBridge(local)

	if err := b.Dispatch([]byte{1, 2}); err == nil {
		t.Error("expected an error for a truncated envelope")
	}
}

func TestTopicsMatchesEnrTopics(t *testing.T) {
	local := nodeID(1)
	b, _, _, _, _ := newTestBridge(local)
	if got := b.Topics(); len(got) != len(enr.Topics()) {
		t.Errorf("Topics() returned %d entries, want %d", len(got), len(enr.Topics()))
	}
}
