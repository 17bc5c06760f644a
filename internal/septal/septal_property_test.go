package septal

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/mycelia-net/mycelia/internal/mcfg"
	"github.com/mycelia-net/mycelia/internal/netid"
)

// model mirrors the gate transition rules in septal.go for a single peer,
// so TestGateMonotonicityProperty can assert the real Manager's AllowsTraffic
// against an independently derived expectation.
type model struct {
	state            State
	failureCount     int
	lastStateChange  time.Time
	sawFailureInHalf bool
}

func (g *model) recordFailure(now time.Time, threshold int) {
	g.failureCount++
	if g.state == HalfOpen {
		g.sawFailureInHalf = true
	}
	if g.state == Open && g.failureCount >= threshold {
		g.state = Closed
		g.lastStateChange = now
		g.sawFailureInHalf = false
	}
}

func (g *model) recordSuccess() {
	g.failureCount = 0
}

func (g *model) tick(now time.Time, recoveryTimeout time.Duration) {
	switch g.state {
	case Closed:
		if now.Sub(g.lastStateChange) >= recoveryTimeout {
			g.state = HalfOpen
			g.lastStateChange = now
			g.sawFailureInHalf = false
		}
	case HalfOpen:
		if g.sawFailureInHalf {
			g.state = Closed
			g.lastStateChange = now
		} else if now.Sub(g.lastStateChange) >= recoveryTimeout {
			g.state = Open
			g.lastStateChange = now
			g.failureCount = 0
		}
	}
}

// TestGateMonotonicityProperty is the P4 property: for any sequence of
// failure/success/tick actions, AllowsTraffic on the real Manager always
// matches an independently maintained model of the same transition rules.
func TestGateMonotonicityProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		threshold := rapid.IntRange(1, 5).Draw(rt, "failureThreshold")
		recoveryTimeout := time.Duration(rapid.Int64Range(1, 30).Draw(rt, "recoveryTimeoutSeconds")) * time.Second
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")

		cfg := mcfg.SeptalConfig{FailureThreshold: threshold, RecoveryTimeout: recoveryTimeout}
		peer := nodeID(2)
		now := time.Unix(1_700_000_000, 0).UTC()
		m := New(cfg, func(string, []byte) error { return nil }, nil)
		m.now = func() time.Time { return now }

		g := &model{state: Open, lastStateChange: now}

		for i := 0; i < steps; i++ {
			action := rapid.SampledFrom([]string{"failure", "success", "tick"}).Draw(rt, "action")
			switch action {
			case "failure":
				m.RecordFailure(peer, "probe")
				g.recordFailure(now, threshold)
			case "success":
				m.RecordSuccess(peer)
				g.recordSuccess()
			case "tick":
				advance := time.Duration(rapid.Int64Range(0, int64(2*recoveryTimeout/time.Second)+1).Draw(rt, "advanceSeconds")) * time.Second
				now = now.Add(advance)
				m.Tick(now)
				g.tick(now, recoveryTimeout)
			}

			wantAllowed := g.state != Closed
			if got := m.AllowsTraffic(peer); got != wantAllowed {
				t.Fatalf("step %d (%s): AllowsTraffic = %v, model state %v wants %v", i, action, got, g.state, wantAllowed)
			}
		}
	})
}
