package gradient

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/mycelia-net/mycelia/internal/mcfg"
)

// TestHandleGradientFreshnessProperty is the P3 freshness property: a
// gradient is admitted exactly when its timestamp falls within
// [-2*MaxAge, FutureSkew] of local time, for randomly generated windows and
// offsets.
func TestHandleGradientFreshnessProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxAge := time.Duration(rapid.Int64Range(1, 120).Draw(rt, "maxAgeSeconds")) * time.Second
		futureSkew := time.Duration(rapid.Int64Range(1, 60).Draw(rt, "futureSkewSeconds")) * time.Second
		offset := time.Duration(rapid.Int64Range(-300, 300).Draw(rt, "offsetSeconds")) * time.Second

		now := time.Unix(1_700_000_000, 0).UTC()
		b := New(nodeID(1), mcfg.GradientConfig{MaxAge: maxAge, FutureSkew: futureSkew}, func(string, []byte) error { return nil }, slog.Default())
		b.now = func() time.Time { return now }

		ts := now.Add(offset)
		g := ResourceGradient{CPU: 0.4, Memory: 0.4, GPU: 0.4, Storage: 0.4, Bandwidth: 0.4, Credit: 1}
		err := b.HandleGradient(remoteWire(nodeID(2), g, ts))

		tooFuture := ts.After(now.Add(futureSkew))
		tooStale := ts.Before(now.Add(-2 * maxAge))

		switch {
		case tooFuture:
			if !errors.Is(err, ErrFutureTimestamp) {
				rt.Fatalf("offset=%v futureSkew=%v: err = %v, want ErrFutureTimestamp", offset, futureSkew, err)
			}
		case tooStale:
			if !errors.Is(err, ErrStaleTimestamp) {
				rt.Fatalf("offset=%v maxAge=%v: err = %v, want ErrStaleTimestamp", offset, maxAge, err)
			}
		default:
			if err != nil {
				rt.Fatalf("offset=%v maxAge=%v futureSkew=%v: err = %v, want nil", offset, maxAge, futureSkew, err)
			}
			if _, ok := b.NodeGradient(nodeID(2)); !ok {
				rt.Fatalf("offset=%v: gradient within the freshness window was not stored", offset)
			}
		}
	})
}
