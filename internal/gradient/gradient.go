// Package gradient implements the GradientBroadcaster: publishing local
// resource availability and aggregating fresh remote gradients into a
// network-wide view.
package gradient

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mycelia-net/mycelia/internal/mcfg"
	"github.com/mycelia-net/mycelia/internal/netid"
	"github.com/mycelia-net/mycelia/pkg/enr"
)

// ResourceGradient is the six-field normalized resource-availability vector
// plus credit balance.
type ResourceGradient struct {
	CPU       float64
	Memory    float64
	GPU       float64
	Storage   float64
	Bandwidth float64
	Credit    float64
}

// Valid reports whether every field is finite and within [0, 1] (credit
// balance is exempt from the unit-interval bound).
func (g ResourceGradient) Valid() bool {
	for _, f := range []float64{g.CPU, g.Memory, g.GPU, g.Storage, g.Bandwidth} {
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > 1 {
			return false
		}
	}
	return !math.IsNaN(g.Credit) && !math.IsInf(g.Credit, 0) && g.Credit >= 0
}

func (g ResourceGradient) average(other ResourceGradient, n int) ResourceGradient {
	w := float64(n)
	return ResourceGradient{
		CPU:       (g.CPU*w + other.CPU) / (w + 1),
		Memory:    (g.Memory*w + other.Memory) / (w + 1),
		GPU:       (g.GPU*w + other.GPU) / (w + 1),
		Storage:   (g.Storage*w + other.Storage) / (w + 1),
		Bandwidth: (g.Bandwidth*w + other.Bandwidth) / (w + 1),
		Credit:    (g.Credit*w + other.Credit) / (w + 1),
	}
}

// entry is the per-source stored gradient with the timestamp carried by the
// update that produced it.
type entry struct {
	gradient  ResourceGradient
	timestamp time.Time
}

// Broadcaster implements the GradientBroadcaster contract.
type Broadcaster struct {
	mu      sync.Mutex
	entries map[netid.NodeId]entry

	local   netid.NodeId
	cfg     mcfg.GradientConfig
	publish enr.PublishFunc
	now     func() time.Time
	log     *slog.Logger
}

// New constructs a Broadcaster for the local node. publish is the injected
// capability used to emit GradientUpdate envelopes.
func New(local netid.NodeId, cfg mcfg.GradientConfig, publish enr.PublishFunc, log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		entries: make(map[netid.NodeId]entry),
		local:   local,
		cfg:     cfg,
		publish: publish,
		now:     time.Now,
		log:     log,
	}
}

// BroadcastUpdate validates the local gradient, wraps it into a
// GradientUpdate, and publishes it on GradientTopic.
func (b *Broadcaster) BroadcastUpdate(g ResourceGradient) error {
	if !g.Valid() {
		return fmt.Errorf("%w: gradient fields out of bounds", ErrInvalidGradient)
	}

	wire := enr.GradientUpdateWire{
		Source:    b.local,
		CPU:       g.CPU,
		Memory:    g.Memory,
		GPU:       g.GPU,
		Storage:   g.Storage,
		Bandwidth: g.Bandwidth,
		Credit:    g.Credit,
		Timestamp: b.now().UnixMilli(),
	}

	data := enr.Encode(enr.TagGradientUpdate, wire.Marshal())
	if err := b.publish(enr.GradientTopic, data); err != nil {
		return fmt.Errorf("gradient: publish: %w", err)
	}

	b.mu.Lock()
	b.entries[b.local] = entry{gradient: g, timestamp: b.now()}
	b.mu.Unlock()

	return nil
}

// HandleGradient ingests a remote GradientUpdate, enforcing the freshness
// and last-writer-wins rules.
func (b *Broadcaster) HandleGradient(wire enr.GradientUpdateWire) error {
	g := ResourceGradient{
		CPU: wire.CPU, Memory: wire.Memory, GPU: wire.GPU,
		Storage: wire.Storage, Bandwidth: wire.Bandwidth, Credit: wire.Credit,
	}
	if !g.Valid() {
		return fmt.Errorf("%w: gradient fields out of bounds", ErrInvalidGradient)
	}

	ts := time.UnixMilli(wire.Timestamp)
	now := b.now()

	if ts.After(now.Add(b.cfg.FutureSkew)) {
		return fmt.Errorf("%w: timestamp %s is in the future", ErrFutureTimestamp, ts)
	}
	if ts.Before(now.Add(-2 * b.cfg.MaxAge)) {
		return fmt.Errorf("%w: timestamp %s exceeds max age", ErrStaleTimestamp, ts)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.entries[wire.Source]
	if ok && !ts.After(existing.timestamp) {
		// Only a strictly newer timestamp may replace the stored value.
		return nil
	}

	b.entries[wire.Source] = entry{gradient: g, timestamp: ts}
	return nil
}

// NetworkGradient averages the entries whose age is within MaxAge,
// returning the zero gradient when none qualify.
func (b *Broadcaster) NetworkGradient() ResourceGradient {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var acc ResourceGradient
	n := 0
	for _, e := range b.entries {
		if now.Sub(e.timestamp) >= b.cfg.MaxAge {
			continue
		}
		acc = acc.average(e.gradient, n)
		n++
	}
	return acc
}

// NodeGradient returns the stored gradient for a source, if any.
func (b *Broadcaster) NodeGradient(node netid.NodeId) (ResourceGradient, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[node]
	return e.gradient, ok
}

// ActiveNodeCount returns the number of sources with a gradient fresher
// than MaxAge.
func (b *Broadcaster) ActiveNodeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	count := 0
	for _, e := range b.entries {
		if now.Sub(e.timestamp) < b.cfg.MaxAge {
			count++
		}
	}
	return count
}

// PruneStale removes entries older than MaxAge and returns how many were
// removed.
func (b *Broadcaster) PruneStale() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for id, e := range b.entries {
		if now.Sub(e.timestamp) >= b.cfg.MaxAge {
			delete(b.entries, id)
			removed++
		}
	}
	return removed
}
