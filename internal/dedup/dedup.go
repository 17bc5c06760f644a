// Package dedup implements the deduplication cache shared by the gossip
// ingest paths and the LoRa bridge: an LRU-bounded map with per-entry TTL
// keyed by an opaque (source-prefix, message-id) string.
//
// The cache is sharded across a fixed number of independently-locked LRUs,
// selected by hashing the key with blake3, so the gossip ingest path and
// the LoRa bridge's event loop contend on the same mutex only when their
// keys hash to the same shard.
package dedup

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
)

const shardCount = 16

// Stats tracks cache activity for observability.
type Stats struct {
	TotalChecks       uint64
	DuplicatesBlocked uint64
	NewMessages       uint64
	TTLExpirations    uint64
	LRUEvictions      uint64
}

func (s *Stats) add(o Stats) {
	s.TotalChecks += o.TotalChecks
	s.DuplicatesBlocked += o.DuplicatesBlocked
	s.NewMessages += o.NewMessages
	s.TTLExpirations += o.TTLExpirations
	s.LRUEvictions += o.LRUEvictions
}

type entry struct {
	firstSeen time.Time
}

type shard struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, entry]
	ttl   time.Duration
	now   func() time.Time
	stats Stats
}

// Cache is a bounded, TTL-aware, sharded deduplication set.
type Cache struct {
	shards [shardCount]*shard
}

// New constructs a Cache with the given total capacity (spread evenly
// across shards) and per-entry TTL.
func New(capacity int, ttl time.Duration) *Cache {
	perShard := capacity / shardCount
	if perShard <= 0 {
		perShard = 1
	}

	c := &Cache{}
	for i := range c.shards {
		s := &shard{ttl: ttl, now: time.Now}
		l, _ := lru.NewWithEvict[string, entry](perShard, func(_ string, _ entry) {
			s.stats.LRUEvictions++
		})
		s.lru = l
		c.shards[i] = s
	}
	return c
}

// Key formats the canonical dedup key for a source prefix and message id.
func Key(sourcePrefix, messageID string) string {
	return sourcePrefix + ":" + messageID
}

func (c *Cache) shardFor(key string) *shard {
	sum := blake3.Sum256([]byte(key))
	return c.shards[sum[0]%shardCount]
}

// IsDuplicate checks key against the cache, inserting it if absent or
// expired. It returns true when key was seen within TTL.
func (c *Cache) IsDuplicate(key string) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalChecks++
	now := s.now()

	if e, ok := s.lru.Get(key); ok {
		if now.Sub(e.firstSeen) <= s.ttl {
			s.stats.DuplicatesBlocked++
			return true
		}
		s.stats.TTLExpirations++
		s.lru.Add(key, entry{firstSeen: now})
		s.stats.NewMessages++
		return false
	}

	s.lru.Add(key, entry{firstSeen: now})
	s.stats.NewMessages++
	return false
}

// MarkSeen records key without checking it, used to suppress echo of a
// message the local node just published.
func (c *Cache) MarkSeen(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Add(key, entry{firstSeen: s.now()})
}

// Stats returns a snapshot of the cache's counters, aggregated across every
// shard.
func (c *Cache) Stats() Stats {
	var total Stats
	for _, s := range c.shards {
		s.mu.Lock()
		total.add(s.stats)
		s.mu.Unlock()
	}
	return total
}

// Len reports the number of live entries across every shard.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}
