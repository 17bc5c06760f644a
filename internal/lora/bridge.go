package lora

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mycelia-net/mycelia/internal/codec"
	"github.com/mycelia-net/mycelia/internal/dedup"
	"github.com/mycelia-net/mycelia/internal/metrics"
	"github.com/mycelia-net/mycelia/pkg/enr"
)

// pollInterval is how long the bridge waits before reading the link again
// after a read returned no data.
const pollInterval = 50 * time.Millisecond

// Bridge is the LoRaBridge: it owns the physical Link and translates
// between Meshtastic-framed mesh traffic and the gossip overlay in both
// directions, deduplicating and chunking as needed.
type Bridge struct {
	link    Link
	dedup   *dedup.Cache
	reasm   *codec.Reassembler
	publish enr.PublishFunc
	metrics *metrics.Metrics
	log     *slog.Logger

	localFrom        uint32
	hopLimitCap      uint8
	fecScheme        FECScheme
	reconnectBackoff time.Duration
	housekeepingTick time.Duration

	nextPacketID uint32
	scanner      FrameScanner
}

// Option configures optional Bridge behavior at construction time.
type Option func(*Bridge)

// WithFEC enables a forward error correction scheme on outbound chunk
// batches.
func WithFEC(scheme FECScheme) Option {
	return func(b *Bridge) { b.fecScheme = scheme }
}

// New constructs a Bridge. localFrom is this node's 32-bit mesh address,
// derived by the caller from its NodeId. publish delivers a reassembled
// mesh message onto the gossip overlay.
func New(link Link, localFrom uint32, cache *dedup.Cache, publish enr.PublishFunc, m *metrics.Metrics, log *slog.Logger, reconnectBackoff, housekeepingTick time.Duration, opts ...Option) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	if reconnectBackoff == 0 {
		reconnectBackoff = 2 * time.Second
	}
	if housekeepingTick == 0 {
		housekeepingTick = 30 * time.Second
	}
	b := &Bridge{
		link:             link,
		dedup:            cache,
		reasm:            codec.NewReassembler(codec.DefaultReassemblyTimeout),
		publish:          publish,
		metrics:          m,
		log:              log,
		localFrom:        localFrom,
		hopLimitCap:      HopLimitCap,
		reconnectBackoff: reconnectBackoff,
		housekeepingTick: housekeepingTick,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run connects the link and drives the bridge's receive and housekeeping
// loop until ctx is cancelled. It reconnects on read errors with the
// configured backoff, giving up (and returning) only if reconnection itself
// fails.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.link.Connect(); err != nil {
		return fmt.Errorf("lora: connect: %w", err)
	}
	defer b.link.Disconnect()

	ticker := time.NewTicker(b.housekeepingTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.houseKeep()
		default:
		}

		data, err := b.link.ReadPacket()
		if err != nil {
			b.log.Warn("lora link read failed, reconnecting", "link", b.link.Name(), "error", err)
			b.link.Disconnect()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.reconnectBackoff):
			}
			if err := b.link.Connect(); err != nil {
				return fmt.Errorf("lora: reconnect failed: %w", err)
			}
			continue
		}
		if len(data) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollInterval):
			}
			continue
		}

		b.scanner.Feed(data)
		for {
			frame, ok := b.scanner.Next()
			if !ok {
				break
			}
			b.handleInboundFrame(frame)
		}
	}
}

func (b *Bridge) houseKeep() {
	expired := b.reasm.ExpireStale()
	stats := b.dedup.Stats()
	b.log.Info("lora bridge housekeeping",
		"reassembly_expired", expired,
		"reassembly_pending", b.reasm.Pending(),
		"dedup_checks", stats.TotalChecks,
		"dedup_blocked", stats.DuplicatesBlocked,
		"frame_desyncs", b.scanner.DesyncEvents(),
	)
}

// handleInboundFrame processes one decoded link frame: parses the
// Meshtastic packet, drops duplicates and frames for unrecognized ports,
// reassembles chunked payloads, and publishes completed messages onto the
// gossip overlay.
func (b *Bridge) handleInboundFrame(frame []byte) {
	pkt, err := DecodeMeshtasticPacket(frame, time.Now())
	if err != nil {
		b.log.Warn("lora: dropping malformed packet", "error", err)
		return
	}

	key := dedup.Key(fmt.Sprintf("lora:%08x", pkt.From), fmt.Sprintf("%08x", pkt.PacketID))
	if b.dedup.IsDuplicate(key) {
		b.countDedup("lora")
		return
	}
	b.dedup.MarkSeen(key)

	topic, ok := TopicForPort(pkt.Port)
	if !ok {
		b.log.Debug("lora: dropping packet for unrecognized port", "port", pkt.Port)
		return
	}

	_, payload, complete, err := b.reasm.Ingest(pkt.Payload)
	if err != nil {
		b.log.Warn("lora: chunk reassembly failed", "error", err)
		return
	}
	b.countChunk("from_lora")
	if !complete {
		return
	}

	if err := b.publish(topic, payload); err != nil {
		b.log.Warn("lora: publish to gossip failed", "topic", topic, "error", err)
	}
}

// SendToLoRa translates a gossip message into one or more mesh frames and
// writes them to the link. peerIDPrefix identifies the originating gossip
// peer for dedup/echo suppression.
func (b *Bridge) SendToLoRa(topic, peerIDPrefix, messageID string, payload []byte, priority Priority) error {
	port, ok := PortForTopic(topic)
	if !ok {
		return ErrUnbridgedTopic
	}

	key := dedup.Key(fmt.Sprintf("p2p:%s", peerIDPrefix), messageID)
	if b.dedup.IsDuplicate(key) {
		b.countDedup("p2p")
		return nil
	}

	compressed, isCompressed := codec.Compress(payload, 6)
	chunkID := messageIDToUint32(messageID)
	chunks, err := codec.EncodeChunks(chunkID, compressed, isCompressed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMessageTooLarge, err)
	}

	if b.fecScheme != FECNone {
		chunks, err = ApplyFEC(b.fecScheme, chunks)
		if err != nil {
			return fmt.Errorf("lora: fec encode: %w", err)
		}
	}

	hopLimit := HopLimitFor(priority)
	if hopLimit > b.hopLimitCap {
		hopLimit = b.hopLimitCap
	}

	for _, chunk := range chunks {
		pkt := MeshtasticPacket{
			From:     b.localFrom,
			To:       BroadcastAddress,
			PacketID: atomic.AddUint32(&b.nextPacketID, 1),
			Port:     port,
			Payload:  chunk,
			HopLimit: hopLimit,
		}
		frame, err := EncodeFrame(EncodeMeshtasticPacket(pkt))
		if err != nil {
			return fmt.Errorf("lora: encode frame: %w", err)
		}
		if err := b.link.WritePacket(frame); err != nil {
			return fmt.Errorf("lora: write packet: %w", err)
		}
		b.countChunk("to_lora")
	}

	b.dedup.MarkSeen(key)
	return nil
}

func (b *Bridge) countDedup(source string) {
	if b.metrics != nil {
		b.metrics.DedupDuplicatesTotal.WithLabelValues(source).Inc()
	}
}

func (b *Bridge) countChunk(direction string) {
	if b.metrics != nil {
		b.metrics.LoRaChunksTotal.WithLabelValues(direction).Inc()
	}
}

// messageIDToUint32 derives a stable 4-byte chunk-set identifier from a
// gossip message id, so chunks belonging to the same message agree on their
// header's message_id field regardless of the id's native encoding.
func messageIDToUint32(messageID string) uint32 {
	sum := blake3.Sum256([]byte(messageID))
	return uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
}
