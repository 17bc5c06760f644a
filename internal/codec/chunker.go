package codec

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

const (
	// ChunkHeaderSize is the fixed size of a chunk header in bytes.
	ChunkHeaderSize = 7

	// ChunkPayloadCap is the maximum data bytes carried by a single chunk,
	// leaving room for the 7-byte header inside a 237-byte link frame.
	ChunkPayloadCap = 237 - ChunkHeaderSize

	// MaxChunks is the largest total_chunks value the 1-byte field allows.
	MaxChunks = 255

	// DefaultReassemblyTimeout bounds how long a partially-assembled
	// message is retained before being dropped.
	DefaultReassemblyTimeout = 30 * time.Second
)

const (
	flagFirst      byte = 0x80
	flagLast       byte = 0x40
	flagCompressed byte = 0x20
)

// EncodeChunks splits payload into link-sized chunks carrying the 7-byte
// header described by the wire format. compressed marks every chunk's
// COMPRESSED flag so the reassembler knows to inflate the result.
func EncodeChunks(messageID uint32, payload []byte, compressed bool) ([][]byte, error) {
	total := (len(payload) + ChunkPayloadCap - 1) / ChunkPayloadCap
	if total == 0 {
		total = 1
	}
	if total > MaxChunks {
		return nil, ErrMessageTooLarge
	}

	chunks := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		start := i * ChunkPayloadCap
		end := start + ChunkPayloadCap
		if end > len(payload) {
			end = len(payload)
		}
		data := payload[start:end]

		var flags byte
		if i == 0 {
			flags |= flagFirst
		}
		if i == total-1 {
			flags |= flagLast
		}
		if compressed {
			flags |= flagCompressed
		}

		chunk := make([]byte, ChunkHeaderSize+len(data))
		chunk[0] = flags
		binary.BigEndian.PutUint32(chunk[1:5], messageID)
		chunk[5] = byte(i)
		chunk[6] = byte(total)
		copy(chunk[ChunkHeaderSize:], data)
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

type chunkHeader struct {
	flags       byte
	messageID   uint32
	chunkIndex  uint8
	totalChunks uint8
}

func parseChunkHeader(b []byte) (chunkHeader, []byte, error) {
	if len(b) < ChunkHeaderSize {
		return chunkHeader{}, nil, ErrInvalidChunk
	}
	h := chunkHeader{
		flags:       b[0],
		messageID:   binary.BigEndian.Uint32(b[1:5]),
		chunkIndex:  b[5],
		totalChunks: b[6],
	}
	if h.totalChunks == 0 || h.chunkIndex >= h.totalChunks {
		return chunkHeader{}, nil, ErrInvalidChunk
	}
	return h, b[ChunkHeaderSize:], nil
}

type partial struct {
	chunks     map[uint8][]byte
	total      uint8
	compressed bool
	firstSeen  time.Time
}

// Reassembler accumulates chunks keyed by message_id until every index in
// [0, total_chunks) has arrived, then reassembles and optionally inflates
// the result.
type Reassembler struct {
	mu      sync.Mutex
	pending map[uint32]*partial
	timeout time.Duration
	now     func() time.Time
}

// NewReassembler constructs a Reassembler with the given timeout.
func NewReassembler(timeout time.Duration) *Reassembler {
	if timeout <= 0 {
		timeout = DefaultReassemblyTimeout
	}
	return &Reassembler{
		pending: make(map[uint32]*partial),
		timeout: timeout,
		now:     time.Now,
	}
}

// Ingest feeds one chunk into the reassembler. When the chunk completes its
// message, it returns the message id, the fully assembled (and decompressed
// if needed) payload, and complete=true. Otherwise complete is false.
func (r *Reassembler) Ingest(chunk []byte) (messageID uint32, payload []byte, complete bool, err error) {
	h, data, err := parseChunkHeader(chunk)
	if err != nil {
		return 0, nil, false, err
	}

	if h.flags&flagFirst != 0 && h.flags&flagLast != 0 {
		out := data
		if h.flags&flagCompressed != 0 {
			out, err = Decompress(out)
			if err != nil {
				return h.messageID, nil, false, fmt.Errorf("codec: decompress single-chunk message: %w", err)
			}
		}
		return h.messageID, out, true, nil
	}

	r.mu.Lock()
	p, ok := r.pending[h.messageID]
	if !ok {
		p = &partial{
			chunks:     make(map[uint8][]byte),
			total:      h.totalChunks,
			compressed: h.flags&flagCompressed != 0,
			firstSeen:  r.now(),
		}
		r.pending[h.messageID] = p
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	p.chunks[h.chunkIndex] = cp

	if uint8(len(p.chunks)) < p.total {
		r.mu.Unlock()
		return h.messageID, nil, false, nil
	}

	assembled := make([]byte, 0)
	for i := uint8(0); i < p.total; i++ {
		part, ok := p.chunks[i]
		if !ok {
			r.mu.Unlock()
			return h.messageID, nil, false, ErrIncompleteMessage
		}
		assembled = append(assembled, part...)
	}
	compressed := p.compressed
	delete(r.pending, h.messageID)
	r.mu.Unlock()

	if compressed {
		assembled, err = Decompress(assembled)
		if err != nil {
			return h.messageID, nil, false, fmt.Errorf("codec: decompress reassembled message: %w", err)
		}
	}
	return h.messageID, assembled, true, nil
}

// ExpireStale drops any partially-assembled message older than the
// reassembler's timeout and returns how many were dropped.
func (r *Reassembler) ExpireStale() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	dropped := 0
	for id, p := range r.pending {
		if now.Sub(p.firstSeen) > r.timeout {
			delete(r.pending, id)
			dropped++
		}
	}
	return dropped
}

// Pending reports how many messages are currently mid-assembly.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
