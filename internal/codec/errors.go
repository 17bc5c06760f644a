package codec

import "errors"

var (
	// ErrMessageTooLarge is returned when a payload would require more
	// than 255 chunks to encode.
	ErrMessageTooLarge = errors.New("codec: message too large to chunk")

	// ErrIncompleteMessage is returned by Reassembler.Ingest when a
	// message_id has received total_chunks chunks but a chunk index is
	// still missing.
	ErrIncompleteMessage = errors.New("codec: incomplete chunk set")

	// ErrChunkTimeout names the reassembly-timeout condition. The
	// Reassembler does not return it: ExpireStale evicts partially-assembled
	// messages past the timeout and reports only how many it evicted.
	ErrChunkTimeout = errors.New("codec: reassembly timeout")

	// ErrInvalidChunk is returned when a chunk header is malformed.
	ErrInvalidChunk = errors.New("codec: invalid chunk header")
)
