package lora

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
	"github.com/xssnick/raptorq"
)

// FECScheme names an optional forward error correction layer wrapped
// around a batch of outbound chunks before they are written to the link.
type FECScheme string

const (
	FECNone       FECScheme = ""
	FECReedSolomon FECScheme = "reedsolomon"
	FECRaptorQ    FECScheme = "raptorq"
)

// rsParityShards is the number of parity shards added to every outbound
// chunk batch regardless of its data shard count, tolerating the loss of
// up to that many frames per batch.
const rsParityShards = 2

// ApplyFEC wraps shards (a gossip message's encoded chunk batch) with the
// configured forward error correction scheme, returning the full set of
// shards to transmit (original data shards plus any parity/repair shards).
func ApplyFEC(scheme FECScheme, shards [][]byte) ([][]byte, error) {
	switch scheme {
	case FECNone, "":
		return shards, nil
	case FECReedSolomon:
		return reedSolomonEncode(shards)
	case FECRaptorQ:
		return raptorQEncode(shards)
	default:
		return nil, fmt.Errorf("lora: unknown fec scheme %q", scheme)
	}
}

// RecoverFEC reverses ApplyFEC given the received shards (with nil entries
// marking frames lost in transit) and returns the original data shards.
func RecoverFEC(scheme FECScheme, shards [][]byte, dataCount int) ([][]byte, error) {
	switch scheme {
	case FECNone, "":
		return shards, nil
	case FECReedSolomon:
		return reedSolomonReconstruct(shards, dataCount)
	case FECRaptorQ:
		return raptorQDecode(shards, dataCount)
	default:
		return nil, fmt.Errorf("lora: unknown fec scheme %q", scheme)
	}
}

func reedSolomonEncode(data [][]byte) ([][]byte, error) {
	shardSize := 0
	for _, d := range data {
		if len(d) > shardSize {
			shardSize = len(d)
		}
	}
	padded := make([][]byte, len(data), len(data)+rsParityShards)
	for i, d := range data {
		p := make([]byte, shardSize)
		copy(p, d)
		padded[i] = p
	}
	for i := 0; i < rsParityShards; i++ {
		padded = append(padded, make([]byte, shardSize))
	}

	enc, err := reedsolomon.New(len(data), rsParityShards)
	if err != nil {
		return nil, fmt.Errorf("lora: reed-solomon encoder: %w", err)
	}
	if err := enc.Encode(padded); err != nil {
		return nil, fmt.Errorf("lora: reed-solomon encode: %w", err)
	}
	return padded, nil
}

func reedSolomonReconstruct(shards [][]byte, dataCount int) ([][]byte, error) {
	parityCount := len(shards) - dataCount
	if parityCount < 0 {
		return nil, fmt.Errorf("lora: reed-solomon shard count mismatch")
	}
	enc, err := reedsolomon.New(dataCount, parityCount)
	if err != nil {
		return nil, fmt.Errorf("lora: reed-solomon decoder: %w", err)
	}
	if err := enc.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("lora: reed-solomon reconstruct: %w", err)
	}
	return shards[:dataCount], nil
}

// raptorQSymbolSize is the fountain-code symbol size used for the
// alternative FEC path; chunk batches are small enough that one symbol per
// shard keeps the encoder state simple.
const raptorQSymbolSize = ChunkPayloadCapForFEC

// ChunkPayloadCapForFEC has the same value as codec.ChunkPayloadCap, kept as
// a separate constant in this file.
const ChunkPayloadCapForFEC = 230

func raptorQEncode(data [][]byte) ([][]byte, error) {
	joined := make([]byte, 0)
	for _, d := range data {
		joined = append(joined, d...)
	}
	enc, err := raptorq.NewEncoder(joined, raptorQSymbolSize)
	if err != nil {
		return nil, fmt.Errorf("lora: raptorq encoder: %w", err)
	}

	repairCount := len(data) / 2
	if repairCount < 1 {
		repairCount = 1
	}
	out := make([][]byte, 0, len(data)+repairCount)
	out = append(out, data...)
	for i := 0; i < repairCount; i++ {
		sym := enc.GenSymbol(uint32(len(data) + i))
		out = append(out, sym)
	}
	return out, nil
}

func raptorQDecode(shards [][]byte, dataCount int) ([][]byte, error) {
	dec := raptorq.NewDecoder(raptorQSymbolSize)
	for i, s := range shards {
		if s == nil {
			continue
		}
		if done, err := dec.AddSymbol(uint32(i), s); err != nil {
			return nil, fmt.Errorf("lora: raptorq add symbol: %w", err)
		} else if done {
			break
		}
	}
	decoded, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("lora: raptorq decode: %w", err)
	}

	out := make([][]byte, dataCount)
	offset := 0
	for i := range out {
		end := offset + raptorQSymbolSize
		if end > len(decoded) {
			end = len(decoded)
		}
		out[i] = decoded[offset:end]
		offset = end
	}
	return out, nil
}
