// Package netid defines the opaque identifiers shared across Mycelia's
// coordination core: node and account identities, election counters, and
// message identifiers. Signature verification and key derivation themselves
// stay outside this package; netid only carries the byte shapes and comparison rules that
// the rest of the core depends on.
package netid

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/multiformats/go-multihash"
)

// NodeId is a 32-byte opaque identity derived from an Ed25519 public key.
type NodeId [32]byte

// String renders the node ID as lowercase hex, the form used in logs and
// gossip envelopes.
func (n NodeId) String() string {
	return hex.EncodeToString(n[:])
}

// Less provides the lexicographic NodeId ordering used to break ties in
// election vote tallies and winner selection.
func (n NodeId) Less(other NodeId) bool {
	for i := range n {
		if n[i] != other[i] {
			return n[i] < other[i]
		}
	}
	return false
}

// IsZero reports whether n is the zero-valued NodeId, used to detect
// uninitialized fields in decoded envelopes.
func (n NodeId) IsZero() bool {
	return n == NodeId{}
}

// NodeIdFromBytes validates and copies a 32-byte slice into a NodeId.
func NodeIdFromBytes(b []byte) (NodeId, error) {
	var n NodeId
	if len(b) != len(n) {
		return n, fmt.Errorf("netid: node id must be %d bytes, got %d", len(n), len(b))
	}
	copy(n[:], b)
	return n, nil
}

// Multihash encodes the node ID as a self-describing identity multihash, the
// encoding family libp2p uses for peer IDs, without Mycelia importing libp2p
// itself.
func (n NodeId) Multihash() (multihash.Multihash, error) {
	return multihash.Encode(n[:], multihash.IDENTITY)
}

// AccountId is a node's identity paired with a sub-account tag. The zero tag
// is reserved for the node's primary account.
type AccountId struct {
	Node NodeId
	Tag  string
}

// PrimaryAccount constructs the dedicated AccountId for a node's primary
// (tagless) account.
func PrimaryAccount(n NodeId) AccountId {
	return AccountId{Node: n}
}

// SubAccount constructs an AccountId for a named sub-account of a node.
func SubAccount(n NodeId, tag string) AccountId {
	return AccountId{Node: n, Tag: tag}
}

// String renders the account as "<node-hex>" for the primary account or
// "<node-hex>/<tag>" otherwise.
func (a AccountId) String() string {
	if a.Tag == "" {
		return a.Node.String()
	}
	return a.Node.String() + "/" + a.Tag
}

// IsPrimary reports whether this is the node's primary account.
func (a AccountId) IsPrimary() bool {
	return a.Tag == ""
}

// ElectionId is a monotonic 64-bit counter scoped to its initiator.
type ElectionId uint64

// MessageId carries either a 32-bit link-layer packet identifier (LoRa) or a
// UUIDv4 string (gossip).
type MessageId struct {
	// LoRaPacketID is set when the message originated on the LoRa mesh.
	LoRaPacketID uint32
	// GossipUUID is set when the message originated on the gossip overlay.
	GossipUUID string
	fromLoRa   bool
}

// NewGossipMessageID mints a fresh UUIDv4-based MessageId for a message
// originated on the gossip overlay.
func NewGossipMessageID() MessageId {
	return MessageId{GossipUUID: uuid.NewString()}
}

// NewLoRaMessageID wraps a link-layer packet identifier as a MessageId.
func NewLoRaMessageID(packetID uint32) MessageId {
	return MessageId{LoRaPacketID: packetID, fromLoRa: true}
}

// FromLoRa reports whether this MessageId originated on the LoRa mesh.
func (m MessageId) FromLoRa() bool {
	return m.fromLoRa
}

// String renders the MessageId the way it appears in dedup keys and logs.
func (m MessageId) String() string {
	if m.fromLoRa {
		return fmt.Sprintf("%08x", m.LoRaPacketID)
	}
	return m.GossipUUID
}
