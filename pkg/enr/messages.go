package enr

import (
	"encoding/binary"
	"math"

	"github.com/mycelia-net/mycelia/internal/netid"
)

// The structs in this file are the wire DTOs for each EnrMessage variant.
// They carry plain Go types (not the richer domain types each owning
// package defines) so that pkg/enr never imports the coordination
// components and stays a pure boundary package.

func putNodeID(buf []byte, n netid.NodeId) []byte {
	return append(buf, n[:]...)
}

func readNodeID(b []byte) (netid.NodeId, []byte, error) {
	if len(b) < 32 {
		return netid.NodeId{}, nil, ErrTruncatedBuffer
	}
	n, err := netid.NodeIdFromBytes(b[:32])
	return n, b[32:], err
}

func putAccountID(buf []byte, a AccountWire) []byte {
	buf = putNodeID(buf, a.Node)
	buf = putShortStr(buf, a.Tag)
	return buf
}

func readAccountID(b []byte) (AccountWire, []byte, error) {
	var a AccountWire
	n, b, err := readNodeID(b)
	if err != nil {
		return a, nil, err
	}
	tag, b, err := readShortStr(b)
	if err != nil {
		return a, nil, err
	}
	return AccountWire{Node: n, Tag: tag}, b, nil
}

// AccountWire is the wire shape of an AccountId: a node plus a sub-account
// tag (empty means the primary account).
type AccountWire struct {
	Node netid.NodeId
	Tag  string
}

// GradientUpdateWire is the wire DTO for a GradientUpdate.
type GradientUpdateWire struct {
	Source    netid.NodeId
	CPU       float64
	Memory    float64
	GPU       float64
	Storage   float64
	Bandwidth float64
	Credit    float64
	Timestamp int64 // unix millis
	Signature []byte
}

func (g GradientUpdateWire) Marshal() []byte {
	buf := make([]byte, 0, 32+6*8+8+2+len(g.Signature))
	buf = putNodeID(buf, g.Source)
	for _, f := range []float64{g.CPU, g.Memory, g.GPU, g.Storage, g.Bandwidth, g.Credit} {
		buf = putFloat64(buf, f)
	}
	buf = putInt64(buf, g.Timestamp)
	buf = putShortBytes(buf, g.Signature)
	return buf
}

func UnmarshalGradientUpdate(b []byte) (GradientUpdateWire, error) {
	var g GradientUpdateWire
	var err error
	g.Source, b, err = readNodeID(b)
	if err != nil {
		return g, err
	}
	fields := make([]float64, 6)
	for i := range fields {
		fields[i], b, err = readFloat64(b)
		if err != nil {
			return g, err
		}
	}
	g.CPU, g.Memory, g.GPU, g.Storage, g.Bandwidth, g.Credit = fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]
	g.Timestamp, b, err = readInt64(b)
	if err != nil {
		return g, err
	}
	g.Signature, _, err = readShortBytes(b)
	return g, err
}

// CreditTransferWire is the wire DTO for a CreditTransferMsg.
type CreditTransferWire struct {
	From        AccountWire
	To          AccountWire
	Amount      uint64
	EntropyCost uint64
	Nonce       uint64
	Signature   []byte
}

func (c CreditTransferWire) Marshal() []byte {
	var buf []byte
	buf = putAccountID(buf, c.From)
	buf = putAccountID(buf, c.To)
	buf = putUint64(buf, c.Amount)
	buf = putUint64(buf, c.EntropyCost)
	buf = putUint64(buf, c.Nonce)
	buf = putShortBytes(buf, c.Signature)
	return buf
}

func UnmarshalCreditTransfer(b []byte) (CreditTransferWire, error) {
	var c CreditTransferWire
	var err error
	c.From, b, err = readAccountID(b)
	if err != nil {
		return c, err
	}
	c.To, b, err = readAccountID(b)
	if err != nil {
		return c, err
	}
	c.Amount, b, err = readUint64(b)
	if err != nil {
		return c, err
	}
	c.EntropyCost, b, err = readUint64(b)
	if err != nil {
		return c, err
	}
	c.Nonce, b, err = readUint64(b)
	if err != nil {
		return c, err
	}
	c.Signature, _, err = readShortBytes(b)
	return c, err
}

// BalanceQueryWire is the wire DTO for a balance query.
type BalanceQueryWire struct {
	RequestID string
	Target    AccountWire
}

func (q BalanceQueryWire) Marshal() []byte {
	var buf []byte
	buf = putShortStr(buf, q.RequestID)
	buf = putAccountID(buf, q.Target)
	return buf
}

func UnmarshalBalanceQuery(b []byte) (BalanceQueryWire, error) {
	var q BalanceQueryWire
	var err error
	q.RequestID, b, err = readShortStr(b)
	if err != nil {
		return q, err
	}
	q.Target, _, err = readAccountID(b)
	return q, err
}

// BalanceResponseWire is the wire DTO for a balance response.
type BalanceResponseWire struct {
	RequestID string
	Balance   uint64
	AsOf      int64
}

func (r BalanceResponseWire) Marshal() []byte {
	var buf []byte
	buf = putShortStr(buf, r.RequestID)
	buf = putUint64(buf, r.Balance)
	buf = putInt64(buf, r.AsOf)
	return buf
}

func UnmarshalBalanceResponse(b []byte) (BalanceResponseWire, error) {
	var r BalanceResponseWire
	var err error
	r.RequestID, b, err = readShortStr(b)
	if err != nil {
		return r, err
	}
	r.Balance, b, err = readUint64(b)
	if err != nil {
		return r, err
	}
	r.AsOf, _, err = readInt64(b)
	return r, err
}

// ElectionAnnouncementWire is the wire DTO for an ElectionAnnouncement.
type ElectionAnnouncementWire struct {
	ElectionID uint64
	Initiator  netid.NodeId
	RegionID   string
	Timestamp  int64
}

func (a ElectionAnnouncementWire) Marshal() []byte {
	var buf []byte
	buf = putUint64(buf, a.ElectionID)
	buf = putNodeID(buf, a.Initiator)
	buf = putShortStr(buf, a.RegionID)
	buf = putInt64(buf, a.Timestamp)
	return buf
}

func UnmarshalElectionAnnouncement(b []byte) (ElectionAnnouncementWire, error) {
	var a ElectionAnnouncementWire
	var err error
	a.ElectionID, b, err = readUint64(b)
	if err != nil {
		return a, err
	}
	a.Initiator, b, err = readNodeID(b)
	if err != nil {
		return a, err
	}
	a.RegionID, b, err = readShortStr(b)
	if err != nil {
		return a, err
	}
	a.Timestamp, _, err = readInt64(b)
	return a, err
}

// NexusCandidacyWire is the wire DTO for a NexusCandidacy.
type NexusCandidacyWire struct {
	ElectionID       uint64
	Node             netid.NodeId
	Uptime           float64
	Bandwidth        float64
	Reputation       float64
	CurrentLeafCount uint32
	ElectionScore    float64
}

func (c NexusCandidacyWire) Marshal() []byte {
	var buf []byte
	buf = putUint64(buf, c.ElectionID)
	buf = putNodeID(buf, c.Node)
	buf = putFloat64(buf, c.Uptime)
	buf = putFloat64(buf, c.Bandwidth)
	buf = putFloat64(buf, c.Reputation)
	buf = putUint32(buf, c.CurrentLeafCount)
	buf = putFloat64(buf, c.ElectionScore)
	return buf
}

func UnmarshalNexusCandidacy(b []byte) (NexusCandidacyWire, error) {
	var c NexusCandidacyWire
	var err error
	c.ElectionID, b, err = readUint64(b)
	if err != nil {
		return c, err
	}
	c.Node, b, err = readNodeID(b)
	if err != nil {
		return c, err
	}
	c.Uptime, b, err = readFloat64(b)
	if err != nil {
		return c, err
	}
	c.Bandwidth, b, err = readFloat64(b)
	if err != nil {
		return c, err
	}
	c.Reputation, b, err = readFloat64(b)
	if err != nil {
		return c, err
	}
	c.CurrentLeafCount, b, err = readUint32(b)
	if err != nil {
		return c, err
	}
	c.ElectionScore, _, err = readFloat64(b)
	return c, err
}

// ElectionVoteWire is the wire DTO for an ElectionVote.
type ElectionVoteWire struct {
	ElectionID uint64
	Voter      netid.NodeId
	Candidate  netid.NodeId
	Timestamp  int64
}

func (v ElectionVoteWire) Marshal() []byte {
	var buf []byte
	buf = putUint64(buf, v.ElectionID)
	buf = putNodeID(buf, v.Voter)
	buf = putNodeID(buf, v.Candidate)
	buf = putInt64(buf, v.Timestamp)
	return buf
}

func UnmarshalElectionVote(b []byte) (ElectionVoteWire, error) {
	var v ElectionVoteWire
	var err error
	v.ElectionID, b, err = readUint64(b)
	if err != nil {
		return v, err
	}
	v.Voter, b, err = readNodeID(b)
	if err != nil {
		return v, err
	}
	v.Candidate, b, err = readNodeID(b)
	if err != nil {
		return v, err
	}
	v.Timestamp, _, err = readInt64(b)
	return v, err
}

// ElectionResultWire is the wire DTO for an ElectionResult.
type ElectionResultWire struct {
	ElectionID uint64
	Winner     netid.NodeId
	RegionID   string
	VoteCount  uint32
	Timestamp  int64
}

func (r ElectionResultWire) Marshal() []byte {
	var buf []byte
	buf = putUint64(buf, r.ElectionID)
	buf = putNodeID(buf, r.Winner)
	buf = putShortStr(buf, r.RegionID)
	buf = putUint32(buf, r.VoteCount)
	buf = putInt64(buf, r.Timestamp)
	return buf
}

func UnmarshalElectionResult(b []byte) (ElectionResultWire, error) {
	var r ElectionResultWire
	var err error
	r.ElectionID, b, err = readUint64(b)
	if err != nil {
		return r, err
	}
	r.Winner, b, err = readNodeID(b)
	if err != nil {
		return r, err
	}
	r.RegionID, b, err = readShortStr(b)
	if err != nil {
		return r, err
	}
	r.VoteCount, b, err = readUint32(b)
	if err != nil {
		return r, err
	}
	r.Timestamp, _, err = readInt64(b)
	return r, err
}

// SeptalStateChangeWire is the wire DTO for a SeptalStateChange.
type SeptalStateChangeWire struct {
	Node      netid.NodeId
	FromState uint8
	ToState   uint8
	Reason    string
	Timestamp int64
}

func (s SeptalStateChangeWire) Marshal() []byte {
	var buf []byte
	buf = putNodeID(buf, s.Node)
	buf = append(buf, s.FromState, s.ToState)
	buf = putShortStr(buf, s.Reason)
	buf = putInt64(buf, s.Timestamp)
	return buf
}

func UnmarshalSeptalStateChange(b []byte) (SeptalStateChangeWire, error) {
	var s SeptalStateChangeWire
	var err error
	s.Node, b, err = readNodeID(b)
	if err != nil {
		return s, err
	}
	if len(b) < 2 {
		return s, ErrTruncatedBuffer
	}
	s.FromState, s.ToState = b[0], b[1]
	b = b[2:]
	s.Reason, b, err = readShortStr(b)
	if err != nil {
		return s, err
	}
	s.Timestamp, _, err = readInt64(b)
	return s, err
}

// SeptalHealthProbeWire is the wire DTO for a SeptalHealthProbe.
type SeptalHealthProbeWire struct {
	RequestID string
	Target    netid.NodeId
	Timestamp int64
}

func (p SeptalHealthProbeWire) Marshal() []byte {
	var buf []byte
	buf = putShortStr(buf, p.RequestID)
	buf = putNodeID(buf, p.Target)
	buf = putInt64(buf, p.Timestamp)
	return buf
}

func UnmarshalSeptalHealthProbe(b []byte) (SeptalHealthProbeWire, error) {
	var p SeptalHealthProbeWire
	var err error
	p.RequestID, b, err = readShortStr(b)
	if err != nil {
		return p, err
	}
	p.Target, b, err = readNodeID(b)
	if err != nil {
		return p, err
	}
	p.Timestamp, _, err = readInt64(b)
	return p, err
}

// SeptalHealthResponseWire is the wire DTO for a SeptalHealthResponse.
type SeptalHealthResponseWire struct {
	RequestID     string
	Node          netid.NodeId
	IsHealthy     bool
	FailureCount  uint32
	Timestamp     int64
}

func (r SeptalHealthResponseWire) Marshal() []byte {
	var buf []byte
	buf = putShortStr(buf, r.RequestID)
	buf = putNodeID(buf, r.Node)
	if r.IsHealthy {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = putUint32(buf, r.FailureCount)
	buf = putInt64(buf, r.Timestamp)
	return buf
}

func UnmarshalSeptalHealthResponse(b []byte) (SeptalHealthResponseWire, error) {
	var r SeptalHealthResponseWire
	var err error
	r.RequestID, b, err = readShortStr(b)
	if err != nil {
		return r, err
	}
	r.Node, b, err = readNodeID(b)
	if err != nil {
		return r, err
	}
	if len(b) < 1 {
		return r, ErrTruncatedBuffer
	}
	r.IsHealthy = b[0] != 0
	b = b[1:]
	r.FailureCount, b, err = readUint32(b)
	if err != nil {
		return r, err
	}
	r.Timestamp, _, err = readInt64(b)
	return r, err
}

// --- primitive helpers shared by every wire DTO above ---

func putUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, ErrTruncatedBuffer
	}
	return binary.BigEndian.Uint64(b[:8]), b[8:], nil
}

func putUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, ErrTruncatedBuffer
	}
	return binary.BigEndian.Uint32(b[:4]), b[4:], nil
}

func putInt64(buf []byte, v int64) []byte {
	return putUint64(buf, uint64(v))
}

func readInt64(b []byte) (int64, []byte, error) {
	v, b, err := readUint64(b)
	return int64(v), b, err
}

func putFloat64(buf []byte, f float64) []byte {
	return putUint64(buf, math.Float64bits(f))
}

func readFloat64(b []byte) (float64, []byte, error) {
	v, b, err := readUint64(b)
	return math.Float64frombits(v), b, err
}

func putShortBytes(buf []byte, data []byte) []byte {
	if len(data) > 255 {
		data = data[:255]
	}
	buf = append(buf, byte(len(data)))
	return append(buf, data...)
}

func readShortBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 1 {
		return nil, nil, ErrTruncatedBuffer
	}
	n := int(b[0])
	b = b[1:]
	if len(b) < n {
		return nil, nil, ErrTruncatedBuffer
	}
	return b[:n], b[n:], nil
}
