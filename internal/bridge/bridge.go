// Package bridge implements the EnrBridge: it decodes an EnrMessage tagged
// union and routes it to the appropriate component handler, absorbing and
// logging every handler error so a single malformed message never takes
// down the node.
package bridge

import (
	"log/slog"

	"github.com/mycelia-net/mycelia/internal/credit"
	"github.com/mycelia-net/mycelia/internal/election"
	"github.com/mycelia-net/mycelia/internal/gradient"
	"github.com/mycelia-net/mycelia/internal/netid"
	"github.com/mycelia-net/mycelia/internal/septal"
	"github.com/mycelia-net/mycelia/pkg/enr"
)

// Bridge demultiplexes decoded ENR envelopes to the four coordination
// components.
type Bridge struct {
	local     netid.NodeId
	gradient  *gradient.Broadcaster
	credit    *credit.Synchronizer
	election  *election.Manager
	septal    *septal.Manager
	log       *slog.Logger
}

// New constructs a Bridge over already-wired components.
func New(local netid.NodeId, g *gradient.Broadcaster, c *credit.Synchronizer, e *election.Manager, s *septal.Manager, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{local: local, gradient: g, credit: c, election: e, septal: s, log: log}
}

// Topics returns the four ENR topics the composition must subscribe to.
func (b *Bridge) Topics() []string {
	return enr.Topics()
}

// Dispatch decodes an incoming MessageReceived payload and routes it.
// Malformed input (bad envelope framing, unknown tag) is returned to the
// caller as a decode error; application-level handler errors are logged
// and swallowed.
func (b *Bridge) Dispatch(data []byte) error {
	tag, payload, err := enr.Decode(data)
	if err != nil {
		return err
	}

	switch tag {
	case enr.TagGradientUpdate:
		wire, err := enr.UnmarshalGradientUpdate(payload)
		if err != nil {
			return err
		}
		if err := b.gradient.HandleGradient(wire); err != nil {
			b.log.Warn("bridge: gradient handler rejected update", "source", wire.Source.String(), "error", err)
		}

	case enr.TagCreditTransfer:
		wire, err := enr.UnmarshalCreditTransfer(payload)
		if err != nil {
			return err
		}
		if err := b.credit.HandleTransfer(wire); err != nil {
			b.log.Warn("bridge: credit handler rejected transfer", "sender", wire.From.Node.String(), "error", err)
		}

	case enr.TagBalanceQuery:
		wire, err := enr.UnmarshalBalanceQuery(payload)
		if err != nil {
			return err
		}
		if err := b.credit.HandleBalanceQuery(wire); err != nil {
			b.log.Warn("bridge: balance query handling failed", "error", err)
		}

	case enr.TagBalanceResponse:
		// Balance responses are consumed by the local request originator
		// out of band; the bridge only needs to avoid treating it as an
		// unknown tag.

	case enr.TagElectionAnnouncement:
		wire, err := enr.UnmarshalElectionAnnouncement(payload)
		if err != nil {
			return err
		}
		if err := b.election.HandleAnnouncement(wire); err != nil {
			b.log.Warn("bridge: election announcement handling failed", "region", wire.RegionID, "error", err)
		}

	case enr.TagElectionCandidacy:
		wire, err := enr.UnmarshalNexusCandidacy(payload)
		if err != nil {
			return err
		}
		if err := b.election.HandleCandidacy(wire); err != nil {
			b.log.Warn("bridge: election candidacy rejected", "node", wire.Node.String(), "error", err)
		}

	case enr.TagElectionVote:
		wire, err := enr.UnmarshalElectionVote(payload)
		if err != nil {
			return err
		}
		if err := b.election.HandleVote(wire); err != nil {
			b.log.Warn("bridge: election vote handling failed", "voter", wire.Voter.String(), "error", err)
		}

	case enr.TagElectionResult:
		wire, err := enr.UnmarshalElectionResult(payload)
		if err != nil {
			return err
		}
		if err := b.election.HandleResult(wire); err != nil {
			b.log.Warn("bridge: election result handling failed", "region", wire.RegionID, "error", err)
		}

	case enr.TagSeptalStateChange:
		wire, err := enr.UnmarshalSeptalStateChange(payload)
		if err != nil {
			return err
		}
		if err := b.septal.HandleStateChange(wire); err != nil {
			b.log.Warn("bridge: septal state change handling failed", "peer", wire.Node.String(), "error", err)
		}

	case enr.TagSeptalHealthProbe:
		wire, err := enr.UnmarshalSeptalHealthProbe(payload)
		if err != nil {
			return err
		}
		if err := b.septal.HandleHealthProbe(b.local, wire); err != nil {
			b.log.Warn("bridge: septal health probe handling failed", "error", err)
		}

	case enr.TagSeptalHealthResponse:
		wire, err := enr.UnmarshalSeptalHealthResponse(payload)
		if err != nil {
			return err
		}
		if err := b.septal.HandleHealthResponse(wire); err != nil {
			b.log.Warn("bridge: septal health response handling failed", "node", wire.Node.String(), "error", err)
		}

	default:
		return enr.ErrUnknownTag
	}

	return nil
}
