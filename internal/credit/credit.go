// Package credit implements the optimistic MVP CreditSynchronizer: local
// transfers, nonce-based replay protection, and balance queries over the
// gossip overlay. The Sprint-2 Raft variant lives in
// internal/raftledger; when it is enabled, this package still handles the
// credit transfers that internal/bridge dispatches.
package credit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mycelia-net/mycelia/internal/mcfg"
	"github.com/mycelia-net/mycelia/internal/netid"
	"github.com/mycelia-net/mycelia/pkg/enr"
)

// Credits is a non-negative 64-bit quantity; arithmetic saturates rather
// than wrapping or panicking.
type Credits uint64

// AddSaturating adds d to c, clamping at the maximum representable value
// instead of wrapping.
func (c Credits) AddSaturating(d Credits) Credits {
	sum := c + d
	if sum < c {
		return ^Credits(0)
	}
	return sum
}

// SubSaturating subtracts d from c, clamping at zero instead of wrapping.
func (c Credits) SubSaturating(d Credits) Credits {
	if d > c {
		return 0
	}
	return c - d
}

// CreditTransfer is the committed effect of a transfer.
type CreditTransfer struct {
	From        netid.AccountId
	To          netid.AccountId
	Amount      Credits
	EntropyCost Credits
}

// entropyTax computes floor(amount * rateBp / 10000), the 2%-floor entropy
// tax applied to every transfer.
func entropyTax(amount Credits, rateBp uint64) Credits {
	return Credits((uint64(amount) * rateBp) / 10000)
}

// Synchronizer implements the CreditSynchronizer contract.
type Synchronizer struct {
	mu sync.Mutex

	balances    map[netid.AccountId]Credits
	nonces      map[netid.NodeId]uint64 // highest applied nonce per sender
	localNonce  uint64
	revivalPool Credits

	local   netid.NodeId
	cfg     mcfg.EconomicsConfig
	publish enr.PublishFunc
	now     func() time.Time
	log     *slog.Logger
}

// New constructs a Synchronizer for the local node.
func New(local netid.NodeId, cfg mcfg.EconomicsConfig, publish enr.PublishFunc, log *slog.Logger) *Synchronizer {
	if log == nil {
		log = slog.Default()
	}
	s := &Synchronizer{
		balances: make(map[netid.AccountId]Credits),
		nonces:   make(map[netid.NodeId]uint64),
		local:    local,
		cfg:      cfg,
		publish:  publish,
		now:      time.Now,
		log:      log,
	}
	s.EnsureAccount(local)
	return s
}

// EnsureAccount grants a node's primary account the initial credit grant if
// it does not already hold a balance.
func (s *Synchronizer) EnsureAccount(node netid.NodeId) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := netid.PrimaryAccount(node)
	if _, exists := s.balances[acc]; !exists {
		s.balances[acc] = Credits(s.cfg.InitialGrant)
	}
}

// Transfer debits the local node's primary account and credits the
// recipient, broadcasting the resulting CreditTransferMsg.
func (s *Synchronizer) Transfer(to netid.AccountId, amount Credits) (CreditTransfer, error) {
	if amount == 0 {
		return CreditTransfer{}, ErrZeroAmount
	}

	from := netid.PrimaryAccount(s.local)
	if from == to {
		return CreditTransfer{}, ErrSelfTransfer
	}

	tax := entropyTax(amount, s.cfg.EntropyTaxRateBp)
	totalCost := amount.AddSaturating(tax)

	s.mu.Lock()
	s.balances[from] = s.balances[from].SubSaturating(totalCost)
	s.balances[to] = s.balances[to].AddSaturating(amount)
	if s.cfg.UnifyRevivalPool {
		s.revivalPool = s.revivalPool.AddSaturating(tax)
	}
	s.localNonce++
	nonce := s.localNonce
	s.mu.Unlock()

	transfer := CreditTransfer{From: from, To: to, Amount: amount, EntropyCost: tax}

	wire := enr.CreditTransferWire{
		From:        enr.AccountWire{Node: from.Node, Tag: from.Tag},
		To:          enr.AccountWire{Node: to.Node, Tag: to.Tag},
		Amount:      uint64(amount),
		EntropyCost: uint64(tax),
		Nonce:       nonce,
	}
	data := enr.Encode(enr.TagCreditTransfer, wire.Marshal())
	if err := s.publish(enr.CreditTopic, data); err != nil {
		return transfer, fmt.Errorf("credit: publish: %w", err)
	}

	return transfer, nil
}

// HandleTransfer ingests a remote CreditTransferMsg, enforcing monotonic
// per-sender nonces and applying the mutation optimistically.
func (s *Synchronizer) HandleTransfer(wire enr.CreditTransferWire) error {
	sender := wire.From.Node
	if sender == s.local {
		return nil // skip self-origin
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.nonces[sender]; ok && wire.Nonce <= last {
		return fmt.Errorf("%w: sender %s nonce %d <= last applied %d", ErrReplayedNonce, sender, wire.Nonce, last)
	}
	s.nonces[sender] = wire.Nonce

	from := netid.AccountId{Node: wire.From.Node, Tag: wire.From.Tag}
	to := netid.AccountId{Node: wire.To.Node, Tag: wire.To.Tag}

	totalCost := Credits(wire.Amount).AddSaturating(Credits(wire.EntropyCost))
	s.balances[from] = s.balances[from].SubSaturating(totalCost)
	s.balances[to] = s.balances[to].AddSaturating(Credits(wire.Amount))
	if s.cfg.UnifyRevivalPool {
		s.revivalPool = s.revivalPool.AddSaturating(Credits(wire.EntropyCost))
	}

	return nil
}

// HandleBalanceQuery responds on CreditTopic with a BalanceResponse when
// the query targets the local node; queries for other nodes are ignored.
func (s *Synchronizer) HandleBalanceQuery(q enr.BalanceQueryWire) error {
	target := netid.AccountId{Node: q.Target.Node, Tag: q.Target.Tag}
	if target.Node != s.local {
		return nil
	}

	resp := enr.BalanceResponseWire{
		RequestID: q.RequestID,
		Balance:   uint64(s.Balance(target)),
		AsOf:      s.now().UnixMilli(),
	}
	data := enr.Encode(enr.TagBalanceResponse, resp.Marshal())
	if err := s.publish(enr.CreditTopic, data); err != nil {
		return fmt.Errorf("credit: publish balance response: %w", err)
	}
	return nil
}

// Balance returns the current balance of an arbitrary account.
func (s *Synchronizer) Balance(account netid.AccountId) Credits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[account]
}

// LocalBalance returns the local node's primary account balance.
func (s *Synchronizer) LocalBalance() Credits {
	return s.Balance(netid.PrimaryAccount(s.local))
}

// TotalSupply sums every tracked balance plus the revival pool (if unified).
func (s *Synchronizer) TotalSupply() Credits {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total Credits
	for _, bal := range s.balances {
		total = total.AddSaturating(bal)
	}
	return total.AddSaturating(s.revivalPool)
}

// RevivalPool returns the locally-tracked revival pool. It is always zero
// unless Config.UnifyRevivalPool is set.
func (s *Synchronizer) RevivalPool() Credits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revivalPool
}
