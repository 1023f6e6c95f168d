package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// SettlementEngine distributes sale proceeds: creator royalty, then the
// market fee split between multisig and staking, then the seller.
type SettlementEngine struct {
	registry    *ConsignmentRegistry
	settlements domain.SettlementStore
	funds       domain.FundTransfer
	royalties   domain.RoyaltyRegistry
	config      *MarketConfig
	access      *AccessControl
	emitter     *Emitter
	clock       domain.Clock
	metrics     *metrics.Market
	logger      *slog.Logger
}

// Waterfall computes the distribution of gross for consignment c. Royalty
// applies to secondary sales only and is capped at the market maximum. Fee
// halves are truncated; the odd remainder is reported as dust and paid to
// nobody.
func Waterfall(cfg domain.MarketConfiguration, c domain.Consignment, gross *big.Int, creator common.Address, royaltyBps uint16) domain.Settlement {
	s := domain.Settlement{
		ConsignmentID: c.ID,
		Market:        c.Market,
		Gross:         new(big.Int).Set(gross),
		Royalty:       new(big.Int),
		Seller:        c.Seller,
	}

	net := new(big.Int).Set(gross)
	if c.Market == domain.MarketSecondary && creator != (common.Address{}) {
		bps := royaltyBps
		if bps > cfg.MaxRoyaltyBps {
			bps = cfg.MaxRoyaltyBps
		}
		s.Royalty = domain.ApplyBps(gross, bps)
		s.RoyaltyRecipient = creator
		net.Sub(net, s.Royalty)
	}

	s.FeeBps = cfg.FeeBps(c)
	s.Fee = domain.ApplyBps(net, s.FeeBps)
	half := new(big.Int).Quo(s.Fee, big.NewInt(2))
	s.MultisigShare = half
	s.StakingShare = new(big.Int).Set(half)
	s.Dust = new(big.Int).Sub(s.Fee, new(big.Int).Mul(half, big.NewInt(2)))
	s.SellerAmount = net.Sub(net, s.Fee)
	return s
}

// Settle distributes gross for a consignment outside an auction or sale
// close. Callers need the admin or market handler role.
func (e *SettlementEngine) Settle(ctx context.Context, caller domain.Caller, consignmentID uint64, gross *big.Int) (domain.Settlement, error) {
	if err := e.access.require(caller, domain.RoleAdmin, domain.RoleMarketHandler); err != nil {
		return domain.Settlement{}, err
	}
	if gross == nil || gross.Sign() < 0 {
		return domain.Settlement{}, domain.WithReason(domain.ErrInvalidInput, "Gross amount must be non-negative")
	}

	unlock, err := e.registry.locks.acquire(ctx, consignmentID)
	if err != nil {
		return domain.Settlement{}, err
	}
	defer unlock()

	c, err := e.registry.load(ctx, consignmentID)
	if err != nil {
		return domain.Settlement{}, err
	}
	s, after, pays, err := e.plan(ctx, c, gross)
	if err != nil {
		return domain.Settlement{}, err
	}

	tx := newTxn(e.logger, e.metrics)
	tx.updateConsignment(e.registry.store, c, after)
	for _, p := range pays {
		tx.effect(p)
	}
	if err := tx.commit(ctx); err != nil {
		return domain.Settlement{}, err
	}
	e.record(ctx, s)
	return s, nil
}

// plan resolves the royalty, computes the waterfall for c and returns the
// consignment with its pending payout cleared plus the payment steps in
// royalty, multisig, staking, seller order.
func (e *SettlementEngine) plan(ctx context.Context, c domain.Consignment, gross *big.Int) (domain.Settlement, domain.Consignment, []step, error) {
	cfg := e.config.Snapshot()

	var (
		creator    common.Address
		royaltyBps uint16
	)
	if c.Market == domain.MarketSecondary && e.royalties != nil {
		var err error
		creator, royaltyBps, err = e.royalties.RoyaltyInfo(ctx, c.TokenAddress, c.TokenID)
		if err != nil {
			return domain.Settlement{}, c, nil, fmt.Errorf("settlement: royalty info: %w", err)
		}
	}

	s := Waterfall(cfg, c, gross, creator, royaltyBps)
	s.ID = uuid.NewString()
	s.SettledAt = e.clock.Now().UTC()

	after := c.Clone()
	after.PendingPayout = new(big.Int)

	pays := []step{
		payStep(e.funds, s.RoyaltyRecipient, s.Royalty, "royalty"),
		payStep(e.funds, cfg.MultisigAddress, s.MultisigShare, "multisig fee"),
		payStep(e.funds, cfg.StakingAddress, s.StakingShare, "staking fee"),
		payStep(e.funds, s.Seller, s.SellerAmount, "seller proceeds"),
	}
	return s, after, pays, nil
}

// record persists a committed settlement and announces it. The payments
// have already happened, so failures are logged rather than returned.
func (e *SettlementEngine) record(ctx context.Context, s domain.Settlement) {
	if err := e.settlements.Insert(ctx, s); err != nil {
		e.logger.ErrorContext(ctx, "settlement: persist record failed",
			slog.String("settlement_id", s.ID),
			slog.Uint64("consignment_id", s.ConsignmentID),
			slog.String("error", err.Error()),
		)
	}

	e.metrics.ObserveSettled("royalty", s.Royalty)
	e.metrics.ObserveSettled("multisig", s.MultisigShare)
	e.metrics.ObserveSettled("staking", s.StakingShare)
	e.metrics.ObserveSettled("seller", s.SellerAmount)
	e.metrics.ObserveRoundingDust(s.Dust)

	e.emitter.Emit(ctx, event(domain.EventSettlement, s.ConsignmentID, map[string]any{
		"settlement_id":     s.ID,
		"market":            string(s.Market),
		"gross":             dec(s.Gross),
		"royalty":           dec(s.Royalty),
		"royalty_recipient": addr(s.RoyaltyRecipient),
		"fee":               dec(s.Fee),
		"multisig_share":    dec(s.MultisigShare),
		"staking_share":     dec(s.StakingShare),
		"seller_amount":     dec(s.SellerAmount),
		"seller":            addr(s.Seller),
		"dust":              dec(s.Dust),
	}))
	e.logger.InfoContext(ctx, "settlement: distributed",
		slog.Uint64("consignment_id", s.ConsignmentID),
		slog.String("gross", dec(s.Gross)),
		slog.String("seller_amount", dec(s.SellerAmount)),
	)
}

// ListSettlements returns the settlements recorded for a consignment.
func (e *SettlementEngine) ListSettlements(ctx context.Context, consignmentID uint64) ([]domain.Settlement, error) {
	if _, err := e.registry.load(ctx, consignmentID); err != nil {
		return nil, err
	}
	out, err := e.settlements.ListByConsignment(ctx, consignmentID)
	if err != nil {
		return nil, fmt.Errorf("settlement: list: %w", err)
	}
	return out, nil
}
