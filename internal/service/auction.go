package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
)

// AuctionRequest holds the terms of a new auction.
type AuctionRequest struct {
	Start    int64            `json:"start"`
	Duration int64            `json:"duration"`
	Reserve  *big.Int         `json:"reserve"`
	Audience domain.Audience  `json:"audience"`
	Clock    domain.ClockMode `json:"clock"`
}

func (r AuctionRequest) validate() error {
	if r.Duration <= 0 {
		return domain.WithReason(domain.ErrInvalidInput, "Duration must be positive")
	}
	if r.Reserve == nil || r.Reserve.Sign() <= 0 {
		return domain.WithReason(domain.ErrInvalidInput, "Reserve must be positive")
	}
	if !r.Audience.Valid() {
		return domain.WithReason(domain.ErrInvalidInput, "Unknown audience")
	}
	if !r.Clock.Valid() {
		return domain.WithReason(domain.ErrInvalidInput, "Unknown clock")
	}
	return nil
}

// checkStart rejects a LIVE auction starting in the past.
func (r AuctionRequest) checkStart(now int64) error {
	if r.Clock == domain.ClockLive && r.Start < now {
		return domain.ErrInvalidStartTime
	}
	return nil
}

func (r AuctionRequest) auction(consignmentID uint64) domain.Auction {
	return domain.Auction{
		ConsignmentID: consignmentID,
		Start:         r.Start,
		Duration:      r.Duration,
		Reserve:       new(big.Int).Set(r.Reserve),
		Bid:           new(big.Int),
		Clock:         r.Clock,
		Audience:      r.Audience,
		State:         domain.StatePending,
		Outcome:       domain.OutcomePending,
	}
}

// AuctionEngine runs English auctions over consignments.
type AuctionEngine struct {
	registry   *ConsignmentRegistry
	auctions   domain.AuctionStore
	settlement *SettlementEngine
	gate       *AudienceGate
	config     *MarketConfig
	access     *AccessControl
	funds      domain.FundTransfer
	emitter    *Emitter
	clock      domain.Clock
	metrics    *metrics.Market
	logger     *slog.Logger
}

func (e *AuctionEngine) now() int64 {
	return e.clock.Now().Unix()
}

// load returns the consignment and its auction, reporting the first that is
// missing.
func (e *AuctionEngine) load(ctx context.Context, consignmentID uint64) (domain.Consignment, domain.Auction, error) {
	c, err := e.registry.load(ctx, consignmentID)
	if err != nil {
		return domain.Consignment{}, domain.Auction{}, err
	}
	a, err := e.auctions.GetByConsignment(ctx, consignmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return c, domain.Auction{}, domain.ErrAuctionNotFound
	}
	if err != nil {
		return c, domain.Auction{}, fmt.Errorf("auction: get %d: %w", consignmentID, err)
	}
	return c, a, nil
}

// GetAuction returns a snapshot of the auction for a consignment. A live
// auction reads as running from its start time even before the first bid.
func (e *AuctionEngine) GetAuction(ctx context.Context, consignmentID uint64) (domain.Auction, error) {
	_, a, err := e.load(ctx, consignmentID)
	if err != nil {
		return a, err
	}
	a.State = a.StateAt(e.now())
	return a, nil
}

// CreatePrimaryAuction opens an auction over an existing primary
// consignment. Only its consignor may do so.
func (e *AuctionEngine) CreatePrimaryAuction(ctx context.Context, caller domain.Caller, consignmentID uint64, req AuctionRequest) (domain.Auction, error) {
	now := e.now()
	if err := req.validate(); err != nil {
		return domain.Auction{}, err
	}

	unlock, err := e.registry.locks.acquire(ctx, consignmentID)
	if err != nil {
		return domain.Auction{}, err
	}
	defer unlock()

	c, err := e.registry.load(ctx, consignmentID)
	if err != nil {
		return domain.Auction{}, err
	}
	if c.Consignor != caller.Sender {
		return domain.Auction{}, domain.ErrNotConsignor
	}
	if err := req.checkStart(now); err != nil {
		return domain.Auction{}, err
	}
	if c.Market != domain.MarketPrimary {
		return domain.Auction{}, domain.WithReason(domain.ErrInvalidInput, "Consignment is not in the primary market")
	}
	after, err := planAssign(c, domain.HandlerAuction)
	if err != nil {
		return domain.Auction{}, err
	}

	a := req.auction(c.ID)
	tx := newTxn(e.logger, e.metrics)
	tx.updateConsignment(e.registry.store, c, after)
	tx.write(step{
		name:  "create auction",
		apply: func(ctx context.Context) error { return e.auctions.Create(ctx, a) },
	})
	if err := tx.commit(ctx); err != nil {
		return domain.Auction{}, err
	}

	e.emitter.Emit(ctx, marketedEvent(after), auctionCreatedEvent(a))
	e.logger.InfoContext(ctx, "auction: primary auction created",
		slog.Uint64("consignment_id", c.ID),
		slog.String("clock", string(a.Clock)),
		slog.String("reserve", dec(a.Reserve)),
	)
	return a, nil
}

// CreateSecondaryAuction escrows one unit of the caller's token, registers a
// secondary consignment for it and opens an auction.
func (e *AuctionEngine) CreateSecondaryAuction(ctx context.Context, caller domain.Caller, token common.Address, tokenID *big.Int, req AuctionRequest) (domain.Auction, error) {
	now := e.now()
	if err := req.validate(); err != nil {
		return domain.Auction{}, err
	}
	if err := req.checkStart(now); err != nil {
		return domain.Auction{}, err
	}
	seller := caller.Sender
	if err := e.registry.preflightSecondary(ctx, seller, token, tokenID, 1); err != nil {
		return domain.Auction{}, err
	}

	c, abort, err := e.registry.consignSecondary(ctx, seller, token, tokenID, 1, domain.HandlerAuction)
	if err != nil {
		return domain.Auction{}, err
	}

	unlock, err := e.registry.locks.acquire(ctx, c.ID)
	if err != nil {
		abort(ctx)
		return domain.Auction{}, err
	}
	defer unlock()

	a := req.auction(c.ID)
	if err := e.auctions.Create(ctx, a); err != nil {
		abort(ctx)
		return domain.Auction{}, fmt.Errorf("auction: create: %w", err)
	}

	e.emitter.Emit(ctx, registeredEvent(c), marketedEvent(c), auctionCreatedEvent(a))
	e.logger.InfoContext(ctx, "auction: secondary auction created",
		slog.Uint64("consignment_id", c.ID),
		slog.String("seller", seller.Hex()),
		slog.String("token", token.Hex()),
	)
	return a, nil
}

// ChangeAuctionAudience restricts or opens an unsettled auction. Admin only.
func (e *AuctionEngine) ChangeAuctionAudience(ctx context.Context, caller domain.Caller, consignmentID uint64, audience domain.Audience) error {
	if err := e.access.require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if !audience.Valid() {
		return domain.WithReason(domain.ErrInvalidInput, "Unknown audience")
	}

	unlock, err := e.registry.locks.acquire(ctx, consignmentID)
	if err != nil {
		return err
	}
	defer unlock()

	_, a, err := e.load(ctx, consignmentID)
	if err != nil {
		return err
	}
	if a.Outcome != domain.OutcomePending {
		return domain.ErrAlreadySettled
	}
	after := a.Clone()
	after.Audience = audience
	if err := e.auctions.Update(ctx, after); err != nil {
		return fmt.Errorf("auction: change audience: %w", err)
	}

	detail := map[string]any{"audience": string(audience), "by": addr(caller.Sender)}
	e.emitter.Audit(ctx, "auction_audience_changed", map[string]any{
		"consignment_id": consignmentID,
		"audience":       string(audience),
		"by":             addr(caller.Sender),
	})
	e.emitter.Emit(ctx, event(domain.EventAuctionAudience, consignmentID, detail))
	return nil
}

// Bid places value on the auction. A successful bid refunds the previous
// high bidder and may extend the auction so at least ExtensionWindow
// seconds remain.
func (e *AuctionEngine) Bid(ctx context.Context, caller domain.Caller, consignmentID uint64, value *big.Int) (domain.Auction, error) {
	a, err := e.bid(ctx, caller, consignmentID, value)
	e.metrics.ObserveBid(errorLabel(err))
	return a, err
}

func (e *AuctionEngine) bid(ctx context.Context, caller domain.Caller, consignmentID uint64, value *big.Int) (domain.Auction, error) {
	if value == nil || value.Sign() <= 0 {
		return domain.Auction{}, domain.WithReason(domain.ErrInvalidInput, "Bid must be positive")
	}

	unlock, err := e.registry.locks.acquire(ctx, consignmentID)
	if err != nil {
		return domain.Auction{}, err
	}
	defer unlock()

	c, a, err := e.load(ctx, consignmentID)
	if err != nil {
		return domain.Auction{}, err
	}
	if caller.IsContract() {
		return domain.Auction{}, domain.ErrContractsForbidden
	}
	if a.State == domain.StateEnded {
		return domain.Auction{}, domain.ErrAuctionEnded
	}
	if c.Released {
		return domain.Auction{}, domain.ErrReleased
	}

	now := e.now()
	switch a.Clock {
	case domain.ClockLive:
		if now < a.Start {
			return domain.Auction{}, domain.ErrNotStarted
		}
		if now >= a.End() {
			return domain.Auction{}, domain.ErrAuctionEnded
		}
	case domain.ClockTriggered:
		// The first bid is accepted at any time and starts the countdown.
		if a.HasBid() && now >= a.End() {
			return domain.Auction{}, domain.ErrAuctionEnded
		}
	}

	if err := e.gate.check(ctx, a.Audience, caller.Sender); err != nil {
		return domain.Auction{}, err
	}

	cfg := e.config.Snapshot()
	if !a.HasBid() {
		if value.Cmp(a.Reserve) < 0 {
			return domain.Auction{}, domain.ErrBelowReserve
		}
	} else if value.Cmp(cfg.MinimumOutbid(a.Bid)) < 0 {
		return domain.Auction{}, domain.ErrBidTooSmall
	}

	after := a.Clone()
	prevBuyer, prevBid := a.Buyer, a.Clone().Bid
	outbid := a.HasBid()

	after.Buyer = caller.Sender
	after.Bid = new(big.Int).Set(value)
	if after.State == domain.StatePending {
		after.State = domain.StateRunning
	}
	if !outbid && a.Clock == domain.ClockTriggered {
		after.Start = now
	}
	extended := false
	if now >= after.End()-domain.ExtensionWindow {
		if d := now + domain.ExtensionWindow - after.Start; d > after.Duration {
			after.Duration = d
			extended = true
		}
	}

	cAfter := c.Clone()
	cAfter.PendingPayout = new(big.Int).Set(value)

	tx := newTxn(e.logger, e.metrics)
	tx.updateConsignment(e.registry.store, c, cAfter)
	tx.updateAuction(e.auctions, a, after)
	tx.effect(collectStep(e.funds, caller.Sender, value))
	if outbid {
		tx.effect(payStep(e.funds, prevBuyer, prevBid, "bid refund"))
	}
	if err := tx.commit(ctx); err != nil {
		return domain.Auction{}, err
	}

	events := []domain.Event{event(domain.EventBidAccepted, consignmentID, map[string]any{
		"buyer": addr(after.Buyer),
		"bid":   dec(after.Bid),
		"start": after.Start,
		"end":   after.End(),
	})}
	if outbid {
		events = append(events, event(domain.EventBidReturned, consignmentID, map[string]any{
			"buyer": addr(prevBuyer),
			"bid":   dec(prevBid),
		}))
	}
	if extended {
		events = append(events, event(domain.EventAuctionExtended, consignmentID, map[string]any{
			"duration": after.Duration,
			"end":      after.End(),
		}))
	}
	e.emitter.Emit(ctx, events...)

	e.logger.InfoContext(ctx, "auction: bid accepted",
		slog.Uint64("consignment_id", consignmentID),
		slog.String("buyer", after.Buyer.Hex()),
		slog.String("bid", dec(after.Bid)),
		slog.Bool("extended", extended),
	)
	return after, nil
}

// CloseAuction ends an auction whose window has elapsed, settles the winning
// bid and releases the consigned supply to the winner. Anyone may close.
func (e *AuctionEngine) CloseAuction(ctx context.Context, consignmentID uint64) (domain.Auction, domain.Settlement, error) {
	unlock, err := e.registry.locks.acquire(ctx, consignmentID)
	if err != nil {
		return domain.Auction{}, domain.Settlement{}, err
	}
	defer unlock()

	c, a, err := e.load(ctx, consignmentID)
	if err != nil {
		return domain.Auction{}, domain.Settlement{}, err
	}
	if a.Outcome != domain.OutcomePending {
		return domain.Auction{}, domain.Settlement{}, domain.ErrAlreadySettled
	}
	if !a.HasBid() {
		return domain.Auction{}, domain.Settlement{}, domain.ErrNoBids
	}
	if e.now() < a.End() {
		return domain.Auction{}, domain.Settlement{}, domain.ErrTooEarly
	}

	s, settled, pays, err := e.settlement.plan(ctx, c, a.Bid)
	if err != nil {
		return domain.Auction{}, domain.Settlement{}, err
	}
	units := settled.UnreleasedSupply()
	cAfter, release, err := e.registry.planRelease(settled, units, a.Buyer, false)
	if err != nil {
		return domain.Auction{}, domain.Settlement{}, err
	}

	after := a.Clone()
	after.State = domain.StateEnded
	after.Outcome = domain.OutcomeClosed

	tx := newTxn(e.logger, e.metrics)
	tx.updateConsignment(e.registry.store, c, cAfter)
	tx.updateAuction(e.auctions, a, after)
	for _, p := range pays {
		tx.effect(p)
	}
	tx.effect(release)
	if err := tx.commit(ctx); err != nil {
		return domain.Auction{}, domain.Settlement{}, err
	}

	e.settlement.record(ctx, s)
	e.metrics.ObserveAuctionEnded(string(domain.OutcomeClosed))
	e.emitter.Emit(ctx,
		event(domain.EventAuctionClosed, consignmentID, map[string]any{
			"buyer": addr(after.Buyer),
			"bid":   dec(after.Bid),
		}),
		releasedEvent(cAfter, units, after.Buyer),
	)
	e.logger.InfoContext(ctx, "auction: closed",
		slog.Uint64("consignment_id", consignmentID),
		slog.String("buyer", after.Buyer.Hex()),
		slog.String("bid", dec(after.Bid)),
	)
	return after, s, nil
}

// CancelAuction ends an unsettled auction, refunding any bid and returning
// the supply to the seller. Admins and the consignor may cancel.
func (e *AuctionEngine) CancelAuction(ctx context.Context, caller domain.Caller, consignmentID uint64) (domain.Auction, error) {
	unlock, err := e.registry.locks.acquire(ctx, consignmentID)
	if err != nil {
		return domain.Auction{}, err
	}
	defer unlock()

	c, a, err := e.load(ctx, consignmentID)
	if err != nil {
		return domain.Auction{}, err
	}
	if caller.Sender != c.Consignor && !e.access.HasRole(caller.Sender, domain.RoleAdmin) {
		return domain.Auction{}, domain.ErrForbidden
	}
	if a.Outcome != domain.OutcomePending {
		return domain.Auction{}, domain.ErrAlreadySettled
	}

	cleared := c.Clone()
	cleared.PendingPayout = new(big.Int)
	units := cleared.UnreleasedSupply()
	cAfter, release, err := e.registry.planRelease(cleared, units, c.Seller, true)
	if err != nil {
		return domain.Auction{}, err
	}

	after := a.Clone()
	after.State = domain.StateEnded
	after.Outcome = domain.OutcomeCanceled

	tx := newTxn(e.logger, e.metrics)
	tx.updateConsignment(e.registry.store, c, cAfter)
	tx.updateAuction(e.auctions, a, after)
	if a.HasBid() {
		tx.effect(payStep(e.funds, a.Buyer, a.Bid, "bid refund"))
	}
	tx.effect(release)
	if err := tx.commit(ctx); err != nil {
		return domain.Auction{}, err
	}

	e.metrics.ObserveAuctionEnded(string(domain.OutcomeCanceled))
	events := []domain.Event{event(domain.EventAuctionCanceled, consignmentID, map[string]any{
		"by": addr(caller.Sender),
	})}
	if a.HasBid() {
		events = append(events, event(domain.EventBidReturned, consignmentID, map[string]any{
			"buyer": addr(a.Buyer),
			"bid":   dec(a.Bid),
		}))
	}
	events = append(events, releasedEvent(cAfter, units, c.Seller))
	e.emitter.Emit(ctx, events...)
	e.emitter.Audit(ctx, "auction_canceled", map[string]any{
		"consignment_id": consignmentID,
		"by":             addr(caller.Sender),
		"refunded":       dec(a.Bid),
	})
	e.logger.InfoContext(ctx, "auction: canceled",
		slog.Uint64("consignment_id", consignmentID),
		slog.String("by", caller.Sender.Hex()),
	)
	return after, nil
}

func auctionCreatedEvent(a domain.Auction) domain.Event {
	return event(domain.EventAuctionCreated, a.ConsignmentID, map[string]any{
		"start":    a.Start,
		"duration": a.Duration,
		"reserve":  dec(a.Reserve),
		"clock":    string(a.Clock),
		"audience": string(a.Audience),
		"state":    string(a.State),
		"outcome":  string(a.Outcome),
	})
}

// CloseExpired closes every auction with a bid whose window has elapsed and
// returns how many were closed. Failures on one auction do not stop the rest.
func (e *AuctionEngine) CloseExpired(ctx context.Context) (int, error) {
	open, err := e.auctions.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("auction: list open: %w", err)
	}
	now := e.now()
	closed := 0
	for _, a := range open {
		if !a.HasBid() || now < a.End() {
			continue
		}
		if _, _, err := e.CloseAuction(ctx, a.ConsignmentID); err != nil {
			if errors.Is(err, domain.ErrAlreadySettled) {
				continue
			}
			e.logger.WarnContext(ctx, "auction: auto close failed",
				slog.Uint64("consignment_id", a.ConsignmentID),
				slog.String("error", err.Error()),
			)
			continue
		}
		closed++
	}
	return closed, nil
}
