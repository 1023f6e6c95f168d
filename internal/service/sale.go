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

// SaleRequest holds the terms of a fixed-price sale.
type SaleRequest struct {
	Start    int64           `json:"start"`
	Price    *big.Int        `json:"price"`
	PerTxCap uint64          `json:"per_tx_cap"`
	Audience domain.Audience `json:"audience"`
}

func (r SaleRequest) validate(now int64) error {
	if r.Price == nil || r.Price.Sign() <= 0 {
		return domain.WithReason(domain.ErrInvalidInput, "Price must be positive")
	}
	if r.PerTxCap == 0 {
		return domain.WithReason(domain.ErrInvalidInput, "Per transaction cap must be positive")
	}
	if !r.Audience.Valid() {
		return domain.WithReason(domain.ErrInvalidInput, "Unknown audience")
	}
	if r.Start < now {
		return domain.ErrInvalidStartTime
	}
	return nil
}

func (r SaleRequest) sale(consignmentID uint64) domain.Sale {
	return domain.Sale{
		ConsignmentID: consignmentID,
		Start:         r.Start,
		Price:         new(big.Int).Set(r.Price),
		PerTxCap:      r.PerTxCap,
		Audience:      r.Audience,
		State:         domain.StatePending,
		Outcome:       domain.OutcomePending,
	}
}

// SaleEngine runs fixed-price sales over consignments.
type SaleEngine struct {
	registry   *ConsignmentRegistry
	sales      domain.SaleStore
	settlement *SettlementEngine
	gate       *AudienceGate
	access     *AccessControl
	funds      domain.FundTransfer
	emitter    *Emitter
	clock      domain.Clock
	metrics    *metrics.Market
	logger     *slog.Logger
}

func (e *SaleEngine) load(ctx context.Context, consignmentID uint64) (domain.Consignment, domain.Sale, error) {
	c, err := e.registry.load(ctx, consignmentID)
	if err != nil {
		return domain.Consignment{}, domain.Sale{}, err
	}
	s, err := e.sales.GetByConsignment(ctx, consignmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return c, domain.Sale{}, domain.ErrSaleNotFound
	}
	if err != nil {
		return c, domain.Sale{}, fmt.Errorf("sale: get %d: %w", consignmentID, err)
	}
	return c, s, nil
}

// GetSale returns a snapshot of the sale for a consignment.
func (e *SaleEngine) GetSale(ctx context.Context, consignmentID uint64) (domain.Sale, error) {
	_, s, err := e.load(ctx, consignmentID)
	return s, err
}

// CreatePrimarySale lists an existing primary consignment at a fixed price.
// Only its consignor may do so.
func (e *SaleEngine) CreatePrimarySale(ctx context.Context, caller domain.Caller, consignmentID uint64, req SaleRequest) (domain.Sale, error) {
	unlock, err := e.registry.locks.acquire(ctx, consignmentID)
	if err != nil {
		return domain.Sale{}, err
	}
	defer unlock()

	c, err := e.registry.load(ctx, consignmentID)
	if err != nil {
		return domain.Sale{}, err
	}
	if c.Consignor != caller.Sender {
		return domain.Sale{}, domain.ErrNotConsignor
	}
	if err := req.validate(e.clock.Now().Unix()); err != nil {
		return domain.Sale{}, err
	}
	if c.Market != domain.MarketPrimary {
		return domain.Sale{}, domain.WithReason(domain.ErrInvalidInput, "Consignment is not in the primary market")
	}
	after, err := planAssign(c, domain.HandlerSale)
	if err != nil {
		return domain.Sale{}, err
	}

	s := req.sale(c.ID)
	tx := newTxn(e.logger, e.metrics)
	tx.updateConsignment(e.registry.store, c, after)
	tx.write(step{
		name:  "create sale",
		apply: func(ctx context.Context) error { return e.sales.Create(ctx, s) },
	})
	if err := tx.commit(ctx); err != nil {
		return domain.Sale{}, err
	}

	e.emitter.Emit(ctx, marketedEvent(after), saleCreatedEvent(s, after.Supply))
	e.logger.InfoContext(ctx, "sale: primary sale created",
		slog.Uint64("consignment_id", c.ID),
		slog.String("price", dec(s.Price)),
	)
	return s, nil
}

// CreateSecondarySale escrows supply units of the caller's token, registers
// a secondary consignment and lists it at a fixed price.
func (e *SaleEngine) CreateSecondarySale(ctx context.Context, caller domain.Caller, token common.Address, tokenID *big.Int, supply uint64, req SaleRequest) (domain.Sale, error) {
	if err := req.validate(e.clock.Now().Unix()); err != nil {
		return domain.Sale{}, err
	}
	seller := caller.Sender
	if err := e.registry.preflightSecondary(ctx, seller, token, tokenID, supply); err != nil {
		return domain.Sale{}, err
	}

	c, abort, err := e.registry.consignSecondary(ctx, seller, token, tokenID, supply, domain.HandlerSale)
	if err != nil {
		return domain.Sale{}, err
	}

	unlock, err := e.registry.locks.acquire(ctx, c.ID)
	if err != nil {
		abort(ctx)
		return domain.Sale{}, err
	}
	defer unlock()

	s := req.sale(c.ID)
	if err := e.sales.Create(ctx, s); err != nil {
		abort(ctx)
		return domain.Sale{}, fmt.Errorf("sale: create: %w", err)
	}

	e.emitter.Emit(ctx, registeredEvent(c), marketedEvent(c), saleCreatedEvent(s, c.Supply))
	e.logger.InfoContext(ctx, "sale: secondary sale created",
		slog.Uint64("consignment_id", c.ID),
		slog.String("seller", seller.Hex()),
		slog.Uint64("supply", supply),
	)
	return s, nil
}

// ChangeSaleAudience restricts or opens an unsettled sale. Admin only.
func (e *SaleEngine) ChangeSaleAudience(ctx context.Context, caller domain.Caller, consignmentID uint64, audience domain.Audience) error {
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

	_, s, err := e.load(ctx, consignmentID)
	if err != nil {
		return err
	}
	if s.Outcome != domain.OutcomePending {
		return domain.ErrAlreadySettled
	}
	after := s.Clone()
	after.Audience = audience
	if err := e.sales.Update(ctx, after); err != nil {
		return fmt.Errorf("sale: change audience: %w", err)
	}

	detail := map[string]any{"audience": string(audience), "by": addr(caller.Sender)}
	e.emitter.Audit(ctx, "sale_audience_changed", map[string]any{
		"consignment_id": consignmentID,
		"audience":       string(audience),
		"by":             addr(caller.Sender),
	})
	e.emitter.Emit(ctx, event(domain.EventSaleAudience, consignmentID, detail))
	return nil
}

// Buy purchases amount units for value, which must equal price*amount. The
// units are released to the buyer immediately and value is held as pending
// payout until the sale ends.
func (e *SaleEngine) Buy(ctx context.Context, caller domain.Caller, consignmentID uint64, amount uint64, value *big.Int) (domain.Sale, error) {
	unlock, err := e.registry.locks.acquire(ctx, consignmentID)
	if err != nil {
		return domain.Sale{}, err
	}
	defer unlock()

	c, s, err := e.load(ctx, consignmentID)
	if err != nil {
		return domain.Sale{}, err
	}
	if caller.IsContract() {
		return domain.Sale{}, domain.ErrContractsForbidden
	}
	if s.Outcome != domain.OutcomePending {
		return domain.Sale{}, domain.ErrAlreadySettled
	}
	if e.clock.Now().Unix() < s.Start {
		return domain.Sale{}, domain.ErrSaleNotStarted
	}
	if amount == 0 || amount > s.PerTxCap {
		return domain.Sale{}, domain.ErrInvalidAmount
	}
	if amount > c.UnreleasedSupply() {
		return domain.Sale{}, domain.WithReason(domain.ErrOverRelease, "Not enough supply remaining")
	}
	if err := e.gate.check(ctx, s.Audience, caller.Sender); err != nil {
		return domain.Sale{}, err
	}
	cost := new(big.Int).Mul(s.Price, new(big.Int).SetUint64(amount))
	if value == nil || value.Cmp(cost) != 0 {
		return domain.Sale{}, domain.ErrWrongPayment
	}

	paid := c.Clone()
	paid.PendingPayout = new(big.Int).Add(paid.PendingPayout, value)
	cAfter, release, err := e.registry.planRelease(paid, amount, caller.Sender, false)
	if err != nil {
		return domain.Sale{}, err
	}

	after := s.Clone()
	after.State = domain.StateRunning
	after.Buyers++

	tx := newTxn(e.logger, e.metrics)
	tx.updateConsignment(e.registry.store, c, cAfter)
	tx.updateSale(e.sales, s, after)
	tx.effect(collectStep(e.funds, caller.Sender, value))
	tx.effect(release)
	if err := tx.commit(ctx); err != nil {
		return domain.Sale{}, err
	}

	e.metrics.ObservePurchase()
	e.emitter.Emit(ctx,
		event(domain.EventPurchase, consignmentID, map[string]any{
			"buyer":     addr(caller.Sender),
			"amount":    amount,
			"value":     dec(value),
			"remaining": cAfter.UnreleasedSupply(),
		}),
		releasedEvent(cAfter, amount, caller.Sender),
	)
	e.logger.InfoContext(ctx, "sale: purchase",
		slog.Uint64("consignment_id", consignmentID),
		slog.String("buyer", caller.Sender.Hex()),
		slog.Uint64("amount", amount),
	)
	return after, nil
}

// CloseSale settles a sold out sale. Admins and the consignor may close.
func (e *SaleEngine) CloseSale(ctx context.Context, caller domain.Caller, consignmentID uint64) (domain.Sale, domain.Settlement, error) {
	unlock, err := e.registry.locks.acquire(ctx, consignmentID)
	if err != nil {
		return domain.Sale{}, domain.Settlement{}, err
	}
	defer unlock()

	c, s, err := e.load(ctx, consignmentID)
	if err != nil {
		return domain.Sale{}, domain.Settlement{}, err
	}
	if caller.Sender != c.Consignor && !e.access.HasRole(caller.Sender, domain.RoleAdmin) {
		return domain.Sale{}, domain.Settlement{}, domain.ErrForbidden
	}
	if s.Outcome != domain.OutcomePending {
		return domain.Sale{}, domain.Settlement{}, domain.ErrAlreadySettled
	}
	if s.State != domain.StateRunning {
		return domain.Sale{}, domain.Settlement{}, domain.ErrNotRunning
	}
	if c.UnreleasedSupply() > 0 {
		return domain.Sale{}, domain.Settlement{}, domain.ErrNotSoldOut
	}

	st, cAfter, pays, err := e.settlement.plan(ctx, c, c.PendingPayout)
	if err != nil {
		return domain.Sale{}, domain.Settlement{}, err
	}
	after := s.Clone()
	after.State = domain.StateEnded
	after.Outcome = domain.OutcomeClosed

	tx := newTxn(e.logger, e.metrics)
	tx.updateConsignment(e.registry.store, c, cAfter)
	tx.updateSale(e.sales, s, after)
	for _, p := range pays {
		tx.effect(p)
	}
	if err := tx.commit(ctx); err != nil {
		return domain.Sale{}, domain.Settlement{}, err
	}

	e.settlement.record(ctx, st)
	e.metrics.ObserveSaleEnded(string(domain.OutcomeClosed))
	e.emitter.Emit(ctx, event(domain.EventSaleClosed, consignmentID, map[string]any{
		"buyers": after.Buyers,
		"gross":  dec(st.Gross),
	}))
	return after, st, nil
}

// CancelSale ends a sale early. Proceeds already collected are settled and
// unsold supply goes back to the seller. Admins and the consignor may cancel.
func (e *SaleEngine) CancelSale(ctx context.Context, caller domain.Caller, consignmentID uint64) (domain.Sale, error) {
	unlock, err := e.registry.locks.acquire(ctx, consignmentID)
	if err != nil {
		return domain.Sale{}, err
	}
	defer unlock()

	c, s, err := e.load(ctx, consignmentID)
	if err != nil {
		return domain.Sale{}, err
	}
	if caller.Sender != c.Consignor && !e.access.HasRole(caller.Sender, domain.RoleAdmin) {
		return domain.Sale{}, domain.ErrForbidden
	}
	if s.Outcome != domain.OutcomePending {
		return domain.Sale{}, domain.ErrAlreadySettled
	}

	tx := newTxn(e.logger, e.metrics)
	cAfter := c.Clone()

	var (
		st      domain.Settlement
		settled bool
	)
	if c.PendingPayout != nil && c.PendingPayout.Sign() > 0 {
		var pays []step
		st, cAfter, pays, err = e.settlement.plan(ctx, c, c.PendingPayout)
		if err != nil {
			return domain.Sale{}, err
		}
		for _, p := range pays {
			tx.effect(p)
		}
		settled = true
	}

	unsold := cAfter.UnreleasedSupply()
	if unsold > 0 {
		var release step
		cAfter, release, err = e.registry.planRelease(cAfter, unsold, c.Seller, true)
		if err != nil {
			return domain.Sale{}, err
		}
		tx.effect(release)
	}

	after := s.Clone()
	after.State = domain.StateEnded
	after.Outcome = domain.OutcomeCanceled

	tx.updateConsignment(e.registry.store, c, cAfter)
	tx.updateSale(e.sales, s, after)
	if err := tx.commit(ctx); err != nil {
		return domain.Sale{}, err
	}

	if settled {
		e.settlement.record(ctx, st)
	}
	e.metrics.ObserveSaleEnded(string(domain.OutcomeCanceled))
	events := []domain.Event{event(domain.EventSaleCanceled, consignmentID, map[string]any{
		"by":     addr(caller.Sender),
		"unsold": unsold,
	})}
	if unsold > 0 {
		events = append(events, releasedEvent(cAfter, unsold, c.Seller))
	}
	e.emitter.Emit(ctx, events...)
	e.emitter.Audit(ctx, "sale_canceled", map[string]any{
		"consignment_id": consignmentID,
		"by":             addr(caller.Sender),
		"unsold":         unsold,
	})
	return after, nil
}

func saleCreatedEvent(s domain.Sale, supply uint64) domain.Event {
	return event(domain.EventSaleCreated, s.ConsignmentID, map[string]any{
		"start":      s.Start,
		"price":      dec(s.Price),
		"per_tx_cap": s.PerTxCap,
		"supply":     supply,
		"audience":   string(s.Audience),
	})
}
