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

// RegisterRequest describes a new consignment.
type RegisterRequest struct {
	Market    domain.Market  `json:"market"`
	Consignor common.Address `json:"consignor"`
	Seller    common.Address `json:"seller"`
	Token     common.Address `json:"token_address"`
	TokenID   *big.Int       `json:"token_id"`
	Supply    uint64         `json:"supply"`
}

func (req RegisterRequest) validate() error {
	if !req.Market.Valid() {
		return domain.WithReason(domain.ErrInvalidInput, "Unknown market")
	}
	if req.Supply == 0 {
		return domain.ErrZeroSupply
	}
	if req.TokenID == nil || req.TokenID.Sign() < 0 {
		return domain.WithReason(domain.ErrInvalidInput, "Token id must be set")
	}
	if req.Seller == (common.Address{}) {
		return domain.WithReason(domain.ErrInvalidInput, "Seller must be a non-zero address")
	}
	return nil
}

// ConsignmentRegistry owns the consignment records and their escrowed supply.
type ConsignmentRegistry struct {
	store     domain.ConsignmentStore
	custody   domain.TokenCustody
	physical  domain.PhysicalRegistry
	ticketers map[domain.TicketerType]domain.EscrowTicketer
	config    *MarketConfig
	access    *AccessControl
	locks     consignmentLocks
	emitter   *Emitter
	clock     domain.Clock
	metrics   *metrics.Market
	logger    *slog.Logger
}

// load fetches a consignment snapshot, mapping a missing row to
// ErrConsignmentNotFound.
func (r *ConsignmentRegistry) load(ctx context.Context, id uint64) (domain.Consignment, error) {
	c, err := r.store.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Consignment{}, domain.ErrConsignmentNotFound
	}
	if err != nil {
		return domain.Consignment{}, fmt.Errorf("registry: get consignment %d: %w", id, err)
	}
	return c, nil
}

// RegisterConsignment records supply units of the token as held in escrow
// and returns the new consignment. Custodies that can take deposits are
// credited here; the deposit is withdrawn again if the record cannot be
// written. Callers need the admin, minter or market handler role.
func (r *ConsignmentRegistry) RegisterConsignment(ctx context.Context, caller domain.Caller, req RegisterRequest) (domain.Consignment, error) {
	if err := r.access.require(caller, domain.RoleAdmin, domain.RoleMinter, domain.RoleMarketHandler); err != nil {
		return domain.Consignment{}, err
	}
	if err := req.validate(); err != nil {
		return domain.Consignment{}, err
	}

	deposit := depositStep(r.custody, req.Token, req.TokenID, req.Supply)
	if deposit.apply != nil {
		if err := deposit.apply(ctx); err != nil {
			return domain.Consignment{}, fmt.Errorf("registry: escrow supply: %w", err)
		}
	}
	c, err := r.register(ctx, req, domain.HandlerUnhandled)
	if err != nil {
		if deposit.undo != nil {
			if uerr := deposit.undo(context.WithoutCancel(ctx)); uerr != nil {
				r.logger.ErrorContext(ctx, "registry: withdraw deposit failed",
					slog.String("token", req.Token.Hex()),
					slog.String("error", uerr.Error()),
				)
			}
		}
		return domain.Consignment{}, err
	}
	r.emitter.Emit(ctx, registeredEvent(c))
	r.logger.InfoContext(ctx, "registry: consignment registered",
		slog.Uint64("consignment_id", c.ID),
		slog.String("market", string(c.Market)),
		slog.Uint64("supply", c.Supply),
	)
	return c, nil
}

func (r *ConsignmentRegistry) register(ctx context.Context, req RegisterRequest, handler domain.MarketHandler) (domain.Consignment, error) {
	if err := req.validate(); err != nil {
		return domain.Consignment{}, err
	}
	consignor := req.Consignor
	if consignor == (common.Address{}) {
		consignor = req.Seller
	}

	multi, err := r.custody.IsMultiToken(ctx, req.Token)
	if err != nil {
		return domain.Consignment{}, fmt.Errorf("registry: token standard: %w", err)
	}
	physical, err := r.isPhysical(ctx, req.Token, req.TokenID)
	if err != nil {
		return domain.Consignment{}, err
	}

	c, err := r.store.Create(ctx, domain.Consignment{
		Market:        req.Market,
		MarketHandler: handler,
		Consignor:     consignor,
		Seller:        req.Seller,
		TokenAddress:  req.Token,
		TokenID:       new(big.Int).Set(req.TokenID),
		Supply:        req.Supply,
		MultiToken:    multi,
		Physical:      physical,
		PendingPayout: new(big.Int),
		Ticketer:      domain.TicketerDefault,
		CreatedAt:     r.clock.Now().UTC(),
	})
	if err != nil {
		return domain.Consignment{}, fmt.Errorf("registry: create consignment: %w", err)
	}
	return c, nil
}

// isPhysical reports whether a token is a physical-backed native token.
func (r *ConsignmentRegistry) isPhysical(ctx context.Context, token common.Address, tokenID *big.Int) (bool, error) {
	if r.physical == nil || token != r.config.Snapshot().NativeTokenAddress {
		return false, nil
	}
	ok, err := r.physical.IsPhysical(ctx, tokenID)
	if err != nil {
		return false, fmt.Errorf("registry: physical lookup: %w", err)
	}
	return ok, nil
}

// AssignHandler records which engine has claimed a consignment.
func (r *ConsignmentRegistry) AssignHandler(ctx context.Context, caller domain.Caller, id uint64, handler domain.MarketHandler) error {
	if err := r.access.require(caller, domain.RoleAdmin, domain.RoleMarketHandler); err != nil {
		return err
	}
	unlock, err := r.locks.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	after, err := planAssign(c, handler)
	if err != nil {
		return err
	}
	if err := r.store.Update(ctx, after); err != nil {
		return fmt.Errorf("registry: assign handler: %w", err)
	}
	r.emitter.Emit(ctx, marketedEvent(after))
	return nil
}

func planAssign(c domain.Consignment, handler domain.MarketHandler) (domain.Consignment, error) {
	if handler != domain.HandlerAuction && handler != domain.HandlerSale {
		return c, domain.WithReason(domain.ErrInvalidInput, "Unknown market handler")
	}
	if c.Released {
		return c, domain.ErrReleased
	}
	if c.MarketHandler != domain.HandlerUnhandled {
		return c, domain.ErrAlreadyHandled
	}
	after := c.Clone()
	after.MarketHandler = handler
	return after, nil
}

// SetPendingPayout records the proceeds awaiting settlement.
func (r *ConsignmentRegistry) SetPendingPayout(ctx context.Context, caller domain.Caller, id uint64, amount *big.Int) error {
	if err := r.access.require(caller, domain.RoleAdmin, domain.RoleMarketHandler); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return domain.WithReason(domain.ErrInvalidInput, "Pending payout must be non-negative")
	}
	unlock, err := r.locks.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	c.PendingPayout = new(big.Int).Set(amount)
	if err := r.store.Update(ctx, c); err != nil {
		return fmt.Errorf("registry: set pending payout: %w", err)
	}
	return nil
}

// ReleaseConsignment moves amount escrowed units to recipient. Physical
// items are released by issuing an escrow ticket instead.
func (r *ConsignmentRegistry) ReleaseConsignment(ctx context.Context, caller domain.Caller, id uint64, amount uint64, recipient common.Address) error {
	if err := r.access.require(caller, domain.RoleAdmin, domain.RoleMarketHandler); err != nil {
		return err
	}
	unlock, err := r.locks.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	after, release, err := r.planRelease(c, amount, recipient, false)
	if err != nil {
		return err
	}
	tx := newTxn(r.logger, r.metrics)
	tx.updateConsignment(r.store, c, after)
	tx.effect(release)
	if err := tx.commit(ctx); err != nil {
		return err
	}
	r.emitter.Emit(ctx, releasedEvent(after, amount, recipient))
	return nil
}

// planRelease computes the consignment after releasing amount units and the
// step delivering them. direct forces a token transfer even for physical
// items, used when returning supply to the seller.
func (r *ConsignmentRegistry) planRelease(c domain.Consignment, amount uint64, recipient common.Address, direct bool) (domain.Consignment, step, error) {
	if c.Released {
		return c, step{}, domain.ErrReleased
	}
	if amount == 0 {
		return c, step{}, domain.ErrInvalidAmount
	}
	if amount > c.UnreleasedSupply() {
		return c, step{}, domain.ErrOverRelease
	}
	if recipient == (common.Address{}) {
		return c, step{}, domain.WithReason(domain.ErrInvalidInput, "Recipient must be a non-zero address")
	}

	after := c.Clone()
	after.ReleasedSupply += amount
	after.Released = after.ReleasedSupply == after.Supply

	if c.Physical && !direct {
		ticketer, err := r.ticketerFor(c)
		if err != nil {
			return c, step{}, err
		}
		return after, ticketStep(ticketer, c.ID, amount, recipient), nil
	}
	return after, tokenOutStep(r.custody, c, recipient, amount), nil
}

// ticketerFor resolves the consignment's ticketer, falling back to the
// market default.
func (r *ConsignmentRegistry) ticketerFor(c domain.Consignment) (domain.EscrowTicketer, error) {
	kind := c.Ticketer
	if kind == domain.TicketerDefault || kind == "" {
		kind = r.config.Snapshot().DefaultTicketer
	}
	t, ok := r.ticketers[kind]
	if !ok || t == nil {
		return nil, fmt.Errorf("registry: no %s ticketer configured", kind)
	}
	return t, nil
}

// GetUnreleasedSupply returns the units still in escrow.
func (r *ConsignmentRegistry) GetUnreleasedSupply(ctx context.Context, id uint64) (uint64, error) {
	c, err := r.load(ctx, id)
	if err != nil {
		return 0, err
	}
	return c.UnreleasedSupply(), nil
}

// GetConsignment returns a snapshot of the consignment.
func (r *ConsignmentRegistry) GetConsignment(ctx context.Context, id uint64) (domain.Consignment, error) {
	return r.load(ctx, id)
}

// GetConsignor returns the account that created the consignment.
func (r *ConsignmentRegistry) GetConsignor(ctx context.Context, id uint64) (common.Address, error) {
	c, err := r.load(ctx, id)
	if err != nil {
		return common.Address{}, err
	}
	return c.Consignor, nil
}

// GetNextConsignment returns the id the next registration will receive.
func (r *ConsignmentRegistry) GetNextConsignment(ctx context.Context) (uint64, error) {
	id, err := r.store.NextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("registry: next id: %w", err)
	}
	return id, nil
}

// SetCustomFee overrides the market fee for one consignment. Zero restores
// the market default.
func (r *ConsignmentRegistry) SetCustomFee(ctx context.Context, caller domain.Caller, id uint64, bps uint64) error {
	if err := r.access.require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if !domain.ValidBps(bps) {
		return domain.ErrInvalidPercent
	}
	return r.updateLocked(ctx, caller, id, "custom_fee_set", func(c *domain.Consignment) {
		c.CustomFeeBps = uint16(bps)
	}, map[string]any{"custom_fee_bps": bps})
}

// SetConsignmentTicketer overrides the escrow ticketer for one consignment.
func (r *ConsignmentRegistry) SetConsignmentTicketer(ctx context.Context, caller domain.Caller, id uint64, t domain.TicketerType) error {
	if err := r.access.require(caller, domain.RoleAdmin, domain.RoleEscrowAgent); err != nil {
		return err
	}
	if !t.Valid() {
		return domain.WithReason(domain.ErrInvalidInput, "Unknown ticketer type")
	}
	return r.updateLocked(ctx, caller, id, "consignment_ticketer_set", func(c *domain.Consignment) {
		c.Ticketer = t
	}, map[string]any{"ticketer": string(t)})
}

func (r *ConsignmentRegistry) updateLocked(ctx context.Context, caller domain.Caller, id uint64, action string, mutate func(*domain.Consignment), detail map[string]any) error {
	unlock, err := r.locks.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	after := c.Clone()
	mutate(&after)
	if err := r.store.Update(ctx, after); err != nil {
		return fmt.Errorf("registry: %s: %w", action, err)
	}

	detail["consignment_id"] = id
	detail["by"] = addr(caller.Sender)
	r.emitter.Audit(ctx, action, detail)
	r.emitter.Emit(ctx, event(domain.EventConsignmentUpdated, id, detail))
	return nil
}

// preflightSecondary runs the listing checks for a seller's own token, in
// the order their failures are reported.
func (r *ConsignmentRegistry) preflightSecondary(ctx context.Context, seller common.Address, token common.Address, tokenID *big.Int, supply uint64) error {
	if tokenID == nil || tokenID.Sign() < 0 {
		return domain.WithReason(domain.ErrInvalidInput, "Token id must be set")
	}
	if supply == 0 {
		return domain.ErrZeroSupply
	}

	approved, err := r.custody.IsApprovedForAll(ctx, token, seller, r.custody.Operator())
	if err != nil {
		return fmt.Errorf("registry: approval lookup: %w", err)
	}
	if !approved {
		return domain.ErrNotApproved
	}

	balance, err := r.custody.BalanceOf(ctx, token, tokenID, seller)
	if err != nil {
		return fmt.Errorf("registry: balance lookup: %w", err)
	}
	if balance < supply {
		return domain.ErrInsufficientBalance
	}

	cfg := r.config.Snapshot()
	if token == cfg.NativeTokenAddress {
		physical, err := r.isPhysical(ctx, token, tokenID)
		if err != nil {
			return err
		}
		if physical && !r.access.HasRole(seller, domain.RoleEscrowAgent) {
			return domain.WithReason(domain.ErrForbidden, "Physical items can only be listed by an escrow agent")
		}
		return nil
	}
	if !cfg.AllowExternalTokensOnSecondary {
		return domain.ErrExternalTokensDisabled
	}
	return nil
}

// consignSecondary pulls supply units from seller into escrow and registers
// a secondary consignment already claimed by handler. The returned abort
// func hands the units back and marks the consignment released; callers run
// it when a later step fails.
func (r *ConsignmentRegistry) consignSecondary(
	ctx context.Context,
	seller common.Address,
	token common.Address,
	tokenID *big.Int,
	supply uint64,
	handler domain.MarketHandler,
) (domain.Consignment, func(context.Context), error) {
	pull := tokenInStep(r.custody, token, tokenID, seller, supply)
	if err := pull.apply(ctx); err != nil {
		return domain.Consignment{}, nil, fmt.Errorf("registry: escrow tokens: %w", err)
	}

	c, err := r.register(ctx, RegisterRequest{
		Market:    domain.MarketSecondary,
		Consignor: seller,
		Seller:    seller,
		Token:     token,
		TokenID:   tokenID,
		Supply:    supply,
	}, handler)
	if err != nil {
		r.undo(ctx, pull)
		return domain.Consignment{}, nil, err
	}

	abort := func(ctx context.Context) {
		ctx = context.WithoutCancel(ctx)
		r.undo(ctx, pull)
		returned := c.Clone()
		returned.ReleasedSupply = returned.Supply
		returned.Released = true
		if err := r.store.Update(ctx, returned); err != nil {
			r.logger.ErrorContext(ctx, "registry: mark aborted consignment released",
				slog.Uint64("consignment_id", c.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return c, abort, nil
}

func (r *ConsignmentRegistry) undo(ctx context.Context, s step) {
	if err := s.undo(context.WithoutCancel(ctx)); err != nil {
		r.logger.ErrorContext(ctx, "registry: undo failed",
			slog.String("step", s.name),
			slog.String("error", err.Error()),
		)
	}
}

func registeredEvent(c domain.Consignment) domain.Event {
	return event(domain.EventConsignmentRegistered, c.ID, map[string]any{
		"market":        string(c.Market),
		"consignor":     addr(c.Consignor),
		"seller":        addr(c.Seller),
		"token_address": addr(c.TokenAddress),
		"token_id":      dec(c.TokenID),
		"supply":        c.Supply,
		"multi_token":   c.MultiToken,
		"physical":      c.Physical,
	})
}

func marketedEvent(c domain.Consignment) domain.Event {
	return event(domain.EventConsignmentMarketed, c.ID, map[string]any{
		"market_handler": string(c.MarketHandler),
	})
}

func releasedEvent(c domain.Consignment, amount uint64, recipient common.Address) domain.Event {
	return event(domain.EventConsignmentReleased, c.ID, map[string]any{
		"amount":          amount,
		"recipient":       addr(recipient),
		"released_supply": c.ReleasedSupply,
		"released":        c.Released,
	})
}
