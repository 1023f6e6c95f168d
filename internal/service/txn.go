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

// step is a reversible unit of work. undo may be nil when the step cannot be
// reverted; the failure is then logged and the remaining steps still unwind.
type step struct {
	name  string
	apply func(ctx context.Context) error
	undo  func(ctx context.Context) error
}

// txn stages the state writes and external effects of one operation. Writes
// are applied first, then effects; the first failure unwinds everything
// already applied in reverse order.
type txn struct {
	writes  []step
	effects []step
	logger  *slog.Logger
	metrics *metrics.Market
}

func newTxn(logger *slog.Logger, m *metrics.Market) *txn {
	return &txn{logger: logger, metrics: m}
}

func (t *txn) write(s step) {
	t.writes = append(t.writes, s)
}

func (t *txn) effect(s step) {
	if s.apply == nil {
		return
	}
	t.effects = append(t.effects, s)
}

// updateConsignment writes after and restores before on rollback.
func (t *txn) updateConsignment(store domain.ConsignmentStore, before, after domain.Consignment) {
	t.write(step{
		name:  "update consignment",
		apply: func(ctx context.Context) error { return store.Update(ctx, after) },
		undo:  func(ctx context.Context) error { return store.Update(ctx, before) },
	})
}

func (t *txn) updateAuction(store domain.AuctionStore, before, after domain.Auction) {
	t.write(step{
		name:  "update auction",
		apply: func(ctx context.Context) error { return store.Update(ctx, after) },
		undo:  func(ctx context.Context) error { return store.Update(ctx, before) },
	})
}

func (t *txn) updateSale(store domain.SaleStore, before, after domain.Sale) {
	t.write(step{
		name:  "update sale",
		apply: func(ctx context.Context) error { return store.Update(ctx, after) },
		undo:  func(ctx context.Context) error { return store.Update(ctx, before) },
	})
}

// commit runs the staged steps. On failure the returned error is the one
// from the failing step; rollback failures are only logged.
func (t *txn) commit(ctx context.Context) error {
	steps := append(append([]step(nil), t.writes...), t.effects...)
	for i, s := range steps {
		if err := s.apply(ctx); err != nil {
			t.metrics.ObserveRollback(s.name)
			t.rollback(ctx, steps[:i], s.name, err)
			if domain.KindOf(err) != domain.KindInternal {
				return err
			}
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (t *txn) rollback(ctx context.Context, applied []step, failed string, cause error) {
	// Rollback must run even when the caller's context is already done.
	ctx = context.WithoutCancel(ctx)
	for i := len(applied) - 1; i >= 0; i-- {
		s := applied[i]
		if s.undo == nil {
			t.logger.ErrorContext(ctx, "txn: step cannot be undone",
				slog.String("step", s.name),
				slog.String("failed_step", failed),
				slog.String("error", cause.Error()),
			)
			continue
		}
		if err := s.undo(ctx); err != nil {
			t.logger.ErrorContext(ctx, "txn: undo failed",
				slog.String("step", s.name),
				slog.String("failed_step", failed),
				slog.String("error", err.Error()),
			)
		}
	}
}

// payStep pays amount to recipient. A zero amount produces no step.
func payStep(funds domain.FundTransfer, to common.Address, amount *big.Int, purpose string) step {
	if amount == nil || amount.Sign() <= 0 {
		return step{}
	}
	amt := new(big.Int).Set(amount)
	s := step{
		name: "pay " + purpose,
		apply: func(ctx context.Context) error {
			if err := funds.Pay(ctx, to, amt); err != nil {
				return fmt.Errorf("%w: %s to %s: %w", domain.ErrPaymentFailed, purpose, to.Hex(), err)
			}
			return nil
		},
	}
	if r, ok := funds.(domain.FundReverser); ok {
		s.undo = func(ctx context.Context) error { return r.Reverse(ctx, to, amt) }
	}
	return s
}

// tokenOutStep transfers escrowed units to recipient.
func tokenOutStep(custody domain.TokenCustody, c domain.Consignment, to common.Address, amount uint64) step {
	s := step{
		name: "transfer token out",
		apply: func(ctx context.Context) error {
			return custody.TransferOut(ctx, c.TokenAddress, c.TokenID, to, amount)
		},
	}
	if r, ok := custody.(domain.TokenReclaimer); ok {
		s.undo = func(ctx context.Context) error {
			return r.Reclaim(ctx, c.TokenAddress, c.TokenID, to, amount)
		}
	}
	return s
}

// tokenInStep pulls units from owner into escrow. Undo hands them back.
func tokenInStep(custody domain.TokenCustody, token common.Address, tokenID *big.Int, from common.Address, amount uint64) step {
	id := new(big.Int).Set(tokenID)
	return step{
		name: "transfer token in",
		apply: func(ctx context.Context) error {
			return custody.TransferIn(ctx, token, id, from, amount)
		},
		undo: func(ctx context.Context) error {
			return custody.TransferOut(ctx, token, id, from, amount)
		},
	}
}

// depositStep credits supply units to escrow when the custody takes
// deposits. Otherwise it produces no step.
func depositStep(custody domain.TokenCustody, token common.Address, tokenID *big.Int, amount uint64) step {
	d, ok := custody.(domain.EscrowDepositor)
	if !ok {
		return step{}
	}
	id := new(big.Int).Set(tokenID)
	return step{
		name:  "deposit supply",
		apply: func(ctx context.Context) error { return d.Deposit(ctx, token, id, amount) },
		undo:  func(ctx context.Context) error { return d.Withdraw(ctx, token, id, amount) },
	}
}

// collectStep takes value from payer into escrow when the fund transfer
// collects. Otherwise the caller layer is trusted to have escrowed it.
func collectStep(funds domain.FundTransfer, from common.Address, amount *big.Int) step {
	c, ok := funds.(domain.FundCollector)
	if !ok || amount == nil || amount.Sign() <= 0 {
		return step{}
	}
	amt := new(big.Int).Set(amount)
	return step{
		name:  "collect funds",
		apply: func(ctx context.Context) error { return c.Collect(ctx, from, amt) },
		undo:  func(ctx context.Context) error { return c.Return(ctx, from, amt) },
	}
}

// ticketStep issues an escrow ticket for a physical item.
func ticketStep(ticketer domain.EscrowTicketer, consignmentID, amount uint64, to common.Address) step {
	s := step{
		name: "issue ticket",
		apply: func(ctx context.Context) error {
			return ticketer.IssueTicket(ctx, consignmentID, amount, to)
		},
	}
	if r, ok := ticketer.(domain.TicketRevoker); ok {
		s.undo = func(ctx context.Context) error {
			return r.RevokeTicket(ctx, consignmentID, amount, to)
		}
	}
	return s
}

// errorLabel turns an operation error into a short metrics label.
func errorLabel(err error) string {
	if err == nil {
		return "accepted"
	}
	if code := domain.CodeOf(err); code != "" {
		return code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "internal"
}
