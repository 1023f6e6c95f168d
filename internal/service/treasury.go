package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// TokenIssuer is the operator-managed side of an in-process token custody.
type TokenIssuer interface {
	RegisterToken(token common.Address, multi bool)
	Mint(token common.Address, tokenID *big.Int, owner common.Address, amount uint64)
	SetApprovalForAll(token, owner, operator common.Address, approved bool)
	Operator() common.Address
}

// FundBook is the operator-managed side of an in-process fund ledger.
type FundBook interface {
	Deposit(account common.Address, amount *big.Int) error
	BalanceOf(account common.Address) *big.Int
}

// Treasury lets operators seed the in-process escrow book: declaring token
// standards, minting units to owners, funding accounts and recording an
// owner's approval of the escrow operator. Every change is audited.
type Treasury struct {
	tokens  TokenIssuer
	funds   FundBook
	access  *AccessControl
	emitter *Emitter
	logger  *slog.Logger
}

func newTreasury(custody domain.TokenCustody, funds domain.FundTransfer, access *AccessControl, emitter *Emitter, logger *slog.Logger) *Treasury {
	tokens, ok := custody.(TokenIssuer)
	if !ok {
		return nil
	}
	book, ok := funds.(FundBook)
	if !ok {
		return nil
	}
	return &Treasury{tokens: tokens, funds: book, access: access, emitter: emitter, logger: logger}
}

// RegisterToken declares whether token tracks fungible supply per id. Admin only.
func (t *Treasury) RegisterToken(ctx context.Context, caller domain.Caller, token common.Address, multi bool) error {
	if err := t.access.require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if token == (common.Address{}) {
		return domain.WithReason(domain.ErrInvalidInput, "Token must be a non-zero address")
	}
	t.tokens.RegisterToken(token, multi)
	t.emitter.Audit(ctx, "token_registered", map[string]any{
		"token": addr(token),
		"multi": multi,
		"by":    addr(caller.Sender),
	})
	return nil
}

// Mint credits amount units of a token to owner. Admins and minters may mint.
func (t *Treasury) Mint(ctx context.Context, caller domain.Caller, token common.Address, tokenID *big.Int, owner common.Address, amount uint64) error {
	if err := t.access.require(caller, domain.RoleAdmin, domain.RoleMinter); err != nil {
		return err
	}
	if tokenID == nil || tokenID.Sign() < 0 {
		return domain.WithReason(domain.ErrInvalidInput, "Token id must be set")
	}
	if owner == (common.Address{}) {
		return domain.WithReason(domain.ErrInvalidInput, "Owner must be a non-zero address")
	}
	if amount == 0 {
		return domain.ErrZeroSupply
	}
	t.tokens.Mint(token, tokenID, owner, amount)
	t.emitter.Audit(ctx, "token_minted", map[string]any{
		"token":    addr(token),
		"token_id": dec(tokenID),
		"owner":    addr(owner),
		"amount":   amount,
		"by":       addr(caller.Sender),
	})
	return nil
}

// Deposit credits account with funds it can bid and buy with. Admin only.
func (t *Treasury) Deposit(ctx context.Context, caller domain.Caller, account common.Address, amount *big.Int) error {
	if err := t.access.require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return domain.WithReason(domain.ErrInvalidInput, "Account must be a non-zero address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.WithReason(domain.ErrInvalidInput, "Deposit must be positive")
	}
	if err := t.funds.Deposit(account, amount); err != nil {
		return fmt.Errorf("treasury: deposit: %w", err)
	}
	t.emitter.Audit(ctx, "funds_deposited", map[string]any{
		"account": addr(account),
		"amount":  dec(amount),
		"by":      addr(caller.Sender),
	})
	t.logger.InfoContext(ctx, "treasury: funds deposited",
		slog.String("account", account.Hex()),
		slog.String("amount", dec(amount)),
	)
	return nil
}

// SetApproval records whether the caller lets the escrow operator move its
// units of token, the precondition for secondary listings.
func (t *Treasury) SetApproval(ctx context.Context, caller domain.Caller, token common.Address, approved bool) error {
	if caller.IsContract() {
		return domain.ErrContractsForbidden
	}
	t.tokens.SetApprovalForAll(token, caller.Sender, t.tokens.Operator(), approved)
	t.emitter.Audit(ctx, "operator_approval_set", map[string]any{
		"token":    addr(token),
		"owner":    addr(caller.Sender),
		"approved": approved,
	})
	return nil
}

// Balance returns the funds held by account outside escrow.
func (t *Treasury) Balance(account common.Address) *big.Int {
	return t.funds.BalanceOf(account)
}
