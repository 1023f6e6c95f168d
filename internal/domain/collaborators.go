package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenCustody moves consigned tokens between owners and the escrow.
type TokenCustody interface {
	TransferIn(ctx context.Context, token common.Address, tokenID *big.Int, from common.Address, amount uint64) error
	TransferOut(ctx context.Context, token common.Address, tokenID *big.Int, to common.Address, amount uint64) error
	BalanceOf(ctx context.Context, token common.Address, tokenID *big.Int, owner common.Address) (uint64, error)
	IsApprovedForAll(ctx context.Context, token, owner, operator common.Address) (bool, error)
	// IsMultiToken reports whether token tracks fungible supply per id.
	IsMultiToken(ctx context.Context, token common.Address) (bool, error)
	// Operator is the escrow account that custodies consigned tokens.
	Operator() common.Address
}

// TokenReclaimer is implemented by custodies that can pull back a transfer
// made during a failed operation without a fresh approval.
type TokenReclaimer interface {
	Reclaim(ctx context.Context, token common.Address, tokenID *big.Int, from common.Address, amount uint64) error
}

// EscrowDepositor is implemented by custodies that take newly consigned
// units into the operator account at registration. Withdraw undoes a
// deposit made by an operation that later failed.
type EscrowDepositor interface {
	Deposit(ctx context.Context, token common.Address, tokenID *big.Int, amount uint64) error
	Withdraw(ctx context.Context, token common.Address, tokenID *big.Int, amount uint64) error
}

// PhysicalRegistry answers whether a native token id is backed by a
// physical item.
type PhysicalRegistry interface {
	IsPhysical(ctx context.Context, tokenID *big.Int) (bool, error)
}

// FundTransfer pays escrowed funds out. Pay fails rather than dropping funds.
type FundTransfer interface {
	Pay(ctx context.Context, to common.Address, amount *big.Int) error
}

// FundReverser is implemented by fund transfers that can take back a payment
// when a later step of the same operation fails.
type FundReverser interface {
	Reverse(ctx context.Context, from common.Address, amount *big.Int) error
}

// FundCollector takes a payer's funds into escrow before a bid or purchase
// is recorded. Return hands collected funds back when a later step of the
// same operation fails.
type FundCollector interface {
	Collect(ctx context.Context, from common.Address, amount *big.Int) error
	Return(ctx context.Context, to common.Address, amount *big.Int) error
}

// StakingOracle reports an account's staked balance.
type StakingOracle interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// EscrowTicketer issues a claim ticket in place of delivering a physical item.
type EscrowTicketer interface {
	IssueTicket(ctx context.Context, consignmentID uint64, amount uint64, recipient common.Address) error
}

// TicketRevoker is implemented by ticketers that can void a ticket issued
// during a failed operation.
type TicketRevoker interface {
	RevokeTicket(ctx context.Context, consignmentID uint64, amount uint64, recipient common.Address) error
}

// RoyaltyRegistry resolves the creator royalty of a token.
type RoyaltyRegistry interface {
	RoyaltyInfo(ctx context.Context, token common.Address, tokenID *big.Int) (creator common.Address, bps uint16, err error)
}

// Clock is the market's source of time.
type Clock interface {
	Now() time.Time
}
