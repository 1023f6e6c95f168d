// Package custody holds in-process implementations of the market's external
// collaborators: the fund ledger, the token vault, staking balances, escrow
// ticketers, royalties and clocks.
package custody

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// ErrRecipientRejected is returned by Pay for accounts marked as refusing
// funds.
var ErrRecipientRejected = errors.New("custody: recipient rejected payment")

// ErrInsufficientFunds is returned when a reversal exceeds the account's
// credited balance.
var ErrInsufficientFunds = errors.New("custody: insufficient funds")

// Ledger holds account balances and the funds escrowed for open bids and
// purchases. Collect moves funds from an account into escrow; Pay moves
// them out to a recipient.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	rejects  map[common.Address]bool
	escrowed *big.Int
}

var (
	_ domain.FundTransfer  = (*Ledger)(nil)
	_ domain.FundReverser  = (*Ledger)(nil)
	_ domain.FundCollector = (*Ledger)(nil)
)

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]*big.Int),
		rejects:  make(map[common.Address]bool),
		escrowed: new(big.Int),
	}
}

func (l *Ledger) account(a common.Address) *big.Int {
	bal, ok := l.balances[a]
	if !ok {
		bal = new(big.Int)
		l.balances[a] = bal
	}
	return bal
}

// Deposit credits account with funds from outside the market.
func (l *Ledger) Deposit(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("custody: deposit must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.account(account)
	bal.Add(bal, amount)
	return nil
}

func (l *Ledger) Collect(_ context.Context, from common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.account(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s", domain.ErrNoFunds, from.Hex(), bal, amount)
	}
	bal.Sub(bal, amount)
	l.escrowed.Add(l.escrowed, amount)
	return nil
}

// Return gives collected funds back without the reject check Pay applies.
func (l *Ledger) Return(_ context.Context, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.escrowed.Sub(l.escrowed, amount)
	bal := l.account(to)
	bal.Add(bal, amount)
	return nil
}

// Reject makes future payments to account fail, modelling a recipient that
// cannot accept funds.
func (l *Ledger) Reject(account common.Address, reject bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejects[account] = reject
}

func (l *Ledger) Pay(_ context.Context, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rejects[to] {
		return ErrRecipientRejected
	}
	bal := l.account(to)
	bal.Add(bal, amount)
	l.escrowed.Sub(l.escrowed, amount)
	return nil
}

func (l *Ledger) Reverse(_ context.Context, from common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	bal.Sub(bal, amount)
	l.escrowed.Add(l.escrowed, amount)
	return nil
}

// Escrowed returns the funds collected and not yet paid out. Payouts of
// funds that were never collected drive it negative.
func (l *Ledger) Escrowed() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.escrowed)
}

// BalanceOf returns the total credited to account.
func (l *Ledger) BalanceOf(account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}
