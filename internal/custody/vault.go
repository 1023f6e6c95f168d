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

var (
	ErrNotApproved     = errors.New("custody: operator not approved")
	ErrBalanceTooLow   = errors.New("custody: balance too low")
	ErrUnknownStandard = errors.New("custody: token standard not registered")
)

type holding struct {
	token common.Address
	id    string
	owner common.Address
}

type approval struct {
	token    common.Address
	owner    common.Address
	operator common.Address
}

// Vault tracks token balances for single-owner and multi-owner tokens and
// holds consigned units under its operator account.
type Vault struct {
	mu        sync.Mutex
	operator  common.Address
	balances  map[holding]uint64
	approvals map[approval]bool
	multi     map[common.Address]bool
}

var (
	_ domain.TokenCustody    = (*Vault)(nil)
	_ domain.TokenReclaimer  = (*Vault)(nil)
	_ domain.EscrowDepositor = (*Vault)(nil)
)

// NewVault creates a vault whose escrow account is operator.
func NewVault(operator common.Address) *Vault {
	return &Vault{
		operator:  operator,
		balances:  make(map[holding]uint64),
		approvals: make(map[approval]bool),
		multi:     make(map[common.Address]bool),
	}
}

// RegisterToken declares whether token is multi-owner (fungible supply per id).
func (v *Vault) RegisterToken(token common.Address, multi bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.multi[token] = multi
}

// Mint credits amount units of token id to owner. A token seen for the
// first time is taken as multi-owner when more than one unit is minted.
func (v *Vault) Mint(token common.Address, tokenID *big.Int, owner common.Address, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mint(token, tokenID, owner, amount)
}

func (v *Vault) mint(token common.Address, tokenID *big.Int, owner common.Address, amount uint64) {
	if _, ok := v.multi[token]; !ok {
		v.multi[token] = amount > 1
	}
	v.balances[holding{token, tokenID.String(), owner}] += amount
}

// Deposit mints amount units straight into the operator account, recording
// a consignment's supply as held in escrow.
func (v *Vault) Deposit(_ context.Context, token common.Address, tokenID *big.Int, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("custody: deposit of zero units")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mint(token, tokenID, v.operator, amount)
	return nil
}

// Withdraw burns units from the operator account. It only undoes a Deposit.
func (v *Vault) Withdraw(_ context.Context, token common.Address, tokenID *big.Int, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	src := holding{token, tokenID.String(), v.operator}
	if v.balances[src] < amount {
		return fmt.Errorf("%w: escrow holds %d of %s#%s", ErrBalanceTooLow, v.balances[src], token.Hex(), tokenID)
	}
	v.balances[src] -= amount
	return nil
}

// SetApprovalForAll records whether operator may move owner's token units.
func (v *Vault) SetApprovalForAll(token, owner, operator common.Address, approved bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.approvals[approval{token, owner, operator}] = approved
}

func (v *Vault) Operator() common.Address {
	return v.operator
}

func (v *Vault) TransferIn(_ context.Context, token common.Address, tokenID *big.Int, from common.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.approvals[approval{token, from, v.operator}] {
		return ErrNotApproved
	}
	return v.move(token, tokenID, from, v.operator, amount)
}

func (v *Vault) TransferOut(_ context.Context, token common.Address, tokenID *big.Int, to common.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.move(token, tokenID, v.operator, to, amount)
}

// Reclaim pulls units back into escrow without an approval check. It only
// undoes a TransferOut made in the same operation.
func (v *Vault) Reclaim(_ context.Context, token common.Address, tokenID *big.Int, from common.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.move(token, tokenID, from, v.operator, amount)
}

func (v *Vault) move(token common.Address, tokenID *big.Int, from, to common.Address, amount uint64) error {
	src := holding{token, tokenID.String(), from}
	if v.balances[src] < amount {
		return fmt.Errorf("%w: %s holds %d of %s#%s", ErrBalanceTooLow, from.Hex(), v.balances[src], token.Hex(), tokenID)
	}
	v.balances[src] -= amount
	v.balances[holding{token, tokenID.String(), to}] += amount
	return nil
}

func (v *Vault) BalanceOf(_ context.Context, token common.Address, tokenID *big.Int, owner common.Address) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[holding{token, tokenID.String(), owner}], nil
}

func (v *Vault) IsApprovedForAll(_ context.Context, token, owner, operator common.Address) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.approvals[approval{token, owner, operator}], nil
}

func (v *Vault) IsMultiToken(_ context.Context, token common.Address) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	multi, ok := v.multi[token]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownStandard, token.Hex())
	}
	return multi, nil
}
