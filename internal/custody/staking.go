package custody

import (
	"context"
	"math/big"
	"sync"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// StakingTable is a StakingOracle backed by a fixed balance table.
type StakingTable struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
}

var _ domain.StakingOracle = (*StakingTable)(nil)

func NewStakingTable() *StakingTable {
	return &StakingTable{balances: make(map[common.Address]*big.Int)}
}

func (s *StakingTable) SetBalance(account common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] = new(big.Int).Set(amount)
}

func (s *StakingTable) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if bal, ok := s.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}
