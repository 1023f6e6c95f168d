package custody

import (
	"context"
	"math/big"
	"sync"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

type royalty struct {
	creator common.Address
	bps     uint16
}

// RoyaltyBook is a RoyaltyRegistry with per-token and per-id entries. An id
// entry takes precedence over the token default.
type RoyaltyBook struct {
	mu       sync.RWMutex
	defaults map[common.Address]royalty
	perID    map[holding]royalty
}

var _ domain.RoyaltyRegistry = (*RoyaltyBook)(nil)

func NewRoyaltyBook() *RoyaltyBook {
	return &RoyaltyBook{
		defaults: make(map[common.Address]royalty),
		perID:    make(map[holding]royalty),
	}
}

func (b *RoyaltyBook) SetDefault(token, creator common.Address, bps uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaults[token] = royalty{creator, bps}
}

func (b *RoyaltyBook) Set(token common.Address, tokenID *big.Int, creator common.Address, bps uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.perID[holding{token: token, id: tokenID.String()}] = royalty{creator, bps}
}

func (b *RoyaltyBook) RoyaltyInfo(_ context.Context, token common.Address, tokenID *big.Int) (common.Address, uint16, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if r, ok := b.perID[holding{token: token, id: tokenID.String()}]; ok {
		return r.creator, r.bps, nil
	}
	r := b.defaults[token]
	return r.creator, r.bps, nil
}
