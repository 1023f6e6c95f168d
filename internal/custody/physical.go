package custody

import (
	"context"
	"math/big"
	"sync"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// PhysicalSet records which native token ids are backed by physical items.
type PhysicalSet struct {
	mu  sync.RWMutex
	ids map[string]bool
}

var _ domain.PhysicalRegistry = (*PhysicalSet)(nil)

func NewPhysicalSet() *PhysicalSet {
	return &PhysicalSet{ids: make(map[string]bool)}
}

func (p *PhysicalSet) Mark(tokenID *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids[tokenID.String()] = true
}

func (p *PhysicalSet) IsPhysical(_ context.Context, tokenID *big.Int) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ids[tokenID.String()], nil
}
