package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// MarketConfigStore holds the single configuration row.
type MarketConfigStore struct {
	mu  sync.RWMutex
	cfg *domain.MarketConfiguration
}

var _ domain.MarketConfigStore = (*MarketConfigStore)(nil)

func NewMarketConfigStore() *MarketConfigStore {
	return &MarketConfigStore{}
}

func (s *MarketConfigStore) Get(_ context.Context) (domain.MarketConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return domain.MarketConfiguration{}, domain.ErrNotFound
	}
	return s.cfg.Clone(), nil
}

func (s *MarketConfigStore) Save(_ context.Context, cfg domain.MarketConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cfg.Clone()
	s.cfg = &c
	return nil
}
