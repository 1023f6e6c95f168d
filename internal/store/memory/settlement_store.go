package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// SettlementStore keeps settlement records in insertion order.
type SettlementStore struct {
	mu   sync.RWMutex
	rows []domain.Settlement
}

var _ domain.SettlementStore = (*SettlementStore)(nil)

func NewSettlementStore() *SettlementStore {
	return &SettlementStore{}
}

func (s *SettlementStore) Insert(_ context.Context, st domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.ID == st.ID {
			return domain.ErrAlreadyExists
		}
	}
	s.rows = append(s.rows, st)
	return nil
}

func (s *SettlementStore) ListByConsignment(_ context.Context, consignmentID uint64) ([]domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Settlement
	for _, st := range s.rows {
		if st.ConsignmentID == consignmentID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *SettlementStore) ListBefore(_ context.Context, before time.Time) ([]domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Settlement
	for _, st := range s.rows {
		if st.SettledAt.Before(before) {
			out = append(out, st)
		}
	}
	return out, nil
}
