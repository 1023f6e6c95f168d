package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// SaleStore keeps sales keyed by consignment id.
type SaleStore struct {
	mu   sync.RWMutex
	rows map[uint64]domain.Sale
}

var _ domain.SaleStore = (*SaleStore)(nil)

func NewSaleStore() *SaleStore {
	return &SaleStore{rows: make(map[uint64]domain.Sale)}
}

func (s *SaleStore) Create(_ context.Context, sale domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[sale.ConsignmentID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[sale.ConsignmentID] = sale.Clone()
	return nil
}

func (s *SaleStore) Update(_ context.Context, sale domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[sale.ConsignmentID]; !ok {
		return domain.ErrNotFound
	}
	s.rows[sale.ConsignmentID] = sale.Clone()
	return nil
}

func (s *SaleStore) GetByConsignment(_ context.Context, consignmentID uint64) (domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.rows[consignmentID]
	if !ok {
		return domain.Sale{}, domain.ErrNotFound
	}
	return sale.Clone(), nil
}
