// Package memory provides in-process stores that hand out copies, so callers
// always work on snapshots. They back tests and the memory run mode.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// ConsignmentStore keeps consignments in a map keyed by id.
type ConsignmentStore struct {
	mu     sync.RWMutex
	rows   map[uint64]domain.Consignment
	nextID uint64
}

var _ domain.ConsignmentStore = (*ConsignmentStore)(nil)

func NewConsignmentStore() *ConsignmentStore {
	return &ConsignmentStore{rows: make(map[uint64]domain.Consignment)}
}

func (s *ConsignmentStore) Create(_ context.Context, c domain.Consignment) (domain.Consignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID
	s.nextID++
	s.rows[c.ID] = c.Clone()
	return c.Clone(), nil
}

func (s *ConsignmentStore) Update(_ context.Context, c domain.Consignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[c.ID]; !ok {
		return domain.ErrNotFound
	}
	s.rows[c.ID] = c.Clone()
	return nil
}

func (s *ConsignmentStore) GetByID(_ context.Context, id uint64) (domain.Consignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rows[id]
	if !ok {
		return domain.Consignment{}, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *ConsignmentStore) NextID(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID, nil
}
