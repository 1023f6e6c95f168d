package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// AuctionStore keeps auctions keyed by consignment id.
type AuctionStore struct {
	mu   sync.RWMutex
	rows map[uint64]domain.Auction
}

var _ domain.AuctionStore = (*AuctionStore)(nil)

func NewAuctionStore() *AuctionStore {
	return &AuctionStore{rows: make(map[uint64]domain.Auction)}
}

func (s *AuctionStore) Create(_ context.Context, a domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[a.ConsignmentID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[a.ConsignmentID] = a.Clone()
	return nil
}

func (s *AuctionStore) Update(_ context.Context, a domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[a.ConsignmentID]; !ok {
		return domain.ErrNotFound
	}
	s.rows[a.ConsignmentID] = a.Clone()
	return nil
}

func (s *AuctionStore) GetByConsignment(_ context.Context, consignmentID uint64) (domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.rows[consignmentID]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *AuctionStore) ListEndedBefore(_ context.Context, before int64) ([]domain.Auction, error) {
	return s.filter(func(a domain.Auction) bool {
		return a.State == domain.StateEnded && a.End() < before
	}), nil
}

func (s *AuctionStore) ListOpen(_ context.Context) ([]domain.Auction, error) {
	return s.filter(func(a domain.Auction) bool {
		return a.Outcome == domain.OutcomePending
	}), nil
}

func (s *AuctionStore) filter(keep func(domain.Auction) bool) []domain.Auction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Auction
	for _, a := range s.rows {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConsignmentID < out[j].ConsignmentID })
	return out
}
