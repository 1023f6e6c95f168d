package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time

	// Audit filters. Empty Event and nil ConsignmentID match everything.
	Event         string
	ConsignmentID *uint64
}

// ConsignmentStore persists consignments and allocates their ids.
type ConsignmentStore interface {
	// Create assigns the next id to c, stores it and returns the stored copy.
	Create(ctx context.Context, c Consignment) (Consignment, error)
	Update(ctx context.Context, c Consignment) error
	GetByID(ctx context.Context, id uint64) (Consignment, error)
	// NextID returns the id the next Create will assign.
	NextID(ctx context.Context) (uint64, error)
}

// AuctionStore persists auctions keyed by consignment id.
type AuctionStore interface {
	Create(ctx context.Context, a Auction) error
	Update(ctx context.Context, a Auction) error
	GetByConsignment(ctx context.Context, consignmentID uint64) (Auction, error)
	// ListEndedBefore returns ended auctions whose window closed before the
	// given unix second.
	ListEndedBefore(ctx context.Context, before int64) ([]Auction, error)
	// ListOpen returns auctions whose outcome is still pending.
	ListOpen(ctx context.Context) ([]Auction, error)
}

// SaleStore persists sales keyed by consignment id.
type SaleStore interface {
	Create(ctx context.Context, s Sale) error
	Update(ctx context.Context, s Sale) error
	GetByConsignment(ctx context.Context, consignmentID uint64) (Sale, error)
}

// SettlementStore persists settlement records.
type SettlementStore interface {
	Insert(ctx context.Context, s Settlement) error
	ListByConsignment(ctx context.Context, consignmentID uint64) ([]Settlement, error)
	ListBefore(ctx context.Context, before time.Time) ([]Settlement, error)
}

// MarketConfigStore persists the market configuration singleton.
type MarketConfigStore interface {
	Get(ctx context.Context) (MarketConfiguration, error)
	Save(ctx context.Context, cfg MarketConfiguration) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
