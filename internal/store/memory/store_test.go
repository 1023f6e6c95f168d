package memory

import (
	"context"
	"math/big"
	"testing"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestConsignmentStoreAssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	s := NewConsignmentStore()

	next, err := s.NextID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), next)

	for want := uint64(0); want < 3; want++ {
		c, err := s.Create(ctx, domain.Consignment{Supply: 1, TokenID: big.NewInt(1)})
		require.NoError(t, err)
		require.Equal(t, want, c.ID)
	}
	next, err = s.NextID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), next)
}

func TestConsignmentStoreReturnsSnapshots(t *testing.T) {
	ctx := context.Background()
	s := NewConsignmentStore()
	c, err := s.Create(ctx, domain.Consignment{Supply: 1, TokenID: big.NewInt(7), PendingPayout: big.NewInt(0)})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, c.ID)
	require.NoError(t, err)
	got.PendingPayout.SetInt64(99)
	got.TokenID.SetInt64(8)

	again, err := s.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), again.PendingPayout.Int64())
	require.Equal(t, int64(7), again.TokenID.Int64())

	_, err = s.GetByID(ctx, 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, s.Update(ctx, domain.Consignment{ID: 42}), domain.ErrNotFound)
}

func TestAuctionStoreListings(t *testing.T) {
	ctx := context.Background()
	s := NewAuctionStore()
	require.NoError(t, s.Create(ctx, domain.Auction{ConsignmentID: 1, Start: 0, Duration: 10, State: domain.StateEnded, Outcome: domain.OutcomeClosed}))
	require.NoError(t, s.Create(ctx, domain.Auction{ConsignmentID: 2, Start: 0, Duration: 100, State: domain.StateRunning, Outcome: domain.OutcomePending}))
	require.ErrorIs(t, s.Create(ctx, domain.Auction{ConsignmentID: 1}), domain.ErrAlreadyExists)

	ended, err := s.ListEndedBefore(ctx, 50)
	require.NoError(t, err)
	require.Len(t, ended, 1)
	require.Equal(t, uint64(1), ended[0].ConsignmentID)

	open, err := s.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, uint64(2), open[0].ConsignmentID)
}

func TestAuditStorePaging(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()
	for _, ev := range []string{"a", "b", "c"} {
		require.NoError(t, s.Log(ctx, ev, nil))
	}
	entries, err := s.List(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "c", entries[0].Event)

	entries, err = s.List(ctx, domain.ListOpts{Offset: 2})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a", entries[0].Event)
}

func TestAuditStoreFilters(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()
	require.NoError(t, s.Log(ctx, "auction_canceled", map[string]any{"consignment_id": uint64(4)}))
	require.NoError(t, s.Log(ctx, "auction_canceled", map[string]any{"consignment_id": uint64(5)}))
	require.NoError(t, s.Log(ctx, "market_config_changed", map[string]any{"field": "outbid_bps"}))

	entries, err := s.List(ctx, domain.ListOpts{Event: "auction_canceled"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	id := uint64(4)
	entries, err = s.List(ctx, domain.ListOpts{ConsignmentID: &id})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(4), entries[0].Detail["consignment_id"])
}

func TestMarketConfigStoreNotFoundUntilSaved(t *testing.T) {
	ctx := context.Background()
	s := NewMarketConfigStore()
	_, err := s.Get(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Save(ctx, domain.MarketConfiguration{OutBidBps: 500, VipStakerAmount: big.NewInt(10)}))
	cfg, err := s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, uint16(500), cfg.OutBidBps)
}
