package service

import (
	"math/big"
	"testing"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestTreasurySeedsSecondaryListing(t *testing.T) {
	h := newHarness(t)
	tr := h.market.Treasury
	require.NotNil(t, tr)

	require.ErrorIs(t, tr.Deposit(h.ctx, as(aliceAddr), carolAddr, big.NewInt(500)), domain.ErrForbidden)
	require.ErrorIs(t, tr.Deposit(h.ctx, as(adminAddr), carolAddr, big.NewInt(0)), domain.ErrInvalidInput)
	require.NoError(t, tr.Deposit(h.ctx, as(adminAddr), carolAddr, big.NewInt(500)))
	require.Equal(t, int64(500), tr.Balance(carolAddr).Int64())

	require.ErrorIs(t, tr.Mint(h.ctx, as(aliceAddr), foreignToken, big.NewInt(7), sellerAddr, 1), domain.ErrForbidden)
	require.ErrorIs(t, tr.Mint(h.ctx, as(minterAddr), foreignToken, big.NewInt(7), sellerAddr, 0), domain.ErrZeroSupply)
	require.NoError(t, tr.Mint(h.ctx, as(minterAddr), foreignToken, big.NewInt(7), sellerAddr, 1))

	_, err := h.market.Auctions.CreateSecondaryAuction(h.ctx, as(sellerAddr), foreignToken, big.NewInt(7), liveAuction(1000, 3600, big.NewInt(100)))
	require.ErrorIs(t, err, domain.ErrNotApproved)

	require.NoError(t, tr.SetApproval(h.ctx, as(sellerAddr), foreignToken, true))
	a, err := h.market.Auctions.CreateSecondaryAuction(h.ctx, as(sellerAddr), foreignToken, big.NewInt(7), liveAuction(1000, 3600, big.NewInt(100)))
	require.NoError(t, err)

	_, err = h.market.Auctions.Bid(h.ctx, as(carolAddr), a.ConsignmentID, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, int64(400), tr.Balance(carolAddr).Int64())

	entries, err := h.audit.List(h.ctx, domain.ListOpts{Limit: 10, Event: "funds_deposited"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestTreasuryRegisterToken(t *testing.T) {
	h := newHarness(t)
	token := foreignToken
	require.ErrorIs(t, h.market.Treasury.RegisterToken(h.ctx, as(minterAddr), token, true), domain.ErrForbidden)
	require.NoError(t, h.market.Treasury.RegisterToken(h.ctx, as(adminAddr), token, true))

	multi, err := h.vault.IsMultiToken(h.ctx, token)
	require.NoError(t, err)
	require.True(t, multi)
}
