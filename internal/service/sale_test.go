package service

import (
	"math/big"
	"testing"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/stretchr/testify/require"
)

func saleTerms(start int64) SaleRequest {
	return SaleRequest{Start: start, Price: big.NewInt(100), PerTxCap: 2, Audience: domain.AudienceOpen}
}

func TestPrimarySaleLifecycle(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 3)

	_, err := h.market.Sales.CreatePrimarySale(h.ctx, as(aliceAddr), c.ID, saleTerms(1000))
	require.ErrorIs(t, err, domain.ErrNotConsignor)
	_, err = h.market.Sales.CreatePrimarySale(h.ctx, as(sellerAddr), c.ID, saleTerms(999))
	require.ErrorIs(t, err, domain.ErrInvalidStartTime)

	s, err := h.market.Sales.CreatePrimarySale(h.ctx, as(sellerAddr), c.ID, saleTerms(1100))
	require.NoError(t, err)
	require.Equal(t, domain.StatePending, s.State)

	_, err = h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 60, big.NewInt(1)))
	require.ErrorIs(t, err, domain.ErrAlreadyHandled)

	_, err = h.market.Sales.Buy(h.ctx, as(aliceAddr), c.ID, 1, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrSaleNotStarted)

	h.clock.Set(1100)
	_, err = h.market.Sales.Buy(h.ctx, as(aliceAddr), c.ID, 3, big.NewInt(300))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = h.market.Sales.Buy(h.ctx, as(aliceAddr), c.ID, 2, big.NewInt(199))
	require.ErrorIs(t, err, domain.ErrWrongPayment)

	s, err = h.market.Sales.Buy(h.ctx, as(aliceAddr), c.ID, 2, big.NewInt(200))
	require.NoError(t, err)
	require.Equal(t, domain.StateRunning, s.State)
	require.Equal(t, uint64(2), h.balance(nativeToken, 1, aliceAddr))
	require.Equal(t, int64(200), h.consignment(c.ID).PendingPayout.Int64())

	_, _, err = h.market.Sales.CloseSale(h.ctx, as(sellerAddr), c.ID)
	require.ErrorIs(t, err, domain.ErrNotSoldOut)

	_, err = h.market.Sales.Buy(h.ctx, as(bobAddr), c.ID, 2, big.NewInt(200))
	require.ErrorIs(t, err, domain.ErrOverRelease)
	_, err = h.market.Sales.Buy(h.ctx, as(bobAddr), c.ID, 1, big.NewInt(100))
	require.NoError(t, err)

	s, st, err := h.market.Sales.CloseSale(h.ctx, as(sellerAddr), c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeClosed, s.Outcome)
	require.Equal(t, int64(300), st.Gross.Int64())
	require.Equal(t, int64(285), h.ledger.BalanceOf(sellerAddr).Int64())
	require.True(t, h.consignment(c.ID).Released)
	require.Zero(t, h.consignment(c.ID).PendingPayout.Sign())

	_, err = h.market.Sales.CancelSale(h.ctx, as(sellerAddr), c.ID)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)
}

func TestCancelSaleSettlesCollectedAndReturnsUnsold(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 5)
	_, err := h.market.Sales.CreatePrimarySale(h.ctx, as(sellerAddr), c.ID, saleTerms(1000))
	require.NoError(t, err)
	_, err = h.market.Sales.Buy(h.ctx, as(aliceAddr), c.ID, 1, big.NewInt(100))
	require.NoError(t, err)

	_, err = h.market.Sales.CancelSale(h.ctx, as(bobAddr), c.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	s, err := h.market.Sales.CancelSale(h.ctx, as(adminAddr), c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCanceled, s.Outcome)
	require.Equal(t, uint64(4), h.balance(nativeToken, 1, sellerAddr))
	require.Equal(t, int64(95), h.ledger.BalanceOf(sellerAddr).Int64())

	after := h.consignment(c.ID)
	require.True(t, after.Released)
	require.Zero(t, after.PendingPayout.Sign())
}

func TestSecondarySaleAndAudience(t *testing.T) {
	h := newHarness(t)
	h.own(nativeToken, 9, sellerAddr, 4)
	h.royalties.SetDefault(nativeToken, creatorAddr, 1000)

	s, err := h.market.Sales.CreateSecondarySale(h.ctx, as(sellerAddr), nativeToken, big.NewInt(9), 4, SaleRequest{
		Start: 1000, Price: big.NewInt(1000), PerTxCap: 4, Audience: domain.AudienceOpen,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(4), h.balance(nativeToken, 9, escrowAddr))

	require.NoError(t, h.market.Sales.ChangeSaleAudience(h.ctx, as(adminAddr), s.ConsignmentID, domain.AudienceStaker))
	_, err = h.market.Sales.Buy(h.ctx, as(aliceAddr), s.ConsignmentID, 4, big.NewInt(4000))
	require.ErrorIs(t, err, domain.ErrNotStaker)

	h.staking.SetBalance(aliceAddr, big.NewInt(5))
	_, err = h.market.Sales.Buy(h.ctx, as(aliceAddr), s.ConsignmentID, 4, big.NewInt(4000))
	require.NoError(t, err)

	_, st, err := h.market.Sales.CloseSale(h.ctx, as(adminAddr), s.ConsignmentID)
	require.NoError(t, err)
	require.Equal(t, int64(400), st.Royalty.Int64())
	require.Equal(t, int64(400), h.ledger.BalanceOf(creatorAddr).Int64())
	// 3600 net at 250 bps = 90 fee.
	require.Equal(t, int64(3510), h.ledger.BalanceOf(sellerAddr).Int64())
}
