package service

import (
	"math/big"
	"testing"
	"time"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestTriggeredSecondaryAuctionEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(500)
	h.own(foreignToken, 100, sellerAddr, 1)
	reserve, _ := new(big.Int).SetString("1500000000000000000", 10)

	a, err := h.market.Auctions.CreateSecondaryAuction(h.ctx, as(sellerAddr), foreignToken, big.NewInt(100), AuctionRequest{
		Start:    0,
		Duration: 86400,
		Reserve:  reserve,
		Audience: domain.AudienceOpen,
		Clock:    domain.ClockTriggered,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatePending, a.State)
	require.Equal(t, uint64(1), h.balance(foreignToken, 100, escrowAddr))

	c := h.consignment(a.ConsignmentID)
	require.Equal(t, domain.MarketSecondary, c.Market)
	require.Equal(t, domain.HandlerAuction, c.MarketHandler)
	require.Equal(t, uint64(1), c.Supply)

	h.clock.Set(1000)
	a, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, reserve)
	require.NoError(t, err)
	require.Equal(t, domain.StateRunning, a.State)
	require.Equal(t, int64(1000), a.Start)
	require.Equal(t, reserve.String(), h.consignment(c.ID).PendingPayout.String())

	h.clock.Set(1000 + 86400 - 1)
	_, _, err = h.market.Auctions.CloseAuction(h.ctx, c.ID)
	require.ErrorIs(t, err, domain.ErrTooEarly)

	h.clock.Set(1000 + 86400)
	a, s, err := h.market.Auctions.CloseAuction(h.ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateEnded, a.State)
	require.Equal(t, domain.OutcomeClosed, a.Outcome)

	after := h.consignment(c.ID)
	require.Zero(t, after.PendingPayout.Sign())
	require.True(t, after.Released)
	require.Equal(t, uint64(1), h.balance(foreignToken, 100, aliceAddr))
	require.Equal(t, s.SellerAmount.String(), h.ledger.BalanceOf(sellerAddr).String())

	msgs, err := h.bus.StreamRead(h.ctx, domain.StreamMarket, "0", 100)
	require.NoError(t, err)
	require.Contains(t, eventTypes(t, msgs), domain.EventAuctionClosed)
}

func TestTriggeredAuctionAcceptsLateFirstBid(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, AuctionRequest{
		Start: 1000, Duration: 600, Reserve: big.NewInt(100),
		Audience: domain.AudienceOpen, Clock: domain.ClockTriggered,
	})
	require.NoError(t, err)

	h.clock.Set(1_000_000)
	a, err := h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), a.Start)
	// A countdown shorter than the extension window is stretched to it.
	require.Equal(t, int64(1_000_000)+domain.ExtensionWindow, a.End())

	h.clock.Set(a.End())
	_, err = h.market.Auctions.Bid(h.ctx, as(bobAddr), c.ID, big.NewInt(200))
	require.ErrorIs(t, err, domain.ErrAuctionEnded)
}

func TestAntiSnipeExtension(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(2000, 86400, big.NewInt(100)))
	require.NoError(t, err)

	h.clock.Set(2000 + 86400 - 840)
	a, err := h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, int64(86400+60), a.Duration)
	require.Equal(t, h.clock.Now().Unix()+domain.ExtensionWindow, a.End())

	// A bid with more than the window left never shortens the auction.
	h.clock.Set(2000 + 100)
	c2 := h.primary(2, 1)
	_, err = h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c2.ID, liveAuction(2100, 86400, big.NewInt(100)))
	require.NoError(t, err)
	a, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c2.ID, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, int64(86400), a.Duration)
}

func TestOutbidRefundsPreviousBidder(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 3600, big.NewInt(1000)))
	require.NoError(t, err)

	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(999))
	require.ErrorIs(t, err, domain.ErrBelowReserve)
	require.Equal(t, "Bid below reserve price", err.Error())

	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(1000))
	require.NoError(t, err)

	_, err = h.market.Auctions.Bid(h.ctx, as(bobAddr), c.ID, big.NewInt(1049))
	require.ErrorIs(t, err, domain.ErrBidTooSmall)
	require.Equal(t, domain.KindInsufficientValue, domain.KindOf(err))

	// Exactly the threshold is accepted.
	a, err := h.market.Auctions.Bid(h.ctx, as(bobAddr), c.ID, big.NewInt(1050))
	require.NoError(t, err)
	require.Equal(t, bobAddr, a.Buyer)
	require.Equal(t, int64(1050), a.Bid.Int64())
	// Alice's bid came back in full; Bob's is now held in escrow.
	require.Equal(t, purse.String(), h.ledger.BalanceOf(aliceAddr).String())
	require.Equal(t, int64(1050), h.spent(bobAddr))
	require.Equal(t, int64(1050), h.ledger.Escrowed().Int64())
	require.Equal(t, int64(1050), h.consignment(c.ID).PendingPayout.Int64())
}

func TestBidRejections(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(2000, 3600, big.NewInt(100)))
	require.NoError(t, err)

	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrNotStarted)

	h.clock.Set(2000)
	relayed := domain.Caller{Sender: bobAddr, Origin: aliceAddr}
	_, err = h.market.Auctions.Bid(h.ctx, relayed, c.ID, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrContractsForbidden)

	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), 99, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrConsignmentNotFound)

	unlisted := h.primary(2, 1)
	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), unlisted.ID, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)

	h.clock.Set(2000 + 3600)
	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrAuctionEnded)
}

func TestAudienceRestrictedBidding(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 3600, big.NewInt(100)))
	require.NoError(t, err)

	require.ErrorIs(t, h.market.Auctions.ChangeAuctionAudience(h.ctx, as(sellerAddr), c.ID, domain.AudienceStaker), domain.ErrForbidden)
	require.NoError(t, h.market.Auctions.ChangeAuctionAudience(h.ctx, as(adminAddr), c.ID, domain.AudienceStaker))

	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrNotStaker)

	h.staking.SetBalance(aliceAddr, big.NewInt(1))
	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(100))
	require.NoError(t, err)

	require.NoError(t, h.market.Auctions.ChangeAuctionAudience(h.ctx, as(adminAddr), c.ID, domain.AudienceVipStaker))
	h.staking.SetBalance(bobAddr, big.NewInt(99))
	_, err = h.market.Auctions.Bid(h.ctx, as(bobAddr), c.ID, big.NewInt(200))
	require.ErrorIs(t, err, domain.ErrNotVipStaker)

	h.staking.SetBalance(bobAddr, big.NewInt(100))
	_, err = h.market.Auctions.Bid(h.ctx, as(bobAddr), c.ID, big.NewInt(200))
	require.NoError(t, err)
}

func TestCreatePrimaryAuctionChecks(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)

	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(aliceAddr), c.ID, liveAuction(1000, 60, big.NewInt(1)))
	require.ErrorIs(t, err, domain.ErrNotConsignor)

	_, err = h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(999, 60, big.NewInt(1)))
	require.ErrorIs(t, err, domain.ErrInvalidStartTime)

	_, err = h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 0, big.NewInt(1)))
	require.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	a, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 60, big.NewInt(1)))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomePending, a.Outcome)
	require.Zero(t, a.Bid.Sign())
	require.Equal(t, domain.HandlerAuction, h.consignment(c.ID).MarketHandler)

	_, err = h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 60, big.NewInt(1)))
	require.ErrorIs(t, err, domain.ErrAlreadyHandled)
}

func TestCreateSecondaryAuctionPreflightOrder(t *testing.T) {
	h := newHarness(t)
	req := liveAuction(1000, 60, big.NewInt(1))
	id := big.NewInt(7)

	h.vault.Mint(foreignToken, id, sellerAddr, 1)
	_, err := h.market.Auctions.CreateSecondaryAuction(h.ctx, as(sellerAddr), foreignToken, id, req)
	require.ErrorIs(t, err, domain.ErrNotApproved)

	h.vault.SetApprovalForAll(foreignToken, aliceAddr, escrowAddr, true)
	_, err = h.market.Auctions.CreateSecondaryAuction(h.ctx, as(aliceAddr), foreignToken, id, req)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	h.physical.Mark(id)
	h.own(nativeToken, 7, sellerAddr, 1)
	_, err = h.market.Auctions.CreateSecondaryAuction(h.ctx, as(sellerAddr), nativeToken, id, req)
	require.ErrorIs(t, err, domain.ErrForbidden)

	h.own(nativeToken, 7, agentAddr, 1)
	_, err = h.market.Auctions.CreateSecondaryAuction(h.ctx, as(agentAddr), nativeToken, id, req)
	require.NoError(t, err)

	disabled := false
	_, err = h.market.Config.Update(h.ctx, as(adminAddr), MarketConfigPatch{AllowExternalTokensOnSecondary: &disabled})
	require.NoError(t, err)
	h.vault.SetApprovalForAll(foreignToken, sellerAddr, escrowAddr, true)
	_, err = h.market.Auctions.CreateSecondaryAuction(h.ctx, as(sellerAddr), foreignToken, id, req)
	require.ErrorIs(t, err, domain.ErrExternalTokensDisabled)
	require.Equal(t, domain.KindResourceUnavailable, domain.KindOf(err))
	require.Equal(t, uint64(1), h.balance(foreignToken, 7, sellerAddr))
}

func TestCloseAuctionChecks(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 60, big.NewInt(10)))
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	_, _, err = h.market.Auctions.CloseAuction(h.ctx, c.ID)
	require.ErrorIs(t, err, domain.ErrNoBids)

	_, _, err = h.market.Auctions.CloseAuction(h.ctx, 42)
	require.ErrorIs(t, err, domain.ErrConsignmentNotFound)
}

func TestClosePhysicalAuctionIssuesTicket(t *testing.T) {
	h := newHarness(t)
	h.physical.Mark(big.NewInt(5))
	c := h.primary(5, 1)
	require.True(t, c.Physical)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 60, big.NewInt(10)))
	require.NoError(t, err)
	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(10))
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	_, _, err = h.market.Auctions.CloseAuction(h.ctx, c.ID)
	require.NoError(t, err)

	tickets := h.lots.Tickets()
	require.Len(t, tickets, 1)
	require.Equal(t, aliceAddr, tickets[0].Holder)
	require.Equal(t, uint64(1), h.balance(nativeToken, 5, escrowAddr))
}

func TestCloseAuctionRollsBackOnPaymentFailure(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 60, big.NewInt(1000)))
	require.NoError(t, err)
	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(1000))
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	h.ledger.Reject(sellerAddr, true)
	_, _, err = h.market.Auctions.CloseAuction(h.ctx, c.ID)
	require.ErrorIs(t, err, domain.ErrPaymentFailed)

	a := h.auction(c.ID)
	require.Equal(t, domain.StateRunning, a.State)
	require.Equal(t, domain.OutcomePending, a.Outcome)
	require.Equal(t, int64(1000), h.consignment(c.ID).PendingPayout.Int64())
	require.Zero(t, h.ledger.BalanceOf(multisigAddr).Sign())
	require.Equal(t, uint64(1), h.balance(nativeToken, 1, escrowAddr))

	h.ledger.Reject(sellerAddr, false)
	_, _, err = h.market.Auctions.CloseAuction(h.ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), h.balance(nativeToken, 1, aliceAddr))
}

func TestOutbidRollsBackWhenRefundFails(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 3600, big.NewInt(100)))
	require.NoError(t, err)
	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(100))
	require.NoError(t, err)

	h.ledger.Reject(aliceAddr, true)
	_, err = h.market.Auctions.Bid(h.ctx, as(bobAddr), c.ID, big.NewInt(200))
	require.ErrorIs(t, err, domain.ErrPaymentFailed)

	a := h.auction(c.ID)
	require.Equal(t, aliceAddr, a.Buyer)
	require.Equal(t, int64(100), a.Bid.Int64())
	require.Equal(t, int64(100), h.consignment(c.ID).PendingPayout.Int64())
	require.Zero(t, h.spent(bobAddr))
	require.Equal(t, int64(100), h.ledger.Escrowed().Int64())
}

func TestCancelAuction(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 3600, big.NewInt(100)))
	require.NoError(t, err)
	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(100))
	require.NoError(t, err)

	_, err = h.market.Auctions.CancelAuction(h.ctx, as(bobAddr), c.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	next, err := h.market.Registry.GetNextConsignment(h.ctx)
	require.NoError(t, err)

	a, err := h.market.Auctions.CancelAuction(h.ctx, as(sellerAddr), c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateEnded, a.State)
	require.Equal(t, domain.OutcomeCanceled, a.Outcome)
	require.Equal(t, purse.String(), h.ledger.BalanceOf(aliceAddr).String())
	require.Zero(t, h.ledger.Escrowed().Sign())
	require.Equal(t, uint64(1), h.balance(nativeToken, 1, sellerAddr))
	require.True(t, h.consignment(c.ID).Released)

	_, err = h.market.Auctions.CancelAuction(h.ctx, as(adminAddr), c.ID)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)

	err = h.market.Auctions.ChangeAuctionAudience(h.ctx, as(adminAddr), c.ID, domain.AudienceStaker)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)

	after, err := h.market.Registry.GetNextConsignment(h.ctx)
	require.NoError(t, err)
	require.Equal(t, next, after)
	h.primary(2, 1)
	after, err = h.market.Registry.GetNextConsignment(h.ctx)
	require.NoError(t, err)
	require.Equal(t, next+1, after)
}

func TestCloseExpired(t *testing.T) {
	h := newHarness(t)
	bid := h.primary(1, 1)
	idle := h.primary(2, 1)
	for _, id := range []uint64{bid.ID, idle.ID} {
		_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), id, liveAuction(1000, 60, big.NewInt(10)))
		require.NoError(t, err)
	}
	_, err := h.market.Auctions.Bid(h.ctx, as(aliceAddr), bid.ID, big.NewInt(10))
	require.NoError(t, err)

	closed, err := h.market.Auctions.CloseExpired(h.ctx)
	require.NoError(t, err)
	require.Zero(t, closed)

	h.clock.Advance(time.Hour)
	closed, err = h.market.Auctions.CloseExpired(h.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, closed)
	require.Equal(t, domain.OutcomeClosed, h.auction(bid.ID).Outcome)
	require.Equal(t, domain.OutcomePending, h.auction(idle.ID).Outcome)
}

func TestAuctionInvariantsHoldAcrossBids(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 3600, big.NewInt(100)))
	require.NoError(t, err)

	prev := h.auction(c.ID).State
	value := big.NewInt(100)
	for i := 0; i < 5; i++ {
		bidder := aliceAddr
		if i%2 == 1 {
			bidder = bobAddr
		}
		a, err := h.market.Auctions.Bid(h.ctx, as(bidder), c.ID, value)
		require.NoError(t, err)
		require.True(t, a.Bid.Cmp(a.Reserve) >= 0)
		require.False(t, a.State.Precedes(prev), "state regressed")
		prev = a.State
		value = new(big.Int).Add(value, big.NewInt(100))
		h.clock.Advance(time.Minute)
	}
	c = h.consignment(c.ID)
	require.LessOrEqual(t, c.ReleasedSupply, c.Supply)
}

func TestBidCollectsFunds(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 3600, big.NewInt(100)))
	require.NoError(t, err)

	_, err = h.market.Auctions.Bid(h.ctx, as(carolAddr), c.ID, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrNoFunds)
	require.Equal(t, domain.KindInsufficientValue, domain.KindOf(err))
	a := h.auction(c.ID)
	require.False(t, a.HasBid())
	require.Zero(t, h.consignment(c.ID).PendingPayout.Sign())

	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, int64(100), h.spent(aliceAddr))

	h.clock.Set(1000 + 3600)
	_, s, err := h.market.Auctions.CloseAuction(h.ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), h.spent(aliceAddr))

	// Everything collected was paid out except rounding dust.
	require.Equal(t, s.Dust.String(), h.ledger.Escrowed().String())
}

func TestBidRejectedAfterRelease(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(1000, 3600, big.NewInt(100)))
	require.NoError(t, err)
	require.NoError(t, h.market.Registry.ReleaseConsignment(h.ctx, as(adminAddr), c.ID, 1, sellerAddr))

	_, err = h.market.Auctions.Bid(h.ctx, as(aliceAddr), c.ID, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrReleased)
	require.Zero(t, h.spent(aliceAddr))
}

func TestGetAuctionReportsLiveAuctionRunning(t *testing.T) {
	h := newHarness(t)
	c := h.primary(1, 1)
	_, err := h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c.ID, liveAuction(2000, 3600, big.NewInt(100)))
	require.NoError(t, err)
	require.Equal(t, domain.StatePending, h.auction(c.ID).State)

	h.clock.Set(2000)
	require.Equal(t, domain.StateRunning, h.auction(c.ID).State)

	c2 := h.primary(2, 1)
	_, err = h.market.Auctions.CreatePrimaryAuction(h.ctx, as(sellerAddr), c2.ID, AuctionRequest{
		Start: 2000, Duration: 60, Reserve: big.NewInt(100),
		Audience: domain.AudienceOpen, Clock: domain.ClockTriggered,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatePending, h.auction(c2.ID).State)
}
