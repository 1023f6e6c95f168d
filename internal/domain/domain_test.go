package domain

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestErrorMatching(t *testing.T) {
	wrapped := fmt.Errorf("service: bid: %w", ErrBelowReserve)
	require.ErrorIs(t, wrapped, ErrBelowReserve)
	require.NotErrorIs(t, wrapped, ErrBidTooSmall)
	require.Equal(t, KindInsufficientValue, KindOf(wrapped))
	require.Equal(t, "below_reserve", CodeOf(wrapped))

	specific := WithReason(ErrInvalidInput, "token id is required")
	require.ErrorIs(t, specific, ErrInvalidInput)
	require.Equal(t, "token id is required", specific.Error())

	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.Equal(t, "", CodeOf(ErrNotFound))
}

func TestStateOrder(t *testing.T) {
	require.True(t, StatePending.Precedes(StateRunning))
	require.True(t, StateRunning.Precedes(StateEnded))
	require.False(t, StateEnded.Precedes(StateRunning))
	require.False(t, StateRunning.Precedes(StateRunning))
}

func TestClockModeAndObservedState(t *testing.T) {
	require.True(t, ClockLive.Valid())
	require.True(t, ClockTriggered.Valid())
	require.False(t, ClockMode("manual").Valid())

	live := Auction{Clock: ClockLive, Start: 100, Duration: 50, State: StatePending, Outcome: OutcomePending}
	require.Equal(t, StatePending, live.StateAt(99))
	require.Equal(t, StateRunning, live.StateAt(100))

	triggered := live
	triggered.Clock = ClockTriggered
	require.Equal(t, StatePending, triggered.StateAt(500))

	canceled := live
	canceled.Outcome = OutcomeCanceled
	require.Equal(t, StatePending, canceled.StateAt(120))
}

func TestFeeAndOutbidMath(t *testing.T) {
	cfg := MarketConfiguration{PrimaryFeeBps: 1500, SecondaryFeeBps: 500, OutBidBps: 500}

	require.Equal(t, uint16(1500), cfg.FeeBps(Consignment{Market: MarketPrimary}))
	require.Equal(t, uint16(500), cfg.FeeBps(Consignment{Market: MarketSecondary}))
	require.Equal(t, uint16(42), cfg.FeeBps(Consignment{Market: MarketPrimary, CustomFeeBps: 42}))

	// 5% of 19 truncates to 0, so the minimum outbid equals the current bid.
	require.Equal(t, int64(19), cfg.MinimumOutbid(big.NewInt(19)).Int64())
	require.Equal(t, int64(105), cfg.MinimumOutbid(big.NewInt(100)).Int64())

	require.Equal(t, int64(0), ApplyBps(nil, 100).Int64())
	require.Equal(t, int64(33), ApplyBps(big.NewInt(333), 1000).Int64())
	require.True(t, ValidBps(10_000))
	require.False(t, ValidBps(10_001))
}

func TestConsignmentClone(t *testing.T) {
	c := Consignment{Supply: 5, ReleasedSupply: 2, TokenID: big.NewInt(9), PendingPayout: big.NewInt(7)}
	require.Equal(t, uint64(3), c.UnreleasedSupply())

	cp := c.Clone()
	cp.PendingPayout.SetInt64(0)
	require.Equal(t, int64(7), c.PendingPayout.Int64())

	require.Equal(t, uint64(0), Consignment{Supply: 1, ReleasedSupply: 4}.UnreleasedSupply())
	require.NotNil(t, Consignment{}.Clone().PendingPayout)
}

func TestEventChannels(t *testing.T) {
	tests := []struct {
		typ  EventType
		want string
	}{
		{EventConsignmentRegistered, ChannelConsignment},
		{EventPurchase, ChannelSale},
		{EventSettlement, ChannelSettlement},
		{EventMarketConfigChanged, ChannelConfig},
		{EventRoleChanged, ChannelConfig},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, Event{Type: tc.typ}.Channel(), string(tc.typ))
	}
}

func TestCallerIsContract(t *testing.T) {
	eoa := common.HexToAddress("0x01")
	relay := common.HexToAddress("0x02")
	require.False(t, NewCaller(eoa).IsContract())
	require.True(t, Caller{Sender: relay, Origin: eoa}.IsContract())
}
