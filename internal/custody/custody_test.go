package custody

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	escrow = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	nft    = common.HexToAddress("0x0000000000000000000000000000000000000f00")
)

func TestLedgerPayRejectReverse(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	require.NoError(t, l.Pay(ctx, alice, big.NewInt(10)))
	require.Equal(t, int64(10), l.BalanceOf(alice).Int64())

	l.Reject(bob, true)
	require.ErrorIs(t, l.Pay(ctx, bob, big.NewInt(1)), ErrRecipientRejected)

	require.NoError(t, l.Reverse(ctx, alice, big.NewInt(4)))
	require.Equal(t, int64(6), l.BalanceOf(alice).Int64())
	require.ErrorIs(t, l.Reverse(ctx, alice, big.NewInt(7)), ErrInsufficientFunds)
}

func TestLedgerCollectAndReturn(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.Error(t, l.Deposit(alice, big.NewInt(0)))
	require.NoError(t, l.Deposit(alice, big.NewInt(100)))

	err := l.Collect(ctx, alice, big.NewInt(101))
	require.ErrorIs(t, err, domain.ErrNoFunds)
	require.Equal(t, domain.KindInsufficientValue, domain.KindOf(err))

	require.NoError(t, l.Collect(ctx, alice, big.NewInt(60)))
	require.Equal(t, int64(40), l.BalanceOf(alice).Int64())
	require.Equal(t, int64(60), l.Escrowed().Int64())

	// Return ignores the reject flag so a failed operation can always unwind.
	l.Reject(alice, true)
	require.NoError(t, l.Return(ctx, alice, big.NewInt(10)))
	l.Reject(alice, false)

	require.NoError(t, l.Pay(ctx, bob, big.NewInt(50)))
	require.Equal(t, int64(50), l.BalanceOf(alice).Int64())
	require.Equal(t, int64(50), l.BalanceOf(bob).Int64())
	require.Zero(t, l.Escrowed().Sign())
}

func TestVaultDepositWithdraw(t *testing.T) {
	ctx := context.Background()
	v := NewVault(escrow)
	id := big.NewInt(3)

	require.Error(t, v.Deposit(ctx, nft, id, 0))
	require.NoError(t, v.Deposit(ctx, nft, id, 4))
	n, err := v.BalanceOf(ctx, nft, id, escrow)
	require.NoError(t, err)
	require.Equal(t, uint64(4), n)

	multi, err := v.IsMultiToken(ctx, nft)
	require.NoError(t, err)
	require.True(t, multi)

	require.NoError(t, v.Withdraw(ctx, nft, id, 4))
	require.ErrorIs(t, v.Withdraw(ctx, nft, id, 1), ErrBalanceTooLow)
}

func TestVaultTransfers(t *testing.T) {
	ctx := context.Background()
	v := NewVault(escrow)
	id := big.NewInt(100)
	v.RegisterToken(nft, false)
	v.Mint(nft, id, alice, 1)

	require.ErrorIs(t, v.TransferIn(ctx, nft, id, alice, 1), ErrNotApproved)
	v.SetApprovalForAll(nft, alice, escrow, true)
	require.NoError(t, v.TransferIn(ctx, nft, id, alice, 1))

	held, err := v.BalanceOf(ctx, nft, id, escrow)
	require.NoError(t, err)
	require.Equal(t, uint64(1), held)

	require.NoError(t, v.TransferOut(ctx, nft, id, bob, 1))
	require.ErrorIs(t, v.TransferOut(ctx, nft, id, bob, 1), ErrBalanceTooLow)
	require.NoError(t, v.Reclaim(ctx, nft, id, bob, 1))

	multi, err := v.IsMultiToken(ctx, nft)
	require.NoError(t, err)
	require.False(t, multi)
	_, err = v.IsMultiToken(ctx, bob)
	require.ErrorIs(t, err, ErrUnknownStandard)
}

func TestTicketerKinds(t *testing.T) {
	ctx := context.Background()

	lots := NewTicketer(domain.TicketerLots)
	require.NoError(t, lots.IssueTicket(ctx, 1, 5, alice))
	require.Len(t, lots.Tickets(), 1)

	items := NewTicketer(domain.TicketerItems)
	require.NoError(t, items.IssueTicket(ctx, 1, 3, alice))
	require.Len(t, items.Tickets(), 3)

	require.NoError(t, items.RevokeTicket(ctx, 1, 3, alice))
	require.Empty(t, items.Tickets())
	require.Error(t, lots.RevokeTicket(ctx, 1, 5, bob))
}

func TestRoyaltyBookPrefersPerIDEntry(t *testing.T) {
	ctx := context.Background()
	b := NewRoyaltyBook()
	b.SetDefault(nft, alice, 500)
	b.Set(nft, big.NewInt(7), bob, 1000)

	creator, bps, err := b.RoyaltyInfo(ctx, nft, big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, bob, creator)
	require.Equal(t, uint16(1000), bps)

	creator, bps, err = b.RoyaltyInfo(ctx, nft, big.NewInt(8))
	require.NoError(t, err)
	require.Equal(t, alice, creator)
	require.Equal(t, uint16(500), bps)
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(1000)
	require.Equal(t, int64(1000), c.Now().Unix())
	c.Advance(90 * time.Second)
	require.Equal(t, int64(1090), c.Now().Unix())
	c.Set(5)
	require.Equal(t, int64(5), c.Now().Unix())
}
