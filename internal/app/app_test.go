package app

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/auctionhouse/internal/config"
	"github.com/alanyoungcy/auctionhouse/internal/crypto"
	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/service"
)

const operatorKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var nativeToken = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func memoryConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Mode = "memory"
	cfg.Market.StakingAddress = "0x000000000000000000000000000000000000057a"
	cfg.Market.MultisigAddress = "0x000000000000000000000000000000000000f1f1"
	cfg.Market.NativeTokenAddress = nativeToken.Hex()
	cfg.Roles.Admin = []string{"0x0000000000000000000000000000000000000aD1"}
	cfg.Chain.OperatorKey = operatorKey
	cfg.Server.Enabled = false
	return &cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireMemoryMode(t *testing.T) {
	cfg := memoryConfig()
	require.NoError(t, cfg.Validate())

	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, deps.Market)
	require.Nil(t, deps.Archiver)
	require.Empty(t, deps.Health)

	signer, err := crypto.NewSigner(operatorKey)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), deps.Operator)
	require.Equal(t, signer.Address(), deps.Vault.Operator())

	multi, err := deps.Vault.IsMultiToken(context.Background(), nativeToken)
	require.NoError(t, err)
	require.True(t, multi)

	snap := deps.Market.Config.Snapshot()
	require.Equal(t, uint64(1), snap.Version)
	require.Equal(t, 0, snap.VipStakerAmount.Cmp(mustBig(t, cfg.Market.VipStakerAmount)))
	require.True(t, deps.Market.Access.HasRole(common.HexToAddress(cfg.Roles.Admin[0]), domain.RoleAdmin))
}

func TestWireRejectsBadRoles(t *testing.T) {
	cfg := memoryConfig()
	cfg.Roles.Seller = []string{"not-an-address"}
	_, _, err := Wire(context.Background(), cfg, quietLogger())
	require.Error(t, err)
}

func TestArchiveModeNeedsStorage(t *testing.T) {
	cfg := memoryConfig()
	a := New(cfg, quietLogger())
	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	require.Error(t, a.ArchiveMode(context.Background(), deps))
}

func TestServerModeStopsOnCancel(t *testing.T) {
	cfg := memoryConfig()
	cfg.Market.CloseInterval.Duration = 10 * time.Millisecond
	a := New(cfg, quietLogger())
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, a.Run(ctx))
}

func TestWiredMarketReleasesConsignedTokens(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	deps, cleanup, err := Wire(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	m := deps.Market
	require.NotNil(t, m.Treasury)
	admin := domain.NewCaller(common.HexToAddress(cfg.Roles.Admin[0]))
	seller := common.HexToAddress("0x00000000000000000000000000000000000005e1")
	bidder := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	token := common.HexToAddress("0x000000000000000000000000000000000000dEaD")

	c, err := m.Registry.RegisterConsignment(ctx, admin, service.RegisterRequest{
		Market: domain.MarketPrimary, Seller: seller, Token: token, TokenID: big.NewInt(1), Supply: 1,
	})
	require.NoError(t, err)
	held, err := deps.Vault.BalanceOf(ctx, token, big.NewInt(1), deps.Operator)
	require.NoError(t, err)
	require.Equal(t, uint64(1), held)

	require.NoError(t, m.Treasury.Deposit(ctx, admin, bidder, big.NewInt(1000)))
	_, err = m.Auctions.CreatePrimaryAuction(ctx, domain.NewCaller(seller), c.ID, service.AuctionRequest{
		Start:    time.Now().Unix() + 60,
		Duration: 3600,
		Reserve:  big.NewInt(100),
		Audience: domain.AudienceOpen,
		Clock:    domain.ClockTriggered,
	})
	require.NoError(t, err)
	_, err = m.Auctions.Bid(ctx, domain.NewCaller(bidder), c.ID, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, int64(900), deps.Ledger.BalanceOf(bidder).Int64())

	_, err = m.Auctions.CancelAuction(ctx, admin, c.ID)
	require.NoError(t, err)
	returned, err := deps.Vault.BalanceOf(ctx, token, big.NewInt(1), seller)
	require.NoError(t, err)
	require.Equal(t, uint64(1), returned)
	require.Equal(t, int64(1000), deps.Ledger.BalanceOf(bidder).Int64())
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}
