package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"testing"

	memcache "github.com/alanyoungcy/auctionhouse/internal/cache/memory"
	"github.com/alanyoungcy/auctionhouse/internal/custody"
	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/metrics"
	memstore "github.com/alanyoungcy/auctionhouse/internal/store/memory"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	adminAddr    = common.HexToAddress("0x0000000000000000000000000000000000000ad1")
	minterAddr   = common.HexToAddress("0x000000000000000000000000000000000000a11e")
	agentAddr    = common.HexToAddress("0x000000000000000000000000000000000000a9e7")
	sellerAddr   = common.HexToAddress("0x00000000000000000000000000000000000005e1")
	aliceAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bobAddr      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	creatorAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c7")
	multisigAddr = common.HexToAddress("0x000000000000000000000000000000000000f1f1")
	stakingAddr  = common.HexToAddress("0x000000000000000000000000000000000000057a")
	escrowAddr   = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	nativeToken  = common.HexToAddress("0x0000000000000000000000000000000000005eea")
	foreignToken = common.HexToAddress("0x000000000000000000000000000000000000f0e1")
	carolAddr    = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

// purse is what every funded bidder starts with.
var purse = eth(1000)

type harness struct {
	t         *testing.T
	ctx       context.Context
	market    *Market
	clock     *custody.ManualClock
	ledger    *custody.Ledger
	vault     *custody.Vault
	staking   *custody.StakingTable
	royalties *custody.RoyaltyBook
	physical  *custody.PhysicalSet
	lots      *custody.Ticketer
	items     *custody.Ticketer
	bus       *memcache.SignalBus
	audit     *memstore.AuditStore
	auctions  *memstore.AuctionStore
}

func testConfig() domain.MarketConfiguration {
	return domain.MarketConfiguration{
		StakingAddress:                 stakingAddr,
		MultisigAddress:                multisigAddr,
		NativeTokenAddress:             nativeToken,
		VipStakerAmount:                big.NewInt(100),
		PrimaryFeeBps:                  500,
		SecondaryFeeBps:                250,
		MaxRoyaltyBps:                  5000,
		OutBidBps:                      500,
		DefaultTicketer:                domain.TicketerLots,
		AllowExternalTokensOnSecondary: true,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		ctx:       context.Background(),
		clock:     custody.NewManualClock(1_000),
		ledger:    custody.NewLedger(),
		vault:     custody.NewVault(escrowAddr),
		staking:   custody.NewStakingTable(),
		royalties: custody.NewRoyaltyBook(),
		physical:  custody.NewPhysicalSet(),
		lots:      custody.NewTicketer(domain.TicketerLots),
		items:     custody.NewTicketer(domain.TicketerItems),
		bus:       memcache.NewSignalBus(0),
		audit:     memstore.NewAuditStore(),
		auctions:  memstore.NewAuctionStore(),
	}
	h.vault.RegisterToken(nativeToken, true)
	h.vault.RegisterToken(foreignToken, false)

	m, err := NewMarket(h.ctx, Deps{
		Consignments: memstore.NewConsignmentStore(),
		Auctions:     h.auctions,
		Sales:        memstore.NewSaleStore(),
		Settlements:  memstore.NewSettlementStore(),
		ConfigStore:  memstore.NewMarketConfigStore(),
		Audit:        h.audit,
		Custody:      h.vault,
		Funds:        h.ledger,
		Staking:      h.staking,
		Royalties:    h.royalties,
		Physical:     h.physical,
		Ticketers: map[domain.TicketerType]domain.EscrowTicketer{
			domain.TicketerLots:  h.lots,
			domain.TicketerItems: h.items,
		},
		Locks:   memcache.NewKeyedLock(),
		Bus:     h.bus,
		Clock:   h.clock,
		Metrics: metrics.NewMarket(nil),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, testConfig(), map[domain.Role][]common.Address{
		domain.RoleAdmin:       {adminAddr},
		domain.RoleMinter:      {minterAddr},
		domain.RoleEscrowAgent: {agentAddr},
	})
	require.NoError(t, err)
	h.market = m
	for _, bidder := range []common.Address{aliceAddr, bobAddr} {
		require.NoError(t, h.ledger.Deposit(bidder, purse))
	}
	return h
}

func as(addr common.Address) domain.Caller {
	return domain.NewCaller(addr)
}

func eth(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1e18))
}

// primary registers supply units of a native token, consigned by the
// seller. Registration deposits the units into escrow.
func (h *harness) primary(tokenID int64, supply uint64) domain.Consignment {
	h.t.Helper()
	id := big.NewInt(tokenID)
	c, err := h.market.Registry.RegisterConsignment(h.ctx, as(minterAddr), RegisterRequest{
		Market:    domain.MarketPrimary,
		Consignor: sellerAddr,
		Seller:    sellerAddr,
		Token:     nativeToken,
		TokenID:   id,
		Supply:    supply,
	})
	require.NoError(h.t, err)
	return c
}

// own mints units of token to owner and approves the escrow operator.
func (h *harness) own(token common.Address, tokenID int64, owner common.Address, amount uint64) {
	h.vault.Mint(token, big.NewInt(tokenID), owner, amount)
	h.vault.SetApprovalForAll(token, owner, escrowAddr, true)
}

// spent is how much of its purse account has paid in.
func (h *harness) spent(account common.Address) int64 {
	h.t.Helper()
	return new(big.Int).Sub(purse, h.ledger.BalanceOf(account)).Int64()
}

func (h *harness) balance(token common.Address, tokenID int64, owner common.Address) uint64 {
	h.t.Helper()
	n, err := h.vault.BalanceOf(h.ctx, token, big.NewInt(tokenID), owner)
	require.NoError(h.t, err)
	return n
}

func (h *harness) consignment(id uint64) domain.Consignment {
	h.t.Helper()
	c, err := h.market.Registry.GetConsignment(h.ctx, id)
	require.NoError(h.t, err)
	return c
}

func (h *harness) auction(id uint64) domain.Auction {
	h.t.Helper()
	a, err := h.market.Auctions.GetAuction(h.ctx, id)
	require.NoError(h.t, err)
	return a
}

func liveAuction(start, duration int64, reserve *big.Int) AuctionRequest {
	return AuctionRequest{
		Start:    start,
		Duration: duration,
		Reserve:  reserve,
		Audience: domain.AudienceOpen,
		Clock:    domain.ClockLive,
	}
}

func eventTypes(t *testing.T, msgs []domain.StreamMessage) []domain.EventType {
	t.Helper()
	out := make([]domain.EventType, 0, len(msgs))
	for _, m := range msgs {
		var evt domain.Event
		require.NoError(t, json.Unmarshal(m.Payload, &evt))
		out = append(out, evt.Type)
	}
	return out
}
