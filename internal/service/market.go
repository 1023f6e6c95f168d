package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
)

// Deps bundles the stores and collaborators the market components share.
type Deps struct {
	Consignments domain.ConsignmentStore
	Auctions     domain.AuctionStore
	Sales        domain.SaleStore
	Settlements  domain.SettlementStore
	ConfigStore  domain.MarketConfigStore
	Audit        domain.AuditStore

	Custody   domain.TokenCustody
	Funds     domain.FundTransfer
	Staking   domain.StakingOracle
	Royalties domain.RoyaltyRegistry
	Physical  domain.PhysicalRegistry
	Ticketers map[domain.TicketerType]domain.EscrowTicketer

	Locks    domain.LockManager
	Bus      domain.SignalBus
	Notifier Notifier
	Clock    domain.Clock
	Metrics  *metrics.Market
	Logger   *slog.Logger
}

// Market is the assembled set of market components.
type Market struct {
	Access     *AccessControl
	Config     *MarketConfig
	Gate       *AudienceGate
	Registry   *ConsignmentRegistry
	Settlement *SettlementEngine
	Auctions   *AuctionEngine
	Sales      *SaleEngine
	Emitter    *Emitter
	// Treasury is nil unless custody and funds are the in-process book.
	Treasury *Treasury
}

// NewMarket wires every component around one shared configuration and
// lock manager. initial seeds the configuration when none is persisted.
func NewMarket(ctx context.Context, d Deps, initial domain.MarketConfiguration, grants map[domain.Role][]common.Address) (*Market, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	component := func(name string) *slog.Logger {
		return logger.With(slog.String("component", name))
	}

	emitter := NewEmitter(d.Bus, d.Audit, d.Notifier, d.Clock, component("events"))
	access := NewAccessControl(grants, emitter, component("access"))
	config, err := NewMarketConfig(ctx, initial, d.ConfigStore, access, emitter, d.Clock, component("market_config"))
	if err != nil {
		return nil, err
	}
	gate := NewAudienceGate(d.Staking, config)
	locks := consignmentLocks{locks: d.Locks, metrics: d.Metrics}

	registry := &ConsignmentRegistry{
		store:     d.Consignments,
		custody:   d.Custody,
		physical:  d.Physical,
		ticketers: d.Ticketers,
		config:    config,
		access:    access,
		locks:     locks,
		emitter:   emitter,
		clock:     d.Clock,
		metrics:   d.Metrics,
		logger:    component("registry"),
	}
	settlement := &SettlementEngine{
		registry:    registry,
		settlements: d.Settlements,
		funds:       d.Funds,
		royalties:   d.Royalties,
		config:      config,
		access:      access,
		emitter:     emitter,
		clock:       d.Clock,
		metrics:     d.Metrics,
		logger:      component("settlement"),
	}

	return &Market{
		Access:     access,
		Config:     config,
		Gate:       gate,
		Registry:   registry,
		Settlement: settlement,
		Auctions: &AuctionEngine{
			registry:   registry,
			auctions:   d.Auctions,
			settlement: settlement,
			gate:       gate,
			config:     config,
			access:     access,
			funds:      d.Funds,
			emitter:    emitter,
			clock:      d.Clock,
			metrics:    d.Metrics,
			logger:     component("auction"),
		},
		Sales: &SaleEngine{
			registry:   registry,
			sales:      d.Sales,
			settlement: settlement,
			gate:       gate,
			access:     access,
			funds:      d.Funds,
			emitter:    emitter,
			clock:      d.Clock,
			metrics:    d.Metrics,
			logger:     component("sale"),
		},
		Emitter:  emitter,
		Treasury: newTreasury(d.Custody, d.Funds, access, emitter, component("treasury")),
	}, nil
}
