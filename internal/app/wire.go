package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/auctionhouse/internal/blob/s3"
	memcache "github.com/alanyoungcy/auctionhouse/internal/cache/memory"
	"github.com/alanyoungcy/auctionhouse/internal/cache/redis"
	"github.com/alanyoungcy/auctionhouse/internal/config"
	"github.com/alanyoungcy/auctionhouse/internal/crypto"
	"github.com/alanyoungcy/auctionhouse/internal/custody"
	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/metrics"
	"github.com/alanyoungcy/auctionhouse/internal/notify"
	"github.com/alanyoungcy/auctionhouse/internal/platform/evm"
	"github.com/alanyoungcy/auctionhouse/internal/server/handler"
	"github.com/alanyoungcy/auctionhouse/internal/service"
	memstore "github.com/alanyoungcy/auctionhouse/internal/store/memory"
	"github.com/alanyoungcy/auctionhouse/internal/store/postgres"
)

// Chat APIs allow roughly twenty messages a minute per channel.
const (
	notifyBurst  = 20
	notifyWindow = time.Minute
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Consignments domain.ConsignmentStore
	Auctions     domain.AuctionStore
	Sales        domain.SaleStore
	Settlements  domain.SettlementStore
	ConfigStore  domain.MarketConfigStore
	AuditStore   domain.AuditStore

	// Coordination
	RateLimiter   domain.RateLimiter
	NotifyLimiter domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Custody
	Vault    *custody.Vault
	Ledger   *custody.Ledger
	Operator common.Address

	// Notifications
	Notifier *notify.Notifier
	Queue    *notify.Queue

	// Observability
	Registry *prometheus.Registry
	Health   map[string]handler.Pinger

	Market *service.Market
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(step string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", step, err)
	}

	deps := &Dependencies{
		Health: make(map[string]handler.Pinger),
	}

	// --- Stores ---
	if cfg.UsesPostgres() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.Consignments = postgres.NewConsignmentStore(pool)
		deps.Auctions = postgres.NewAuctionStore(pool)
		deps.Sales = postgres.NewSaleStore(pool)
		deps.Settlements = postgres.NewSettlementStore(pool)
		deps.ConfigStore = postgres.NewMarketConfigStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pool.Ping
	} else {
		deps.Consignments = memstore.NewConsignmentStore()
		deps.Auctions = memstore.NewAuctionStore()
		deps.Sales = memstore.NewSaleStore()
		deps.Settlements = memstore.NewSettlementStore()
		deps.ConfigStore = memstore.NewMarketConfigStore()
		deps.AuditStore = memstore.NewAuditStore()
	}

	// --- Locks, rate limits and events ---
	if cfg.UsesRedis() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
		deps.NotifyLimiter = redis.NewRateLimiter(redisClient, notifyBurst, notifyWindow)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.Health["redis"] = redisClient.Ping
	} else {
		deps.LockManager = memcache.NewKeyedLock()
		deps.RateLimiter = memcache.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
		deps.NotifyLimiter = memcache.NewRateLimiter(notifyBurst, notifyWindow)
		deps.SignalBus = memcache.NewSignalBus(int(cfg.Redis.StreamMaxLen))
	}

	// --- S3 archive ---
	if cfg.UsesS3() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client, int64(cfg.S3.PartSizeMB)<<20)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Health["s3"] = s3Client.Health

		settlements, ok := deps.Settlements.(s3blob.SettlementSource)
		if !ok {
			return fail("archive", fmt.Errorf("settlement store %T cannot list by date", deps.Settlements))
		}
		auctions, ok := deps.Auctions.(s3blob.AuctionSource)
		if !ok {
			return fail("archive", fmt.Errorf("auction store %T cannot list ended auctions", deps.Auctions))
		}
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, settlements, auctions, deps.AuditStore, logger)
	}

	// --- Escrow operator and custody ---
	operator, err := operatorAddress(cfg.Chain)
	if err != nil {
		return fail("operator key", err)
	}
	deps.Operator = operator
	deps.Vault = custody.NewVault(operator)
	deps.Ledger = custody.NewLedger()

	initial, err := cfg.Market.Configuration()
	if err != nil {
		return fail("market configuration", err)
	}
	if initial.NativeTokenAddress != (common.Address{}) {
		deps.Vault.RegisterToken(initial.NativeTokenAddress, true)
	}

	var staking domain.StakingOracle = custody.NewStakingTable()
	var royalties domain.RoyaltyRegistry = custody.NewRoyaltyBook()
	if cfg.Chain.RPCURL != "" {
		eth, err := evm.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fail("chain", err)
		}
		closers = append(closers, eth.Close)
		token := initial.StakingAddress
		if cfg.Chain.StakingToken != "" {
			token = common.HexToAddress(cfg.Chain.StakingToken)
		}
		staking = evm.NewStakingOracle(eth, token)
		if cfg.Chain.RoyaltyLookup {
			royalties = evm.NewRoyaltyRegistry(eth)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Queue = notify.NewQueue(deps.Notifier, cfg.Notify.QueueSize, logger).
		WithLimiter(deps.NotifyLimiter, "notify:chat")

	// --- Metrics ---
	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// --- Market ---
	grants, err := cfg.Roles.Grants()
	if err != nil {
		return fail("roles", err)
	}
	market, err := service.NewMarket(ctx, service.Deps{
		Consignments: deps.Consignments,
		Auctions:     deps.Auctions,
		Sales:        deps.Sales,
		Settlements:  deps.Settlements,
		ConfigStore:  deps.ConfigStore,
		Audit:        deps.AuditStore,
		Custody:      deps.Vault,
		Funds:        deps.Ledger,
		Staking:      staking,
		Royalties:    royalties,
		Physical:     custody.NewPhysicalSet(),
		Ticketers: map[domain.TicketerType]domain.EscrowTicketer{
			domain.TicketerLots:  custody.NewTicketer(domain.TicketerLots),
			domain.TicketerItems: custody.NewTicketer(domain.TicketerItems),
		},
		Locks:    deps.LockManager,
		Bus:      deps.SignalBus,
		Notifier: deps.Queue,
		Clock:    custody.SystemClock{},
		Metrics:  metrics.NewMarket(deps.Registry),
		Logger:   logger,
	}, initial, grants)
	if err != nil {
		return fail("market", err)
	}
	deps.Market = market

	return deps, cleanup, nil
}

// operatorAddress resolves the escrow account. Without a configured key the
// vault runs under the zero address, which only suits the memory mode.
func operatorAddress(chain config.ChainConfig) (common.Address, error) {
	keyCfg := crypto.KeyConfig{
		RawPrivateKey:    chain.OperatorKey,
		EncryptedKeyPath: chain.OperatorKeyFile,
		KeyPassword:      chain.OperatorKeyPassword,
	}
	if !keyCfg.Configured() {
		return common.Address{}, nil
	}
	hexKey, err := crypto.LoadKey(keyCfg)
	if err != nil {
		return common.Address{}, err
	}
	signer, err := crypto.NewSigner(hexKey)
	if err != nil {
		return common.Address{}, err
	}
	return signer.Address(), nil
}
