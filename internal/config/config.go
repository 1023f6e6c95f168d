// Package config defines the auctiond configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by AUCTIOND_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Roles    RolesConfig    `toml:"roles"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Chain    ChainConfig    `toml:"chain"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	// Store selects the persistence backend: postgres or memory.
	Store string `toml:"store"`
	// Lock selects the per-consignment lock and event bus: redis or memory.
	Lock string `toml:"lock"`
}

// MarketConfig seeds the market configuration on first start. Once stored,
// the persisted configuration wins and changes go through the admin API.
type MarketConfig struct {
	StakingAddress                 string   `toml:"staking_address"`
	MultisigAddress                string   `toml:"multisig_address"`
	NativeTokenAddress             string   `toml:"native_token_address"`
	VipStakerAmount                string   `toml:"vip_staker_amount"`
	PrimaryFeeBps                  int      `toml:"primary_fee_bps"`
	SecondaryFeeBps                int      `toml:"secondary_fee_bps"`
	MaxRoyaltyBps                  int      `toml:"max_royalty_bps"`
	OutBidBps                      int      `toml:"outbid_bps"`
	DefaultTicketer                string   `toml:"default_ticketer"`
	AllowExternalTokensOnSecondary bool     `toml:"allow_external_tokens_on_secondary"`
	CloseInterval                  duration `toml:"close_interval"`
}

// RolesConfig lists the accounts granted each role at startup.
type RolesConfig struct {
	Admin         []string `toml:"admin"`
	EscrowAgent   []string `toml:"escrow_agent"`
	Seller        []string `toml:"seller"`
	Minter        []string `toml:"minter"`
	MarketHandler []string `toml:"market_handler"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	KeyPrefix    string `toml:"key_prefix"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	PartSizeMB     int    `toml:"part_size_mb"`
}

// ArchiveConfig controls the settlement and auction export to S3.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// ChainConfig points the staking oracle and royalty lookups at an EVM node
// and names the escrow operator key. An empty rpc_url keeps both in-process.
type ChainConfig struct {
	RPCURL              string `toml:"rpc_url"`
	StakingToken        string `toml:"staking_token"`
	RoyaltyLookup       bool   `toml:"royalty_lookup"`
	OperatorKey         string `toml:"operator_key"`
	OperatorKeyFile     string `toml:"operator_key_file"`
	OperatorKeyPassword string `toml:"operator_key_password"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled"`
	Port              int      `toml:"port"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"`
	RateLimit         int      `toml:"rate_limit"`
	RateWindow        duration `toml:"rate_window"`
	RequireSignatures bool     `toml:"require_signatures"`
	SignatureSkew     duration `toml:"signature_skew"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	QueueSize         int      `toml:"queue_size"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			VipStakerAmount: "1000000000000000000000",
			PrimaryFeeBps:   1500,
			SecondaryFeeBps: 500,
			MaxRoyaltyBps:   5000,
			OutBidBps:       500,
			DefaultTicketer: string(domain.TicketerLots),
			CloseInterval:   duration{15 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "auctionhouse",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			KeyPrefix:    "auctiond",
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "auctionhouse-archive",
			ForcePathStyle: true,
			PartSizeMB:     8,
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:       true,
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000"},
			RateLimit:     120,
			RateWindow:    duration{time.Minute},
			SignatureSkew: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			QueueSize: 256,
		},
		Mode:     "server",
		LogLevel: "info",
		Store:    "postgres",
		Lock:     "redis",
	}
}

// Configuration converts the [market] section into the domain configuration.
func (m MarketConfig) Configuration() (domain.MarketConfiguration, error) {
	var errs []string
	addr := func(field, v string) common.Address {
		v = strings.TrimSpace(v)
		if v == "" {
			return common.Address{}
		}
		if !common.IsHexAddress(v) {
			errs = append(errs, fmt.Sprintf("market: %s %q is not an address", field, v))
			return common.Address{}
		}
		return common.HexToAddress(v)
	}
	bps := func(field string, v int) uint16 {
		if v < 0 || !domain.ValidBps(uint64(v)) {
			errs = append(errs, fmt.Sprintf("market: %s must be 0-10000, got %d", field, v))
			return 0
		}
		return uint16(v)
	}

	cfg := domain.MarketConfiguration{
		StakingAddress:                 addr("staking_address", m.StakingAddress),
		MultisigAddress:                addr("multisig_address", m.MultisigAddress),
		NativeTokenAddress:             addr("native_token_address", m.NativeTokenAddress),
		PrimaryFeeBps:                  bps("primary_fee_bps", m.PrimaryFeeBps),
		SecondaryFeeBps:                bps("secondary_fee_bps", m.SecondaryFeeBps),
		MaxRoyaltyBps:                  bps("max_royalty_bps", m.MaxRoyaltyBps),
		OutBidBps:                      bps("outbid_bps", m.OutBidBps),
		DefaultTicketer:                domain.TicketerType(m.DefaultTicketer),
		AllowExternalTokensOnSecondary: m.AllowExternalTokensOnSecondary,
	}
	vip, ok := new(big.Int).SetString(strings.TrimSpace(m.VipStakerAmount), 10)
	if !ok || vip.Sign() < 0 {
		errs = append(errs, fmt.Sprintf("market: vip_staker_amount %q is not a non-negative integer", m.VipStakerAmount))
		vip = new(big.Int)
	}
	cfg.VipStakerAmount = vip

	if len(errs) > 0 {
		return domain.MarketConfiguration{}, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Grants converts the [roles] section into role grants.
func (r RolesConfig) Grants() (map[domain.Role][]common.Address, error) {
	grants := make(map[domain.Role][]common.Address)
	var bad []string
	for role, list := range map[domain.Role][]string{
		domain.RoleAdmin:         r.Admin,
		domain.RoleEscrowAgent:   r.EscrowAgent,
		domain.RoleSeller:        r.Seller,
		domain.RoleMinter:        r.Minter,
		domain.RoleMarketHandler: r.MarketHandler,
	} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if !common.IsHexAddress(v) {
				bad = append(bad, fmt.Sprintf("roles: %s entry %q is not an address", role, v))
				continue
			}
			grants[role] = append(grants[role], common.HexToAddress(v))
		}
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(bad, "; "))
	}
	return grants, nil
}

var validModes = map[string]bool{
	"server":  true,
	"archive": true,
	"memory":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// UsesPostgres reports whether the configured mode needs PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return strings.ToLower(c.Mode) != "memory" && strings.ToLower(c.Store) == "postgres"
}

// UsesRedis reports whether the configured mode needs Redis.
func (c *Config) UsesRedis() bool {
	return strings.ToLower(c.Mode) == "server" && strings.ToLower(c.Lock) == "redis"
}

// UsesS3 reports whether the configured mode needs object storage.
func (c *Config) UsesS3() bool {
	mode := strings.ToLower(c.Mode)
	return mode == "archive" || (mode == "server" && c.Archive.Enabled)
}

// Validate checks Config for invalid or missing values and returns a combined
// error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, memory)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if s := strings.ToLower(c.Store); s != "postgres" && s != "memory" {
		errs = append(errs, fmt.Sprintf("unknown store %q (valid: postgres, memory)", c.Store))
	}
	if l := strings.ToLower(c.Lock); l != "redis" && l != "memory" {
		errs = append(errs, fmt.Sprintf("unknown lock %q (valid: redis, memory)", c.Lock))
	}

	// Market
	if mc, err := c.Market.Configuration(); err != nil {
		errs = append(errs, err.Error())
	} else {
		if mc.StakingAddress == (common.Address{}) {
			errs = append(errs, "market: staking_address must be set")
		}
		if mc.MultisigAddress == (common.Address{}) {
			errs = append(errs, "market: multisig_address must be set")
		}
		if mc.DefaultTicketer != domain.TicketerLots && mc.DefaultTicketer != domain.TicketerItems {
			errs = append(errs, fmt.Sprintf("market: default_ticketer must be lots or items, got %q", c.Market.DefaultTicketer))
		}
	}
	if c.Market.CloseInterval.Duration <= 0 {
		errs = append(errs, "market: close_interval must be > 0")
	}

	// Roles
	if grants, err := c.Roles.Grants(); err != nil {
		errs = append(errs, err.Error())
	} else if len(grants[domain.RoleAdmin]) == 0 {
		errs = append(errs, "roles: at least one admin is required")
	}

	// Postgres
	if c.UsesPostgres() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.UsesRedis() {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 / archive
	if c.UsesS3() {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Enabled && c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Chain
	if c.Chain.RPCURL != "" && !common.IsHexAddress(c.Chain.StakingToken) {
		errs = append(errs, "chain: staking_token must be an address when rpc_url is set")
	}
	if c.Chain.OperatorKeyFile != "" && c.Chain.OperatorKeyPassword == "" {
		errs = append(errs, "chain: operator_key_password is required when operator_key_file is set")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RequireSignatures && c.Server.SignatureSkew.Duration <= 0 {
			errs = append(errs, "server: signature_skew must be > 0 when require_signatures is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
