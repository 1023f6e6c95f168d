package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AUCTIOND_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AUCTIOND_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.StakingAddress, "AUCTIOND_MARKET_STAKING_ADDRESS")
	setStr(&cfg.Market.MultisigAddress, "AUCTIOND_MARKET_MULTISIG_ADDRESS")
	setStr(&cfg.Market.NativeTokenAddress, "AUCTIOND_MARKET_NATIVE_TOKEN_ADDRESS")
	setStr(&cfg.Market.VipStakerAmount, "AUCTIOND_MARKET_VIP_STAKER_AMOUNT")
	setInt(&cfg.Market.PrimaryFeeBps, "AUCTIOND_MARKET_PRIMARY_FEE_BPS")
	setInt(&cfg.Market.SecondaryFeeBps, "AUCTIOND_MARKET_SECONDARY_FEE_BPS")
	setInt(&cfg.Market.MaxRoyaltyBps, "AUCTIOND_MARKET_MAX_ROYALTY_BPS")
	setInt(&cfg.Market.OutBidBps, "AUCTIOND_MARKET_OUTBID_BPS")
	setStr(&cfg.Market.DefaultTicketer, "AUCTIOND_MARKET_DEFAULT_TICKETER")
	setBool(&cfg.Market.AllowExternalTokensOnSecondary, "AUCTIOND_MARKET_ALLOW_EXTERNAL_TOKENS_ON_SECONDARY")
	setDuration(&cfg.Market.CloseInterval, "AUCTIOND_MARKET_CLOSE_INTERVAL")

	// ── Roles ──
	setStringSlice(&cfg.Roles.Admin, "AUCTIOND_ROLES_ADMIN")
	setStringSlice(&cfg.Roles.EscrowAgent, "AUCTIOND_ROLES_ESCROW_AGENT")
	setStringSlice(&cfg.Roles.Seller, "AUCTIOND_ROLES_SELLER")
	setStringSlice(&cfg.Roles.Minter, "AUCTIOND_ROLES_MINTER")
	setStringSlice(&cfg.Roles.MarketHandler, "AUCTIOND_ROLES_MARKET_HANDLER")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AUCTIOND_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "AUCTIOND_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AUCTIOND_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AUCTIOND_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AUCTIOND_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AUCTIOND_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AUCTIOND_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AUCTIOND_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AUCTIOND_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AUCTIOND_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AUCTIOND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUCTIOND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUCTIOND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUCTIOND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUCTIOND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUCTIOND_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "AUCTIOND_REDIS_KEY_PREFIX")
	setInt64(&cfg.Redis.StreamMaxLen, "AUCTIOND_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AUCTIOND_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUCTIOND_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUCTIOND_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AUCTIOND_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUCTIOND_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUCTIOND_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUCTIOND_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "AUCTIOND_S3_PREFIX")
	setInt(&cfg.S3.PartSizeMB, "AUCTIOND_S3_PART_SIZE_MB")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "AUCTIOND_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "AUCTIOND_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "AUCTIOND_ARCHIVE_RETENTION_DAYS")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "AUCTIOND_CHAIN_RPC_URL")
	setStr(&cfg.Chain.StakingToken, "AUCTIOND_CHAIN_STAKING_TOKEN")
	setBool(&cfg.Chain.RoyaltyLookup, "AUCTIOND_CHAIN_ROYALTY_LOOKUP")
	setStr(&cfg.Chain.OperatorKey, "AUCTIOND_CHAIN_OPERATOR_KEY")
	setStr(&cfg.Chain.OperatorKeyFile, "AUCTIOND_CHAIN_OPERATOR_KEY_FILE")
	setStr(&cfg.Chain.OperatorKeyPassword, "AUCTIOND_CHAIN_OPERATOR_KEY_PASSWORD")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AUCTIOND_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AUCTIOND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AUCTIOND_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AUCTIOND_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "AUCTIOND_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "AUCTIOND_SERVER_RATE_WINDOW")
	setBool(&cfg.Server.RequireSignatures, "AUCTIOND_SERVER_REQUIRE_SIGNATURES")
	setDuration(&cfg.Server.SignatureSkew, "AUCTIOND_SERVER_SIGNATURE_SKEW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AUCTIOND_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AUCTIOND_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AUCTIOND_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AUCTIOND_NOTIFY_EVENTS")
	setInt(&cfg.Notify.QueueSize, "AUCTIOND_NOTIFY_QUEUE_SIZE")

	// ── Top-level ──
	setStr(&cfg.Mode, "AUCTIOND_MODE")
	setStr(&cfg.LogLevel, "AUCTIOND_LOG_LEVEL")
	setStr(&cfg.Store, "AUCTIOND_STORE")
	setStr(&cfg.Lock, "AUCTIOND_LOCK")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
