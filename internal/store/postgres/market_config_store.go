package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// MarketConfigStore implements domain.MarketConfigStore using PostgreSQL. The
// configuration lives in a single row as JSONB.
type MarketConfigStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketConfigStore = (*MarketConfigStore)(nil)

// NewMarketConfigStore creates a new MarketConfigStore backed by the given connection pool.
func NewMarketConfigStore(pool *pgxpool.Pool) *MarketConfigStore {
	return &MarketConfigStore{pool: pool}
}

// Get loads the stored configuration.
func (s *MarketConfigStore) Get(ctx context.Context) (domain.MarketConfiguration, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT config FROM market_config WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketConfiguration{}, domain.ErrNotFound
		}
		return domain.MarketConfiguration{}, fmt.Errorf("postgres: get market config: %w", err)
	}

	var cfg domain.MarketConfiguration
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return domain.MarketConfiguration{}, fmt.Errorf("postgres: unmarshal market config: %w", err)
	}
	return cfg, nil
}

// Save upserts the configuration row.
func (s *MarketConfigStore) Save(ctx context.Context, cfg domain.MarketConfiguration) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("postgres: marshal market config: %w", err)
	}

	const query = `
		INSERT INTO market_config (id, version, config, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at`
	_, err = s.pool.Exec(ctx, query, int64(cfg.Version), raw, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save market config v%d: %w", cfg.Version, err)
	}
	return nil
}
