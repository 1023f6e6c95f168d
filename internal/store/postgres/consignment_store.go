package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// ConsignmentStore implements domain.ConsignmentStore using PostgreSQL. Ids
// come from the consignment row of the counters table and are never reused.
type ConsignmentStore struct {
	pool *pgxpool.Pool
}

var _ domain.ConsignmentStore = (*ConsignmentStore)(nil)

// NewConsignmentStore creates a new ConsignmentStore backed by the given connection pool.
func NewConsignmentStore(pool *pgxpool.Pool) *ConsignmentStore {
	return &ConsignmentStore{pool: pool}
}

// Create allocates the next id and inserts the consignment in one transaction.
func (s *ConsignmentStore) Create(ctx context.Context, c domain.Consignment) (domain.Consignment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Consignment{}, fmt.Errorf("postgres: begin create consignment: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = 'consignment' RETURNING value - 1`,
	).Scan(&id)
	if err != nil {
		return domain.Consignment{}, fmt.Errorf("postgres: allocate consignment id: %w", err)
	}
	c.ID = uint64(id)

	const query = `
		INSERT INTO consignments (
			id, market, market_handler, consignor, seller, token_address, token_id,
			supply, released_supply, multi_token, physical, released,
			custom_fee_bps, pending_payout, ticketer, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7::numeric,
			$8, $9, $10, $11, $12,
			$13, $14::numeric, $15, $16, NOW()
		)`
	_, err = tx.Exec(ctx, query,
		id, string(c.Market), string(c.MarketHandler),
		hexAddr(c.Consignor), hexAddr(c.Seller), hexAddr(c.TokenAddress), numericText(c.TokenID),
		int64(c.Supply), int64(c.ReleasedSupply), c.MultiToken, c.Physical, c.Released,
		int(c.CustomFeeBps), numericText(c.PendingPayout), string(c.Ticketer), c.CreatedAt,
	)
	if err != nil {
		return domain.Consignment{}, fmt.Errorf("postgres: create consignment %d: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Consignment{}, fmt.Errorf("postgres: commit consignment %d: %w", id, err)
	}
	return c.Clone(), nil
}

// Update overwrites every mutable field of an existing consignment.
func (s *ConsignmentStore) Update(ctx context.Context, c domain.Consignment) error {
	const query = `
		UPDATE consignments SET
			market_handler = $2, released_supply = $3, released = $4,
			custom_fee_bps = $5, pending_payout = $6::numeric, ticketer = $7,
			updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		int64(c.ID), string(c.MarketHandler), int64(c.ReleasedSupply), c.Released,
		int(c.CustomFeeBps), numericText(c.PendingPayout), string(c.Ticketer),
	)
	if err != nil {
		return fmt.Errorf("postgres: update consignment %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const consignmentSelectCols = `id, market, market_handler, consignor, seller, token_address,
	token_id::text, supply, released_supply, multi_token, physical, released,
	custom_fee_bps, pending_payout::text, ticketer, created_at`

func scanConsignment(scanner interface{ Scan(dest ...any) error }) (domain.Consignment, error) {
	var (
		c                          domain.Consignment
		id, supply, releasedSupply int64
		market, handler, ticketer  string
		consignor, seller, token   string
		tokenID, pendingPayout     string
		customFee                  int
	)
	err := scanner.Scan(
		&id, &market, &handler, &consignor, &seller, &token,
		&tokenID, &supply, &releasedSupply, &c.MultiToken, &c.Physical, &c.Released,
		&customFee, &pendingPayout, &ticketer, &c.CreatedAt,
	)
	if err != nil {
		return domain.Consignment{}, err
	}

	c.ID = uint64(id)
	c.Market = domain.Market(market)
	c.MarketHandler = domain.MarketHandler(handler)
	c.Ticketer = domain.TicketerType(ticketer)
	c.Supply = uint64(supply)
	c.ReleasedSupply = uint64(releasedSupply)
	c.CustomFeeBps = uint16(customFee)

	if c.Consignor, err = parseAddr(consignor); err != nil {
		return domain.Consignment{}, err
	}
	if c.Seller, err = parseAddr(seller); err != nil {
		return domain.Consignment{}, err
	}
	if c.TokenAddress, err = parseAddr(token); err != nil {
		return domain.Consignment{}, err
	}
	if c.TokenID, err = parseNumeric(tokenID); err != nil {
		return domain.Consignment{}, err
	}
	if c.PendingPayout, err = parseNumeric(pendingPayout); err != nil {
		return domain.Consignment{}, err
	}
	return c, nil
}

// GetByID retrieves a single consignment.
func (s *ConsignmentStore) GetByID(ctx context.Context, id uint64) (domain.Consignment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+consignmentSelectCols+` FROM consignments WHERE id = $1`, int64(id))
	c, err := scanConsignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Consignment{}, domain.ErrNotFound
		}
		return domain.Consignment{}, fmt.Errorf("postgres: get consignment %d: %w", id, err)
	}
	return c, nil
}

// NextID returns the id the next Create will allocate.
func (s *ConsignmentStore) NextID(ctx context.Context) (uint64, error) {
	var next int64
	err := s.pool.QueryRow(ctx, `SELECT value FROM counters WHERE name = 'consignment'`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("postgres: next consignment id: %w", err)
	}
	return uint64(next), nil
}
