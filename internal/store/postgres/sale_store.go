package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// SaleStore implements domain.SaleStore using PostgreSQL.
type SaleStore struct {
	pool *pgxpool.Pool
}

var _ domain.SaleStore = (*SaleStore)(nil)

// NewSaleStore creates a new SaleStore backed by the given connection pool.
func NewSaleStore(pool *pgxpool.Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

// Create inserts a new sale for its consignment.
func (s *SaleStore) Create(ctx context.Context, sale domain.Sale) error {
	const query = `
		INSERT INTO sales (
			consignment_id, start_at, price, per_tx_cap,
			audience, state, outcome, buyers, updated_at
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, NOW())`
	_, err := s.pool.Exec(ctx, query,
		int64(sale.ConsignmentID), sale.Start, numericText(sale.Price), int64(sale.PerTxCap),
		string(sale.Audience), string(sale.State), string(sale.Outcome), sale.Buyers,
	)
	if err != nil {
		return fmt.Errorf("postgres: create sale %d: %w", sale.ConsignmentID, err)
	}
	return nil
}

// Update overwrites the mutable fields of a sale.
func (s *SaleStore) Update(ctx context.Context, sale domain.Sale) error {
	const query = `
		UPDATE sales SET
			start_at = $2, price = $3::numeric, per_tx_cap = $4, audience = $5,
			state = $6, outcome = $7, buyers = $8, updated_at = NOW()
		WHERE consignment_id = $1`
	tag, err := s.pool.Exec(ctx, query,
		int64(sale.ConsignmentID), sale.Start, numericText(sale.Price), int64(sale.PerTxCap),
		string(sale.Audience), string(sale.State), string(sale.Outcome), sale.Buyers,
	)
	if err != nil {
		return fmt.Errorf("postgres: update sale %d: %w", sale.ConsignmentID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByConsignment retrieves the sale of a consignment.
func (s *SaleStore) GetByConsignment(ctx context.Context, consignmentID uint64) (domain.Sale, error) {
	var (
		sale                     domain.Sale
		id, perTxCap             int64
		price                    string
		audience, state, outcome string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT consignment_id, start_at, price::text, per_tx_cap, audience, state, outcome, buyers
		 FROM sales WHERE consignment_id = $1`, int64(consignmentID),
	).Scan(&id, &sale.Start, &price, &perTxCap, &audience, &state, &outcome, &sale.Buyers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Sale{}, domain.ErrNotFound
		}
		return domain.Sale{}, fmt.Errorf("postgres: get sale %d: %w", consignmentID, err)
	}

	sale.ConsignmentID = uint64(id)
	sale.PerTxCap = uint64(perTxCap)
	sale.Audience = domain.Audience(audience)
	sale.State = domain.State(state)
	sale.Outcome = domain.Outcome(outcome)
	if sale.Price, err = parseNumeric(price); err != nil {
		return domain.Sale{}, fmt.Errorf("postgres: get sale %d: %w", consignmentID, err)
	}
	return sale, nil
}
