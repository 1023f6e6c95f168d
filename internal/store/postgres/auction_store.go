package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool *pgxpool.Pool
}

var _ domain.AuctionStore = (*AuctionStore)(nil)

// NewAuctionStore creates a new AuctionStore backed by the given connection pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

// Create inserts a new auction for its consignment.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) error {
	const query = `
		INSERT INTO auctions (
			consignment_id, buyer, start_at, duration, reserve, bid,
			clock, audience, state, outcome, updated_at
		) VALUES (
			$1, $2, $3, $4, $5::numeric, $6::numeric,
			$7, $8, $9, $10, NOW()
		)`
	_, err := s.pool.Exec(ctx, query,
		int64(a.ConsignmentID), hexAddr(a.Buyer), a.Start, a.Duration,
		numericText(a.Reserve), numericText(a.Bid),
		string(a.Clock), string(a.Audience), string(a.State), string(a.Outcome),
	)
	if err != nil {
		return fmt.Errorf("postgres: create auction %d: %w", a.ConsignmentID, err)
	}
	return nil
}

// Update overwrites the mutable fields of an auction.
func (s *AuctionStore) Update(ctx context.Context, a domain.Auction) error {
	const query = `
		UPDATE auctions SET
			buyer = $2, start_at = $3, duration = $4, reserve = $5::numeric,
			bid = $6::numeric, audience = $7, state = $8, outcome = $9,
			updated_at = NOW()
		WHERE consignment_id = $1`
	tag, err := s.pool.Exec(ctx, query,
		int64(a.ConsignmentID), hexAddr(a.Buyer), a.Start, a.Duration,
		numericText(a.Reserve), numericText(a.Bid),
		string(a.Audience), string(a.State), string(a.Outcome),
	)
	if err != nil {
		return fmt.Errorf("postgres: update auction %d: %w", a.ConsignmentID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const auctionSelectCols = `consignment_id, buyer, start_at, duration, reserve::text,
	bid::text, clock, audience, state, outcome`

func scanAuction(scanner interface{ Scan(dest ...any) error }) (domain.Auction, error) {
	var (
		a                              domain.Auction
		id                             int64
		buyer, reserve, bid            string
		clock, audience, state, result string
	)
	err := scanner.Scan(&id, &buyer, &a.Start, &a.Duration, &reserve, &bid,
		&clock, &audience, &state, &result)
	if err != nil {
		return domain.Auction{}, err
	}

	a.ConsignmentID = uint64(id)
	a.Clock = domain.ClockMode(clock)
	a.Audience = domain.Audience(audience)
	a.State = domain.State(state)
	a.Outcome = domain.Outcome(result)
	if a.Buyer, err = parseAddr(buyer); err != nil {
		return domain.Auction{}, err
	}
	if a.Reserve, err = parseNumeric(reserve); err != nil {
		return domain.Auction{}, err
	}
	if a.Bid, err = parseNumeric(bid); err != nil {
		return domain.Auction{}, err
	}
	return a, nil
}

func scanAuctionRows(rows pgx.Rows) ([]domain.Auction, error) {
	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// GetByConsignment retrieves the auction of a consignment.
func (s *AuctionStore) GetByConsignment(ctx context.Context, consignmentID uint64) (domain.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions WHERE consignment_id = $1`, int64(consignmentID))
	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Auction{}, domain.ErrNotFound
		}
		return domain.Auction{}, fmt.Errorf("postgres: get auction %d: %w", consignmentID, err)
	}
	return a, nil
}

// ListEndedBefore returns finished auctions whose window closed before the
// given unix second.
func (s *AuctionStore) ListEndedBefore(ctx context.Context, before int64) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions
		 WHERE state = 'ended' AND start_at + duration < $1
		 ORDER BY consignment_id`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ended auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ended auctions: %w", err)
	}
	return auctions, nil
}

// ListOpen returns auctions whose outcome is still pending.
func (s *AuctionStore) ListOpen(ctx context.Context) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions
		 WHERE outcome = 'pending' ORDER BY consignment_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open auctions: %w", err)
	}
	return auctions, nil
}
