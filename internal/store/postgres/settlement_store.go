package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

var _ domain.SettlementStore = (*SettlementStore)(nil)

// NewSettlementStore creates a new SettlementStore backed by the given connection pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Insert records a settlement. Re-inserting the same id is a no-op.
func (s *SettlementStore) Insert(ctx context.Context, st domain.Settlement) error {
	const query = `
		INSERT INTO settlements (
			id, consignment_id, market, gross, royalty, royalty_recipient,
			fee_bps, fee, multisig_share, staking_share, seller_amount, seller,
			dust, settled_at
		) VALUES (
			$1, $2, $3, $4::numeric, $5::numeric, $6,
			$7, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12,
			$13::numeric, $14
		) ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		st.ID, int64(st.ConsignmentID), string(st.Market),
		numericText(st.Gross), numericText(st.Royalty), hexAddr(st.RoyaltyRecipient),
		int(st.FeeBps), numericText(st.Fee), numericText(st.MultisigShare),
		numericText(st.StakingShare), numericText(st.SellerAmount), hexAddr(st.Seller),
		numericText(st.Dust), st.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement %s: %w", st.ID, err)
	}
	return nil
}

const settlementSelectCols = `id, consignment_id, market, gross::text, royalty::text,
	royalty_recipient, fee_bps, fee::text, multisig_share::text, staking_share::text,
	seller_amount::text, seller, dust::text, settled_at`

func scanSettlement(scanner interface{ Scan(dest ...any) error }) (domain.Settlement, error) {
	var (
		st                            domain.Settlement
		id                            int64
		market, recipient, seller     string
		gross, royalty, fee, multisig string
		staking, sellerAmount, dust   string
		feeBps                        int
	)
	err := scanner.Scan(&st.ID, &id, &market, &gross, &royalty, &recipient,
		&feeBps, &fee, &multisig, &staking, &sellerAmount, &seller, &dust, &st.SettledAt)
	if err != nil {
		return domain.Settlement{}, err
	}

	st.ConsignmentID = uint64(id)
	st.Market = domain.Market(market)
	st.FeeBps = uint16(feeBps)
	if st.RoyaltyRecipient, err = parseAddr(recipient); err != nil {
		return domain.Settlement{}, err
	}
	if st.Seller, err = parseAddr(seller); err != nil {
		return domain.Settlement{}, err
	}

	amounts := []struct {
		dst **big.Int
		src string
	}{
		{&st.Gross, gross}, {&st.Royalty, royalty}, {&st.Fee, fee},
		{&st.MultisigShare, multisig}, {&st.StakingShare, staking},
		{&st.SellerAmount, sellerAmount}, {&st.Dust, dust},
	}
	for _, a := range amounts {
		if *a.dst, err = parseNumeric(a.src); err != nil {
			return domain.Settlement{}, err
		}
	}
	return st, nil
}

func scanSettlementRows(rows pgx.Rows) ([]domain.Settlement, error) {
	var out []domain.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListByConsignment returns the settlements of a consignment, oldest first.
func (s *SettlementStore) ListByConsignment(ctx context.Context, consignmentID uint64) ([]domain.Settlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+settlementSelectCols+` FROM settlements
		 WHERE consignment_id = $1 ORDER BY settled_at`, int64(consignmentID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements %d: %w", consignmentID, err)
	}
	defer rows.Close()

	out, err := scanSettlementRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settlements %d: %w", consignmentID, err)
	}
	return out, nil
}

// ListBefore returns every settlement recorded before the given time.
func (s *SettlementStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Settlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+settlementSelectCols+` FROM settlements
		 WHERE settled_at < $1 ORDER BY settled_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before: %w", err)
	}
	defer rows.Close()

	out, err := scanSettlementRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settlements before: %w", err)
	}
	return out, nil
}
