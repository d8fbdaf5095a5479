package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// TraderStore implements domain.TraderStore on PostgreSQL. Addresses are
// stored lowercased so lookups are case-insensitive.
type TraderStore struct {
	pool *pgxpool.Pool
}

// NewTraderStore creates a TraderStore backed by the given pool.
func NewTraderStore(pool *pgxpool.Pool) *TraderStore {
	return &TraderStore{pool: pool}
}

func scanTraderRows(rows pgx.Rows) ([]domain.TrackedTrader, error) {
	var traders []domain.TrackedTrader
	for rows.Next() {
		var t domain.TrackedTrader
		var bankroll string
		if err := rows.Scan(&t.Address, &t.Label, &bankroll, &t.AddedAt); err != nil {
			return nil, err
		}
		var err error
		t.BankrollEstimate, err = decimal.NewFromString(bankroll)
		if err != nil {
			return nil, fmt.Errorf("parse bankroll %q: %w", bankroll, err)
		}
		traders = append(traders, t)
	}
	return traders, rows.Err()
}

// Upsert stores one tracked trader.
func (s *TraderStore) Upsert(ctx context.Context, t domain.TrackedTrader) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracked_traders (address, label, bankroll_estimate, added_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (address) DO UPDATE SET
			label             = EXCLUDED.label,
			bankroll_estimate = EXCLUDED.bankroll_estimate`,
		strings.ToLower(t.Address), t.Label, t.BankrollEstimate.String(), t.AddedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert trader %s: %w", t.Address, err)
	}
	return nil
}

// GetByAddress returns one tracked trader.
func (s *TraderStore) GetByAddress(ctx context.Context, address string) (domain.TrackedTrader, error) {
	var t domain.TrackedTrader
	var bankroll string

	err := s.pool.QueryRow(ctx,
		`SELECT address, label, bankroll_estimate::text, added_at
		 FROM tracked_traders WHERE address = $1`,
		strings.ToLower(address),
	).Scan(&t.Address, &t.Label, &bankroll, &t.AddedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TrackedTrader{}, domain.ErrNotFound
		}
		return domain.TrackedTrader{}, fmt.Errorf("postgres: get trader %s: %w", address, err)
	}
	t.BankrollEstimate, err = decimal.NewFromString(bankroll)
	if err != nil {
		return domain.TrackedTrader{}, fmt.Errorf("postgres: parse bankroll %q: %w", bankroll, err)
	}
	return t, nil
}

// List returns the full roster, oldest first.
func (s *TraderStore) List(ctx context.Context) ([]domain.TrackedTrader, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, label, bankroll_estimate::text, added_at
		 FROM tracked_traders ORDER BY added_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list traders: %w", err)
	}
	defer rows.Close()

	traders, err := scanTraderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan traders: %w", err)
	}
	return traders, nil
}

var _ domain.TraderStore = (*TraderStore)(nil)
