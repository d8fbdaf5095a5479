package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// DecisionStore implements domain.DecisionStore on PostgreSQL.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a DecisionStore backed by the given pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

const decisionSelectCols = `id, source_trade_id, trader_id, outcome, reason,
	target_market_id, side, notional::text, dry_run, decided_at`

func scanDecisionRows(rows pgx.Rows) ([]domain.CopyDecision, error) {
	var decisions []domain.CopyDecision
	for rows.Next() {
		var d domain.CopyDecision
		var outcome, side, notional string

		if err := rows.Scan(
			&d.ID, &d.SourceTradeID, &d.TraderID, &outcome, &d.Reason,
			&d.TargetMarketID, &side, &notional, &d.DryRun, &d.DecidedAt,
		); err != nil {
			return nil, err
		}
		d.Outcome = domain.DecisionOutcome(outcome)
		d.Side = domain.ContractSide(side)
		var err error
		d.Notional, err = decimal.NewFromString(notional)
		if err != nil {
			return nil, fmt.Errorf("parse notional %q: %w", notional, err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// Insert appends one decision to the log.
func (s *DecisionStore) Insert(ctx context.Context, d domain.CopyDecision) error {
	const query = `
		INSERT INTO copy_decisions (
			id, source_trade_id, trader_id, outcome, reason,
			target_market_id, side, notional, dry_run, decided_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.SourceTradeID, d.TraderID, string(d.Outcome), d.Reason,
		d.TargetMarketID, string(d.Side), d.Notional.String(), d.DryRun, d.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert decision %s: %w", d.ID, err)
	}
	return nil
}

// ListRecent returns decisions newest first.
func (s *DecisionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.CopyDecision, error) {
	query := `SELECT ` + decisionSelectCols + ` FROM copy_decisions WHERE TRUE`
	var args []any
	query, args = applyListOpts(query, args, "decided_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent decisions: %w", err)
	}
	defer rows.Close()

	decisions, err := scanDecisionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent decisions: %w", err)
	}
	return decisions, nil
}

// ListByTrader returns one trader's decisions, newest first.
func (s *DecisionStore) ListByTrader(ctx context.Context, traderID string, opts domain.ListOpts) ([]domain.CopyDecision, error) {
	query := `SELECT ` + decisionSelectCols + ` FROM copy_decisions WHERE trader_id = $1`
	args := []any{traderID}
	query, args = applyListOpts(query, args, "decided_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions by trader: %w", err)
	}
	defer rows.Close()

	decisions, err := scanDecisionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan decisions by trader: %w", err)
	}
	return decisions, nil
}

// ListBefore returns decisions made before the cutoff, oldest first, for
// archival.
func (s *DecisionStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.CopyDecision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+decisionSelectCols+` FROM copy_decisions
		 WHERE decided_at < $1
		 ORDER BY decided_at ASC
		 LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions before: %w", err)
	}
	defer rows.Close()

	decisions, err := scanDecisionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan decisions before: %w", err)
	}
	return decisions, nil
}

// DeleteByIDs removes archived decisions and returns the count deleted.
func (s *DecisionStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM copy_decisions WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete decisions: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.DecisionStore = (*DecisionStore)(nil)
