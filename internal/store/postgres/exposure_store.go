package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// ExposureStore implements domain.ExposureStore on PostgreSQL. The partial
// unique index on idempotency_key (excluding rejected rows) is what makes
// Insert the atomic claim of a key across replicas.
type ExposureStore struct {
	pool *pgxpool.Pool
}

// NewExposureStore creates an ExposureStore backed by the given pool.
func NewExposureStore(pool *pgxpool.Pool) *ExposureStore {
	return &ExposureStore{pool: pool}
}

const exposureSelectCols = `id, idempotency_key, source_trade_id, trader_id,
	target_market_id, side, committed_notional::text, status, order_id,
	fail_reason, created_at, updated_at`

func scanExposureRow(row pgx.Row) (domain.ExposureRecord, error) {
	var rec domain.ExposureRecord
	var side, status, notional string

	err := row.Scan(
		&rec.ID, &rec.IdempotencyKey, &rec.SourceTradeID, &rec.TraderID,
		&rec.TargetMarketID, &side, &notional, &status, &rec.OrderID,
		&rec.FailReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.ExposureRecord{}, err
	}
	rec.Side = domain.ContractSide(side)
	rec.Status = domain.RecordStatus(status)
	rec.CommittedNotional, err = decimal.NewFromString(notional)
	if err != nil {
		return domain.ExposureRecord{}, fmt.Errorf("parse notional %q: %w", notional, err)
	}
	return rec, nil
}

func scanExposureRows(rows pgx.Rows) ([]domain.ExposureRecord, error) {
	var records []domain.ExposureRecord
	for rows.Next() {
		rec, err := scanExposureRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Insert appends one ledger row. A second non-rejected row under the same
// idempotency key returns domain.ErrAlreadyExists.
func (s *ExposureStore) Insert(ctx context.Context, rec domain.ExposureRecord) error {
	const query = `
		INSERT INTO exposure_records (
			id, idempotency_key, source_trade_id, trader_id,
			target_market_id, side, committed_notional, status,
			order_id, fail_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12
		)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.IdempotencyKey, rec.SourceTradeID, rec.TraderID,
		rec.TargetMarketID, string(rec.Side), rec.CommittedNotional.String(), string(rec.Status),
		rec.OrderID, rec.FailReason, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("postgres: exposure key %s: %w", rec.IdempotencyKey, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert exposure record %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateStatusByKey resolves the live (non-rejected) record under the key.
func (s *ExposureStore) UpdateStatusByKey(ctx context.Context, key string, status domain.RecordStatus, orderID, failReason string) error {
	const query = `
		UPDATE exposure_records SET
			status      = $2,
			order_id    = $3,
			fail_reason = $4,
			updated_at  = NOW()
		WHERE idempotency_key = $1 AND status != 'rejected'`

	tag, err := s.pool.Exec(ctx, query, key, string(status), orderID, failReason)
	if err != nil {
		return fmt.Errorf("postgres: update exposure status %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByKey returns the record under the key, preferring the live row over
// rejected audit rows.
func (s *ExposureStore) GetByKey(ctx context.Context, key string) (domain.ExposureRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+exposureSelectCols+` FROM exposure_records
		 WHERE idempotency_key = $1
		 ORDER BY (status = 'rejected'), created_at DESC
		 LIMIT 1`, key)

	rec, err := scanExposureRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExposureRecord{}, domain.ErrNotFound
		}
		return domain.ExposureRecord{}, fmt.Errorf("postgres: get exposure record %s: %w", key, err)
	}
	return rec, nil
}

// ListNonRejected returns every row holding an exposure slot or idempotency
// key. The tracker replays these on startup.
func (s *ExposureStore) ListNonRejected(ctx context.Context) ([]domain.ExposureRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+exposureSelectCols+` FROM exposure_records
		 WHERE status != 'rejected'
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list non-rejected exposure: %w", err)
	}
	defer rows.Close()

	records, err := scanExposureRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan non-rejected exposure: %w", err)
	}
	return records, nil
}

// ListByStatus returns records in the given status, newest first.
func (s *ExposureStore) ListByStatus(ctx context.Context, status domain.RecordStatus, opts domain.ListOpts) ([]domain.ExposureRecord, error) {
	query := `SELECT ` + exposureSelectCols + ` FROM exposure_records WHERE status = $1`
	args := []any{string(status)}
	query, args = applyListOpts(query, args, "created_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exposure by status: %w", err)
	}
	defer rows.Close()

	records, err := scanExposureRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan exposure by status: %w", err)
	}
	return records, nil
}

// ListByTrader returns records for one tracked trader, newest first.
func (s *ExposureStore) ListByTrader(ctx context.Context, traderID string, opts domain.ListOpts) ([]domain.ExposureRecord, error) {
	query := `SELECT ` + exposureSelectCols + ` FROM exposure_records WHERE trader_id = $1`
	args := []any{traderID}
	query, args = applyListOpts(query, args, "created_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exposure by trader: %w", err)
	}
	defer rows.Close()

	records, err := scanExposureRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan exposure by trader: %w", err)
	}
	return records, nil
}

// ListTerminalBefore returns rejected and failed rows last touched before
// the cutoff, oldest first, for archival. Pending and filled rows hold
// exposure and are never returned.
func (s *ExposureStore) ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]domain.ExposureRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+exposureSelectCols+` FROM exposure_records
		 WHERE status IN ('rejected', 'failed') AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal exposure: %w", err)
	}
	defer rows.Close()

	records, err := scanExposureRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan terminal exposure: %w", err)
	}
	return records, nil
}

// DeleteByIDs removes archived rows and returns the count deleted.
func (s *ExposureStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM exposure_records WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete exposure records: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.ExposureStore = (*ExposureStore)(nil)
