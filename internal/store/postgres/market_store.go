package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// MarketStore implements domain.MarketStore on PostgreSQL. The table is the
// durable mirror of the in-memory index; the pipeline upserts it after every
// refresh.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `market_id, exchange_id, event_id, title, type, line,
	participant_a, participant_b, tick_size::text, yes_bid, yes_ask, status,
	close_time, fetched_at`

func scanMarketRow(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var typ, status, tick string
	var line *float64

	err := row.Scan(
		&m.MarketID, &m.ExchangeID, &m.EventID, &m.Title, &typ, &line,
		&m.Participants[0], &m.Participants[1], &tick, &m.YesBid, &m.YesAsk, &status,
		&m.CloseTime, &m.FetchedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Type = domain.MarketType(typ)
	m.Status = domain.MarketStatus(status)
	m.Line = line
	m.TickSize, err = decimal.NewFromString(tick)
	if err != nil {
		return domain.Market{}, fmt.Errorf("parse tick size %q: %w", tick, err)
	}
	return m, nil
}

// UpsertBatch writes one refresh's markets in a single pipelined batch.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	const query = `
		INSERT INTO markets (
			market_id, exchange_id, event_id, title, type, line,
			participant_a, participant_b, tick_size, yes_bid, yes_ask,
			status, close_time, fetched_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, NOW()
		)
		ON CONFLICT (market_id) DO UPDATE SET
			title      = EXCLUDED.title,
			type       = EXCLUDED.type,
			line       = EXCLUDED.line,
			yes_bid    = EXCLUDED.yes_bid,
			yes_ask    = EXCLUDED.yes_ask,
			status     = EXCLUDED.status,
			close_time = EXCLUDED.close_time,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(query,
			m.MarketID, m.ExchangeID, m.EventID, m.Title, string(m.Type), m.Line,
			m.Participants[0], m.Participants[1], m.TickSize.String(), m.YesBid, m.YesAsk,
			string(m.Status), m.CloseTime, m.FetchedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range markets {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert markets: %w", err)
		}
	}
	return nil
}

// GetByID returns one market row.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE market_id = $1`, id)

	m, err := scanMarketRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListActive returns active markets, most recently fetched first.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE status = 'active'`
	var args []any
	query, args = applyListOpts(query, args, "fetched_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarketRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan active markets: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// CloseMissing marks every active market absent from activeIDs as closed and
// returns the number of rows changed. Called after a full index refresh, so
// markets the exchange stopped listing cannot keep matching.
func (s *MarketStore) CloseMissing(ctx context.Context, activeIDs []string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = 'closed', updated_at = NOW()
		 WHERE status = 'active' AND NOT (market_id = ANY($1))`, activeIDs)
	if err != nil {
		return 0, fmt.Errorf("postgres: close missing markets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of market rows.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
