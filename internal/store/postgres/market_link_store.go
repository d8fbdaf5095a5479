package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// MarketLinkStore implements domain.MarketLinkStore on PostgreSQL.
type MarketLinkStore struct {
	pool *pgxpool.Pool
}

// NewMarketLinkStore creates a MarketLinkStore backed by the given pool.
func NewMarketLinkStore(pool *pgxpool.Pool) *MarketLinkStore {
	return &MarketLinkStore{pool: pool}
}

const linkSelectCols = `id, source_market_id, target_market_id, type,
	target_side_for, entity, confidence, resolved_at`

func scanLinkRow(row pgx.Row) (domain.MarketLink, error) {
	var l domain.MarketLink
	var typ, side string

	err := row.Scan(
		&l.ID, &l.SourceMarketID, &l.TargetMarketID, &typ,
		&side, &l.Entity, &l.Confidence, &l.ResolvedAt,
	)
	if err != nil {
		return domain.MarketLink{}, err
	}
	l.Type = domain.MarketType(typ)
	l.TargetSideFor = domain.ContractSide(side)
	return l, nil
}

// Upsert stores a link, replacing any previous resolution of the source
// market.
func (s *MarketLinkStore) Upsert(ctx context.Context, link domain.MarketLink) error {
	const query = `
		INSERT INTO market_links (
			id, source_market_id, target_market_id, type,
			target_side_for, entity, confidence, resolved_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8
		)
		ON CONFLICT (source_market_id) DO UPDATE SET
			id               = EXCLUDED.id,
			target_market_id = EXCLUDED.target_market_id,
			type             = EXCLUDED.type,
			target_side_for  = EXCLUDED.target_side_for,
			entity           = EXCLUDED.entity,
			confidence       = EXCLUDED.confidence,
			resolved_at      = EXCLUDED.resolved_at`

	_, err := s.pool.Exec(ctx, query,
		link.ID, link.SourceMarketID, link.TargetMarketID, string(link.Type),
		string(link.TargetSideFor), link.Entity, link.Confidence, link.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market link %s: %w", link.SourceMarketID, err)
	}
	return nil
}

// GetBySourceMarket returns the link for one source market.
func (s *MarketLinkStore) GetBySourceMarket(ctx context.Context, sourceMarketID string) (domain.MarketLink, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+linkSelectCols+` FROM market_links WHERE source_market_id = $1`,
		sourceMarketID)

	l, err := scanLinkRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketLink{}, domain.ErrNotFound
		}
		return domain.MarketLink{}, fmt.Errorf("postgres: get market link %s: %w", sourceMarketID, err)
	}
	return l, nil
}

// List returns stored links, most recently resolved first.
func (s *MarketLinkStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketLink, error) {
	query := `SELECT ` + linkSelectCols + ` FROM market_links WHERE TRUE`
	var args []any
	query, args = applyListOpts(query, args, "resolved_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market links: %w", err)
	}
	defer rows.Close()

	var links []domain.MarketLink
	for rows.Next() {
		l, err := scanLinkRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market links: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// DeleteBySourceMarket invalidates the link for one source market.
func (s *MarketLinkStore) DeleteBySourceMarket(ctx context.Context, sourceMarketID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM market_links WHERE source_market_id = $1`, sourceMarketID)
	if err != nil {
		return fmt.Errorf("postgres: delete market link %s: %w", sourceMarketID, err)
	}
	return nil
}

var _ domain.MarketLinkStore = (*MarketLinkStore)(nil)
