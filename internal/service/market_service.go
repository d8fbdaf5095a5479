package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/index"
)

// MarketService serves target-market queries for the operator API. Reads
// prefer the live index snapshot; the database mirror answers for markets
// that have already left the index.
type MarketService struct {
	store  domain.MarketStore // optional
	index  *index.Index
	logger *slog.Logger
}

// NewMarketService creates a MarketService. store may be nil when running
// without persistence.
func NewMarketService(store domain.MarketStore, idx *index.Index, logger *slog.Logger) *MarketService {
	return &MarketService{
		store:  store,
		index:  idx,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// GetMarket returns one market by ID, from the index when present.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if m, ok := s.index.Get(id); ok {
		return m, nil
	}
	if s.store == nil {
		return domain.Market{}, domain.ErrNotFound
	}
	return s.store.GetByID(ctx, id)
}

// ListActive returns active markets from the mirror, or the current index
// snapshot when no mirror is configured.
func (s *MarketService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	if s.store != nil {
		return s.store.ListActive(ctx, opts)
	}
	markets := s.index.Markets()
	if opts.Offset >= len(markets) {
		return nil, nil
	}
	markets = markets[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(markets) {
		markets = markets[:opts.Limit]
	}
	return markets, nil
}

// Count returns the number of known markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	if s.store != nil {
		return s.store.Count(ctx)
	}
	return int64(s.index.Size()), nil
}
