// Package service holds the thin business-logic layer between the decision
// pipeline and the stores.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/index"
)

// LinkService memoizes confirmed cross-exchange matches. A resolved link
// lets repeat trades on the same source market skip the matcher entirely,
// for as long as the target market is still present in the index snapshot.
type LinkService struct {
	store  domain.MarketLinkStore
	index  *index.Index
	logger *slog.Logger
}

// NewLinkService creates a LinkService.
func NewLinkService(store domain.MarketLinkStore, idx *index.Index, logger *slog.Logger) *LinkService {
	return &LinkService{
		store:  store,
		index:  idx,
		logger: logger.With(slog.String("component", "link_service")),
	}
}

// Resolve returns the memoized candidate for the trade's source market, or
// false when no usable link exists. A link whose target has left the index
// is invalidated on the spot.
func (s *LinkService) Resolve(ctx context.Context, trade domain.TradeEvent) (domain.MatchCandidate, bool) {
	if trade.SourceMarketID == "" {
		return domain.MatchCandidate{}, false
	}
	link, err := s.store.GetBySourceMarket(ctx, trade.SourceMarketID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "link lookup failed", slog.String("error", err.Error()))
		}
		return domain.MatchCandidate{}, false
	}
	if link.Type != trade.Type {
		return domain.MatchCandidate{}, false
	}

	market, ok := s.index.Get(link.TargetMarketID)
	if !ok {
		s.logger.InfoContext(ctx, "link target left the index, invalidating",
			slog.String("source_market", link.SourceMarketID),
			slog.String("target_market", link.TargetMarketID),
		)
		if err := s.store.DeleteBySourceMarket(ctx, link.SourceMarketID); err != nil {
			s.logger.WarnContext(ctx, "link invalidation failed", slog.String("error", err.Error()))
		}
		return domain.MatchCandidate{}, false
	}

	side := link.TargetSideFor
	if trade.Side == domain.SideAgainst {
		side = side.Opposite()
	}
	return domain.MatchCandidate{
		Trade:      trade,
		Market:     market,
		TargetSide: side,
		Confidence: link.Confidence,
	}, true
}

// Confirm stores a fresh matcher result as a link, normalized to the side a
// "for" wager maps to.
func (s *LinkService) Confirm(ctx context.Context, cand domain.MatchCandidate) {
	sideFor := cand.TargetSide
	if cand.Trade.Side == domain.SideAgainst {
		sideFor = sideFor.Opposite()
	}
	link := domain.MarketLink{
		ID:             uuid.New().String(),
		SourceMarketID: cand.Trade.SourceMarketID,
		TargetMarketID: cand.Market.MarketID,
		Type:           cand.Trade.Type,
		TargetSideFor:  sideFor,
		Entity:         cand.Trade.Entity,
		Confidence:     cand.Confidence,
		ResolvedAt:     time.Now().UTC(),
	}
	if err := s.store.Upsert(ctx, link); err != nil {
		s.logger.WarnContext(ctx, "link upsert failed",
			slog.String("source_market", link.SourceMarketID),
			slog.String("error", err.Error()),
		)
	}
}

// List returns stored links for the operator API.
func (s *LinkService) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketLink, error) {
	return s.store.List(ctx, opts)
}

// Delete removes a stored link so the next trade on that source market runs
// the matcher again.
func (s *LinkService) Delete(ctx context.Context, sourceMarketID string) error {
	return s.store.DeleteBySourceMarket(ctx, sourceMarketID)
}
