package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// TraderService manages the tracked-trader roster. Which traders to follow
// is external curation data; this only persists and serves the list.
type TraderService struct {
	store  domain.TraderStore
	logger *slog.Logger
}

// NewTraderService creates a TraderService.
func NewTraderService(store domain.TraderStore, logger *slog.Logger) *TraderService {
	return &TraderService{
		store:  store,
		logger: logger.With(slog.String("component", "trader_service")),
	}
}

// Sync upserts the configured roster into the store. Existing rows keep any
// larger persisted bankroll estimate so an operator tweak never erases a
// learned figure with zero.
func (s *TraderService) Sync(ctx context.Context, traders []domain.TrackedTrader) error {
	for _, t := range traders {
		addr, err := domain.NormalizeTraderAddress(t.Address)
		if err != nil {
			return fmt.Errorf("trader_service: %w", err)
		}
		t.Address = addr
		if t.AddedAt.IsZero() {
			t.AddedAt = time.Now().UTC()
		}
		if existing, err := s.store.GetByAddress(ctx, addr); err == nil {
			if t.BankrollEstimate.IsZero() && existing.BankrollEstimate.IsPositive() {
				t.BankrollEstimate = existing.BankrollEstimate
			}
			t.AddedAt = existing.AddedAt
		}
		if err := s.store.Upsert(ctx, t); err != nil {
			return fmt.Errorf("trader_service: upsert %s: %w", addr, err)
		}
	}
	s.logger.Info("trader roster synced", slog.Int("traders", len(traders)))
	return nil
}

// List returns the tracked roster.
func (s *TraderService) List(ctx context.Context) ([]domain.TrackedTrader, error) {
	return s.store.List(ctx)
}

// Addresses returns the roster's wallet addresses, lowercased for feed
// queries and comparisons.
func (s *TraderService) Addresses(ctx context.Context) ([]string, error) {
	traders, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(traders))
	for _, t := range traders {
		out = append(out, strings.ToLower(t.Address))
	}
	return out, nil
}

// UpdateBankroll persists a revised bankroll estimate for one trader.
func (s *TraderService) UpdateBankroll(ctx context.Context, address string, bankroll decimal.Decimal) error {
	addr, err := domain.NormalizeTraderAddress(address)
	if err != nil {
		return fmt.Errorf("trader_service: %w", err)
	}
	t, err := s.store.GetByAddress(ctx, addr)
	if err != nil {
		return fmt.Errorf("trader_service: get %s: %w", addr, err)
	}
	t.BankrollEstimate = bankroll
	if err := s.store.Upsert(ctx, t); err != nil {
		return fmt.Errorf("trader_service: update %s: %w", addr, err)
	}
	return nil
}
