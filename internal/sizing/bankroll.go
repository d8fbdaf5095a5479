package sizing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// BankrollManager tracks our own available capital on the target exchange.
// The balance is fetched from the execution client at startup and refreshed
// periodically; when the client cannot report one, a configured fallback
// keeps dry runs and tests functional.
type BankrollManager struct {
	client   domain.ExecutionClient
	fallback decimal.Decimal
	logger   *slog.Logger

	mu          sync.RWMutex
	current     decimal.Decimal
	refreshedAt time.Time
}

// NewBankrollManager creates a manager seeded with the fallback balance.
// client may be nil (dry-run without credentials); the fallback then stands.
func NewBankrollManager(client domain.ExecutionClient, fallback decimal.Decimal, logger *slog.Logger) *BankrollManager {
	return &BankrollManager{
		client:   client,
		fallback: fallback,
		current:  fallback,
		logger:   logger.With(slog.String("component", "bankroll")),
	}
}

// Refresh fetches the live balance. Failures keep the previous figure.
func (b *BankrollManager) Refresh(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	bal, err := b.client.GetBalance(ctx)
	if err != nil {
		b.logger.WarnContext(ctx, "balance refresh failed, keeping previous",
			slog.String("error", err.Error()),
			slog.String("current", b.Current().StringFixed(2)),
		)
		return err
	}
	b.mu.Lock()
	b.current = bal
	b.refreshedAt = time.Now().UTC()
	b.mu.Unlock()
	b.logger.Info("bankroll refreshed", slog.String("balance", bal.StringFixed(2)))
	return nil
}

// RunLoop refreshes the balance on an interval until the context ends.
func (b *BankrollManager) RunLoop(ctx context.Context, interval time.Duration) error {
	_ = b.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = b.Refresh(ctx)
		}
	}
}

// Current returns the latest known balance.
func (b *BankrollManager) Current() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// RefreshedAt is when the balance last came from the exchange; zero means it
// never has and the fallback is still standing.
func (b *BankrollManager) RefreshedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.refreshedAt
}
