package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/feed"
	"github.com/alanyoungcy/whalebridge/internal/metrics"
)

// pollLockTTL bounds how long a replica holds the poll lock. It must exceed
// one full poll cycle so the active replica renews by re-acquiring.
const pollLockTTL = 30 * time.Second

// TradePoller drives the source feed on a fixed interval and offers every
// new trade to the feeder. The cursor is persisted only after a batch is
// fully offered, so a crash replays the batch rather than dropping it; the
// feeder's dedup absorbs the replay.
type TradePoller struct {
	source   domain.TradeSourceFeed
	cursors  domain.CursorStore
	feeder   *feed.Feeder
	locks    domain.LockManager // optional, single active poller per feed
	metrics  *metrics.Metrics
	interval time.Duration
	backoff  time.Duration
	logger   *slog.Logger
}

// NewTradePoller creates a TradePoller. locks may be nil when only one
// replica runs.
func NewTradePoller(
	source domain.TradeSourceFeed,
	cursors domain.CursorStore,
	feeder *feed.Feeder,
	locks domain.LockManager,
	m *metrics.Metrics,
	interval, backoff time.Duration,
	logger *slog.Logger,
) *TradePoller {
	return &TradePoller{
		source:   source,
		cursors:  cursors,
		feeder:   feeder,
		locks:    locks,
		metrics:  m,
		interval: interval,
		backoff:  backoff,
		logger:   logger.With(slog.String("component", "trade_poller"), slog.String("feed", source.Name())),
	}
}

// Run polls until ctx is cancelled. Feed failures back off and retry; they
// never advance the cursor and never stop the loop.
func (p *TradePoller) Run(ctx context.Context) error {
	cursor, err := p.loadCursor(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("trade poller started",
		slog.Duration("interval", p.interval),
		slog.String("cursor", cursor),
	)
	defer p.logger.Info("trade poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			next, err := p.pollOnce(ctx, cursor)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.metrics.FeedErrors.WithLabelValues(p.source.Name()).Inc()
				p.logger.WarnContext(ctx, "poll failed, backing off",
					slog.String("error", err.Error()),
					slog.Duration("backoff", p.backoff),
				)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(p.backoff):
				}
				continue
			}
			cursor = next
		}
	}
}

// loadCursor resumes from the stored cursor. A feed polled for the first
// time starts at the current moment: historical trades were never watched
// and copying them late would be worse than skipping them.
func (p *TradePoller) loadCursor(ctx context.Context) (string, error) {
	cursor, _, err := p.cursors.Get(ctx, p.source.Name())
	if err == nil {
		return cursor, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("pipeline: load cursor: %w", err)
	}

	cursor = strconv.FormatInt(time.Now().Unix(), 10)
	if err := p.cursors.Set(ctx, p.source.Name(), cursor); err != nil {
		return "", fmt.Errorf("pipeline: seed cursor: %w", err)
	}
	p.logger.Info("no stored cursor, starting from now", slog.String("cursor", cursor))
	return cursor, nil
}

// pollOnce runs one poll cycle and returns the cursor to continue from. When
// another replica holds the poll lock the cycle is skipped with the cursor
// unchanged.
func (p *TradePoller) pollOnce(ctx context.Context, cursor string) (string, error) {
	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, "poll:"+p.source.Name(), pollLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return cursor, nil
			}
			return cursor, fmt.Errorf("pipeline: acquire poll lock: %w", err)
		}
		defer unlock()
	}

	trades, next, err := p.source.Poll(ctx, cursor)
	if err != nil {
		return cursor, fmt.Errorf("pipeline: poll %s: %w", p.source.Name(), err)
	}
	if len(trades) == 0 {
		return p.advance(ctx, cursor, next)
	}

	if err := p.feeder.OfferBatch(ctx, p.source.Name(), trades); err != nil {
		return cursor, fmt.Errorf("pipeline: offer batch: %w", err)
	}
	p.logger.DebugContext(ctx, "offered trades",
		slog.Int("count", len(trades)),
		slog.String("cursor", next),
	)
	return p.advance(ctx, cursor, next)
}

// advance persists the new cursor once the batch is safely offered.
func (p *TradePoller) advance(ctx context.Context, cursor, next string) (string, error) {
	if next == cursor || next == "" {
		return cursor, nil
	}
	if err := p.cursors.Set(ctx, p.source.Name(), next); err != nil {
		return cursor, fmt.Errorf("pipeline: persist cursor: %w", err)
	}
	return next, nil
}
