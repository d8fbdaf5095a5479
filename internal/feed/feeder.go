package feed

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/engine"
	"github.com/alanyoungcy/whalebridge/internal/match"
	"github.com/alanyoungcy/whalebridge/internal/metrics"
	"github.com/alanyoungcy/whalebridge/internal/sizing"
)

// defaultQueueSize bounds the ingest queue. Dispatch latency is absorbed
// here; beyond it, Offer blocks and the ingest path applies backpressure
// upstream (the poller simply polls later, the stream buffers in the socket).
const defaultQueueSize = 256

// TitleResolver backfills a market title by slug for feed payloads that
// omit one.
type TitleResolver interface {
	ResolveTitle(ctx context.Context, slug string) (string, error)
}

// Feeder fans raw trades from the ingest paths into the copy engine through
// a bounded queue and a fixed worker pool. Every accepted trade is
// normalized, observed by the bankroll estimator, and processed exactly once
// per dedup window.
type Feeder struct {
	engine     *engine.Engine
	normalizer *match.Normalizer
	estimator  *sizing.Estimator
	dedup      *Dedup
	metrics    *metrics.Metrics
	titles     TitleResolver
	workers    int
	queue      chan domain.RawTrade
	logger     *slog.Logger
}

// NewFeeder creates a Feeder with the given worker count. estimator may be
// nil when bankroll learning is disabled.
func NewFeeder(
	eng *engine.Engine,
	normalizer *match.Normalizer,
	estimator *sizing.Estimator,
	dedup *Dedup,
	m *metrics.Metrics,
	workers int,
	logger *slog.Logger,
) *Feeder {
	if workers < 1 {
		workers = 1
	}
	return &Feeder{
		engine:     eng,
		normalizer: normalizer,
		estimator:  estimator,
		dedup:      dedup,
		metrics:    m,
		workers:    workers,
		queue:      make(chan domain.RawTrade, defaultQueueSize),
		logger:     logger.With(slog.String("component", "trade_feeder")),
	}
}

// WithTitleResolver enables title backfill for trades whose payload carries
// only a market slug.
func (f *Feeder) WithTitleResolver(r TitleResolver) *Feeder {
	f.titles = r
	return f
}

// Offer hands one raw trade to the worker pool. Duplicates within the dedup
// window are dropped silently; otherwise Offer blocks until the queue has
// room or ctx is cancelled. feedName labels the observation metric.
func (f *Feeder) Offer(ctx context.Context, feedName string, raw domain.RawTrade) error {
	f.metrics.TradesObserved.WithLabelValues(feedName).Inc()

	if raw.EventID == "" {
		f.logger.DebugContext(ctx, "dropping trade without event id",
			slog.String("feed", feedName),
			slog.String("market", raw.MarketID),
		)
		return nil
	}
	if f.dedup.Seen(raw.EventID) {
		return nil
	}

	select {
	case f.queue <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OfferBatch offers each trade in order, stopping at the first ctx error.
func (f *Feeder) OfferBatch(ctx context.Context, feedName string, raws []domain.RawTrade) error {
	for _, raw := range raws {
		if err := f.Offer(ctx, feedName, raw); err != nil {
			return err
		}
	}
	return nil
}

// QueueDepth reports how many accepted trades are waiting for a worker.
func (f *Feeder) QueueDepth() int { return len(f.queue) }

// Run starts the worker pool and the dedup janitor and blocks until ctx is
// cancelled. Trades still queued at shutdown are abandoned; the poll cursor
// only advances after a batch is fully offered, so they replay on restart.
func (f *Feeder) Run(ctx context.Context) error {
	f.logger.Info("trade feeder started", slog.Int("workers", f.workers))
	defer f.logger.Info("trade feeder stopped")

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < f.workers; i++ {
		g.Go(func() error {
			return f.worker(ctx)
		})
	}
	g.Go(func() error {
		f.dedup.RunCleanup(ctx, f.dedup.ttl)
		return ctx.Err()
	})

	return g.Wait()
}

func (f *Feeder) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw := <-f.queue:
			f.process(ctx, raw)
		}
	}
}

// process normalizes one raw trade and runs it through the engine. A trade
// that cannot be normalized never reaches matching, but the skip still lands
// on the decision log so the audit trail covers the whole ingest path.
func (f *Feeder) process(ctx context.Context, raw domain.RawTrade) {
	if raw.Title == "" && raw.Slug != "" && f.titles != nil {
		title, err := f.titles.ResolveTitle(ctx, raw.Slug)
		if err != nil {
			f.logger.DebugContext(ctx, "title backfill failed",
				slog.String("slug", raw.Slug),
				slog.String("error", err.Error()),
			)
		} else {
			raw.Title = title
		}
	}

	event, err := f.normalizer.Normalize(raw)
	if err != nil {
		if errors.Is(err, domain.ErrUnparsableTrade) {
			f.engine.RecordUnparsable(ctx, raw, err)
			return
		}
		f.logger.WarnContext(ctx, "normalize failed",
			slog.String("event_id", raw.EventID),
			slog.String("error", err.Error()),
		)
		return
	}

	// Every well-formed wager feeds the bankroll estimate, including trades
	// the engine later skips.
	if f.estimator != nil {
		f.estimator.Observe(event.TraderID, event.Notional)
	}

	f.engine.Process(ctx, event)
}
