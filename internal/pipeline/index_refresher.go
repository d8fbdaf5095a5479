package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/index"
	"github.com/alanyoungcy/whalebridge/internal/metrics"
)

// IndexRefresher keeps the in-memory market index current and mirrors every
// refreshed snapshot to the database and the cache. The database copy is the
// operator's queryable view; the cache copy lets a restarting process serve
// lookups before its first live refresh completes.
type IndexRefresher struct {
	index   *index.Index
	markets domain.MarketStore // optional
	cache   domain.IndexCache  // optional
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewIndexRefresher creates an IndexRefresher. markets and cache may be nil
// in modes that run without persistence.
func NewIndexRefresher(
	idx *index.Index,
	markets domain.MarketStore,
	cache domain.IndexCache,
	m *metrics.Metrics,
	logger *slog.Logger,
) *IndexRefresher {
	return &IndexRefresher{
		index:   idx,
		markets: markets,
		cache:   cache,
		metrics: m,
		logger:  logger.With(slog.String("component", "index_refresher")),
	}
}

// Warm seeds the index from the cached snapshot, if one exists. The seeded
// snapshot keeps its original refresh time, so the staleness gate still
// rejects matches if the cache is old.
func (r *IndexRefresher) Warm(ctx context.Context) {
	if r.cache == nil {
		return
	}
	markets, refreshedAt, err := r.cache.GetSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WarnContext(ctx, "index cache read failed", slog.String("error", err.Error()))
		}
		return
	}
	r.index.Seed(markets, refreshedAt)
	r.logger.InfoContext(ctx, "index warmed from cache",
		slog.Int("markets", len(markets)),
		slog.Time("refreshed_at", refreshedAt),
	)
}

// RunLoop refreshes immediately, then on the given interval, until ctx is
// cancelled. A failed refresh keeps the previous snapshot; the staleness
// gate downstream stops matching if failures persist.
func (r *IndexRefresher) RunLoop(ctx context.Context, interval time.Duration) error {
	r.logger.Info("index refresher started", slog.Duration("interval", interval))
	defer r.logger.Info("index refresher stopped")

	if err := r.RefreshOnce(ctx); err != nil {
		r.logger.WarnContext(ctx, "initial index refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.WarnContext(ctx, "index refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RefreshOnce pulls a fresh snapshot from the target exchange and mirrors it
// out. Mirror failures are logged, not returned: the in-memory index already
// swapped and matching continues on it.
func (r *IndexRefresher) RefreshOnce(ctx context.Context) error {
	start := time.Now()

	n, err := r.index.Refresh(ctx)
	if err != nil {
		return err
	}

	r.metrics.IndexRefreshSeconds.Observe(time.Since(start).Seconds())
	r.metrics.IndexMarkets.Set(float64(n))

	markets := r.index.Markets()
	refreshedAt := r.index.RefreshedAt()

	if r.markets != nil {
		if err := r.markets.UpsertBatch(ctx, markets); err != nil {
			r.logger.WarnContext(ctx, "market mirror upsert failed", slog.String("error", err.Error()))
		} else {
			ids := make([]string, len(markets))
			for i, m := range markets {
				ids[i] = m.MarketID
			}
			closed, err := r.markets.CloseMissing(ctx, ids)
			if err != nil {
				r.logger.WarnContext(ctx, "market mirror close failed", slog.String("error", err.Error()))
			} else if closed > 0 {
				r.logger.InfoContext(ctx, "closed departed markets", slog.Int64("count", closed))
			}
		}
	}

	if r.cache != nil {
		if err := r.cache.SetSnapshot(ctx, markets, refreshedAt); err != nil {
			r.logger.WarnContext(ctx, "index cache write failed", slog.String("error", err.Error()))
		}
	}

	r.logger.DebugContext(ctx, "index refreshed",
		slog.Int("markets", n),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
