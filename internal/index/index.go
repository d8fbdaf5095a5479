// Package index maintains a normalized, refreshable view of the currently
// open markets on the target exchange. A refresh builds a complete new
// snapshot and swaps it in atomically; readers observe either the old or the
// new snapshot, never a mix, and are never blocked by a refresh in flight.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/match"
)

// snapshot is one immutable generation of the index.
type snapshot struct {
	markets     []domain.Market
	byType      map[domain.MarketType][]int
	byEntity    map[string][]int
	refreshedAt time.Time
}

// Index is the concurrent-read market index. The zero value is unusable;
// construct with New.
type Index struct {
	feed    domain.MarketIndexFeed
	current atomic.Pointer[snapshot]
	logger  *slog.Logger
}

// New creates an empty Index fed by the given market feed. The index serves
// no lookups until the first successful Refresh (or Seed).
func New(feed domain.MarketIndexFeed, logger *slog.Logger) *Index {
	idx := &Index{
		feed:   feed,
		logger: logger.With(slog.String("component", "market_index")),
	}
	return idx
}

// Refresh fetches all open markets from the feed, normalizes them, and
// atomically replaces the current snapshot. On failure the previous snapshot
// stays authoritative and the error is returned for the caller to report;
// a stale index is preferred over no index.
func (i *Index) Refresh(ctx context.Context) (int, error) {
	start := time.Now()

	raws, err := i.feed.ListOpenMarkets(ctx)
	if err != nil {
		return 0, fmt.Errorf("index: list open markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		m, ok := Normalize(raw)
		if !ok {
			skipped++
			continue
		}
		markets = append(markets, m)
	}

	i.install(markets, time.Now().UTC())

	i.logger.Info("market index refreshed",
		slog.Int("markets", len(markets)),
		slog.Int("skipped", skipped),
		slog.Duration("took", time.Since(start)),
	)
	return len(markets), nil
}

// Seed installs an externally sourced snapshot, typically the cached copy of
// the previous run, stamped with its original refresh time so staleness
// checks still hold.
func (i *Index) Seed(markets []domain.Market, refreshedAt time.Time) {
	i.install(markets, refreshedAt)
	i.logger.Info("market index seeded from cache",
		slog.Int("markets", len(markets)),
		slog.Time("refreshed_at", refreshedAt),
	)
}

func (i *Index) install(markets []domain.Market, refreshedAt time.Time) {
	snap := &snapshot{
		markets:     markets,
		byType:      make(map[domain.MarketType][]int, 3),
		byEntity:    make(map[string][]int),
		refreshedAt: refreshedAt,
	}
	for n, m := range markets {
		snap.byType[m.Type] = append(snap.byType[m.Type], n)
		for _, p := range m.Participants {
			if p != "" {
				snap.byEntity[p] = append(snap.byEntity[p], n)
			}
		}
	}
	i.current.Store(snap)
}

// Lookup returns markets of the given type touching any of the entities. An
// empty entity list returns every market of the type. The result slice is
// freshly allocated; callers may keep it across refreshes.
func (i *Index) Lookup(typ domain.MarketType, entities []string) []domain.Market {
	snap := i.current.Load()
	if snap == nil {
		return nil
	}

	if len(entities) == 0 {
		idxs := snap.byType[typ]
		out := make([]domain.Market, 0, len(idxs))
		for _, n := range idxs {
			out = append(out, snap.markets[n])
		}
		return out
	}

	seen := make(map[int]bool)
	var out []domain.Market
	for _, e := range entities {
		canonical := match.CanonicalEntity(e)
		if canonical == "" {
			canonical = match.NormalizeEntity(e)
		}
		for _, n := range snap.byEntity[canonical] {
			if seen[n] || snap.markets[n].Type != typ {
				continue
			}
			seen[n] = true
			out = append(out, snap.markets[n])
		}
	}
	return out
}

// Markets returns the full current snapshot, for persistence and operator
// queries.
func (i *Index) Markets() []domain.Market {
	snap := i.current.Load()
	if snap == nil {
		return nil
	}
	return snap.markets
}

// Get returns the market by id from the current snapshot.
func (i *Index) Get(marketID string) (domain.Market, bool) {
	snap := i.current.Load()
	if snap == nil {
		return domain.Market{}, false
	}
	for _, m := range snap.markets {
		if m.MarketID == marketID {
			return m, true
		}
	}
	return domain.Market{}, false
}

// Contains reports whether the market id is present in the current snapshot.
func (i *Index) Contains(marketID string) bool {
	_, ok := i.Get(marketID)
	return ok
}

// RefreshedAt is the staleness timestamp of the current snapshot, or the
// zero time when nothing has loaded yet.
func (i *Index) RefreshedAt() time.Time {
	snap := i.current.Load()
	if snap == nil {
		return time.Time{}
	}
	return snap.refreshedAt
}

// Size is the number of markets in the current snapshot.
func (i *Index) Size() int {
	snap := i.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.markets)
}

var _ match.Index = (*Index)(nil)
