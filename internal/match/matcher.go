package match

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// Index is the read-side view of the target-exchange market index the
// matcher consults. Lookups never block a concurrent refresh.
type Index interface {
	// Lookup returns candidate markets of the given type touching any of the
	// entities, in no particular order. An empty entity list returns all
	// markets of the type.
	Lookup(typ domain.MarketType, entities []string) []domain.Market
	// RefreshedAt is when the current snapshot was fetched. The zero time
	// means no snapshot has ever loaded.
	RefreshedAt() time.Time
}

// MatcherConfig holds the matching tolerances.
type MatcherConfig struct {
	// LineTolerance is the maximum absolute line distance, in line units,
	// for a spread/total to count as the same market.
	LineTolerance float64
	// MaxIndexAge is how stale the index may be before matching refuses to
	// run against it.
	MaxIndexAge time.Duration
}

// Matcher resolves a normalized trade onto the single equivalent market of
// the target exchange, or refuses with ErrNoMatch / ErrAmbiguousMatch /
// ErrIndexStale. It never guesses between plausible candidates.
type Matcher struct {
	index    Index
	polarity *PolarityTable
	cfg      MatcherConfig
	logger   *slog.Logger
}

// NewMatcher creates a Matcher over the given index and polarity table.
func NewMatcher(index Index, polarity *PolarityTable, cfg MatcherConfig, logger *slog.Logger) *Matcher {
	return &Matcher{
		index:    index,
		polarity: polarity,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "matcher")),
	}
}

// Match finds the equivalent target market for the trade.
func (m *Matcher) Match(trade domain.TradeEvent) (domain.MatchCandidate, error) {
	if age, stale := m.indexAge(); stale {
		return domain.MatchCandidate{}, fmt.Errorf("match: index is %s old (max %s): %w", age.Round(time.Second), m.cfg.MaxIndexAge, domain.ErrIndexStale)
	}

	candidates := m.candidates(trade)
	if len(candidates) == 0 {
		return domain.MatchCandidate{}, fmt.Errorf("match: %s/%s: %w", trade.Type, trade.Entity, domain.ErrNoMatch)
	}

	best := m.closestByLine(trade, candidates)
	if len(best) > 1 {
		return domain.MatchCandidate{}, fmt.Errorf("match: %d equally plausible markets for %s/%s: %w",
			len(best), trade.Type, trade.Entity, domain.ErrAmbiguousMatch)
	}

	market := best[0]
	side, ok := m.polarity.Derive(trade, market)
	if !ok {
		// A candidate whose contract polarity cannot be derived is treated
		// as ambiguous: copying with an inverted side is worse than not
		// copying at all.
		return domain.MatchCandidate{}, fmt.Errorf("match: cannot derive side for %q: %w", market.Title, domain.ErrAmbiguousMatch)
	}

	cand := domain.MatchCandidate{
		Trade:        trade,
		Market:       market,
		TargetSide:   side,
		Confidence:   1.0,
		LineDistance: lineDistance(trade.Line, market.Line),
	}
	m.logger.Debug("matched trade to target market",
		slog.String("source_market", trade.SourceMarketID),
		slog.String("target_market", market.MarketID),
		slog.String("side", string(side)),
		slog.Float64("line_distance", cand.LineDistance),
	)
	return cand, nil
}

// indexAge reports the snapshot age and whether it exceeds the configured
// maximum.
func (m *Matcher) indexAge() (time.Duration, bool) {
	at := m.index.RefreshedAt()
	if at.IsZero() {
		return 0, true
	}
	age := time.Since(at)
	return age, age > m.cfg.MaxIndexAge
}

// candidates filters the index to markets of the trade's type covering the
// same game and, for team markets, the traded entity.
func (m *Matcher) candidates(trade domain.TradeEvent) []domain.Market {
	entities := lookupEntities(trade)
	found := m.index.Lookup(trade.Type, entities)

	out := found[:0:0]
	for _, mk := range found {
		if !coversGame(trade, mk) {
			continue
		}
		if trade.Type != domain.MarketTypeTotal && !marketHasEntity(mk, trade.Entity) {
			continue
		}
		if !lineWithinTolerance(trade, mk, m.cfg.LineTolerance) {
			continue
		}
		out = append(out, mk)
	}
	return out
}

// closestByLine keeps the candidates nearest the trade's line. Winner
// markets have no line; all candidates are equally close.
func (m *Matcher) closestByLine(trade domain.TradeEvent, candidates []domain.Market) []domain.Market {
	if trade.Type == domain.MarketTypeWinner || trade.Line == nil {
		return candidates
	}
	bestDist := math.Inf(1)
	var best []domain.Market
	for _, mk := range candidates {
		d := lineDistance(trade.Line, mk.Line)
		switch {
		case d < bestDist:
			bestDist = d
			best = append(best[:0], mk)
		case d == bestDist:
			best = append(best, mk)
		}
	}
	return best
}

// lookupEntities is the entity filter handed to the index: the game's
// participants, plus the traded entity for team markets.
func lookupEntities(trade domain.TradeEvent) []string {
	var out []string
	for _, p := range trade.Participants {
		if p != "" {
			out = append(out, p)
		}
	}
	if trade.Type != domain.MarketTypeTotal && trade.Entity != "" {
		out = append(out, trade.Entity)
	}
	return out
}

// coversGame requires every known trade participant to appear on the
// market, so two games sharing one team never cross-match.
func coversGame(trade domain.TradeEvent, mk domain.Market) bool {
	known := 0
	for _, p := range trade.Participants {
		if p == "" {
			continue
		}
		known++
		if !marketHasEntity(mk, p) {
			return false
		}
	}
	if known > 0 {
		return true
	}
	// No game context at all: fall back to the traded entity.
	return trade.Type == domain.MarketTypeTotal || marketHasEntity(mk, trade.Entity)
}

func marketHasEntity(mk domain.Market, entity string) bool {
	if entity == "" {
		return false
	}
	return SameEntity(mk.Participants[0], entity) || SameEntity(mk.Participants[1], entity)
}

// lineWithinTolerance compares lines by absolute value: favorite/underdog
// sign conventions differ between exchanges, so -2.5 and 2.5 are the same
// line. Signed comparison would silently reject valid matches.
func lineWithinTolerance(trade domain.TradeEvent, mk domain.Market, tolerance float64) bool {
	if trade.Type == domain.MarketTypeWinner {
		return true
	}
	if trade.Line == nil || mk.Line == nil {
		return false
	}
	return lineDistance(trade.Line, mk.Line) <= tolerance
}

// lineDistance is the distance between two lines' magnitudes. Nil lines are
// treated as zero distance so winner markets report 0.
func lineDistance(a, b *float64) float64 {
	if a == nil || b == nil {
		return 0
	}
	return math.Abs(math.Abs(*a) - math.Abs(*b))
}
