// Package engine orchestrates the copy decision pipeline: match the trade to
// a target market, size the copy, admit it against exposure limits, and hand
// the admitted position to the dispatcher. The engine holds no state of its
// own; every step short-circuits with its specific reason, recorded on the
// decision log, and one bad trade never halts the loop.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/exposure"
	"github.com/alanyoungcy/whalebridge/internal/metrics"
	"github.com/alanyoungcy/whalebridge/internal/sizing"
)

// TradeMatcher resolves a trade onto its equivalent target market.
type TradeMatcher interface {
	Match(trade domain.TradeEvent) (domain.MatchCandidate, error)
}

// LinkResolver memoizes confirmed matches so repeat trades on a source
// market skip the matcher.
type LinkResolver interface {
	Resolve(ctx context.Context, trade domain.TradeEvent) (domain.MatchCandidate, bool)
	Confirm(ctx context.Context, cand domain.MatchCandidate)
}

// Engine runs the per-trade decision pipeline.
type Engine struct {
	matcher    TradeMatcher
	links      LinkResolver // optional
	sizer      *sizing.Sizer
	bankroll   *sizing.BankrollManager
	tracker    *exposure.Tracker
	dispatcher *Dispatcher
	decisions  domain.DecisionStore
	bus        domain.DecisionBus // optional
	metrics    *metrics.Metrics
	dryRun     bool
	logger     *slog.Logger
}

// NewEngine creates an Engine. links and bus may be nil.
func NewEngine(
	matcher TradeMatcher,
	links LinkResolver,
	sizer *sizing.Sizer,
	bankroll *sizing.BankrollManager,
	tracker *exposure.Tracker,
	dispatcher *Dispatcher,
	decisions domain.DecisionStore,
	bus domain.DecisionBus,
	m *metrics.Metrics,
	dryRun bool,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		matcher:    matcher,
		links:      links,
		sizer:      sizer,
		bankroll:   bankroll,
		tracker:    tracker,
		dispatcher: dispatcher,
		decisions:  decisions,
		bus:        bus,
		metrics:    m,
		dryRun:     dryRun,
		logger:     logger.With(slog.String("component", "copy_engine")),
	}
}

// Process runs one trade event through the pipeline. The returned decision
// is always recorded; errors in recording are logged, never propagated, so
// the poll loop keeps running.
func (e *Engine) Process(ctx context.Context, trade domain.TradeEvent) domain.CopyDecision {
	log := e.logger.With(
		slog.String("source_trade", trade.SourceTradeID),
		slog.String("trader", trade.TraderID),
		slog.String("type", string(trade.Type)),
	)

	cand, res := e.resolveMatch(ctx, trade)
	if !res.ok {
		log.InfoContext(ctx, "trade skipped at matching", slog.String("reason", res.reason))
		return e.record(ctx, skipped(trade, res.reason), log)
	}

	notional, err := e.sizer.Size(trade, e.bankroll.Current(), cand.Market.TickSize)
	if err != nil {
		log.InfoContext(ctx, "trade skipped at sizing", slog.String("reason", err.Error()))
		return e.record(ctx, skipped(trade, reasonFor(err)), log)
	}

	proposal := exposure.Proposal{
		SourceTradeID:  trade.SourceTradeID,
		TraderID:       trade.TraderID,
		TargetMarketID: cand.Market.MarketID,
		Side:           cand.TargetSide,
		Notional:       notional,
	}
	rec, err := e.tracker.Admit(ctx, proposal)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateTrade) || errors.Is(err, domain.ErrExposureLimitExceeded) {
			log.InfoContext(ctx, "trade rejected at admission", slog.String("reason", err.Error()))
			return e.record(ctx, skipped(trade, reasonFor(err)), log)
		}
		// Ledger unwritable is an infrastructure failure, surfaced as a
		// failed decision; the dispatcher never ran.
		log.ErrorContext(ctx, "admission failed", slog.String("error", err.Error()))
		d := skipped(trade, "ledger_error")
		d.Outcome = domain.DecisionFailed
		return e.record(ctx, d, log)
	}

	d := domain.CopyDecision{
		ID:             uuid.New().String(),
		SourceTradeID:  trade.SourceTradeID,
		TraderID:       trade.TraderID,
		Outcome:        domain.DecisionCopied,
		Reason:         "admitted",
		TargetMarketID: cand.Market.MarketID,
		Side:           cand.TargetSide,
		Notional:       notional,
		DryRun:         e.dryRun,
		DecidedAt:      time.Now().UTC(),
	}
	e.record(ctx, d, log)

	req := domain.ExecutionRequest{
		IdempotencyKey: rec.IdempotencyKey,
		TargetMarketID: cand.Market.MarketID,
		Side:           cand.TargetSide,
		Notional:       notional,
		SourceTradeID:  trade.SourceTradeID,
		TraderID:       trade.TraderID,
		MarketTitle:    cand.Market.Title,
	}
	// Dispatch runs outside the tracker lock and may take arbitrary
	// latency; the pending record is already durable.
	e.dispatcher.Dispatch(ctx, req)
	return d
}

// RecordUnparsable lands a trade the normalizer could not turn into a
// canonical event on the decision log. Without it the audit trail starts at
// matching and the earliest drops leave no trace.
func (e *Engine) RecordUnparsable(ctx context.Context, raw domain.RawTrade, err error) domain.CopyDecision {
	log := e.logger.With(
		slog.String("source_trade", raw.EventID),
		slog.String("trader", raw.Trader),
	)
	log.InfoContext(ctx, "trade skipped at normalization", slog.String("reason", err.Error()))
	d := domain.CopyDecision{
		ID:            uuid.New().String(),
		SourceTradeID: raw.EventID,
		TraderID:      strings.ToLower(raw.Trader),
		Outcome:       domain.DecisionSkipped,
		Reason:        reasonFor(err),
		Notional:      decimal.Zero,
		DecidedAt:     time.Now().UTC(),
	}
	return e.record(ctx, d, log)
}

type matchOutcome struct {
	ok     bool
	reason string
}

// resolveMatch finds the target market via the link memo or the matcher,
// confirming fresh matches back into the memo.
func (e *Engine) resolveMatch(ctx context.Context, trade domain.TradeEvent) (domain.MatchCandidate, matchOutcome) {
	if e.links != nil {
		if cand, ok := e.links.Resolve(ctx, trade); ok {
			return cand, matchOutcome{ok: true}
		}
	}
	cand, err := e.matcher.Match(trade)
	if err != nil {
		return domain.MatchCandidate{}, matchOutcome{reason: reasonFor(err)}
	}
	if e.links != nil {
		e.links.Confirm(ctx, cand)
	}
	return cand, matchOutcome{ok: true}
}

// record persists and publishes a decision, updating metrics.
func (e *Engine) record(ctx context.Context, d domain.CopyDecision, log *slog.Logger) domain.CopyDecision {
	if err := e.decisions.Insert(ctx, d); err != nil {
		log.WarnContext(ctx, "decision log write failed", slog.String("error", err.Error()))
	}
	e.metrics.Decisions.WithLabelValues(string(d.Outcome), d.Reason).Inc()
	e.publish(ctx, d, log)

	summary := e.tracker.Summary()
	total, _ := summary.Total.Float64()
	e.metrics.ExposureTotal.Set(total)
	e.metrics.OpenPositions.Set(float64(summary.OpenCount))
	return d
}

func (e *Engine) publish(ctx context.Context, d domain.CopyDecision, log *slog.Logger) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(decisionEvent(d))
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, payload); err != nil {
		log.DebugContext(ctx, "decision publish failed", slog.String("error", err.Error()))
	}
	if err := e.bus.StreamAppend(ctx, payload); err != nil {
		log.DebugContext(ctx, "decision stream append failed", slog.String("error", err.Error()))
	}
}

// decisionEvent is the JSON wire shape of a decision on the event bus.
func decisionEvent(d domain.CopyDecision) map[string]any {
	notional, _ := d.Notional.Float64()
	return map[string]any{
		"id":               d.ID,
		"source_trade_id":  d.SourceTradeID,
		"trader_id":        d.TraderID,
		"outcome":          string(d.Outcome),
		"reason":           d.Reason,
		"target_market_id": d.TargetMarketID,
		"side":             string(d.Side),
		"notional":         notional,
		"dry_run":          d.DryRun,
		"decided_at":       d.DecidedAt.Format(time.RFC3339Nano),
	}
}

func skipped(trade domain.TradeEvent, reason string) domain.CopyDecision {
	return domain.CopyDecision{
		ID:            uuid.New().String(),
		SourceTradeID: trade.SourceTradeID,
		TraderID:      trade.TraderID,
		Outcome:       domain.DecisionSkipped,
		Reason:        reason,
		Notional:      decimal.Zero,
		DecidedAt:     time.Now().UTC(),
	}
}

// reasonFor maps a pipeline error to its short decision-log reason.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnparsableTrade):
		return "unparsable_trade"
	case errors.Is(err, domain.ErrNoMatch):
		return "no_match"
	case errors.Is(err, domain.ErrAmbiguousMatch):
		return "ambiguous_match"
	case errors.Is(err, domain.ErrIndexStale):
		return "index_stale"
	case errors.Is(err, domain.ErrInsufficientSizingData):
		return "insufficient_sizing_data"
	case errors.Is(err, domain.ErrDuplicateTrade):
		return "duplicate_trade"
	case errors.Is(err, domain.ErrExposureLimitExceeded):
		return "exposure_limit"
	default:
		return "error"
	}
}
