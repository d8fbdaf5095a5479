package engine

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/exposure"
	"github.com/alanyoungcy/whalebridge/internal/metrics"
	"github.com/alanyoungcy/whalebridge/internal/sizing"
	"github.com/alanyoungcy/whalebridge/internal/store/memory"
)

type fakeMatcher struct {
	cand domain.MatchCandidate
	err  error
}

func (f *fakeMatcher) Match(domain.TradeEvent) (domain.MatchCandidate, error) {
	return f.cand, f.err
}

type engineFixture struct {
	engine    *Engine
	decisions *memory.DecisionStore
	exposures *memory.ExposureStore
}

// newDryRunEngine wires an engine over in-memory stores with a nil execution
// client; the dispatcher resolves every admitted copy as a dry-run fill.
func newDryRunEngine(t *testing.T, matcher TradeMatcher) engineFixture {
	t.Helper()
	logger := slog.Default()
	m := metrics.NewNop()

	exposures := memory.NewExposureStore()
	bankroll := sizing.NewBankrollManager(nil, decimal.NewFromInt(10000), logger)
	tracker := exposure.NewTracker(exposures, bankroll, exposure.Limits{
		MaxPerTradePct:        decimal.RequireFromString("0.02"),
		MaxPerTraderPct:       decimal.RequireFromString("0.10"),
		MaxTotalExposurePct:   decimal.RequireFromString("0.50"),
		MaxPositionsPerMarket: 5,
		MaxSameSidePerMarket:  5,
	}, logger)
	if err := tracker.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	sizer := sizing.NewSizer(sizing.Config{
		KellyFraction:  decimal.RequireFromString("0.25"),
		MaxPerTradePct: decimal.RequireFromString("0.02"),
		MinOrderSize:   decimal.NewFromInt(5),
	})
	dispatcher := NewDispatcher(nil, tracker, nil, nil, nil, m, DispatchConfig{DryRun: true}, logger)
	decisions := memory.NewDecisionStore()

	eng := NewEngine(matcher, nil, sizer, bankroll, tracker, dispatcher, decisions, nil, m, true, logger)
	return engineFixture{engine: eng, decisions: decisions, exposures: exposures}
}

func matchedCandidate() domain.MatchCandidate {
	return domain.MatchCandidate{
		Market: domain.Market{
			ExchangeID: "kalshi",
			MarketID:   "KXNBAGAME-24NOV25BOSHOU",
			Title:      "Boston Celtics wins the game",
			Type:       domain.MarketTypeWinner,
			TickSize:   decimal.New(1, -2),
			Status:     domain.MarketStatusActive,
		},
		TargetSide: domain.ContractYes,
	}
}

func copyableTrade(id string) domain.TradeEvent {
	return domain.TradeEvent{
		SourceTradeID:  id,
		TraderID:       "0xabc",
		Entity:         "bos",
		Type:           domain.MarketTypeWinner,
		Side:           domain.SideFor,
		Notional:       decimal.NewFromInt(500),
		TraderBankroll: decimal.NewFromInt(100000),
		Participants:   [2]string{"bos", "hou"},
	}
}

func TestProcessDryRunEndToEnd(t *testing.T) {
	fx := newDryRunEngine(t, &fakeMatcher{cand: matchedCandidate()})
	ctx := context.Background()

	d := fx.engine.Process(ctx, copyableTrade("0xfill1"))
	if d.Outcome != domain.DecisionCopied || d.Reason != "admitted" {
		t.Fatalf("decision = %s/%s, want copied/admitted", d.Outcome, d.Reason)
	}
	if !d.DryRun {
		t.Error("decision not flagged dry-run")
	}
	// 10000 * 0.25 * (500/100000) = 12.50
	if want := decimal.RequireFromString("12.5"); !d.Notional.Equal(want) {
		t.Errorf("notional = %s, want %s", d.Notional, want)
	}

	// The dry-run dispatcher resolves the ledger record as filled.
	key := domain.NewIdempotencyKey("0xfill1", "KXNBAGAME-24NOV25BOSHOU", domain.ContractYes)
	rec, err := fx.exposures.GetByKey(ctx, key)
	if err != nil {
		t.Fatalf("ledger record: %v", err)
	}
	if rec.Status != domain.RecordStatusFilled || rec.OrderID != "dry-run" {
		t.Errorf("record = %s/%s, want filled/dry-run", rec.Status, rec.OrderID)
	}

	logged, err := fx.decisions.ListRecent(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(logged) != 1 || logged[0].ID != d.ID {
		t.Fatalf("decision log = %v, want the one decision", logged)
	}
}

func TestRecordUnparsableLandsOnDecisionLog(t *testing.T) {
	fx := newDryRunEngine(t, &fakeMatcher{cand: matchedCandidate()})
	ctx := context.Background()

	raw := domain.RawTrade{
		EventID: "0xdead:7465",
		Trader:  "0xAbC1111111111111111111111111111111111111",
		Title:   "Celtics cover the spread",
	}
	err := fmt.Errorf("match: spread market %q has no line: %w", raw.Title, domain.ErrUnparsableTrade)
	d := fx.engine.RecordUnparsable(ctx, raw, err)
	if d.Outcome != domain.DecisionSkipped || d.Reason != "unparsable_trade" {
		t.Fatalf("decision = %s/%s, want skipped/unparsable_trade", d.Outcome, d.Reason)
	}
	if d.TraderID != "0xabc1111111111111111111111111111111111111" {
		t.Errorf("trader = %q, want lowercased wallet", d.TraderID)
	}

	logged, err := fx.decisions.ListRecent(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(logged) != 1 || logged[0].Reason != "unparsable_trade" {
		t.Fatalf("decision log = %v, want the one unparsable skip", logged)
	}
}

func TestProcessSkipReasons(t *testing.T) {
	cases := []struct {
		name    string
		matcher TradeMatcher
		mutate  func(*domain.TradeEvent)
		reason  string
	}{
		{"no match", &fakeMatcher{err: domain.ErrNoMatch}, nil, "no_match"},
		{"ambiguous", &fakeMatcher{err: domain.ErrAmbiguousMatch}, nil, "ambiguous_match"},
		{"stale index", &fakeMatcher{err: domain.ErrIndexStale}, nil, "index_stale"},
		{"unsizeable", &fakeMatcher{cand: matchedCandidate()}, func(tr *domain.TradeEvent) {
			tr.TraderBankroll = decimal.Zero
		}, "insufficient_sizing_data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newDryRunEngine(t, tc.matcher)
			trade := copyableTrade("0xfill1")
			if tc.mutate != nil {
				tc.mutate(&trade)
			}

			d := fx.engine.Process(context.Background(), trade)
			if d.Outcome != domain.DecisionSkipped || d.Reason != tc.reason {
				t.Fatalf("decision = %s/%s, want skipped/%s", d.Outcome, d.Reason, tc.reason)
			}
			// Skipped trades leave no trace on the ledger.
			if recs, _ := fx.exposures.ListNonRejected(context.Background()); len(recs) != 0 {
				t.Errorf("ledger rows for a skipped trade: %v", recs)
			}
		})
	}
}

func TestProcessDuplicateTrade(t *testing.T) {
	fx := newDryRunEngine(t, &fakeMatcher{cand: matchedCandidate()})
	ctx := context.Background()

	if d := fx.engine.Process(ctx, copyableTrade("0xfill1")); d.Outcome != domain.DecisionCopied {
		t.Fatalf("first decision = %s, want copied", d.Outcome)
	}
	d := fx.engine.Process(ctx, copyableTrade("0xfill1"))
	if d.Outcome != domain.DecisionSkipped || d.Reason != "duplicate_trade" {
		t.Fatalf("second decision = %s/%s, want skipped/duplicate_trade", d.Outcome, d.Reason)
	}
}

func TestProcessExposureLimit(t *testing.T) {
	fx := newDryRunEngine(t, &fakeMatcher{cand: matchedCandidate()})
	ctx := context.Background()

	// Each copy commits $12.50, well under the notional caps; the same-side
	// cap of 5 positions per market fills up first.
	for i := 0; i < 5; i++ {
		trade := copyableTrade("0xfill" + string(rune('1'+i)))
		if d := fx.engine.Process(ctx, trade); d.Outcome != domain.DecisionCopied {
			t.Fatalf("copy %d = %s (%s), want copied", i, d.Outcome, d.Reason)
		}
	}
	d := fx.engine.Process(ctx, copyableTrade("0xfill9"))
	if d.Outcome != domain.DecisionSkipped || d.Reason != "exposure_limit" {
		t.Fatalf("decision = %s/%s, want skipped/exposure_limit", d.Outcome, d.Reason)
	}
}
