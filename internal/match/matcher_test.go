package match

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

type fakeIndex struct {
	markets []domain.Market
	at      time.Time
}

func (f *fakeIndex) Lookup(typ domain.MarketType, _ []string) []domain.Market {
	var out []domain.Market
	for _, m := range f.markets {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeIndex) RefreshedAt() time.Time { return f.at }

func newTestMatcher(t *testing.T, idx Index) *Matcher {
	t.Helper()
	table, err := CompilePolarity(nil)
	if err != nil {
		t.Fatalf("compile polarity: %v", err)
	}
	return NewMatcher(idx, table, MatcherConfig{
		LineTolerance: 0.5,
		MaxIndexAge:   10 * time.Minute,
	}, slog.Default())
}

func spreadMarket(id, title string, line float64) domain.Market {
	return domain.Market{
		ExchangeID:   "kalshi",
		MarketID:     id,
		Title:        title,
		Type:         domain.MarketTypeSpread,
		Line:         &line,
		Participants: [2]string{"bos", "hou"},
		TickSize:     decimal.NewFromInt(1),
		Status:       domain.MarketStatusActive,
	}
}

func TestMatchSpreadHappyPath(t *testing.T) {
	idx := &fakeIndex{
		markets: []domain.Market{
			spreadMarket("KX-B3.5", "Celtics wins by more than 3.5", 3.5),
			spreadMarket("KX-B7.5", "Celtics wins by more than 7.5", 7.5),
		},
		at: time.Now(),
	}
	m := newTestMatcher(t, idx)

	line := -3.5
	trade := domain.TradeEvent{
		SourceTradeID: "0xfill1",
		TraderID:      "0xabc",
		Entity:        "bos",
		Type:          domain.MarketTypeSpread,
		Line:          &line,
		Side:          domain.SideFor,
		Participants:  [2]string{"bos", "hou"},
		Notional:      decimal.NewFromInt(500),
	}
	cand, err := m.Match(trade)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if cand.Market.MarketID != "KX-B3.5" {
		t.Errorf("market = %s, want KX-B3.5", cand.Market.MarketID)
	}
	if cand.TargetSide != domain.ContractYes {
		t.Errorf("side = %s, want yes", cand.TargetSide)
	}
	if cand.LineDistance != 0 {
		t.Errorf("line distance = %v, want 0", cand.LineDistance)
	}
}

func TestMatchComparesLinesByMagnitude(t *testing.T) {
	// Source lines are signed by favorite convention; target lines are
	// absolute. -3.5 and 3.5 are the same line.
	idx := &fakeIndex{
		markets: []domain.Market{spreadMarket("KX-B3.5", "Celtics wins by more than 3.5", 3.5)},
		at:      time.Now(),
	}
	m := newTestMatcher(t, idx)

	line := -3.5
	trade := domain.TradeEvent{
		Entity: "bos", Type: domain.MarketTypeSpread, Line: &line,
		Side: domain.SideFor, Participants: [2]string{"bos", "hou"},
	}
	if _, err := m.Match(trade); err != nil {
		t.Fatalf("magnitude match failed: %v", err)
	}
}

func TestMatchLineToleranceBoundary(t *testing.T) {
	// The tolerance is inclusive: a line exactly at the limit still matches,
	// the first representable distance past it does not.
	m := func(idx Index) *Matcher {
		table, err := CompilePolarity(nil)
		if err != nil {
			t.Fatalf("compile polarity: %v", err)
		}
		return NewMatcher(idx, table, MatcherConfig{
			LineTolerance: 1.0,
			MaxIndexAge:   10 * time.Minute,
		}, slog.Default())
	}
	line := -2.5
	trade := domain.TradeEvent{
		Entity: "bos", Type: domain.MarketTypeSpread, Line: &line,
		Side: domain.SideFor, Participants: [2]string{"bos", "hou"},
	}

	at := m(&fakeIndex{
		markets: []domain.Market{spreadMarket("KX-3.5", "Celtics wins by more than 3.5", 3.5)},
		at:      time.Now(),
	})
	if _, err := at.Match(trade); err != nil {
		t.Fatalf("distance exactly at tolerance rejected: %v", err)
	}

	past := m(&fakeIndex{
		markets: []domain.Market{spreadMarket("KX-3.5001", "Celtics wins by more than 3.5001", 3.5001)},
		at:      time.Now(),
	})
	if _, err := past.Match(trade); !errors.Is(err, domain.ErrNoMatch) {
		t.Fatalf("err = %v, want ErrNoMatch just past tolerance", err)
	}
}

func TestMatchOpponentNamedSpread(t *testing.T) {
	// A Celtics -2.5 wager against a contract titled for the other team:
	// the line matches by magnitude within tolerance and the polarity lands
	// on the no side, not on a literal "Celtics" passthrough.
	table, err := CompilePolarity(nil)
	if err != nil {
		t.Fatalf("compile polarity: %v", err)
	}
	idx := &fakeIndex{
		markets: []domain.Market{spreadMarket("KX-HOU3.5", "houston wins by over 3.5 points", 3.5)},
		at:      time.Now(),
	}
	m := NewMatcher(idx, table, MatcherConfig{
		LineTolerance: 1.0,
		MaxIndexAge:   10 * time.Minute,
	}, slog.Default())

	line := -2.5
	cand, err := m.Match(domain.TradeEvent{
		Entity: "bos", Type: domain.MarketTypeSpread, Line: &line,
		Side: domain.SideFor, Participants: [2]string{"bos", "hou"},
	})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if cand.Market.MarketID != "KX-HOU3.5" {
		t.Errorf("market = %s, want KX-HOU3.5", cand.Market.MarketID)
	}
	if cand.TargetSide != domain.ContractNo {
		t.Errorf("side = %s, want no", cand.TargetSide)
	}
	if cand.LineDistance != 1.0 {
		t.Errorf("line distance = %v, want 1.0", cand.LineDistance)
	}

	// The mirror wager, Houston taking the points on the same contract,
	// has no derivable side and must come back ambiguous, not yes.
	plus := 3.5
	_, err = m.Match(domain.TradeEvent{
		Entity: "hou", Type: domain.MarketTypeSpread, Line: &plus,
		Side: domain.SideFor, Participants: [2]string{"bos", "hou"},
	})
	if !errors.Is(err, domain.ErrAmbiguousMatch) {
		t.Fatalf("err = %v, want ErrAmbiguousMatch for underdog on own contract", err)
	}
}

func TestMatchStaleIndex(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
	}{
		{"never refreshed", time.Time{}},
		{"too old", time.Now().Add(-time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMatcher(t, &fakeIndex{at: tc.at})
			_, err := m.Match(domain.TradeEvent{Type: domain.MarketTypeWinner, Entity: "bos"})
			if !errors.Is(err, domain.ErrIndexStale) {
				t.Fatalf("err = %v, want ErrIndexStale", err)
			}
		})
	}
}

func TestMatchNoCandidate(t *testing.T) {
	idx := &fakeIndex{
		markets: []domain.Market{spreadMarket("KX-B9.5", "Celtics wins by more than 9.5", 9.5)},
		at:      time.Now(),
	}
	m := newTestMatcher(t, idx)

	// Line out of tolerance.
	line := -3.5
	trade := domain.TradeEvent{
		Entity: "bos", Type: domain.MarketTypeSpread, Line: &line,
		Side: domain.SideFor, Participants: [2]string{"bos", "hou"},
	}
	if _, err := m.Match(trade); !errors.Is(err, domain.ErrNoMatch) {
		t.Fatalf("err = %v, want ErrNoMatch", err)
	}

	// Different game: every known participant must appear on the market.
	line2 := -3.5
	other := domain.TradeEvent{
		Entity: "lal", Type: domain.MarketTypeSpread, Line: &line2,
		Side: domain.SideFor, Participants: [2]string{"lal", "gsw"},
	}
	if _, err := m.Match(other); !errors.Is(err, domain.ErrNoMatch) {
		t.Fatalf("err = %v, want ErrNoMatch", err)
	}
}

func TestMatchAmbiguous(t *testing.T) {
	// Two markets at the same line distance: refuse rather than guess.
	idx := &fakeIndex{
		markets: []domain.Market{
			spreadMarket("KX-A", "Celtics wins by more than 3.5", 3.5),
			spreadMarket("KX-B", "Celtics wins by more than 3.5", 3.5),
		},
		at: time.Now(),
	}
	m := newTestMatcher(t, idx)

	line := -3.5
	trade := domain.TradeEvent{
		Entity: "bos", Type: domain.MarketTypeSpread, Line: &line,
		Side: domain.SideFor, Participants: [2]string{"bos", "hou"},
	}
	if _, err := m.Match(trade); !errors.Is(err, domain.ErrAmbiguousMatch) {
		t.Fatalf("err = %v, want ErrAmbiguousMatch", err)
	}
}

func TestMatchUnderivableSideIsAmbiguous(t *testing.T) {
	// The candidate fits, but its title names neither team, so the contract
	// polarity cannot be derived.
	market := spreadMarket("KX-C", "Game 7 margin over 3.5", 3.5)
	idx := &fakeIndex{markets: []domain.Market{market}, at: time.Now()}
	m := newTestMatcher(t, idx)

	line := -3.5
	trade := domain.TradeEvent{
		Entity: "bos", Type: domain.MarketTypeSpread, Line: &line,
		Side: domain.SideFor, Participants: [2]string{"bos", "hou"},
	}
	if _, err := m.Match(trade); !errors.Is(err, domain.ErrAmbiguousMatch) {
		t.Fatalf("err = %v, want ErrAmbiguousMatch", err)
	}
}

func TestMatchWinner(t *testing.T) {
	idx := &fakeIndex{
		markets: []domain.Market{{
			ExchangeID:   "kalshi",
			MarketID:     "KXNBAGAME-24NOV25BOSHOU",
			Title:        "Boston Celtics wins the game",
			Type:         domain.MarketTypeWinner,
			Participants: [2]string{"bos", "hou"},
			Status:       domain.MarketStatusActive,
		}},
		at: time.Now(),
	}
	m := newTestMatcher(t, idx)

	trade := domain.TradeEvent{
		Entity: "hou", Type: domain.MarketTypeWinner,
		Side: domain.SideFor, Participants: [2]string{"bos", "hou"},
	}
	cand, err := m.Match(trade)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	// Backing Houston on a Celtics contract is the no side.
	if cand.TargetSide != domain.ContractNo {
		t.Errorf("side = %s, want no", cand.TargetSide)
	}
}
