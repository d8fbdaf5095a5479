package match

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

func defaultTable(t *testing.T) *PolarityTable {
	t.Helper()
	table, err := CompilePolarity(nil)
	if err != nil {
		t.Fatalf("compile defaults: %v", err)
	}
	return table
}

func spreadTrade(entity string, line float64, side domain.Side) domain.TradeEvent {
	return domain.TradeEvent{
		Type:         domain.MarketTypeSpread,
		Entity:       entity,
		Line:         &line,
		Side:         side,
		Participants: [2]string{"bos", "hou"},
		Notional:     decimal.NewFromInt(100),
	}
}

func TestDeriveWinner(t *testing.T) {
	table := defaultTable(t)
	market := domain.Market{
		Type:         domain.MarketTypeWinner,
		Title:        "Boston Celtics wins the game",
		Participants: [2]string{"bos", "hou"},
	}

	trade := domain.TradeEvent{
		Type:         domain.MarketTypeWinner,
		Entity:       "bos",
		Side:         domain.SideFor,
		Participants: [2]string{"bos", "hou"},
	}
	side, ok := table.Derive(trade, market)
	if !ok || side != domain.ContractYes {
		t.Fatalf("for named entity = %s/%v, want yes/true", side, ok)
	}

	trade.Side = domain.SideAgainst
	side, ok = table.Derive(trade, market)
	if !ok || side != domain.ContractNo {
		t.Fatalf("against named entity = %s/%v, want no/true", side, ok)
	}

	// The contract names the opponent: backing our entity means no on it.
	trade = domain.TradeEvent{
		Type:         domain.MarketTypeWinner,
		Entity:       "bos",
		Side:         domain.SideFor,
		Participants: [2]string{"bos", "hou"},
	}
	oppMarket := domain.Market{
		Type:         domain.MarketTypeWinner,
		Title:        "Houston Rockets wins the game",
		Participants: [2]string{"bos", "hou"},
	}
	side, ok = table.Derive(trade, oppMarket)
	if !ok || side != domain.ContractNo {
		t.Fatalf("for opponent contract = %s/%v, want no/true", side, ok)
	}
}

func TestDeriveSpread(t *testing.T) {
	table := defaultTable(t)
	market := domain.Market{
		Type:         domain.MarketTypeSpread,
		Title:        "Celtics wins by more than 3.5",
		Participants: [2]string{"bos", "hou"},
	}

	// Favorite laying points backs the named team's cover.
	side, ok := table.Derive(spreadTrade("bos", -3.5, domain.SideFor), market)
	if !ok || side != domain.ContractYes {
		t.Fatalf("favorite = %s/%v, want yes/true", side, ok)
	}

	// Underdog taking points is no on the opponent's cover contract.
	side, ok = table.Derive(spreadTrade("hou", 3.5, domain.SideFor), market)
	if !ok || side != domain.ContractNo {
		t.Fatalf("underdog = %s/%v, want no/true", side, ok)
	}

	// A favorite wager against its own cover flips.
	side, ok = table.Derive(spreadTrade("bos", -3.5, domain.SideAgainst), market)
	if !ok || side != domain.ContractNo {
		t.Fatalf("favorite against = %s/%v, want no/true", side, ok)
	}

	// A favorite on a contract naming the underdog: backing the favorite is
	// the underdog failing to cover, whatever sign the source line carries.
	oppMarket := domain.Market{
		Type:         domain.MarketTypeSpread,
		Title:        "houston wins by over 3.5 points",
		Participants: [2]string{"bos", "hou"},
	}
	side, ok = table.Derive(spreadTrade("bos", -2.5, domain.SideFor), oppMarket)
	if !ok || side != domain.ContractNo {
		t.Fatalf("favorite on opponent contract = %s/%v, want no/true", side, ok)
	}

	// An underdog taking points on its own named contract has no derivable
	// side: "houston +3.5" is not houston winning by more than 3.5, and yes
	// would invert the wager. Refuse rather than guess.
	if side, ok = table.Derive(spreadTrade("hou", 3.5, domain.SideFor), oppMarket); ok {
		t.Fatalf("underdog on own contract derived %s, want refusal", side)
	}
}

func TestDeriveHonorsLineSignRestriction(t *testing.T) {
	table, err := CompilePolarity([]PolarityRule{{
		Type:     domain.MarketTypeSpread,
		Pattern:  `(?i)wins by`,
		Named:    "entity",
		LineSign: "negative",
		Side:     domain.ContractYes,
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	market := domain.Market{
		Type:         domain.MarketTypeSpread,
		Title:        "Celtics wins by more than 3.5",
		Participants: [2]string{"bos", "hou"},
	}

	if _, ok := table.Derive(spreadTrade("bos", 3.5, domain.SideFor), market); ok {
		t.Fatal("positive line matched a negative-only rule")
	}
	if side, ok := table.Derive(spreadTrade("bos", -3.5, domain.SideFor), market); !ok || side != domain.ContractYes {
		t.Fatalf("negative line = %s/%v, want yes/true", side, ok)
	}
}

func TestDeriveTotal(t *testing.T) {
	table := defaultTable(t)
	market := domain.Market{
		Type:         domain.MarketTypeTotal,
		Title:        "Combined points over 224.5",
		Participants: [2]string{"bos", "hou"},
	}
	line := 224.5

	trade := domain.TradeEvent{
		Type:   domain.MarketTypeTotal,
		Entity: "over",
		Line:   &line,
		Side:   domain.SideFor,
	}
	side, ok := table.Derive(trade, market)
	if !ok || side != domain.ContractYes {
		t.Fatalf("over = %s/%v, want yes/true", side, ok)
	}

	trade.Entity = "under"
	side, ok = table.Derive(trade, market)
	if !ok || side != domain.ContractNo {
		t.Fatalf("under = %s/%v, want no/true", side, ok)
	}
}

func TestDeriveRefusesAmbiguousTitles(t *testing.T) {
	table := defaultTable(t)

	// Title names both participants: no single contract entity.
	both := domain.Market{
		Type:         domain.MarketTypeWinner,
		Title:        "Celtics vs Rockets winner",
		Participants: [2]string{"bos", "hou"},
	}
	trade := domain.TradeEvent{
		Type:         domain.MarketTypeWinner,
		Entity:       "bos",
		Side:         domain.SideFor,
		Participants: [2]string{"bos", "hou"},
	}
	if _, ok := table.Derive(trade, both); ok {
		t.Fatal("derived a side from a title naming both teams")
	}

	// Title names neither.
	neither := domain.Market{
		Type:         domain.MarketTypeWinner,
		Title:        "Game 7 winner",
		Participants: [2]string{"bos", "hou"},
	}
	if _, ok := table.Derive(trade, neither); ok {
		t.Fatal("derived a side from a title naming neither team")
	}
}

func TestCompilePolarityValidation(t *testing.T) {
	cases := []struct {
		name string
		rule PolarityRule
	}{
		{"invalid market type", PolarityRule{Type: "parlay", Pattern: "x", Named: "entity", Side: domain.ContractYes}},
		{"invalid regexp", PolarityRule{Type: domain.MarketTypeWinner, Pattern: "(", Named: "entity", Side: domain.ContractYes}},
		{"invalid named", PolarityRule{Type: domain.MarketTypeWinner, Pattern: "x", Named: "self", Side: domain.ContractYes}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := CompilePolarity([]PolarityRule{tc.rule}); err == nil {
				t.Fatal("expected compile error")
			}
		})
	}
}
