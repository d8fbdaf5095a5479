package match

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

const testTrader = "0x1111111111111111111111111111111111111111"

type fixedBankrolls struct {
	amount decimal.Decimal
}

func (f fixedBankrolls) Bankroll(string) decimal.Decimal { return f.amount }

func rawWinnerTrade() domain.RawTrade {
	return domain.RawTrade{
		EventID:     "0xfill1",
		Trader:      testTrader,
		MarketID:    "cond-1",
		Title:       "Celtics vs Rockets",
		Slug:        "nba-bos-hou-2025-11-24",
		Outcome:     "Celtics",
		SideRaw:     "BUY",
		Price:       0.55,
		Size:        100,
		NotionalUSD: 55,
		Timestamp:   time.Now(),
	}
}

func TestNormalizeWinnerTrade(t *testing.T) {
	n := NewNormalizer(fixedBankrolls{decimal.NewFromInt(10000)})

	event, err := n.Normalize(rawWinnerTrade())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Type != domain.MarketTypeWinner {
		t.Errorf("type = %s, want winner", event.Type)
	}
	if event.Entity != "bos" {
		t.Errorf("entity = %q, want bos", event.Entity)
	}
	if event.Side != domain.SideFor {
		t.Errorf("side = %s, want for", event.Side)
	}
	if event.Participants != [2]string{"bos", "hou"} {
		t.Errorf("participants = %v", event.Participants)
	}
	if event.TraderID != testTrader {
		t.Errorf("trader = %q, want lowercased address", event.TraderID)
	}
	if !event.Notional.Equal(decimal.NewFromInt(55)) {
		t.Errorf("notional = %s, want 55", event.Notional)
	}
	if !event.TraderBankroll.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("bankroll = %s, want 10000", event.TraderBankroll)
	}
}

func TestNormalizeSellIsAgainst(t *testing.T) {
	n := NewNormalizer(nil)
	raw := rawWinnerTrade()
	raw.SideRaw = "SELL"

	event, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Side != domain.SideAgainst {
		t.Errorf("side = %s, want against", event.Side)
	}
	if !event.TraderBankroll.IsZero() {
		t.Errorf("bankroll without source = %s, want zero", event.TraderBankroll)
	}
}

func TestNormalizeYesNoOutcome(t *testing.T) {
	n := NewNormalizer(nil)

	// The title phrases the contract around the first-named team; yes backs
	// it, no backs the other side.
	raw := rawWinnerTrade()
	raw.Title = "Will the Celtics beat the Rockets?"
	raw.Outcome = "Yes"
	event, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize yes: %v", err)
	}
	if event.Entity != "bos" || event.Side != domain.SideFor {
		t.Errorf("yes buy = %q/%s, want bos/for", event.Entity, event.Side)
	}

	raw.Outcome = "No"
	event, err = n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize no: %v", err)
	}
	if event.Entity != "bos" || event.Side != domain.SideAgainst {
		t.Errorf("no buy = %q/%s, want bos/against", event.Entity, event.Side)
	}
}

func TestNormalizeTotalTrade(t *testing.T) {
	n := NewNormalizer(nil)
	raw := rawWinnerTrade()
	raw.Title = "BOS/HOU total points over 224.5"
	raw.Outcome = "Over"

	event, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Type != domain.MarketTypeTotal {
		t.Errorf("type = %s, want total", event.Type)
	}
	if event.Entity != "over" {
		t.Errorf("entity = %q, want over", event.Entity)
	}
	if event.Line == nil || *event.Line != 224.5 {
		t.Errorf("line = %v, want 224.5", event.Line)
	}
}

func TestNormalizeDerivesNotionalFromPriceAndSize(t *testing.T) {
	n := NewNormalizer(nil)
	raw := rawWinnerTrade()
	raw.NotionalUSD = 0

	event, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := decimal.NewFromFloat(0.55).Mul(decimal.NewFromInt(100))
	if !event.Notional.Equal(want) {
		t.Errorf("notional = %s, want %s", event.Notional, want)
	}
}

func TestNormalizeUnparsable(t *testing.T) {
	n := NewNormalizer(nil)

	cases := []struct {
		name   string
		mutate func(*domain.RawTrade)
	}{
		{"missing event id", func(r *domain.RawTrade) { r.EventID = "" }},
		{"bad trader address", func(r *domain.RawTrade) { r.Trader = "not-an-address" }},
		{"spread without line", func(r *domain.RawTrade) {
			r.Title = "Celtics cover the spread"
			r.MarketID = "cond-one"
		}},
		{"zero notional", func(r *domain.RawTrade) {
			r.NotionalUSD = 0
			r.Price = 0
			r.Size = 0
		}},
		{"total with unusable outcome", func(r *domain.RawTrade) {
			r.Title = "BOS/HOU total points over 224.5"
			r.Outcome = "maybe"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := rawWinnerTrade()
			tc.mutate(&raw)
			if _, err := n.Normalize(raw); !errors.Is(err, domain.ErrUnparsableTrade) {
				t.Fatalf("err = %v, want ErrUnparsableTrade", err)
			}
		})
	}
}
