package sizing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

func testConfig() Config {
	return Config{
		KellyFraction:  decimal.RequireFromString("0.25"),
		MaxPerTradePct: decimal.RequireFromString("0.02"),
		MinOrderSize:   decimal.NewFromInt(5),
	}
}

func tradeWith(notional, bankroll int64) domain.TradeEvent {
	return domain.TradeEvent{
		SourceTradeID:  "0xfill1",
		TraderID:       "0xabc",
		Notional:       decimal.NewFromInt(notional),
		TraderBankroll: decimal.NewFromInt(bankroll),
	}
}

func TestSizeFractionalKelly(t *testing.T) {
	s := NewSizer(testConfig())

	// whale_fraction = 500/100000 = 0.005
	// raw = 10000 * 0.25 * 0.005 = 12.50
	got, err := s.Size(tradeWith(500, 100000), decimal.NewFromInt(10000), decimal.Zero)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if want := decimal.RequireFromString("12.5"); !got.Equal(want) {
		t.Errorf("size = %s, want %s", got, want)
	}
}

func TestSizeClampsToPerTradeCap(t *testing.T) {
	s := NewSizer(testConfig())

	// raw = 10000 * 0.25 * (50000/100000) = 1250, capped at 2% = 200.
	got, err := s.Size(tradeWith(50000, 100000), decimal.NewFromInt(10000), decimal.Zero)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if want := decimal.NewFromInt(200); !got.Equal(want) {
		t.Errorf("size = %s, want cap %s", got, want)
	}
}

func TestSizeClampsToMaxOrderSize(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOrderSize = decimal.NewFromInt(100)
	s := NewSizer(cfg)

	got, err := s.Size(tradeWith(50000, 100000), decimal.NewFromInt(10000), decimal.Zero)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if want := decimal.NewFromInt(100); !got.Equal(want) {
		t.Errorf("size = %s, want max order %s", got, want)
	}
}

func TestSizeRaisesToMinimum(t *testing.T) {
	s := NewSizer(testConfig())

	// raw = 10000 * 0.25 * (10/100000) = 0.25, below the $5 exchange minimum.
	got, err := s.Size(tradeWith(10, 100000), decimal.NewFromInt(10000), decimal.Zero)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if want := decimal.NewFromInt(5); !got.Equal(want) {
		t.Errorf("size = %s, want minimum %s", got, want)
	}
}

func TestSizeTinyWhaleFractionLandsOnMinimum(t *testing.T) {
	// A $100 wager from a $1.5M whale is a ~0.0067% fraction. On a $400
	// bankroll at half Kelly the raw size is about 1.3 cents; the $1 minimum
	// decides the outcome, not the fraction.
	cfg := Config{
		KellyFraction:  decimal.RequireFromString("0.5"),
		MaxPerTradePct: decimal.RequireFromString("0.02"),
		MinOrderSize:   decimal.NewFromInt(1),
	}
	s := NewSizer(cfg)

	got, err := s.Size(tradeWith(100, 1500000), decimal.NewFromInt(400), decimal.Zero)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if want := decimal.NewFromInt(1); !got.Equal(want) {
		t.Errorf("size = %s, want minimum %s", got, want)
	}
}

func TestSizeTickRoundsDown(t *testing.T) {
	s := NewSizer(testConfig())

	// raw = 12.50 rounded down to a whole-dollar tick.
	got, err := s.Size(tradeWith(500, 100000), decimal.NewFromInt(10000), decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if want := decimal.NewFromInt(12); !got.Equal(want) {
		t.Errorf("size = %s, want %s", got, want)
	}
}

func TestSizeMonotonicInTradeNotional(t *testing.T) {
	s := NewSizer(testConfig())
	own := decimal.NewFromInt(10000)

	prev := decimal.Zero
	for _, notional := range []int64{100, 500, 1000, 5000} {
		got, err := s.Size(tradeWith(notional, 100000), own, decimal.Zero)
		if err != nil {
			t.Fatalf("size(%d): %v", notional, err)
		}
		if got.LessThan(prev) {
			t.Fatalf("size decreased: %s after %s", got, prev)
		}
		prev = got
	}
}

func TestSizeInsufficientData(t *testing.T) {
	s := NewSizer(testConfig())

	cases := []struct {
		name     string
		trade    domain.TradeEvent
		bankroll decimal.Decimal
	}{
		{"unknown whale bankroll", tradeWith(500, 0), decimal.NewFromInt(10000)},
		{"zero trade notional", tradeWith(0, 100000), decimal.NewFromInt(10000)},
		{"unknown own bankroll", tradeWith(500, 100000), decimal.Zero},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Size(tc.trade, tc.bankroll, decimal.Zero); !errors.Is(err, domain.ErrInsufficientSizingData) {
				t.Fatalf("err = %v, want ErrInsufficientSizingData", err)
			}
		})
	}
}

func TestSizeCapBelowMinimumIsRefused(t *testing.T) {
	s := NewSizer(testConfig())

	// 2% of $100 is $2, below the $5 minimum: unsizeable at this bankroll.
	_, err := s.Size(tradeWith(500, 100000), decimal.NewFromInt(100), decimal.Zero)
	if !errors.Is(err, domain.ErrExposureLimitExceeded) {
		t.Fatalf("err = %v, want ErrExposureLimitExceeded", err)
	}
}
