// Package sizing computes risk-bounded copy notionals: a fractional-Kelly
// scaling of the tracked trader's bet-to-bankroll ratio, clamped to hard
// caps and rounded to the target market's tick.
package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// Config holds the sizing knobs. All caps are in dollars except
// MaxPerTradePct, which is a fraction of own bankroll.
type Config struct {
	KellyFraction  decimal.Decimal
	MaxPerTradePct decimal.Decimal
	MinOrderSize   decimal.Decimal
	// MaxOrderSize is an absolute ceiling per order. Zero disables it.
	MaxOrderSize decimal.Decimal
}

// Sizer computes copy notionals.
type Sizer struct {
	cfg Config
}

// NewSizer creates a Sizer.
func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size computes the copy notional for a trade given our own bankroll and the
// target market's tick size.
//
//	whale_fraction = trade.notional / trader_bankroll
//	raw            = own_bankroll * kelly_fraction * whale_fraction
//
// raw is clamped to [min_order_size, own_bankroll*max_per_trade_pct] and
// rounded down to the tick; rounding never pushes a size up past a cap.
// A zero or unknown trader bankroll fails with ErrInsufficientSizingData
// rather than guessing.
func (s *Sizer) Size(trade domain.TradeEvent, ownBankroll, tickSize decimal.Decimal) (decimal.Decimal, error) {
	if trade.TraderBankroll.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("sizing: no bankroll estimate for trader %s: %w", trade.TraderID, domain.ErrInsufficientSizingData)
	}
	if trade.Notional.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("sizing: non-positive trade notional: %w", domain.ErrInsufficientSizingData)
	}
	if ownBankroll.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("sizing: own bankroll unknown: %w", domain.ErrInsufficientSizingData)
	}

	cap := ownBankroll.Mul(s.cfg.MaxPerTradePct)
	if s.cfg.MaxOrderSize.IsPositive() && s.cfg.MaxOrderSize.LessThan(cap) {
		cap = s.cfg.MaxOrderSize
	}
	if cap.LessThan(s.cfg.MinOrderSize) {
		// The per-trade cap cannot even cover the exchange minimum; the
		// trade is unsizeable at this bankroll.
		return decimal.Zero, fmt.Errorf("sizing: per-trade cap %s below minimum order %s: %w",
			cap.StringFixed(2), s.cfg.MinOrderSize.StringFixed(2), domain.ErrExposureLimitExceeded)
	}

	whaleFraction := trade.Notional.Div(trade.TraderBankroll)
	raw := ownBankroll.Mul(s.cfg.KellyFraction).Mul(whaleFraction)

	// Clamp, then round down to the tick. The minimum clamp happens first so
	// the tick rounding can never round up past the cap.
	if raw.LessThan(s.cfg.MinOrderSize) {
		raw = s.cfg.MinOrderSize
	}
	if raw.GreaterThan(cap) {
		raw = cap
	}
	if tickSize.IsPositive() {
		raw = raw.Div(tickSize).Floor().Mul(tickSize)
	}
	if raw.LessThan(s.cfg.MinOrderSize) {
		return decimal.Zero, fmt.Errorf("sizing: tick rounding left %s below minimum order %s: %w",
			raw.StringFixed(2), s.cfg.MinOrderSize.StringFixed(2), domain.ErrExposureLimitExceeded)
	}
	return raw, nil
}
