package sizing

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// typicalWagerFraction is the assumed share of bankroll a whale commits per
// wager when only their trade history is available: a trader averaging $250
// a bet is estimated to run about $10k.
var typicalWagerFraction = decimal.RequireFromString("0.025")

// Estimator supplies bankroll estimates for tracked traders. A configured
// estimate always wins; otherwise a rolling average of observed wagers is
// scaled up by the typical wager fraction. A trader with neither reports
// zero, and the sizer refuses to size the trade.
type Estimator struct {
	window int

	mu         sync.RWMutex
	configured map[string]decimal.Decimal
	observed   map[string][]decimal.Decimal
}

// NewEstimator creates an Estimator with the given rolling window size.
func NewEstimator(window int) *Estimator {
	if window < 1 {
		window = 1
	}
	return &Estimator{
		window:     window,
		configured: make(map[string]decimal.Decimal),
		observed:   make(map[string][]decimal.Decimal),
	}
}

// SetConfigured installs an operator-supplied bankroll estimate.
func (e *Estimator) SetConfigured(traderID string, bankroll decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bankroll.IsPositive() {
		e.configured[key(traderID)] = bankroll
	}
}

// Observe records one wager, feeding the rolling window.
func (e *Estimator) Observe(traderID string, notional decimal.Decimal) {
	if !notional.IsPositive() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	k := key(traderID)
	w := append(e.observed[k], notional)
	if len(w) > e.window {
		w = w[len(w)-e.window:]
	}
	e.observed[k] = w
}

// Bankroll implements match.BankrollSource.
func (e *Estimator) Bankroll(traderID string) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	k := key(traderID)
	if b, ok := e.configured[k]; ok {
		return b
	}
	w := e.observed[k]
	if len(w) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, n := range w {
		sum = sum.Add(n)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(w))))
	return avg.Div(typicalWagerFraction)
}

// Load installs configured estimates from a persisted trader roster.
func (e *Estimator) Load(traders []domain.TrackedTrader) {
	for _, t := range traders {
		e.SetConfigured(t.Address, t.BankrollEstimate)
	}
}

func key(traderID string) string { return strings.ToLower(traderID) }
