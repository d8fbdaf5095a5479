package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RawMarket is an exchange-specific open-market payload as delivered by a
// MarketIndexFeed, before normalization into a Market.
type RawMarket struct {
	MarketID  string
	EventID   string
	Title     string
	Subtitle  string
	Status    string
	YesBid    int64 // cents
	YesAsk    int64 // cents
	LineHint  *float64
	TickCents int64
	CloseTime time.Time
}

// TradeSourceFeed delivers raw trades placed by tracked traders on the
// source exchange. Delivery is at-least-once; duplicates are filtered
// downstream by idempotency.
type TradeSourceFeed interface {
	// Poll returns raw trades observed since cursor and the cursor to resume
	// from. An empty cursor means start from the feed's earliest retained
	// point.
	Poll(ctx context.Context, cursor string) ([]RawTrade, string, error)
	Name() string
}

// MarketIndexFeed lists the currently open markets on the target exchange.
type MarketIndexFeed interface {
	ListOpenMarkets(ctx context.Context) ([]RawMarket, error)
}

// ExecutionClient places orders on the target exchange. Implementations
// classify failures into ErrExecutionTransient / ErrExecutionPermanent so
// the dispatcher can decide whether to retry.
type ExecutionClient interface {
	PlaceOrder(ctx context.Context, marketID string, side ContractSide, notional decimal.Decimal) (OrderResult, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}
