package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DecisionOutcome is the final disposition of one processed trade event.
type DecisionOutcome string

const (
	DecisionCopied  DecisionOutcome = "copied"
	DecisionSkipped DecisionOutcome = "skipped"
	DecisionFailed  DecisionOutcome = "failed"
)

// CopyDecision is one entry of the decision log: what the engine did with a
// trade event and why. Recorded for every processed event, including dry runs.
type CopyDecision struct {
	ID             string
	SourceTradeID  string
	TraderID       string
	Outcome        DecisionOutcome
	Reason         string
	TargetMarketID string
	Side           ContractSide
	Notional       decimal.Decimal
	DryRun         bool
	DecidedAt      time.Time
}

// ExecutionRequest is the engine's instruction to place one order on the
// target exchange. Emitted only after admission has recorded a pending
// exposure record under the same idempotency key.
type ExecutionRequest struct {
	IdempotencyKey string
	TargetMarketID string
	Side           ContractSide
	Notional       decimal.Decimal

	// Context carried for logging and notifications, not for execution.
	SourceTradeID string
	TraderID      string
	MarketTitle   string
}

// OrderStatus is the target exchange's disposition of a placed order.
type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusRejected OrderStatus = "rejected"
)

// OrderResult is the execution client's response to a placed order.
type OrderResult struct {
	OrderID        string
	Status         OrderStatus
	FilledNotional decimal.Decimal
	Contracts      int64
	PriceCents     int64
}
