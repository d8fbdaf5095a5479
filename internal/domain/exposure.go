package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordStatus tracks an exposure record through its lifecycle.
type RecordStatus string

const (
	RecordStatusPending  RecordStatus = "pending"  // admitted, dispatch not yet confirmed
	RecordStatusFilled   RecordStatus = "filled"   // execution client reported a fill
	RecordStatusRejected RecordStatus = "rejected" // refused at admission, never dispatched
	RecordStatusFailed   RecordStatus = "failed"   // dispatch exhausted or permanently refused
)

// Terminal reports whether the status can no longer change.
func (s RecordStatus) Terminal() bool {
	return s == RecordStatusFilled || s == RecordStatusRejected || s == RecordStatusFailed
}

// Committed reports whether the record counts toward exposure limits.
// Rejected and failed records never reached the market.
func (s RecordStatus) Committed() bool {
	return s == RecordStatusPending || s == RecordStatusFilled
}

// ExposureRecord is one row of the append-only exposure ledger. The record
// is written at admission and its status updated as dispatch resolves; rows
// are never deleted, only archived once terminal and aged out.
type ExposureRecord struct {
	ID                string
	IdempotencyKey    string
	SourceTradeID     string
	TraderID          string
	TargetMarketID    string
	Side              ContractSide
	CommittedNotional decimal.Decimal
	Status            RecordStatus
	OrderID           string
	FailReason        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ExposureSummary is the aggregate view other components read through the
// tracker. All figures cover committed (pending or filled) records only.
type ExposureSummary struct {
	Total     decimal.Decimal
	ByTrader  map[string]decimal.Decimal
	ByMarket  map[string]int
	OpenCount int
	AsOf      time.Time
}
