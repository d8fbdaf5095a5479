package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketType classifies what a sports contract resolves on.
type MarketType string

const (
	MarketTypeWinner MarketType = "winner" // moneyline: which side wins outright
	MarketTypeSpread MarketType = "spread" // margin of victory against a line
	MarketTypeTotal  MarketType = "total"  // combined score over/under a line
)

// Valid reports whether t is one of the known market types.
func (t MarketType) Valid() bool {
	switch t {
	case MarketTypeWinner, MarketTypeSpread, MarketTypeTotal:
		return true
	}
	return false
}

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Market is the unified representation of a tradeable contract on either
// exchange. Instances are immutable once built; an index refresh replaces
// them wholesale rather than mutating in place.
type Market struct {
	ExchangeID   string
	MarketID     string // exchange-native identifier (Kalshi ticker, Polymarket condition id)
	EventID      string // exchange-native grouping identifier, when the exchange has one
	Title        string
	Type         MarketType
	Line         *float64  // meaningful only for spread/total
	Participants [2]string // canonical entities for head-to-head markets; [1] may be empty
	TickSize     decimal.Decimal
	YesBid       int64 // cents
	YesAsk       int64 // cents
	Status       MarketStatus
	CloseTime    time.Time
	FetchedAt    time.Time
}

// HasParticipant reports whether the canonical entity appears on the market.
func (m Market) HasParticipant(entity string) bool {
	return entity != "" && (m.Participants[0] == entity || m.Participants[1] == entity)
}

// Opponent returns the other participant of a head-to-head market, or ""
// when the entity is not on the market or no opponent is known.
func (m Market) Opponent(entity string) string {
	switch entity {
	case "":
		return ""
	case m.Participants[0]:
		return m.Participants[1]
	case m.Participants[1]:
		return m.Participants[0]
	}
	return ""
}
