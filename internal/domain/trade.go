package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a source trade relative to the entity bet on.
type Side string

const (
	SideFor     Side = "for"     // wager wins if the entity's outcome occurs
	SideAgainst Side = "against" // wager wins if it does not
)

// Opposite returns the other wager direction.
func (s Side) Opposite() Side {
	if s == SideFor {
		return SideAgainst
	}
	return SideFor
}

// ContractSide is the yes/no polarity of a target-exchange contract.
type ContractSide string

const (
	ContractYes ContractSide = "yes"
	ContractNo  ContractSide = "no"
)

// Opposite returns the other contract polarity.
func (s ContractSide) Opposite() ContractSide {
	if s == ContractYes {
		return ContractNo
	}
	return ContractYes
}

// RawTrade is an exchange-specific trade payload as delivered by a
// TradeSourceFeed, before normalization. Field presence varies by feed.
type RawTrade struct {
	EventID      string // source-native unique id for the fill
	Trader       string // wallet address of the account that traded
	MarketID     string
	Title        string
	Slug         string
	Outcome      string // surface string of the outcome bought, e.g. "Yes" or a team name
	OutcomeIndex int
	SideRaw      string  // BUY or SELL
	Price        float64 // 0..1
	Size         float64 // outcome shares
	NotionalUSD  float64
	Timestamp    time.Time
}

// TradeEvent is the canonical record of one observed source-exchange trade.
// Created once per detected trade and never mutated.
type TradeEvent struct {
	SourceTradeID  string
	TraderID       string
	Entity         string // canonical entity the wager backs; "over"/"under" for totals
	Type           MarketType
	Line           *float64
	Side           Side
	Notional       decimal.Decimal
	TraderBankroll decimal.Decimal // estimate; zero means unknown
	ObservedAt     time.Time

	// Participants identifies the underlying game so total markets, whose
	// entity is an over/under token rather than a team, can still be scoped
	// to the right matchup. [1] may be empty.
	Participants [2]string

	// Source descriptor context, kept for matching and audit.
	SourceMarketID string
	SourceTitle    string
	SourceSlug     string
}

// MatchCandidate pairs a trade with its resolved target market. Produced and
// consumed within a single decision cycle.
type MatchCandidate struct {
	Trade        TradeEvent
	Market       Market
	TargetSide   ContractSide
	Confidence   float64
	LineDistance float64
}

// NewIdempotencyKey derives the deterministic key that guards a source trade
// against being copied twice onto the same target contract.
func NewIdempotencyKey(sourceTradeID, targetMarketID string, side ContractSide) string {
	raw := strings.ToLower(sourceTradeID) + "|" + strings.ToLower(targetMarketID) + "|" + string(side)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
