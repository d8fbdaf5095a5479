package domain

import "time"

// MarketLink memoizes a confirmed cross-exchange match: trades on the source
// market resolve to the target market without re-running the matcher, for as
// long as the target remains in the current index snapshot.
type MarketLink struct {
	ID             string
	SourceMarketID string
	TargetMarketID string
	Type           MarketType
	// TargetSideFor is the contract polarity a "for" wager on the source
	// market's entity maps to on the target contract.
	TargetSideFor ContractSide
	Entity        string
	Confidence    float64
	ResolvedAt    time.Time
}
