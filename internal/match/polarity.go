package match

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// PolarityRule maps a "for" wager from the source exchange onto the yes/no
// polarity of a target contract family. Side conventions across exchanges are
// asymmetric (an underdog spread on one exchange is the opposite team's
// "wins by" contract on the other) and cannot be inferred, so the mapping is
// supplied as data. A trade no rule covers is ambiguous, never guessed.
type PolarityRule struct {
	// Type is the market type the rule applies to.
	Type domain.MarketType
	// Pattern recognizes the target contract family by its title.
	Pattern string
	// Named is which side of the trade the target contract names: "entity"
	// (the thing the wager backs) or "opponent".
	Named string
	// LineSign restricts the rule to source lines of one sign: "negative",
	// "positive", or "any". Ignored for winner markets.
	LineSign string
	// Side is the contract side a "for" wager maps to. An "against" wager
	// takes the opposite.
	Side domain.ContractSide
}

// DefaultPolarityRules covers the Kalshi-style sports contract families:
// moneyline "X wins", spread "X wins by more than L", and total
// "combined points over L". Operator config extends or replaces these for
// other exchange pairs.
func DefaultPolarityRules() []PolarityRule {
	return []PolarityRule{
		// Moneyline: the contract names one team; backing that team is yes,
		// backing the other is no.
		{Type: domain.MarketTypeWinner, Pattern: `(?i)\b(wins?|beats?|winner|moneyline)\b`, Named: "entity", LineSign: "any", Side: domain.ContractYes},
		{Type: domain.MarketTypeWinner, Pattern: `(?i)\b(wins?|beats?|winner|moneyline)\b`, Named: "opponent", LineSign: "any", Side: domain.ContractNo},

		// Spread: "X wins by more than L". A favorite laying points (negative
		// source line) on its own named contract backs the cover. A contract
		// naming the opponent is that team's cover seen from the other side:
		// backing our team is no on it, whichever sign the source line
		// carries. The entity-named positive-line cell stays uncovered on
		// purpose: an underdog taking points is not that team winning by more
		// than the line, and no side can be derived without inverting it.
		{Type: domain.MarketTypeSpread, Pattern: `(?i)wins by (more than|over)`, Named: "entity", LineSign: "negative", Side: domain.ContractYes},
		{Type: domain.MarketTypeSpread, Pattern: `(?i)wins by (more than|over)`, Named: "opponent", LineSign: "any", Side: domain.ContractNo},

		// Total: "combined points over L". Backing the over is yes; the
		// under is the same contract's no.
		{Type: domain.MarketTypeTotal, Pattern: `(?i)\b(over|o/u|total|combined)\b`, Named: "entity", LineSign: "any", Side: domain.ContractYes},
		{Type: domain.MarketTypeTotal, Pattern: `(?i)\b(over|o/u|total|combined)\b`, Named: "opponent", LineSign: "any", Side: domain.ContractNo},
	}
}

type compiledPolarity struct {
	typ      domain.MarketType
	re       *regexp.Regexp
	named    string
	lineSign string
	side     domain.ContractSide
}

// PolarityTable resolves target contract sides from compiled rules.
type PolarityTable struct {
	rules []compiledPolarity
}

// CompilePolarity validates and compiles a rule set. An empty set compiles
// the defaults.
func CompilePolarity(rules []PolarityRule) (*PolarityTable, error) {
	if len(rules) == 0 {
		rules = DefaultPolarityRules()
	}
	t := &PolarityTable{rules: make([]compiledPolarity, 0, len(rules))}
	for i, r := range rules {
		if !r.Type.Valid() {
			return nil, fmt.Errorf("match: polarity rule %d: invalid market type %q", i, r.Type)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("match: polarity rule %d: %w", i, err)
		}
		if r.Named != "entity" && r.Named != "opponent" {
			return nil, fmt.Errorf("match: polarity rule %d: named must be entity or opponent", i)
		}
		sign := r.LineSign
		if sign == "" {
			sign = "any"
		}
		t.rules = append(t.rules, compiledPolarity{
			typ: r.Type, re: re, named: r.Named, lineSign: sign, side: r.Side,
		})
	}
	return t, nil
}

// totalOutcomes are the pseudo-entities of a total market.
const (
	OutcomeOver  = "over"
	OutcomeUnder = "under"
)

// Derive resolves which contract side on the target market corresponds to
// the trade. ok is false when the target title names neither side of the
// trade or no rule covers the combination; callers must treat that as an
// ambiguous match rather than pick a side.
func (t *PolarityTable) Derive(trade domain.TradeEvent, market domain.Market) (domain.ContractSide, bool) {
	named, ok := t.namedRelation(trade, market)
	if !ok {
		return "", false
	}
	for _, r := range t.rules {
		if r.typ != trade.Type {
			continue
		}
		if r.named != named {
			continue
		}
		if !lineSignMatches(r.lineSign, trade.Line) {
			continue
		}
		if !r.re.MatchString(market.Title) {
			continue
		}
		side := r.side
		if trade.Side == domain.SideAgainst {
			side = side.Opposite()
		}
		return side, true
	}
	return "", false
}

// namedRelation decides whether the target contract names the trade's entity
// or its opponent. For totals the entity is an over/under token and the
// contract is read as naming the over.
func (t *PolarityTable) namedRelation(trade domain.TradeEvent, market domain.Market) (string, bool) {
	if trade.Type == domain.MarketTypeTotal {
		switch strings.ToLower(trade.Entity) {
		case OutcomeOver:
			return "entity", true
		case OutcomeUnder:
			return "opponent", true
		}
		return "", false
	}

	named := namedParticipant(market)
	if named == "" {
		return "", false
	}
	switch {
	case SameEntity(named, trade.Entity):
		return "entity", true
	case trade.Participants[0] != "" || trade.Participants[1] != "":
		opp := opponentOf(trade)
		if opp != "" && SameEntity(named, opp) {
			return "opponent", true
		}
	}
	return "", false
}

// namedParticipant finds which of the market's participants its title names.
// A title naming both or neither gives no answer.
func namedParticipant(market domain.Market) string {
	var found string
	for _, p := range market.Participants {
		if p == "" {
			continue
		}
		if entityNamedInTitle(p, market.Title) {
			if found != "" && !SameEntity(found, p) {
				return ""
			}
			found = p
		}
	}
	return found
}

// entityNamedInTitle reports whether any surface alias of the canonical
// entity appears as a word of the title.
func entityNamedInTitle(canonical, title string) bool {
	lower := strings.ToLower(title)
	aliases, ok := teamAliases[canonical]
	if !ok {
		aliases = []string{canonical}
	}
	for _, alias := range aliases {
		if containsWord(lower, alias) {
			return true
		}
	}
	return false
}

func containsWord(haystack, word string) bool {
	for i := 0; ; {
		j := strings.Index(haystack[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		i = start + 1
		if i >= len(haystack) {
			return false
		}
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// opponentOf returns the canonical opponent of the trade's entity within its
// game, or "" when unknown.
func opponentOf(trade domain.TradeEvent) string {
	p0, p1 := trade.Participants[0], trade.Participants[1]
	switch {
	case p0 != "" && SameEntity(trade.Entity, p0):
		return p1
	case p1 != "" && SameEntity(trade.Entity, p1):
		return p0
	}
	return ""
}

func lineSignMatches(sign string, line *float64) bool {
	switch sign {
	case "", "any":
		return true
	case "negative":
		return line != nil && math.Signbit(*line) && *line != 0
	case "positive":
		return line != nil && *line > 0
	}
	return false
}
