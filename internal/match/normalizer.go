package match

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// BankrollSource supplies the bankroll estimate for a tracked trader. Zero
// means unknown; the sizer refuses to size such trades.
type BankrollSource interface {
	Bankroll(traderID string) decimal.Decimal
}

// Normalizer converts raw source-exchange trade payloads into canonical
// TradeEvents: classified market type, extracted line, canonical entity, and
// a for/against side.
type Normalizer struct {
	bankrolls BankrollSource
}

// NewNormalizer creates a Normalizer. bankrolls may be nil, in which case
// every event carries an unknown bankroll.
func NewNormalizer(bankrolls BankrollSource) *Normalizer {
	return &Normalizer{bankrolls: bankrolls}
}

// Normalize builds a TradeEvent from a raw trade, or fails wrapping
// domain.ErrUnparsableTrade when required fields cannot be derived.
func (n *Normalizer) Normalize(raw domain.RawTrade) (domain.TradeEvent, error) {
	if raw.EventID == "" {
		return domain.TradeEvent{}, fmt.Errorf("match: missing event id: %w", domain.ErrUnparsableTrade)
	}
	if !common.IsHexAddress(raw.Trader) {
		return domain.TradeEvent{}, fmt.Errorf("match: invalid trader address %q: %w", raw.Trader, domain.ErrUnparsableTrade)
	}

	desc := DescribeTitle(raw.Title, raw.MarketID)
	if desc.Type != domain.MarketTypeWinner && desc.Line == nil {
		// A spread or total with no recoverable line can never be matched
		// within a tolerance.
		return domain.TradeEvent{}, fmt.Errorf("match: %s market %q has no line: %w", desc.Type, raw.Title, domain.ErrUnparsableTrade)
	}

	participants := gameParticipants(raw)

	entity, side, err := resolveOutcome(raw, desc.Type, participants)
	if err != nil {
		return domain.TradeEvent{}, err
	}

	notional := decimal.NewFromFloat(raw.NotionalUSD)
	if notional.IsZero() && raw.Price > 0 && raw.Size > 0 {
		notional = decimal.NewFromFloat(raw.Price).Mul(decimal.NewFromFloat(raw.Size))
	}
	if notional.LessThanOrEqual(decimal.Zero) {
		return domain.TradeEvent{}, fmt.Errorf("match: trade %s has no notional: %w", raw.EventID, domain.ErrUnparsableTrade)
	}

	trader := strings.ToLower(common.HexToAddress(raw.Trader).Hex())
	bankroll := decimal.Zero
	if n.bankrolls != nil {
		bankroll = n.bankrolls.Bankroll(trader)
	}

	return domain.TradeEvent{
		SourceTradeID:  raw.EventID,
		TraderID:       trader,
		Entity:         entity,
		Type:           desc.Type,
		Line:           desc.Line,
		Side:           side,
		Notional:       notional,
		TraderBankroll: bankroll,
		ObservedAt:     raw.Timestamp.UTC(),
		Participants:   participants,
		SourceMarketID: raw.MarketID,
		SourceTitle:    raw.Title,
		SourceSlug:     raw.Slug,
	}, nil
}

// gameParticipants derives the canonical participant pair, preferring the
// slug's packed team tokens over scanning the title.
func gameParticipants(raw domain.RawTrade) [2]string {
	if t1, t2 := TeamsFromSlug(raw.Slug); t1 != "" {
		c1, c2 := CanonicalEntity(t1), CanonicalEntity(t2)
		if c1 == "" {
			c1 = NormalizeEntity(t1)
		}
		if c2 == "" {
			c2 = NormalizeEntity(t2)
		}
		return [2]string{c1, c2}
	}
	return participantsFromTitle(raw.Title)
}

// participantsFromTitle scans the title for the first two distinct canonical
// entities named in it.
func participantsFromTitle(title string) [2]string {
	lower := strings.ToLower(title)
	var out [2]string
	n := 0
	for canonical, aliases := range teamAliases {
		for _, alias := range aliases {
			if containsWord(lower, alias) {
				if n == 1 && out[0] == canonical {
					break
				}
				if n < 2 {
					out[n] = canonical
					n++
				}
				break
			}
		}
		if n == 2 {
			break
		}
	}
	return out
}

// resolveOutcome maps the raw outcome string and BUY/SELL direction onto a
// canonical entity and a for/against side.
func resolveOutcome(raw domain.RawTrade, typ domain.MarketType, participants [2]string) (string, domain.Side, error) {
	side := domain.SideFor
	if strings.EqualFold(raw.SideRaw, "SELL") {
		side = domain.SideAgainst
	}

	outcome := strings.ToLower(strings.TrimSpace(raw.Outcome))
	switch {
	case typ == domain.MarketTypeTotal:
		switch outcome {
		case OutcomeOver, OutcomeUnder:
			return outcome, side, nil
		case "yes":
			return OutcomeOver, side, nil
		case "no":
			return OutcomeUnder, side, nil
		}
		return "", "", fmt.Errorf("match: total outcome %q: %w", raw.Outcome, domain.ErrUnparsableTrade)

	case outcome == "yes" || outcome == "no":
		// Binary markets phrase the contract around one team; yes backs it,
		// no backs the other side of the same contract.
		entity := contractEntity(raw.Title, participants)
		if entity == "" {
			return "", "", fmt.Errorf("match: cannot resolve entity of %q: %w", raw.Title, domain.ErrUnparsableTrade)
		}
		if outcome == "no" {
			side = side.Opposite()
		}
		return entity, side, nil

	default:
		// The outcome string itself names the team bet on.
		if c := CanonicalEntity(outcome); c != "" {
			return c, side, nil
		}
		if norm := NormalizeEntity(outcome); norm != "" {
			return norm, side, nil
		}
		return "", "", fmt.Errorf("match: unrecognized outcome %q: %w", raw.Outcome, domain.ErrUnparsableTrade)
	}
}

// contractEntity is the participant the title names first, read left to
// right, which is the team a yes contract backs.
func contractEntity(title string, participants [2]string) string {
	lower := strings.ToLower(title)
	best := ""
	bestPos := len(lower) + 1
	for _, p := range participants {
		if p == "" {
			continue
		}
		aliases, ok := teamAliases[p]
		if !ok {
			aliases = []string{p}
		}
		for _, alias := range aliases {
			if pos := strings.Index(lower, alias); pos >= 0 && pos < bestPos && containsWord(lower, alias) {
				best = p
				bestPos = pos
			}
		}
	}
	return best
}
