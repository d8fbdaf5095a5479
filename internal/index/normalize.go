package index

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/match"
)

// defaultTick is one cent, the tick of every current Kalshi contract. Raw
// payloads that carry their own tick override it.
var defaultTick = decimal.New(1, -2)

// Normalize converts a raw target-exchange market payload into the unified
// Market shape: classified type, extracted line, canonical participants.
// ok is false for payloads that cannot participate in matching, such as a
// spread with no recoverable line.
func Normalize(raw domain.RawMarket) (domain.Market, bool) {
	if raw.MarketID == "" {
		return domain.Market{}, false
	}

	title := raw.Title
	if raw.Subtitle != "" {
		title = raw.Title + " " + raw.Subtitle
	}

	desc := match.DescribeTitle(title, raw.MarketID)
	if raw.LineHint != nil {
		desc.Line = raw.LineHint
	}
	if desc.Type != domain.MarketTypeWinner && desc.Line == nil {
		return domain.Market{}, false
	}

	var participants [2]string
	if t1, t2 := match.TeamsFromTicker(raw.MarketID); t1 != "" {
		participants[0] = canonicalOrNorm(t1)
		participants[1] = canonicalOrNorm(t2)
	}

	tick := defaultTick
	if raw.TickCents > 0 {
		tick = decimal.New(raw.TickCents, -2)
	}

	status := domain.MarketStatusActive
	switch raw.Status {
	case "closed", "inactive":
		status = domain.MarketStatusClosed
	case "settled", "finalized":
		status = domain.MarketStatusSettled
	}

	return domain.Market{
		ExchangeID:   "kalshi",
		MarketID:     raw.MarketID,
		EventID:      raw.EventID,
		Title:        title,
		Type:         desc.Type,
		Line:         desc.Line,
		Participants: participants,
		TickSize:     tick,
		YesBid:       raw.YesBid,
		YesAsk:       raw.YesAsk,
		Status:       status,
		CloseTime:    raw.CloseTime,
		FetchedAt:    time.Now().UTC(),
	}, true
}

func canonicalOrNorm(s string) string {
	if c := match.CanonicalEntity(s); c != "" {
		return c
	}
	return match.NormalizeEntity(s)
}
