package polymarket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false"), since the
// Gamma API sends booleans in both encodings.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// APITrade is one trade from the data-API activity endpoint.
type APITrade struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"` // "BUY" or "SELL"
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"` // unix seconds
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	EventSlug       string  `json:"eventSlug"`
	Outcome         string  `json:"outcome"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	TransactionHash string  `json:"transactionHash"`
}

// ToRawTrade maps the wire trade onto the exchange-neutral raw form. The
// transaction hash plus asset id uniquely identifies the fill; a wallet
// cannot fill the same asset twice in one transaction. The notional is
// computed in decimal: 0.55*100 as binary floats is 55.00000000000001.
func (t *APITrade) ToRawTrade() domain.RawTrade {
	notional, _ := decimal.NewFromFloat(t.Price).Mul(decimal.NewFromFloat(t.Size)).Float64()
	return domain.RawTrade{
		EventID:      strings.ToLower(t.TransactionHash) + ":" + t.Asset,
		Trader:       strings.ToLower(t.ProxyWallet),
		MarketID:     t.ConditionID,
		Title:        t.Title,
		Slug:         t.Slug,
		Outcome:      t.Outcome,
		OutcomeIndex: t.OutcomeIndex,
		SideRaw:      strings.ToUpper(t.Side),
		Price:        t.Price,
		Size:         t.Size,
		NotionalUSD:  notional,
		Timestamp:    time.Unix(t.Timestamp, 0).UTC(),
	}
}

// APIMarket is the subset of the Gamma market payload used for title
// backfill when the activity feed omits market metadata.
type APIMarket struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	ConditionID string   `json:"conditionId"`
	Slug        string   `json:"slug"`
	Active      flexBool `json:"active"`
	Closed      bool     `json:"closed"`
}

// wsSubscription is the live-data websocket subscribe payload.
type wsSubscription struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Filters string `json:"filters,omitempty"`
}

type wsCommand struct {
	Action        string           `json:"action"`
	Subscriptions []wsSubscription `json:"subscriptions"`
}

// wsActivityMessage frames one message on the live-data activity topic.
type wsActivityMessage struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
