package kalshi

import "encoding/json"

// Market is a market as returned by the Kalshi REST API. Prices are in cents.
type Market struct {
	Ticker       string  `json:"ticker"`
	EventTicker  string  `json:"event_ticker"`
	Title        string  `json:"title"`
	Subtitle     string  `json:"subtitle"`
	YesSubTitle  string  `json:"yes_sub_title"`
	Status       string  `json:"status"` // "active", "closed", "settled"
	YesBid       int64   `json:"yes_bid"`
	YesAsk       int64   `json:"yes_ask"`
	NoBid        int64   `json:"no_bid"`
	NoAsk        int64   `json:"no_ask"`
	LastPrice    int64   `json:"last_price"`
	Volume       int64   `json:"volume"`
	OpenInterest int64   `json:"open_interest"`
	StrikeType   string  `json:"strike_type"`
	FloorStrike  float64 `json:"floor_strike"`
	CapStrike    float64 `json:"cap_strike"`
	TickSize     int64   `json:"tick_size"`
	OpenTime     string  `json:"open_time"`
	CloseTime    string  `json:"close_time"`
	Result       string  `json:"result"` // "yes", "no", "" while unsettled
}

// Order is an order submission payload.
type Order struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"` // "buy" or "sell"
	Side          string `json:"side"`   // "yes" or "no"
	Type          string `json:"type"`   // "market" or "limit"
	Count         int64  `json:"count"`
	YesPrice      *int64 `json:"yes_price,omitempty"`
	NoPrice       *int64 `json:"no_price,omitempty"`
	BuyMaxCost    *int64 `json:"buy_max_cost,omitempty"` // cents
}

// OrderState is the exchange's view of an order after submission.
type OrderState struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	TakerFillCount int64  `json:"taker_fill_count"`
	TakerFillCost  int64  `json:"taker_fill_cost"` // cents
	RemainingCount int64  `json:"remaining_count"`
	CreatedTime    string `json:"created_time"`
}

// ErrorBody is the error payload of a non-2xx response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsEnvelope frames every message on the Kalshi websocket.
type wsEnvelope struct {
	Type string          `json:"type"`
	SID  int64           `json:"sid"`
	Msg  json.RawMessage `json:"msg"`
}

// wsSubscribe is the subscription command.
type wsSubscribe struct {
	ID     int64             `json:"id"`
	Cmd    string            `json:"cmd"`
	Params wsSubscribeParams `json:"params"`
}

type wsSubscribeParams struct {
	Channels []string `json:"channels"`
}

// Fill is one execution reported on the "fill" websocket channel.
type Fill struct {
	TradeID     string `json:"trade_id"`
	OrderID     string `json:"order_id"`
	Ticker      string `json:"market_ticker"`
	Side        string `json:"side"`
	Action      string `json:"action"`
	Count       int64  `json:"count"`
	YesPrice    int64  `json:"yes_price"`
	NoPrice     int64  `json:"no_price"`
	IsTaker     bool   `json:"is_taker"`
	TimestampMs int64  `json:"ts"`
}
