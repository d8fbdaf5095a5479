// Package polymarket implements the source-exchange clients: the data-API
// activity poller that drives the copy pipeline, the Gamma metadata client,
// and the live-data websocket stream.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

const activityPageSize = 100

// DataClient is the REST client for the Polymarket data API.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewDataClient creates a data-API client. rps caps requests per second
// across all callers; burst is the limiter burst size.
func NewDataClient(baseURL string, rps float64, burst int) *DataClient {
	return &DataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// GetTrades returns the most recent trades for one wallet, newest first.
func (c *DataClient) GetTrades(ctx context.Context, wallet string, limit int) ([]APITrade, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("polymarket/data: rate wait: %w", err)
	}

	params := url.Values{}
	params.Set("user", wallet)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("takerOnly", "false")

	body, err := c.doGet(ctx, "/trades?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get trades for %s: %w", wallet, err)
	}

	var trades []APITrade
	if err := json.Unmarshal(body, &trades); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode trades: %w", err)
	}
	return trades, nil
}

// GetPortfolioValue returns the current dollar value of a wallet's positions,
// used as a bankroll estimate for tracked traders.
func (c *DataClient) GetPortfolioValue(ctx context.Context, wallet string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("polymarket/data: rate wait: %w", err)
	}

	params := url.Values{}
	params.Set("user", wallet)

	body, err := c.doGet(ctx, "/value?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("polymarket/data: get value for %s: %w", wallet, err)
	}

	var resp []struct {
		User  string  `json:"user"`
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/data: decode value: %w", err)
	}
	if len(resp) == 0 {
		return 0, nil
	}
	return resp[0].Value, nil
}

func (c *DataClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %v: %w", err, domain.ErrFeedUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %v: %w", err, domain.ErrFeedUnavailable)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("HTTP 429: %w", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s: %w", resp.StatusCode, truncate(body, 200), domain.ErrFeedUnavailable)
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ActivityFeed polls the data API for trades placed by the tracked wallets.
// The cursor is a unix-seconds watermark; trades stamped at exactly the
// watermark second can be delivered again, which downstream idempotency
// absorbs.
type ActivityFeed struct {
	client  *DataClient
	wallets func(ctx context.Context) ([]string, error)
	logger  *slog.Logger
}

// NewActivityFeed creates an ActivityFeed. wallets supplies the current
// tracked roster on every poll so roster changes take effect immediately.
func NewActivityFeed(client *DataClient, wallets func(ctx context.Context) ([]string, error), logger *slog.Logger) *ActivityFeed {
	return &ActivityFeed{
		client:  client,
		wallets: wallets,
		logger:  logger.With(slog.String("component", "polymarket_activity_feed")),
	}
}

// Name identifies the feed in logs and cursor storage.
func (f *ActivityFeed) Name() string { return "polymarket-data-api" }

// Poll fetches recent trades for every tracked wallet and returns those newer
// than the cursor watermark, oldest first, plus the advanced cursor.
func (f *ActivityFeed) Poll(ctx context.Context, cursor string) ([]domain.RawTrade, string, error) {
	since := parseWatermark(cursor)

	wallets, err := f.wallets(ctx)
	if err != nil {
		return nil, cursor, fmt.Errorf("polymarket/data: list wallets: %w", err)
	}

	watermark := since
	var out []domain.RawTrade
	for _, wallet := range wallets {
		trades, err := f.client.GetTrades(ctx, wallet, activityPageSize)
		if err != nil {
			// One failing wallet fails the whole poll; the poller backs off
			// and retries with the same cursor, so nothing is lost.
			return nil, cursor, err
		}
		for i := range trades {
			t := &trades[i]
			if since > 0 && t.Timestamp < since {
				continue
			}
			if t.Timestamp > watermark {
				watermark = t.Timestamp
			}
			out = append(out, t.ToRawTrade())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	next := cursor
	if watermark > since {
		// Resume one second past the newest seen trade.
		next = strconv.FormatInt(watermark+1, 10)
	}

	if len(out) > 0 {
		f.logger.DebugContext(ctx, "activity polled",
			slog.Int("wallets", len(wallets)),
			slog.Int("trades", len(out)),
		)
	}
	return out, next, nil
}

func parseWatermark(cursor string) int64 {
	if cursor == "" {
		return 0
	}
	ts, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

var _ domain.TradeSourceFeed = (*ActivityFeed)(nil)
