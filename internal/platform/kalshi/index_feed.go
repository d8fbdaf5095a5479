package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

const marketsPageSize = 1000

// IndexFeed lists the exchange's open markets for the market index. When
// series prefixes are configured only tickers under those series survive,
// which keeps the index to the sports the matcher understands.
type IndexFeed struct {
	client         *Client
	seriesPrefixes []string
	logger         *slog.Logger
}

// NewIndexFeed creates an IndexFeed over the given REST client.
func NewIndexFeed(client *Client, seriesPrefixes []string, logger *slog.Logger) *IndexFeed {
	prefixes := make([]string, 0, len(seriesPrefixes))
	for _, p := range seriesPrefixes {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &IndexFeed{
		client:         client,
		seriesPrefixes: prefixes,
		logger:         logger.With(slog.String("component", "kalshi_index_feed")),
	}
}

// ListOpenMarkets pages through every open market and maps them into the
// exchange-neutral raw form.
func (f *IndexFeed) ListOpenMarkets(ctx context.Context) ([]domain.RawMarket, error) {
	var (
		out    []domain.RawMarket
		cursor string
		pages  int
	)
	for {
		markets, next, err := f.client.GetMarkets(ctx, "open", cursor, marketsPageSize)
		if err != nil {
			return nil, fmt.Errorf("kalshi: list open markets page %d: %w", pages, err)
		}
		pages++

		for _, m := range markets {
			if !f.wanted(m.Ticker) {
				continue
			}
			out = append(out, toRawMarket(m))
		}

		if next == "" || len(markets) == 0 {
			break
		}
		cursor = next
	}

	f.logger.Debug("open markets listed",
		slog.Int("pages", pages),
		slog.Int("kept", len(out)),
	)
	return out, nil
}

// wanted reports whether the ticker falls under a configured series prefix.
func (f *IndexFeed) wanted(ticker string) bool {
	if len(f.seriesPrefixes) == 0 {
		return true
	}
	t := strings.ToUpper(ticker)
	for _, p := range f.seriesPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

// toRawMarket maps the Kalshi DTO onto the exchange-neutral raw market. The
// strike carries the line for spread and total contracts.
func toRawMarket(m Market) domain.RawMarket {
	raw := domain.RawMarket{
		MarketID:  m.Ticker,
		EventID:   m.EventTicker,
		Title:     m.Title,
		Subtitle:  subtitleOf(m),
		Status:    m.Status,
		YesBid:    m.YesBid,
		YesAsk:    m.YesAsk,
		TickCents: m.TickSize,
	}
	if m.StrikeType != "" && (m.FloorStrike != 0 || m.CapStrike != 0) {
		line := m.FloorStrike
		if line == 0 {
			line = m.CapStrike
		}
		raw.LineHint = &line
	}
	if t, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
		raw.CloseTime = t
	}
	return raw
}

func subtitleOf(m Market) string {
	if m.YesSubTitle != "" {
		return m.YesSubTitle
	}
	return m.Subtitle
}

var _ domain.MarketIndexFeed = (*IndexFeed)(nil)
