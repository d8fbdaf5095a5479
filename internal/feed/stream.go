package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/platform/polymarket"
)

// streamFeedName labels trades arriving over the websocket path.
const streamFeedName = "polymarket-ws"

// StreamFeed connects the live-data websocket to the feeder. It is a latency
// optimization only: the stream filters on the tracked wallets and offers
// whatever it sees, while the poller remains the source of truth behind the
// shared dedup.
type StreamFeed struct {
	wsURL   string
	wallets func(ctx context.Context) ([]string, error)
	feeder  *Feeder
	logger  *slog.Logger
}

// NewStreamFeed creates a StreamFeed. wallets supplies the tracked roster at
// connect time so a roster change takes effect on the next reconnect cycle.
func NewStreamFeed(wsURL string, wallets func(ctx context.Context) ([]string, error), feeder *Feeder, logger *slog.Logger) *StreamFeed {
	return &StreamFeed{
		wsURL:   wsURL,
		wallets: wallets,
		feeder:  feeder,
		logger:  logger.With(slog.String("component", "trade_stream")),
	}
}

// Run connects the stream and blocks until ctx is cancelled. Reconnection is
// handled inside the stream client; Run only fails when the initial connect
// does.
func (f *StreamFeed) Run(ctx context.Context) error {
	wallets, err := f.wallets(ctx)
	if err != nil {
		return fmt.Errorf("feed: load tracked wallets: %w", err)
	}
	if len(wallets) == 0 {
		f.logger.Info("no tracked wallets, stream disabled")
		return nil
	}

	stream := polymarket.NewTradeStream(f.wsURL, wallets)
	stream.OnTrade(func(raw domain.RawTrade) {
		if err := f.feeder.Offer(ctx, streamFeedName, raw); err != nil {
			f.logger.DebugContext(ctx, "stream offer dropped",
				slog.String("event_id", raw.EventID),
				slog.String("error", err.Error()),
			)
		}
	})

	if err := stream.Connect(ctx); err != nil {
		return fmt.Errorf("feed: connect trade stream: %w", err)
	}
	defer stream.Close()

	f.logger.Info("trade stream connected",
		slog.String("url", f.wsURL),
		slog.Int("wallets", len(wallets)),
	)

	<-ctx.Done()
	return ctx.Err()
}
