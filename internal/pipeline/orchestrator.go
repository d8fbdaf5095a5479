// Package pipeline runs the long-lived loops of the copy system: the trade
// poller, the index refresher, the feeder worker pool, the optional live
// stream, the bankroll refresh, and cold-storage archival.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/whalebridge/internal/feed"
	"github.com/alanyoungcy/whalebridge/internal/sizing"
)

// Orchestrator coordinates the pipeline goroutines. Optional components are
// nil in modes that do not run them: the stream when websocket ingest is
// disabled, the archiver when archival is disabled, the bankroll manager in
// monitor mode.
type Orchestrator struct {
	poller    *TradePoller
	refresher *IndexRefresher
	feeder    *feed.Feeder
	stream    *feed.StreamFeed  // optional
	archiver  *Archiver         // optional
	bankroll  *sizing.BankrollManager // optional

	refreshInterval  time.Duration
	archiveInterval  time.Duration
	bankrollInterval time.Duration

	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given components.
func NewOrchestrator(
	poller *TradePoller,
	refresher *IndexRefresher,
	feeder *feed.Feeder,
	stream *feed.StreamFeed,
	archiver *Archiver,
	bankroll *sizing.BankrollManager,
	refreshInterval, archiveInterval, bankrollInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		poller:           poller,
		refresher:        refresher,
		feeder:           feeder,
		stream:           stream,
		archiver:         archiver,
		bankroll:         bankroll,
		refreshInterval:  refreshInterval,
		archiveInterval:  archiveInterval,
		bankrollInterval: bankrollInterval,
		logger:           logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every configured loop as a goroutine in an errgroup. The index
// gets one synchronous refresh before trades flow so the first poll does not
// race an empty index. If any loop returns a non-context error, the group
// cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline starting")

	o.refresher.Warm(ctx)
	if err := o.refresher.RefreshOnce(ctx); err != nil {
		// A warmed index can carry the start; an empty one cannot, but the
		// staleness gate skips matching until the first refresh lands.
		o.logger.Warn("initial index refresh failed", slog.String("error", err.Error()))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.refresher.RunLoop(ctx, o.refreshInterval)
		return o.done("index refresher", ctx, err)
	})

	g.Go(func() error {
		err := o.feeder.Run(ctx)
		return o.done("trade feeder", ctx, err)
	})

	g.Go(func() error {
		err := o.poller.Run(ctx)
		return o.done("trade poller", ctx, err)
	})

	if o.stream != nil {
		g.Go(func() error {
			err := o.stream.Run(ctx)
			return o.done("trade stream", ctx, err)
		})
	}

	if o.bankroll != nil {
		g.Go(func() error {
			err := o.bankroll.RunLoop(ctx, o.bankrollInterval)
			return o.done("bankroll manager", ctx, err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunLoop(ctx, o.archiveInterval)
			return o.done("archiver", ctx, err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped cleanly")
	return nil
}

// done maps a loop result to the errgroup convention: context cancellation
// is a clean shutdown, anything else is a fault that brings the group down.
func (o *Orchestrator) done(name string, ctx context.Context, err error) error {
	if ctx.Err() != nil || err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
