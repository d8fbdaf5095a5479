package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/engine"
	"github.com/alanyoungcy/whalebridge/internal/exposure"
	"github.com/alanyoungcy/whalebridge/internal/feed"
	"github.com/alanyoungcy/whalebridge/internal/index"
	"github.com/alanyoungcy/whalebridge/internal/match"
	"github.com/alanyoungcy/whalebridge/internal/pipeline"
	"github.com/alanyoungcy/whalebridge/internal/platform/kalshi"
	"github.com/alanyoungcy/whalebridge/internal/platform/polymarket"
	"github.com/alanyoungcy/whalebridge/internal/server"
	"github.com/alanyoungcy/whalebridge/internal/server/handler"
	"github.com/alanyoungcy/whalebridge/internal/server/ws"
	"github.com/alanyoungcy/whalebridge/internal/service"
	"github.com/alanyoungcy/whalebridge/internal/sizing"
)

// copyStack bundles the components the trading and server modes share. The
// server mode builds only the read side (index, tracker, services); the
// trading modes build the full ingest-to-dispatch path.
type copyStack struct {
	index      *index.Index
	tracker    *exposure.Tracker
	refresher  *pipeline.IndexRefresher
	archiver   *pipeline.Archiver
	orch       *pipeline.Orchestrator
	dispatcher *engine.Dispatcher
	marketSvc  *service.MarketService
	linkSvc    *service.LinkService
	traderSvc  *service.TraderService
	dryRun     bool
}

// CopyMode runs the full copy pipeline: trade ingest, matching, sizing,
// admission, and order dispatch. The HTTP server is started only when
// enabled in config.
func (a *App) CopyMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting copy mode", slog.Bool("dry_run", a.cfg.Copy.DryRun))
	return a.runTrading(ctx, deps, a.cfg.Copy.DryRun, a.cfg.Server.Enabled)
}

// MonitorMode runs the copy pipeline with dispatch forced to dry-run: every
// whale trade is matched, sized, and recorded as a decision, but no order
// ever reaches the exchange.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runTrading(ctx, deps, true, a.cfg.Server.Enabled)
}

// FullMode runs the copy pipeline and always serves the operator API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode", slog.Bool("dry_run", a.cfg.Copy.DryRun))
	return a.runTrading(ctx, deps, a.cfg.Copy.DryRun, true)
}

// ServerMode serves the operator API over the persisted state: the exposure
// ledger, decision log, roster, and links. The market index refreshes in the
// background so status and market endpoints stay live, but no trades are
// ingested and nothing is dispatched.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	idx := index.New(a.buildIndexFeed(), a.logger)
	refresher := pipeline.NewIndexRefresher(idx, deps.MarketStore, deps.IndexCache, deps.Metrics, a.logger)

	// The tracker is read-only here: it serves exposure summaries from the
	// ledger, seeded by the same reload the copy engine uses.
	bankroll := sizing.NewBankrollManager(nil, decimal.NewFromFloat(a.cfg.Copy.BankrollFallback), a.logger)
	tracker := exposure.NewTracker(deps.ExposureStore, bankroll, a.exposureLimits(), a.logger)
	if err := tracker.Reload(ctx); err != nil {
		a.logger.WarnContext(ctx, "exposure reload failed, summary starts empty",
			slog.String("error", err.Error()),
		)
	}

	stack := &copyStack{
		index:     idx,
		tracker:   tracker,
		refresher: refresher,
		marketSvc: service.NewMarketService(deps.MarketStore, idx, a.logger),
		linkSvc:   service.NewLinkService(deps.MarketLinkStore, idx, a.logger),
		traderSvc: service.NewTraderService(deps.TraderStore, a.logger),
		dryRun:    true,
	}

	g, ctx := errgroup.WithContext(ctx)

	refresher.Warm(ctx)
	if err := refresher.RefreshOnce(ctx); err != nil {
		a.logger.WarnContext(ctx, "initial index refresh failed", slog.String("error", err.Error()))
	}
	g.Go(func() error {
		err := refresher.RunLoop(ctx, a.cfg.Feeds.IndexRefreshInterval.Duration)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	a.startHTTPServer(ctx, g, deps, stack)

	return g.Wait()
}

// ArchiveMode runs one archive pass over terminal ledger rows, decisions,
// and audit entries older than the retention window, then exits. Intended
// for cron-style scheduling next to a copy deployment with archival off.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Pipeline.ArchiveRetentionDays),
	)

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires object storage")
	}
	arch := pipeline.NewArchiver(deps.Archiver, a.cfg.Pipeline.ArchiveRetentionDays, a.logger)
	return arch.Run(ctx)
}

// runTrading builds the copy stack and runs the orchestrator, with the
// operator API alongside when requested.
func (a *App) runTrading(ctx context.Context, deps *Dependencies, dryRun, withServer bool) error {
	stack, err := a.buildCopyStack(ctx, deps, dryRun)
	if err != nil {
		return err
	}

	// Copies admitted before the last shutdown but never dispatched are
	// resolved before new trades flow.
	if err := stack.dispatcher.RequeuePending(ctx); err != nil {
		a.logger.WarnContext(ctx, "requeue of pending dispatches failed",
			slog.String("error", err.Error()),
		)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return stack.orch.Run(ctx)
	})

	if withServer {
		a.startHTTPServer(ctx, g, deps, stack)
	}

	return g.Wait()
}

// buildCopyStack wires the full ingest-to-dispatch path: exchange clients,
// market index, matcher, sizer, exposure tracker, dispatcher, engine, feeds,
// and the pipeline orchestrator.
func (a *App) buildCopyStack(ctx context.Context, deps *Dependencies, dryRun bool) (*copyStack, error) {
	// Target exchange client. The RSA key authenticates order placement and
	// balance reads; dry runs may omit it and live on the bankroll fallback.
	kalshiClient := kalshi.NewClient(a.cfg.Kalshi.BaseURL, a.cfg.Kalshi.ApiKey)
	var execClient domain.ExecutionClient
	if a.cfg.Kalshi.RsaPrivateKeyPath != "" {
		pemBytes, err := os.ReadFile(a.cfg.Kalshi.RsaPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("app: read kalshi private key: %w", err)
		}
		if err := kalshiClient.SetRSAPrivateKey(pemBytes); err != nil {
			return nil, fmt.Errorf("app: load kalshi private key: %w", err)
		}
		execClient = kalshi.NewExecutor(kalshiClient, a.logger)
	} else if !dryRun {
		return nil, fmt.Errorf("app: kalshi.rsa_private_key_path is required outside dry-run")
	}

	// Market index over the target exchange.
	idx := index.New(kalshi.NewIndexFeed(kalshiClient, a.cfg.Kalshi.SeriesPrefixes, a.logger), a.logger)
	refresher := pipeline.NewIndexRefresher(idx, deps.MarketStore, deps.IndexCache, deps.Metrics, a.logger)

	// Matching.
	polarity, err := match.CompilePolarity(a.polarityRules())
	if err != nil {
		return nil, fmt.Errorf("app: compile polarity rules: %w", err)
	}
	matcher := match.NewMatcher(idx, polarity, match.MatcherConfig{
		LineTolerance: a.cfg.Matching.LineTolerance,
		MaxIndexAge:   a.cfg.Matching.MaxIndexAge.Duration,
	}, a.logger)

	// Tracked trader roster and bankroll estimation.
	traderSvc := service.NewTraderService(deps.TraderStore, a.logger)
	roster, err := a.configuredTraders()
	if err != nil {
		return nil, err
	}
	if len(roster) > 0 {
		if err := traderSvc.Sync(ctx, roster); err != nil {
			return nil, fmt.Errorf("app: sync trader roster: %w", err)
		}
	}
	estimator := sizing.NewEstimator(a.cfg.Copy.WhaleAvgWindow)
	if tracked, err := traderSvc.List(ctx); err != nil {
		a.logger.WarnContext(ctx, "trader list failed, estimator starts cold",
			slog.String("error", err.Error()),
		)
	} else {
		estimator.Load(tracked)
	}

	// Sizing and exposure.
	sizer := sizing.NewSizer(sizing.Config{
		KellyFraction:  decimal.NewFromFloat(a.cfg.Copy.KellyFraction),
		MaxPerTradePct: decimal.NewFromFloat(a.cfg.Copy.MaxPerTradePct),
		MinOrderSize:   decimal.NewFromFloat(a.cfg.Copy.MinOrderSize),
		MaxOrderSize:   decimal.NewFromFloat(a.cfg.Copy.MaxOrderSize),
	})
	bankroll := sizing.NewBankrollManager(execClient, decimal.NewFromFloat(a.cfg.Copy.BankrollFallback), a.logger)
	tracker := exposure.NewTracker(deps.ExposureStore, bankroll, a.exposureLimits(), a.logger)
	if err := tracker.Reload(ctx); err != nil {
		return nil, fmt.Errorf("app: reload exposure ledger: %w", err)
	}

	// Dispatch and the decision engine.
	dispatcher := engine.NewDispatcher(
		execClient, tracker, deps.LockManager, deps.RateLimiter,
		deps.Notifier, deps.Metrics,
		engine.DispatchConfig{
			DryRun:          dryRun,
			MaxAttempts:     a.cfg.Dispatch.MaxAttempts,
			BackoffBase:     a.cfg.Dispatch.BackoffBase.Duration,
			BackoffMax:      a.cfg.Dispatch.BackoffMax.Duration,
			OrderRateLimit:  a.cfg.Dispatch.OrderRateLimit,
			OrderRateWindow: a.cfg.Dispatch.OrderRateWindow.Duration,
		}, a.logger)
	linkSvc := service.NewLinkService(deps.MarketLinkStore, idx, a.logger)
	eng := engine.NewEngine(
		matcher, linkSvc, sizer, bankroll, tracker, dispatcher,
		deps.DecisionStore, deps.DecisionBus, deps.Metrics, dryRun, a.logger,
	)

	// Ingest: worker pool fed by the poller and, optionally, the live stream.
	dedup := feed.NewDedup(a.cfg.Feeds.DedupTTL.Duration)
	feeder := feed.NewFeeder(eng, match.NewNormalizer(estimator), estimator, dedup, deps.Metrics, a.cfg.Feeds.Workers, a.logger).
		WithTitleResolver(polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost))

	dataClient := polymarket.NewDataClient(a.cfg.Polymarket.DataHost, a.cfg.Polymarket.PollRateLimit, a.cfg.Polymarket.PollBurst)
	activity := polymarket.NewActivityFeed(dataClient, traderSvc.Addresses, a.logger)
	poller := pipeline.NewTradePoller(
		activity, deps.CursorStore, feeder, deps.LockManager, deps.Metrics,
		a.cfg.Feeds.PollInterval.Duration, a.cfg.Feeds.ErrorBackoff.Duration, a.logger,
	)

	var stream *feed.StreamFeed
	if a.cfg.Feeds.WsEnabled && a.cfg.Polymarket.WsHost != "" {
		stream = feed.NewStreamFeed(a.cfg.Polymarket.WsHost, traderSvc.Addresses, feeder, a.logger)
	}

	var archiver *pipeline.Archiver
	if a.cfg.Pipeline.ArchiveEnabled && deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Pipeline.ArchiveRetentionDays, a.logger)
	}

	orch := pipeline.NewOrchestrator(
		poller, refresher, feeder, stream, archiver, bankroll,
		a.cfg.Feeds.IndexRefreshInterval.Duration,
		a.cfg.Pipeline.ArchiveInterval.Duration,
		a.cfg.Copy.BankrollRefresh.Duration,
		a.logger,
	)

	return &copyStack{
		index:      idx,
		tracker:    tracker,
		refresher:  refresher,
		archiver:   archiver,
		orch:       orch,
		dispatcher: dispatcher,
		marketSvc:  service.NewMarketService(deps.MarketStore, idx, a.logger),
		linkSvc:    linkSvc,
		traderSvc:  traderSvc,
		dryRun:     dryRun,
	}, nil
}

// buildIndexFeed returns the target-exchange market feed for modes that only
// read the index. Public market listing needs no credentials.
func (a *App) buildIndexFeed() domain.MarketIndexFeed {
	client := kalshi.NewClient(a.cfg.Kalshi.BaseURL, a.cfg.Kalshi.ApiKey)
	return kalshi.NewIndexFeed(client, a.cfg.Kalshi.SeriesPrefixes, a.logger)
}

// exposureLimits maps the copy config onto tracker limits.
func (a *App) exposureLimits() exposure.Limits {
	return exposure.Limits{
		MaxPerTradePct:        decimal.NewFromFloat(a.cfg.Copy.MaxPerTradePct),
		MaxPerTraderPct:       decimal.NewFromFloat(a.cfg.Copy.MaxPerTraderPct),
		MaxTotalExposurePct:   decimal.NewFromFloat(a.cfg.Copy.MaxTotalExposurePct),
		MaxPositionsPerMarket: a.cfg.Copy.MaxPositionsPerMarket,
		MaxSameSidePerMarket:  a.cfg.Copy.MaxSameSidePerMarket,
		Cooldown:              a.cfg.Copy.Cooldown.Duration,
		MaxTradesPerHour:      a.cfg.Copy.MaxTradesPerHour,
		MaxTradesPerDay:       a.cfg.Copy.MaxTradesPerDay,
	}
}

// polarityRules maps configured polarity rules onto the matcher's form. An
// empty config compiles the built-in defaults.
func (a *App) polarityRules() []match.PolarityRule {
	rules := make([]match.PolarityRule, 0, len(a.cfg.Matching.Polarity))
	for _, r := range a.cfg.Matching.Polarity {
		rules = append(rules, match.PolarityRule{
			Type:     domain.MarketType(r.Type),
			Pattern:  r.Pattern,
			Named:    r.Named,
			LineSign: r.LineSign,
			Side:     domain.ContractSide(r.Side),
		})
	}
	return rules
}

// configuredTraders validates and normalizes the configured roster.
func (a *App) configuredTraders() ([]domain.TrackedTrader, error) {
	roster := make([]domain.TrackedTrader, 0, len(a.cfg.Traders))
	for _, t := range a.cfg.Traders {
		addr, err := domain.NormalizeTraderAddress(t.Address)
		if err != nil {
			return nil, fmt.Errorf("app: trader %q: %w", t.Address, err)
		}
		roster = append(roster, domain.TrackedTrader{
			Address:          addr,
			Label:            t.Label,
			BankrollEstimate: decimal.NewFromFloat(t.BankrollEstimate),
			AddedAt:          time.Now().UTC(),
		})
	}
	return roster, nil
}

// startHTTPServer wires the operator API and WebSocket hub onto the group.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, stack *copyStack) {
	hub := ws.NewHub(deps.DecisionBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		DryRun:    stack.dryRun,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	var runArchive func(ctx context.Context) error
	if stack.archiver != nil {
		runArchive = stack.archiver.Run
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, stack.dryRun, time.Now().UTC(), stack.tracker, stack.index),
		Markets:   handler.NewMarketHandler(stack.marketSvc, a.logger),
		Exposure:  handler.NewExposureHandler(deps.ExposureStore, stack.tracker, a.logger),
		Decisions: handler.NewDecisionHandler(deps.DecisionStore, a.logger),
		Traders:   handler.NewTraderHandler(stack.traderSvc, a.logger),
		Links:     handler.NewLinkHandler(stack.linkSvc, a.logger),
		Pipeline:  handler.NewPipelineHandler(stack.refresher.RefreshOnce, runArchive, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiKey,
	}, handlers, hub, deps.RateLimiter, deps.Gatherer, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
