package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/exposure"
	"github.com/alanyoungcy/whalebridge/internal/metrics"
	"github.com/alanyoungcy/whalebridge/internal/notify"
)

// DispatchConfig holds retry and rate-budget parameters.
type DispatchConfig struct {
	DryRun      bool
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// OrderRateLimit caps orders per OrderRateWindow across all workers.
	// Zero disables the budget.
	OrderRateLimit  int
	OrderRateWindow time.Duration
}

// Dispatcher places admitted positions on the target exchange and resolves
// their ledger records. Transient failures retry with jittered exponential
// backoff up to a bounded attempt count; permanent failures mark the record
// failed immediately and are surfaced to operators, never retried.
type Dispatcher struct {
	client   domain.ExecutionClient
	tracker  *exposure.Tracker
	locks    domain.LockManager // optional, serializes dispatch per key across replicas
	limiter  domain.RateLimiter // optional order budget
	notifier *notify.Notifier   // optional
	metrics  *metrics.Metrics
	cfg      DispatchConfig
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. locks, limiter, and notifier may be
// nil; client may be nil only in dry-run mode.
func NewDispatcher(
	client domain.ExecutionClient,
	tracker *exposure.Tracker,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	notifier *notify.Notifier,
	m *metrics.Metrics,
	cfg DispatchConfig,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		client:   client,
		tracker:  tracker,
		locks:    locks,
		limiter:  limiter,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch executes one request. The pending ledger record already exists;
// this only resolves it to filled or failed.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.ExecutionRequest) {
	start := time.Now()
	log := d.logger.With(
		slog.String("key", req.IdempotencyKey),
		slog.String("market", req.TargetMarketID),
		slog.String("side", string(req.Side)),
		slog.String("notional", req.Notional.StringFixed(2)),
	)

	if d.cfg.DryRun {
		// Dry run records the decision path end to end without touching the
		// exchange.
		if err := d.tracker.MarkFilled(ctx, req.IdempotencyKey, "dry-run"); err != nil {
			log.WarnContext(ctx, "dry-run fill mark failed", slog.String("error", err.Error()))
		}
		d.metrics.DispatchAttempts.WithLabelValues("dry_run").Inc()
		log.InfoContext(ctx, "dry-run copy recorded")
		return
	}

	if d.locks != nil {
		unlock, err := d.locks.Acquire(ctx, "dispatch:"+req.IdempotencyKey, 2*time.Minute)
		if err != nil {
			// Another replica is dispatching this key; its record keeps the
			// idempotency guarantee.
			log.WarnContext(ctx, "dispatch lock not acquired", slog.String("error", err.Error()))
			return
		}
		defer unlock()
	}

	result, err := d.place(ctx, req, log)
	d.metrics.DispatchSeconds.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		d.metrics.DispatchAttempts.WithLabelValues("failed").Inc()
		if markErr := d.tracker.MarkFailed(ctx, req.IdempotencyKey, err.Error()); markErr != nil {
			log.ErrorContext(ctx, "failed mark failed", slog.String("error", markErr.Error()))
		}
		log.ErrorContext(ctx, "dispatch failed", slog.String("error", err.Error()))
		d.notify(ctx, "copy_failed", "Copy failed",
			fmt.Sprintf("%s %s on %s: %v", req.Notional.StringFixed(2), req.Side, req.MarketTitle, err))

	case result.Status == domain.OrderStatusRejected:
		d.metrics.DispatchAttempts.WithLabelValues("rejected").Inc()
		if markErr := d.tracker.MarkFailed(ctx, req.IdempotencyKey, "exchange rejected order"); markErr != nil {
			log.ErrorContext(ctx, "failed mark failed", slog.String("error", markErr.Error()))
		}
		log.WarnContext(ctx, "order rejected by exchange", slog.String("order_id", result.OrderID))

	default:
		d.metrics.DispatchAttempts.WithLabelValues("filled").Inc()
		if markErr := d.tracker.MarkFilled(ctx, req.IdempotencyKey, result.OrderID); markErr != nil {
			log.ErrorContext(ctx, "fill mark failed", slog.String("error", markErr.Error()))
		}
		log.InfoContext(ctx, "copy filled",
			slog.String("order_id", result.OrderID),
			slog.Int64("contracts", result.Contracts),
		)
		d.notify(ctx, "trade_copied", "Trade copied",
			fmt.Sprintf("%s %s on %s (order %s)", req.Notional.StringFixed(2), req.Side, req.MarketTitle, result.OrderID))
	}
}

// place submits the order, retrying transient failures with backoff.
func (d *Dispatcher) place(ctx context.Context, req domain.ExecutionRequest, log *slog.Logger) (domain.OrderResult, error) {
	if d.client == nil {
		return domain.OrderResult{}, fmt.Errorf("engine: no execution client configured: %w", domain.ErrExecutionPermanent)
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := d.waitBudget(ctx); err != nil {
			return domain.OrderResult{}, err
		}

		result, err := d.client.PlaceOrder(ctx, req.TargetMarketID, req.Side, req.Notional)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrExecutionTransient) {
			// Permanent and unclassified failures are not retried: a
			// repeated auth error will not heal, and retrying an unknown
			// failure risks double execution.
			return domain.OrderResult{}, err
		}

		if attempt == d.cfg.MaxAttempts {
			break
		}
		wait := d.backoff(attempt)
		log.WarnContext(ctx, "transient dispatch failure, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return domain.OrderResult{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	return domain.OrderResult{}, fmt.Errorf("engine: %d attempts exhausted: %w", d.cfg.MaxAttempts, lastErr)
}

// waitBudget blocks until the shared order budget admits another placement.
func (d *Dispatcher) waitBudget(ctx context.Context) error {
	if d.limiter == nil || d.cfg.OrderRateLimit <= 0 {
		return nil
	}
	for {
		ok, err := d.limiter.Allow(ctx, "orders", d.cfg.OrderRateLimit, d.cfg.OrderRateWindow)
		if err != nil {
			// A broken budget should not stall trading; the exchange's own
			// limits still apply.
			d.logger.WarnContext(ctx, "order budget check failed", slog.String("error", err.Error()))
			return nil
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// backoff computes the jittered exponential delay for the given attempt.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	wait := d.cfg.BackoffBase << (attempt - 1)
	if wait > d.cfg.BackoffMax || wait <= 0 {
		wait = d.cfg.BackoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(wait)/4 + 1))
	return wait + jitter
}

// RequeuePending re-dispatches records left pending by a previous run, so an
// admitted-but-undispatched copy is never silently dropped across restarts.
func (d *Dispatcher) RequeuePending(ctx context.Context) error {
	pending, err := d.tracker.PendingDispatch(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	d.logger.Info("requeueing pending dispatches", slog.Int("count", len(pending)))
	for _, rec := range pending {
		d.Dispatch(ctx, domain.ExecutionRequest{
			IdempotencyKey: rec.IdempotencyKey,
			TargetMarketID: rec.TargetMarketID,
			Side:           rec.Side,
			Notional:       rec.CommittedNotional,
			SourceTradeID:  rec.SourceTradeID,
			TraderID:       rec.TraderID,
		})
	}
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, event, title, message string) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, event, title, message); err != nil {
		d.logger.DebugContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}
