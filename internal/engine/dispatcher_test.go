package engine

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/exposure"
	"github.com/alanyoungcy/whalebridge/internal/metrics"
	"github.com/alanyoungcy/whalebridge/internal/sizing"
	"github.com/alanyoungcy/whalebridge/internal/store/memory"
)

// fakeExecClient fails the first failures calls, then returns result.
type fakeExecClient struct {
	failures int
	failWith error
	result   domain.OrderResult

	calls int
}

func (f *fakeExecClient) PlaceOrder(_ context.Context, _ string, _ domain.ContractSide, _ decimal.Decimal) (domain.OrderResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return domain.OrderResult{}, f.failWith
	}
	return f.result, nil
}

func (f *fakeExecClient) GetBalance(context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(10000), nil
}

// newAdmittedRequest seeds a tracker with one pending record and returns the
// matching execution request.
func newAdmittedRequest(t *testing.T) (*exposure.Tracker, *memory.ExposureStore, domain.ExecutionRequest) {
	t.Helper()
	store := memory.NewExposureStore()
	bankroll := sizing.NewBankrollManager(nil, decimal.NewFromInt(10000), slog.Default())
	tracker := exposure.NewTracker(store, bankroll, exposure.Limits{
		MaxPerTradePct:        decimal.RequireFromString("0.02"),
		MaxPerTraderPct:       decimal.RequireFromString("0.10"),
		MaxTotalExposurePct:   decimal.RequireFromString("0.50"),
		MaxPositionsPerMarket: 5,
		MaxSameSidePerMarket:  5,
	}, slog.Default())
	ctx := context.Background()
	if err := tracker.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	p := exposure.Proposal{
		SourceTradeID:  "0xfill1",
		TraderID:       "0xabc",
		TargetMarketID: "KX-A",
		Side:           domain.ContractYes,
		Notional:       decimal.NewFromInt(50),
	}
	rec, err := tracker.Admit(ctx, p)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	return tracker, store, domain.ExecutionRequest{
		IdempotencyKey: rec.IdempotencyKey,
		TargetMarketID: p.TargetMarketID,
		Side:           p.Side,
		Notional:       p.Notional,
		SourceTradeID:  p.SourceTradeID,
		TraderID:       p.TraderID,
	}
}

func retryConfig() DispatchConfig {
	return DispatchConfig{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}
}

func TestDispatchFillMarksRecord(t *testing.T) {
	tracker, store, req := newAdmittedRequest(t)
	client := &fakeExecClient{result: domain.OrderResult{OrderID: "ord-1", Status: domain.OrderStatusFilled}}
	d := NewDispatcher(client, tracker, nil, nil, nil, metrics.NewNop(), retryConfig(), slog.Default())

	d.Dispatch(context.Background(), req)

	rec, err := store.GetByKey(context.Background(), req.IdempotencyKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != domain.RecordStatusFilled || rec.OrderID != "ord-1" {
		t.Errorf("record = %s/%s, want filled/ord-1", rec.Status, rec.OrderID)
	}
}

func TestDispatchRetriesTransient(t *testing.T) {
	tracker, store, req := newAdmittedRequest(t)
	client := &fakeExecClient{
		failures: 2,
		failWith: fmt.Errorf("engine: 503 from exchange: %w", domain.ErrExecutionTransient),
		result:   domain.OrderResult{OrderID: "ord-1", Status: domain.OrderStatusFilled},
	}
	d := NewDispatcher(client, tracker, nil, nil, nil, metrics.NewNop(), retryConfig(), slog.Default())

	d.Dispatch(context.Background(), req)

	if client.calls != 3 {
		t.Errorf("place attempts = %d, want 3", client.calls)
	}
	rec, _ := store.GetByKey(context.Background(), req.IdempotencyKey)
	if rec.Status != domain.RecordStatusFilled {
		t.Errorf("record = %s, want filled after retries", rec.Status)
	}
}

func TestDispatchExhaustedRetriesFail(t *testing.T) {
	tracker, store, req := newAdmittedRequest(t)
	client := &fakeExecClient{
		failures: 10,
		failWith: fmt.Errorf("engine: 503 from exchange: %w", domain.ErrExecutionTransient),
	}
	d := NewDispatcher(client, tracker, nil, nil, nil, metrics.NewNop(), retryConfig(), slog.Default())

	d.Dispatch(context.Background(), req)

	if client.calls != 3 {
		t.Errorf("place attempts = %d, want 3", client.calls)
	}
	rec, _ := store.GetByKey(context.Background(), req.IdempotencyKey)
	if rec.Status != domain.RecordStatusFailed {
		t.Errorf("record = %s, want failed", rec.Status)
	}
	// The committed notional is released.
	if sum := tracker.Summary(); !sum.Total.IsZero() {
		t.Errorf("total = %s after failure, want zero", sum.Total)
	}
}

func TestDispatchPermanentFailureDoesNotRetry(t *testing.T) {
	tracker, store, req := newAdmittedRequest(t)
	client := &fakeExecClient{
		failures: 10,
		failWith: fmt.Errorf("engine: bad credentials: %w", domain.ErrExecutionPermanent),
	}
	d := NewDispatcher(client, tracker, nil, nil, nil, metrics.NewNop(), retryConfig(), slog.Default())

	d.Dispatch(context.Background(), req)

	if client.calls != 1 {
		t.Errorf("place attempts = %d, want 1", client.calls)
	}
	rec, _ := store.GetByKey(context.Background(), req.IdempotencyKey)
	if rec.Status != domain.RecordStatusFailed {
		t.Errorf("record = %s, want failed", rec.Status)
	}
}

func TestDispatchExchangeRejection(t *testing.T) {
	tracker, store, req := newAdmittedRequest(t)
	client := &fakeExecClient{result: domain.OrderResult{OrderID: "ord-1", Status: domain.OrderStatusRejected}}
	d := NewDispatcher(client, tracker, nil, nil, nil, metrics.NewNop(), retryConfig(), slog.Default())

	d.Dispatch(context.Background(), req)

	rec, _ := store.GetByKey(context.Background(), req.IdempotencyKey)
	if rec.Status != domain.RecordStatusFailed {
		t.Errorf("record = %s, want failed on exchange rejection", rec.Status)
	}
	if sum := tracker.Summary(); !sum.Total.IsZero() {
		t.Errorf("total = %s after rejection, want zero", sum.Total)
	}
}

func TestRequeuePendingRedispatches(t *testing.T) {
	tracker, store, req := newAdmittedRequest(t)
	client := &fakeExecClient{result: domain.OrderResult{OrderID: "ord-1", Status: domain.OrderStatusFilled}}
	d := NewDispatcher(client, tracker, nil, nil, nil, metrics.NewNop(), retryConfig(), slog.Default())

	// The record is pending from a previous run; requeue resolves it.
	if err := d.RequeuePending(context.Background()); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	rec, _ := store.GetByKey(context.Background(), req.IdempotencyKey)
	if rec.Status != domain.RecordStatusFilled {
		t.Errorf("record = %s, want filled after requeue", rec.Status)
	}
	if client.calls != 1 {
		t.Errorf("place attempts = %d, want 1", client.calls)
	}
}
