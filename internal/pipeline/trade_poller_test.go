package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/feed"
	"github.com/alanyoungcy/whalebridge/internal/metrics"
	"github.com/alanyoungcy/whalebridge/internal/store/memory"
)

type fakeSource struct {
	trades []domain.RawTrade
	next   string
	err    error

	gotCursor string
}

func (f *fakeSource) Name() string { return "test-feed" }

func (f *fakeSource) Poll(_ context.Context, cursor string) ([]domain.RawTrade, string, error) {
	f.gotCursor = cursor
	return f.trades, f.next, f.err
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

// The poller never drains the feeder queue itself, so a feeder with a nil
// engine is enough to observe what was offered.
func newTestPoller(source *fakeSource, cursors domain.CursorStore, locks domain.LockManager) (*TradePoller, *feed.Feeder) {
	f := feed.NewFeeder(nil, nil, nil, feed.NewDedup(time.Minute), metrics.NewNop(), 1, slog.Default())
	p := NewTradePoller(source, cursors, f, locks, metrics.NewNop(), time.Second, time.Second, slog.Default())
	return p, f
}

func TestLoadCursorSeedsFromNow(t *testing.T) {
	cursors := memory.NewCursorStore()
	p, _ := newTestPoller(&fakeSource{}, cursors, nil)
	ctx := context.Background()

	cursor, err := p.loadCursor(ctx)
	if err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	if cursor == "" {
		t.Fatal("seeded cursor is empty")
	}

	// The seed is durable: a second load resumes from it.
	stored, _, err := cursors.Get(ctx, "test-feed")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if stored != cursor {
		t.Errorf("stored = %q, want %q", stored, cursor)
	}
}

func TestLoadCursorResumesStored(t *testing.T) {
	cursors := memory.NewCursorStore()
	ctx := context.Background()
	if err := cursors.Set(ctx, "test-feed", "1756000000"); err != nil {
		t.Fatalf("set: %v", err)
	}

	p, _ := newTestPoller(&fakeSource{}, cursors, nil)
	cursor, err := p.loadCursor(ctx)
	if err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	if cursor != "1756000000" {
		t.Errorf("cursor = %q, want stored value", cursor)
	}
}

func TestPollOnceAdvancesCursorAfterOffer(t *testing.T) {
	cursors := memory.NewCursorStore()
	source := &fakeSource{
		trades: []domain.RawTrade{{EventID: "0xfill1"}, {EventID: "0xfill2"}},
		next:   "200",
	}
	p, feeder := newTestPoller(source, cursors, nil)
	ctx := context.Background()

	next, err := p.pollOnce(ctx, "100")
	if err != nil {
		t.Fatalf("poll once: %v", err)
	}
	if next != "200" {
		t.Errorf("cursor = %q, want 200", next)
	}
	if source.gotCursor != "100" {
		t.Errorf("polled from %q, want 100", source.gotCursor)
	}
	if got := feeder.QueueDepth(); got != 2 {
		t.Errorf("queued %d trades, want 2", got)
	}

	stored, _, err := cursors.Get(ctx, "test-feed")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if stored != "200" {
		t.Errorf("persisted cursor = %q, want 200", stored)
	}
}

func TestPollOnceFailureKeepsCursor(t *testing.T) {
	cursors := memory.NewCursorStore()
	source := &fakeSource{err: errors.New("feed down"), next: "200"}
	p, _ := newTestPoller(source, cursors, nil)

	next, err := p.pollOnce(context.Background(), "100")
	if err == nil {
		t.Fatal("expected poll error")
	}
	if next != "100" {
		t.Errorf("cursor moved to %q on failure", next)
	}
	if _, _, err := cursors.Get(context.Background(), "test-feed"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("cursor persisted despite the failed poll")
	}
}

func TestPollOnceSkipsWhenLockHeld(t *testing.T) {
	source := &fakeSource{trades: []domain.RawTrade{{EventID: "0xfill1"}}, next: "200"}
	p, feeder := newTestPoller(source, memory.NewCursorStore(), heldLocks{})

	next, err := p.pollOnce(context.Background(), "100")
	if err != nil {
		t.Fatalf("poll once: %v", err)
	}
	if next != "100" {
		t.Errorf("cursor = %q, want unchanged 100", next)
	}
	if got := feeder.QueueDepth(); got != 0 {
		t.Errorf("queued %d trades while another replica holds the lock", got)
	}
}

func TestPollOnceEmptyBatchStillAdvances(t *testing.T) {
	cursors := memory.NewCursorStore()
	source := &fakeSource{next: "200"}
	p, _ := newTestPoller(source, cursors, nil)

	next, err := p.pollOnce(context.Background(), "100")
	if err != nil {
		t.Fatalf("poll once: %v", err)
	}
	if next != "200" {
		t.Errorf("cursor = %q, want 200 on an empty batch", next)
	}
}
