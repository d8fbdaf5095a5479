package exposure

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/store/memory"
)

type fixedBankroll struct {
	amount decimal.Decimal
}

func (f fixedBankroll) Current() decimal.Decimal { return f.amount }

func testLimits() Limits {
	return Limits{
		MaxPerTradePct:        decimal.RequireFromString("0.02"),
		MaxPerTraderPct:       decimal.RequireFromString("0.10"),
		MaxTotalExposurePct:   decimal.RequireFromString("0.50"),
		MaxPositionsPerMarket: 2,
		MaxSameSidePerMarket:  1,
	}
}

// newTestTracker builds a tracker over a fresh in-memory ledger with a $10k
// bankroll, reloaded and ready to admit.
func newTestTracker(t *testing.T, limits Limits) (*Tracker, *memory.ExposureStore) {
	t.Helper()
	store := memory.NewExposureStore()
	tr := NewTracker(store, fixedBankroll{decimal.NewFromInt(10000)}, limits, slog.Default())
	if err := tr.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return tr, store
}

func proposal(tradeID, trader, market string, side domain.ContractSide, notional int64) Proposal {
	return Proposal{
		SourceTradeID:  tradeID,
		TraderID:       trader,
		TargetMarketID: market,
		Side:           side,
		Notional:       decimal.NewFromInt(notional),
	}
}

func TestAdmitBeforeReload(t *testing.T) {
	tr := NewTracker(memory.NewExposureStore(), fixedBankroll{decimal.NewFromInt(10000)}, testLimits(), slog.Default())
	_, err := tr.Admit(context.Background(), proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 50))
	if err == nil {
		t.Fatal("admitted before the ledger was reloaded")
	}
}

func TestAdmitWritesPendingRecord(t *testing.T) {
	tr, store := newTestTracker(t, testLimits())
	ctx := context.Background()

	p := proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 150)
	rec, err := tr.Admit(ctx, p)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if rec.Status != domain.RecordStatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	if rec.IdempotencyKey != p.Key() {
		t.Errorf("key = %s, want %s", rec.IdempotencyKey, p.Key())
	}

	stored, err := store.GetByKey(ctx, p.Key())
	if err != nil {
		t.Fatalf("get stored record: %v", err)
	}
	if stored.Status != domain.RecordStatusPending {
		t.Errorf("stored status = %s, want pending", stored.Status)
	}

	sum := tr.Summary()
	if !sum.Total.Equal(decimal.NewFromInt(150)) {
		t.Errorf("total = %s, want 150", sum.Total)
	}
	if !sum.ByTrader["0xabc"].Equal(decimal.NewFromInt(150)) {
		t.Errorf("by trader = %s, want 150", sum.ByTrader["0xabc"])
	}
}

func TestAdmitDuplicateKey(t *testing.T) {
	tr, _ := newTestTracker(t, testLimits())
	ctx := context.Background()

	p := proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 50)
	if _, err := tr.Admit(ctx, p); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if _, err := tr.Admit(ctx, p); !errors.Is(err, domain.ErrDuplicateTrade) {
		t.Fatalf("second admit err = %v, want ErrDuplicateTrade", err)
	}

	// Only the first admission counts toward exposure.
	if sum := tr.Summary(); !sum.Total.Equal(decimal.NewFromInt(50)) {
		t.Errorf("total = %s, want 50", sum.Total)
	}
}

func TestAdmitConcurrentDuplicates(t *testing.T) {
	// Two identical proposals racing through Admit: exactly one lands a
	// pending record, the other sees the duplicate, whichever wins the lock.
	tr, _ := newTestTracker(t, testLimits())
	ctx := context.Background()

	p := proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 50)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = tr.Admit(ctx, p)
		}(i)
	}
	wg.Wait()

	var admitted, duplicate int
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, domain.ErrDuplicateTrade):
			duplicate++
		default:
			t.Fatalf("unexpected admit error: %v", err)
		}
	}
	if admitted != 1 || duplicate != 1 {
		t.Fatalf("admitted=%d duplicate=%d, want exactly one of each", admitted, duplicate)
	}
	if sum := tr.Summary(); !sum.Total.Equal(decimal.NewFromInt(50)) {
		t.Errorf("total = %s, want 50", sum.Total)
	}
}

func TestAdmitDuplicateWinsOverCapBreach(t *testing.T) {
	tr, _ := newTestTracker(t, testLimits())
	ctx := context.Background()

	p := proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 50)
	if _, err := tr.Admit(ctx, p); err != nil {
		t.Fatalf("first admit: %v", err)
	}

	// Same key at a size that would also breach the per-trade cap: duplicate
	// is still the reported reason.
	p.Notional = decimal.NewFromInt(5000)
	if _, err := tr.Admit(ctx, p); !errors.Is(err, domain.ErrDuplicateTrade) {
		t.Fatalf("err = %v, want ErrDuplicateTrade", err)
	}
}

func TestAdmitCaps(t *testing.T) {
	ctx := context.Background()

	t.Run("per trade", func(t *testing.T) {
		tr, _ := newTestTracker(t, testLimits())
		// 2% of 10000 is 200.
		_, err := tr.Admit(ctx, proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 250))
		if !errors.Is(err, domain.ErrExposureLimitExceeded) {
			t.Fatalf("err = %v, want ErrExposureLimitExceeded", err)
		}
	})

	t.Run("per trader", func(t *testing.T) {
		tr, _ := newTestTracker(t, testLimits())
		// 10% of 10000 is 1000; six $200 copies cross it on the sixth.
		for i := 0; i < 5; i++ {
			p := proposal("0xfill"+string(rune('1'+i)), "0xabc", "KX-"+string(rune('A'+i)), domain.ContractYes, 200)
			if _, err := tr.Admit(ctx, p); err != nil {
				t.Fatalf("admit %d: %v", i, err)
			}
		}
		_, err := tr.Admit(ctx, proposal("0xfill9", "0xabc", "KX-Z", domain.ContractYes, 200))
		if !errors.Is(err, domain.ErrExposureLimitExceeded) {
			t.Fatalf("err = %v, want ErrExposureLimitExceeded", err)
		}
	})

	t.Run("same side per market", func(t *testing.T) {
		tr, _ := newTestTracker(t, testLimits())
		if _, err := tr.Admit(ctx, proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 50)); err != nil {
			t.Fatalf("first admit: %v", err)
		}
		_, err := tr.Admit(ctx, proposal("0xfill2", "0xdef", "KX-A", domain.ContractYes, 50))
		if !errors.Is(err, domain.ErrExposureLimitExceeded) {
			t.Fatalf("same-side err = %v, want ErrExposureLimitExceeded", err)
		}
		// The opposite side is still open.
		if _, err := tr.Admit(ctx, proposal("0xfill3", "0xdef", "KX-A", domain.ContractNo, 50)); err != nil {
			t.Fatalf("opposite side: %v", err)
		}
	})

	t.Run("positions per market", func(t *testing.T) {
		tr, _ := newTestTracker(t, testLimits())
		if _, err := tr.Admit(ctx, proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 50)); err != nil {
			t.Fatalf("admit yes: %v", err)
		}
		if _, err := tr.Admit(ctx, proposal("0xfill2", "0xdef", "KX-A", domain.ContractNo, 50)); err != nil {
			t.Fatalf("admit no: %v", err)
		}
		_, err := tr.Admit(ctx, proposal("0xfill3", "0xghi", "KX-A", domain.ContractNo, 50))
		if !errors.Is(err, domain.ErrExposureLimitExceeded) {
			t.Fatalf("err = %v, want ErrExposureLimitExceeded", err)
		}
	})

	t.Run("hourly rate", func(t *testing.T) {
		limits := testLimits()
		limits.MaxTradesPerHour = 2
		limits.MaxPositionsPerMarket = 10
		limits.MaxSameSidePerMarket = 10
		tr, _ := newTestTracker(t, limits)
		for i := 0; i < 2; i++ {
			p := proposal("0xfill"+string(rune('1'+i)), "0xabc", "KX-A", domain.ContractYes, 50)
			if _, err := tr.Admit(ctx, p); err != nil {
				t.Fatalf("admit %d: %v", i, err)
			}
		}
		_, err := tr.Admit(ctx, proposal("0xfill9", "0xabc", "KX-A", domain.ContractYes, 50))
		if !errors.Is(err, domain.ErrExposureLimitExceeded) {
			t.Fatalf("err = %v, want ErrExposureLimitExceeded", err)
		}
	})
}

func TestAdmitCooldown(t *testing.T) {
	limits := testLimits()
	limits.Cooldown = time.Hour
	limits.MaxPositionsPerMarket = 10
	limits.MaxSameSidePerMarket = 10
	tr, _ := newTestTracker(t, limits)
	ctx := context.Background()

	if _, err := tr.Admit(ctx, proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 50)); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	_, err := tr.Admit(ctx, proposal("0xfill2", "0xabc", "KX-A", domain.ContractNo, 50))
	if !errors.Is(err, domain.ErrExposureLimitExceeded) {
		t.Fatalf("err = %v, want cooldown ErrExposureLimitExceeded", err)
	}
	// A different market for the same trader is unaffected.
	if _, err := tr.Admit(ctx, proposal("0xfill3", "0xabc", "KX-B", domain.ContractYes, 50)); err != nil {
		t.Fatalf("other market: %v", err)
	}
}

func TestRejectionIsRecorded(t *testing.T) {
	tr, store := newTestTracker(t, testLimits())
	ctx := context.Background()

	p := proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 250)
	if _, err := tr.Admit(ctx, p); !errors.Is(err, domain.ErrExposureLimitExceeded) {
		t.Fatalf("err = %v, want ErrExposureLimitExceeded", err)
	}

	rec, err := store.GetByKey(ctx, p.Key())
	if err != nil {
		t.Fatalf("rejected record missing: %v", err)
	}
	if rec.Status != domain.RecordStatusRejected {
		t.Errorf("status = %s, want rejected", rec.Status)
	}
	if rec.FailReason == "" {
		t.Error("rejection recorded without a reason")
	}

	// A rejection does not burn the key: a retry within limits is admitted.
	p.Notional = decimal.NewFromInt(100)
	if _, err := tr.Admit(ctx, p); err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
}

func TestMarkFilledAndFailed(t *testing.T) {
	tr, store := newTestTracker(t, testLimits())
	ctx := context.Background()

	p := proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 150)
	if _, err := tr.Admit(ctx, p); err != nil {
		t.Fatalf("admit: %v", err)
	}

	if err := tr.MarkFilled(ctx, p.Key(), "ord-1"); err != nil {
		t.Fatalf("mark filled: %v", err)
	}
	rec, err := store.GetByKey(ctx, p.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != domain.RecordStatusFilled || rec.OrderID != "ord-1" {
		t.Errorf("record = %s/%s, want filled/ord-1", rec.Status, rec.OrderID)
	}
	// A fill keeps the notional committed.
	if sum := tr.Summary(); !sum.Total.Equal(decimal.NewFromInt(150)) {
		t.Errorf("total after fill = %s, want 150", sum.Total)
	}
	// Terminal records do not transition again.
	if err := tr.MarkFailed(ctx, p.Key(), "late"); err == nil {
		t.Fatal("transitioned a filled record")
	}

	p2 := proposal("0xfill2", "0xabc", "KX-B", domain.ContractYes, 100)
	if _, err := tr.Admit(ctx, p2); err != nil {
		t.Fatalf("admit second: %v", err)
	}
	if err := tr.MarkFailed(ctx, p2.Key(), "order rejected"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	// A failure releases the committed notional.
	if sum := tr.Summary(); !sum.Total.Equal(decimal.NewFromInt(150)) {
		t.Errorf("total after failure = %s, want 150", sum.Total)
	}

	if err := tr.MarkFilled(ctx, "no-such-key", "ord-9"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown key err = %v, want ErrNotFound", err)
	}
}

func TestReloadSuppressesDuplicatesAcrossRestart(t *testing.T) {
	store := memory.NewExposureStore()
	bank := fixedBankroll{decimal.NewFromInt(10000)}
	ctx := context.Background()

	first := NewTracker(store, bank, testLimits(), slog.Default())
	if err := first.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	p := proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 150)
	if _, err := first.Admit(ctx, p); err != nil {
		t.Fatalf("admit: %v", err)
	}

	// A new tracker over the same ledger sees the prior commitment.
	second := NewTracker(store, bank, testLimits(), slog.Default())
	if err := second.Reload(ctx); err != nil {
		t.Fatalf("reload second: %v", err)
	}
	if _, err := second.Admit(ctx, p); !errors.Is(err, domain.ErrDuplicateTrade) {
		t.Fatalf("err = %v, want ErrDuplicateTrade after restart", err)
	}
	if sum := second.Summary(); !sum.Total.Equal(decimal.NewFromInt(150)) {
		t.Errorf("reloaded total = %s, want 150", sum.Total)
	}
}

func TestPendingDispatch(t *testing.T) {
	tr, _ := newTestTracker(t, testLimits())
	ctx := context.Background()

	p1 := proposal("0xfill1", "0xabc", "KX-A", domain.ContractYes, 50)
	p2 := proposal("0xfill2", "0xabc", "KX-B", domain.ContractYes, 50)
	if _, err := tr.Admit(ctx, p1); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := tr.Admit(ctx, p2); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := tr.MarkFilled(ctx, p1.Key(), "ord-1"); err != nil {
		t.Fatalf("mark filled: %v", err)
	}

	pending, err := tr.PendingDispatch(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].IdempotencyKey != p2.Key() {
		t.Fatalf("pending = %v, want only the second key", pending)
	}
}
