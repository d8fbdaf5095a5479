package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

func record(id, key string, status domain.RecordStatus, at time.Time) domain.ExposureRecord {
	return domain.ExposureRecord{
		ID:                id,
		IdempotencyKey:    key,
		SourceTradeID:     "0xfill-" + id,
		TraderID:          "0xabc",
		TargetMarketID:    "KX-A",
		Side:              domain.ContractYes,
		CommittedNotional: decimal.NewFromInt(50),
		Status:            status,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}

func TestInsertEnforcesOneLiveRecordPerKey(t *testing.T) {
	s := NewExposureStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Insert(ctx, record("1", "k1", domain.RecordStatusPending, now)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, record("2", "k1", domain.RecordStatusPending, now)); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("second live insert err = %v, want ErrAlreadyExists", err)
	}

	// Rejected rows are audit entries and never conflict.
	if err := s.Insert(ctx, record("3", "k1", domain.RecordStatusRejected, now)); err != nil {
		t.Fatalf("rejected insert: %v", err)
	}
	if err := s.Insert(ctx, record("4", "k2", domain.RecordStatusRejected, now)); err != nil {
		t.Fatalf("rejected insert on fresh key: %v", err)
	}
	// A live record may follow any number of rejections of the same key.
	if err := s.Insert(ctx, record("5", "k2", domain.RecordStatusPending, now)); err != nil {
		t.Fatalf("live insert after rejection: %v", err)
	}
}

func TestGetByKeyPrefersLiveRecord(t *testing.T) {
	s := NewExposureStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Insert(ctx, record("1", "k1", domain.RecordStatusRejected, now.Add(-time.Minute))); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, record("2", "k1", domain.RecordStatusPending, now)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetByKey(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "2" {
		t.Errorf("got record %s, want the live one", got.ID)
	}

	// With only rejections on file, the latest one is returned.
	if err := s.Insert(ctx, record("3", "k2", domain.RecordStatusRejected, now.Add(-time.Hour))); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, record("4", "k2", domain.RecordStatusRejected, now)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err = s.GetByKey(ctx, "k2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "4" {
		t.Errorf("got record %s, want the latest rejection", got.ID)
	}

	if _, err := s.GetByKey(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing key err = %v, want ErrNotFound", err)
	}
}

func TestUpdateStatusByKey(t *testing.T) {
	s := NewExposureStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Insert(ctx, record("1", "k1", domain.RecordStatusPending, now)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateStatusByKey(ctx, "k1", domain.RecordStatusFilled, "ord-1", ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetByKey(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.RecordStatusFilled || got.OrderID != "ord-1" {
		t.Errorf("record = %s/%s, want filled/ord-1", got.Status, got.OrderID)
	}
	if !got.UpdatedAt.After(now) {
		t.Error("updated-at not touched")
	}

	if err := s.UpdateStatusByKey(ctx, "missing", domain.RecordStatusFilled, "", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing key err = %v, want ErrNotFound", err)
	}
}

func TestListNonRejected(t *testing.T) {
	s := NewExposureStore()
	ctx := context.Background()
	now := time.Now().UTC()

	s.Insert(ctx, record("1", "k1", domain.RecordStatusPending, now))
	s.Insert(ctx, record("2", "k2", domain.RecordStatusFilled, now))
	s.Insert(ctx, record("3", "k3", domain.RecordStatusRejected, now))
	s.Insert(ctx, record("4", "k4", domain.RecordStatusFailed, now))

	got, err := s.ListNonRejected(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("listed %d records, want 3", len(got))
	}
}

func TestListByStatusNewestFirst(t *testing.T) {
	s := NewExposureStore()
	ctx := context.Background()
	now := time.Now().UTC()

	s.Insert(ctx, record("old", "k1", domain.RecordStatusPending, now.Add(-time.Hour)))
	s.Insert(ctx, record("new", "k2", domain.RecordStatusPending, now))
	s.Insert(ctx, record("filled", "k3", domain.RecordStatusFilled, now))

	got, err := s.ListByStatus(ctx, domain.RecordStatusPending, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "old" {
		t.Fatalf("list = %v, want [new old]", got)
	}

	limited, err := s.ListByStatus(ctx, domain.RecordStatusPending, domain.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "new" {
		t.Fatalf("limited list = %v, want [new]", limited)
	}
}

func TestListTerminalBeforeAndDelete(t *testing.T) {
	s := NewExposureStore()
	ctx := context.Background()
	now := time.Now().UTC()

	s.Insert(ctx, record("1", "k1", domain.RecordStatusRejected, now.Add(-48*time.Hour)))
	s.Insert(ctx, record("2", "k2", domain.RecordStatusFailed, now.Add(-36*time.Hour)))
	s.Insert(ctx, record("3", "k3", domain.RecordStatusFilled, now.Add(-48*time.Hour)))
	s.Insert(ctx, record("4", "k4", domain.RecordStatusRejected, now))

	got, err := s.ListTerminalBefore(ctx, now.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// Filled rows stay; only stale rejected/failed rows are archivable,
	// oldest first.
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("list = %v, want [1 2]", got)
	}

	n, err := s.DeleteByIDs(ctx, []string{"1", "2", "nope"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if remaining, _ := s.ListTerminalBefore(ctx, now.Add(-24*time.Hour), 10); len(remaining) != 0 {
		t.Errorf("archivable rows remain after delete: %v", remaining)
	}
}
