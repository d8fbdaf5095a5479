// Package memory implements the domain store interfaces with in-process
// maps. It backs tests and dry runs without a database; semantics mirror the
// postgres implementations, including the one-non-rejected-record-per-key
// rule the ledger's partial unique index enforces.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// ExposureStore is the in-memory exposure ledger.
type ExposureStore struct {
	mu   sync.Mutex
	rows []domain.ExposureRecord
}

// NewExposureStore creates an empty ledger.
func NewExposureStore() *ExposureStore {
	return &ExposureStore{}
}

var _ domain.ExposureStore = (*ExposureStore)(nil)

// Insert appends a record. A second non-rejected record for an existing
// non-rejected key fails with ErrAlreadyExists.
func (s *ExposureStore) Insert(_ context.Context, rec domain.ExposureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Status != domain.RecordStatusRejected {
		for _, r := range s.rows {
			if r.IdempotencyKey == rec.IdempotencyKey && r.Status != domain.RecordStatusRejected {
				return domain.ErrAlreadyExists
			}
		}
	}
	s.rows = append(s.rows, rec)
	return nil
}

// UpdateStatusByKey updates the non-rejected record for key.
func (s *ExposureStore) UpdateStatusByKey(_ context.Context, key string, status domain.RecordStatus, orderID, failReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rows {
		if s.rows[i].IdempotencyKey == key && s.rows[i].Status != domain.RecordStatusRejected {
			s.rows[i].Status = status
			if orderID != "" {
				s.rows[i].OrderID = orderID
			}
			if failReason != "" {
				s.rows[i].FailReason = failReason
			}
			s.rows[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return domain.ErrNotFound
}

// GetByKey returns the non-rejected record for key, or the latest rejected
// one when no live record exists.
func (s *ExposureStore) GetByKey(_ context.Context, key string) (domain.ExposureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latestRejected *domain.ExposureRecord
	for i := range s.rows {
		r := &s.rows[i]
		if r.IdempotencyKey != key {
			continue
		}
		if r.Status != domain.RecordStatusRejected {
			return *r, nil
		}
		if latestRejected == nil || r.CreatedAt.After(latestRejected.CreatedAt) {
			latestRejected = r
		}
	}
	if latestRejected != nil {
		return *latestRejected, nil
	}
	return domain.ExposureRecord{}, domain.ErrNotFound
}

// ListNonRejected returns every record not in status rejected.
func (s *ExposureStore) ListNonRejected(_ context.Context) ([]domain.ExposureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ExposureRecord
	for _, r := range s.rows {
		if r.Status != domain.RecordStatusRejected {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListByStatus returns records with the given status, newest first.
func (s *ExposureStore) ListByStatus(_ context.Context, status domain.RecordStatus, opts domain.ListOpts) ([]domain.ExposureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ExposureRecord
	for _, r := range s.rows {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sortNewest(out)
	return paginate(out, opts), nil
}

// ListByTrader returns a trader's records, newest first.
func (s *ExposureStore) ListByTrader(_ context.Context, traderID string, opts domain.ListOpts) ([]domain.ExposureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ExposureRecord
	for _, r := range s.rows {
		if r.TraderID == traderID {
			out = append(out, r)
		}
	}
	sortNewest(out)
	return paginate(out, opts), nil
}

// ListTerminalBefore returns rejected/failed rows last touched before the
// cutoff, oldest first.
func (s *ExposureStore) ListTerminalBefore(_ context.Context, before time.Time, limit int) ([]domain.ExposureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ExposureRecord
	for _, r := range s.rows {
		archivable := r.Status == domain.RecordStatusRejected || r.Status == domain.RecordStatusFailed
		if archivable && r.UpdatedAt.Before(before) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteByIDs removes rows by id, returning how many went away.
func (s *ExposureStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.rows[:0]
	var n int64
	for _, r := range s.rows {
		if drop[r.ID] {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return n, nil
}

func sortNewest(rows []domain.ExposureRecord) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
}

func paginate(rows []domain.ExposureRecord, opts domain.ListOpts) []domain.ExposureRecord {
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return nil
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return rows
}
