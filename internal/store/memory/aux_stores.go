package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// DecisionStore is the in-memory copy decision log.
type DecisionStore struct {
	mu   sync.Mutex
	rows []domain.CopyDecision
}

// NewDecisionStore creates an empty decision log.
func NewDecisionStore() *DecisionStore { return &DecisionStore{} }

var _ domain.DecisionStore = (*DecisionStore)(nil)

func (s *DecisionStore) Insert(_ context.Context, d domain.CopyDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, d)
	return nil
}

func (s *DecisionStore) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.CopyDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.CopyDecision(nil), s.rows...)
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.After(out[j].DecidedAt) })
	return paginateDecisions(out, opts), nil
}

func (s *DecisionStore) ListByTrader(_ context.Context, traderID string, opts domain.ListOpts) ([]domain.CopyDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CopyDecision
	for _, d := range s.rows {
		if d.TraderID == traderID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.After(out[j].DecidedAt) })
	return paginateDecisions(out, opts), nil
}

func (s *DecisionStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.CopyDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CopyDecision
	for _, d := range s.rows {
		if d.DecidedAt.Before(before) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.Before(out[j].DecidedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *DecisionStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.rows[:0]
	var n int64
	for _, d := range s.rows {
		if drop[d.ID] {
			n++
			continue
		}
		kept = append(kept, d)
	}
	s.rows = kept
	return n, nil
}

func paginateDecisions(rows []domain.CopyDecision, opts domain.ListOpts) []domain.CopyDecision {
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

// CursorStore is the in-memory feed cursor store.
type CursorStore struct {
	mu      sync.Mutex
	cursors map[string]string
	updated map[string]time.Time
}

// NewCursorStore creates an empty cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{cursors: make(map[string]string), updated: make(map[string]time.Time)}
}

var _ domain.CursorStore = (*CursorStore)(nil)

func (s *CursorStore) Get(_ context.Context, feed string) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[feed]
	if !ok {
		return "", time.Time{}, domain.ErrNotFound
	}
	return c, s.updated[feed], nil
}

func (s *CursorStore) Set(_ context.Context, feed, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[feed] = cursor
	s.updated[feed] = time.Now().UTC()
	return nil
}

// MarketLinkStore is the in-memory confirmed-match store.
type MarketLinkStore struct {
	mu    sync.Mutex
	links map[string]domain.MarketLink // by source market id
}

// NewMarketLinkStore creates an empty link store.
func NewMarketLinkStore() *MarketLinkStore {
	return &MarketLinkStore{links: make(map[string]domain.MarketLink)}
}

var _ domain.MarketLinkStore = (*MarketLinkStore)(nil)

func (s *MarketLinkStore) Upsert(_ context.Context, link domain.MarketLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.SourceMarketID] = link
	return nil
}

func (s *MarketLinkStore) GetBySourceMarket(_ context.Context, sourceMarketID string) (domain.MarketLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[sourceMarketID]
	if !ok {
		return domain.MarketLink{}, domain.ErrNotFound
	}
	return link, nil
}

func (s *MarketLinkStore) List(_ context.Context, opts domain.ListOpts) ([]domain.MarketLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MarketLink, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResolvedAt.After(out[j].ResolvedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MarketLinkStore) DeleteBySourceMarket(_ context.Context, sourceMarketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, sourceMarketID)
	return nil
}

// TraderStore is the in-memory tracked-trader roster.
type TraderStore struct {
	mu      sync.Mutex
	traders map[string]domain.TrackedTrader
}

// NewTraderStore creates an empty roster.
func NewTraderStore() *TraderStore {
	return &TraderStore{traders: make(map[string]domain.TrackedTrader)}
}

var _ domain.TraderStore = (*TraderStore)(nil)

func (s *TraderStore) Upsert(_ context.Context, t domain.TrackedTrader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traders[t.Address] = t
	return nil
}

func (s *TraderStore) GetByAddress(_ context.Context, address string) (domain.TrackedTrader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.traders[address]
	if !ok {
		return domain.TrackedTrader{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *TraderStore) List(_ context.Context) ([]domain.TrackedTrader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TrackedTrader, 0, len(s.traders))
	for _, t := range s.traders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// MarketStore is the in-memory market row store.
type MarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

// NewMarketStore creates an empty market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[string]domain.Market)}
}

var _ domain.MarketStore = (*MarketStore)(nil)

func (s *MarketStore) UpsertBatch(_ context.Context, markets []domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range markets {
		s.markets[m.MarketID] = m
	}
	return nil
}

func (s *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *MarketStore) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == domain.MarketStatusActive {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MarketStore) CloseMissing(_ context.Context, activeIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = true
	}
	var n int64
	for id, m := range s.markets {
		if m.Status == domain.MarketStatusActive && !active[id] {
			m.Status = domain.MarketStatusClosed
			s.markets[id] = m
			n++
		}
	}
	return n, nil
}

func (s *MarketStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

// AuditStore is the in-memory audit log.
type AuditStore struct {
	mu   sync.Mutex
	rows []domain.AuditEntry
	next int64
}

// NewAuditStore creates an empty audit log.
func NewAuditStore() *AuditStore { return &AuditStore{next: 1} }

var _ domain.AuditStore = (*AuditStore)(nil)

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, domain.AuditEntry{
		ID:        s.next,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.next++
	return nil
}

func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.AuditEntry(nil), s.rows...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *AuditStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.rows {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *AuditStore) DeleteByIDs(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.rows[:0]
	var n int64
	for _, e := range s.rows {
		if drop[e.ID] {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.rows = kept
	return n, nil
}
