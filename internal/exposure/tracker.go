// Package exposure owns the authoritative ledger of committed capital. The
// tracker is the sole mutator of exposure record status, and its admission
// check is the single serialization point guarding every idempotency key.
package exposure

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// BankrollProvider reports our own current bankroll; caps are fractions of
// this figure.
type BankrollProvider interface {
	Current() decimal.Decimal
}

// Limits holds the admission caps. Percentages are fractions of own
// bankroll.
type Limits struct {
	MaxPerTradePct        decimal.Decimal
	MaxPerTraderPct       decimal.Decimal
	MaxTotalExposurePct   decimal.Decimal
	MaxPositionsPerMarket int
	MaxSameSidePerMarket  int
	// Cooldown suppresses repeat copies on one trader+market pair. Zero
	// disables.
	Cooldown time.Duration
	// MaxTradesPerHour / MaxTradesPerDay bound admissions per rolling
	// window. Zero disables.
	MaxTradesPerHour int
	MaxTradesPerDay  int
}

// Proposal is a sized position awaiting admission.
type Proposal struct {
	SourceTradeID  string
	TraderID       string
	TargetMarketID string
	Side           domain.ContractSide
	Notional       decimal.Decimal
}

// Key derives the proposal's idempotency key.
func (p Proposal) Key() string {
	return domain.NewIdempotencyKey(p.SourceTradeID, p.TargetMarketID, p.Side)
}

// Tracker enforces the exposure limits and the at-most-once copy guarantee.
// Admission and the durable pending write happen under one internal lock, so
// two concurrent trades for the same key can never both be admitted; the
// store's partial unique index is the second line of defense. Dispatch never
// runs under this lock.
type Tracker struct {
	store    domain.ExposureStore
	bankroll BankrollProvider
	limits   Limits
	logger   *slog.Logger

	mu         sync.Mutex
	byKey      map[string]domain.RecordStatus // non-rejected records only
	perTrader  map[string]decimal.Decimal     // committed notional
	perMarket  map[string]int                 // non-rejected position count
	sameSide   map[string]int                 // non-rejected count per market|side
	total      decimal.Decimal
	lastCopied map[string]time.Time // trader|market admission times, for cooldown
	admissions []time.Time          // rolling admission log for rate caps
	loaded     bool
}

// NewTracker creates a Tracker. Reload must run before the first Admit.
func NewTracker(store domain.ExposureStore, bankroll BankrollProvider, limits Limits, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:      store,
		bankroll:   bankroll,
		limits:     limits,
		logger:     logger.With(slog.String("component", "exposure_tracker")),
		byKey:      make(map[string]domain.RecordStatus),
		perTrader:  make(map[string]decimal.Decimal),
		perMarket:  make(map[string]int),
		sameSide:   make(map[string]int),
		lastCopied: make(map[string]time.Time),
		total:      decimal.Zero,
	}
}

// Reload rebuilds the in-memory aggregates from the durable ledger. It must
// complete before any trade is processed so records from previous runs still
// suppress duplicate copies.
func (t *Tracker) Reload(ctx context.Context) error {
	records, err := t.store.ListNonRejected(ctx)
	if err != nil {
		return fmt.Errorf("exposure: reload ledger: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.byKey = make(map[string]domain.RecordStatus, len(records))
	t.perTrader = make(map[string]decimal.Decimal)
	t.perMarket = make(map[string]int)
	t.sameSide = make(map[string]int)
	t.lastCopied = make(map[string]time.Time)
	t.admissions = nil
	t.total = decimal.Zero

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	for _, rec := range records {
		t.byKey[rec.IdempotencyKey] = rec.Status
		t.perMarket[rec.TargetMarketID]++
		t.sameSide[sideKey(rec.TargetMarketID, rec.Side)]++
		if rec.Status.Committed() {
			t.perTrader[rec.TraderID] = t.perTrader[rec.TraderID].Add(rec.CommittedNotional)
			t.total = t.total.Add(rec.CommittedNotional)
		}
		pairKey := pairKey(rec.TraderID, rec.TargetMarketID)
		if rec.CreatedAt.After(t.lastCopied[pairKey]) {
			t.lastCopied[pairKey] = rec.CreatedAt
		}
		if rec.CreatedAt.After(cutoff) {
			t.admissions = append(t.admissions, rec.CreatedAt)
		}
	}
	t.loaded = true

	t.logger.Info("exposure ledger reloaded",
		slog.Int("records", len(records)),
		slog.String("total_committed", t.total.StringFixed(2)),
	)
	return nil
}

// Admit checks the proposal against every limit and, when all pass, durably
// records a pending exposure record in the same atomic step. A rejected
// proposal is also recorded in the ledger, status rejected, so the audit
// trail names the limit that refused it.
func (t *Tracker) Admit(ctx context.Context, p Proposal) (domain.ExposureRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded {
		return domain.ExposureRecord{}, fmt.Errorf("exposure: ledger not reloaded before admission")
	}

	key := p.Key()
	checkErr := t.check(key, p)

	now := time.Now().UTC()
	rec := domain.ExposureRecord{
		ID:                uuid.New().String(),
		IdempotencyKey:    key,
		SourceTradeID:     p.SourceTradeID,
		TraderID:          p.TraderID,
		TargetMarketID:    p.TargetMarketID,
		Side:              p.Side,
		CommittedNotional: p.Notional,
		Status:            domain.RecordStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if checkErr != nil {
		rec.Status = domain.RecordStatusRejected
		rec.FailReason = checkErr.Error()
		if err := t.store.Insert(ctx, rec); err != nil {
			// The rejection stands either way; the lost audit row is logged.
			t.logger.WarnContext(ctx, "could not record rejection",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return domain.ExposureRecord{}, checkErr
	}

	if err := t.store.Insert(ctx, rec); err != nil {
		// Without the durable pending row the copy must not proceed: a
		// restart would lose the idempotency guarantee.
		return domain.ExposureRecord{}, fmt.Errorf("exposure: record pending position: %w", err)
	}

	t.byKey[key] = domain.RecordStatusPending
	t.perTrader[p.TraderID] = t.perTrader[p.TraderID].Add(p.Notional)
	t.perMarket[p.TargetMarketID]++
	t.sameSide[sideKey(p.TargetMarketID, p.Side)]++
	t.total = t.total.Add(p.Notional)
	t.lastCopied[pairKey(p.TraderID, p.TargetMarketID)] = now
	t.admissions = append(t.admissions, now)

	return rec, nil
}

// check runs every admission rule. Caller holds the lock.
func (t *Tracker) check(key string, p Proposal) error {
	// Idempotency first: a duplicate is reported as such even when it would
	// also breach a cap.
	if status, ok := t.byKey[key]; ok {
		return fmt.Errorf("exposure: key already %s: %w", status, domain.ErrDuplicateTrade)
	}

	bankroll := t.bankroll.Current()

	if cap := bankroll.Mul(t.limits.MaxPerTradePct); p.Notional.GreaterThan(cap) {
		return fmt.Errorf("exposure: per-trade cap %s exceeded by %s: %w",
			cap.StringFixed(2), p.Notional.StringFixed(2), domain.ErrExposureLimitExceeded)
	}

	if cap := bankroll.Mul(t.limits.MaxPerTraderPct); t.perTrader[p.TraderID].Add(p.Notional).GreaterThan(cap) {
		return fmt.Errorf("exposure: per-trader cap %s exceeded for %s: %w",
			cap.StringFixed(2), p.TraderID, domain.ErrExposureLimitExceeded)
	}

	if t.perMarket[p.TargetMarketID] >= t.limits.MaxPositionsPerMarket {
		return fmt.Errorf("exposure: market %s at position cap %d: %w",
			p.TargetMarketID, t.limits.MaxPositionsPerMarket, domain.ErrExposureLimitExceeded)
	}

	if t.sameSide[sideKey(p.TargetMarketID, p.Side)] >= t.limits.MaxSameSidePerMarket {
		return fmt.Errorf("exposure: market %s side %s at same-side cap %d: %w",
			p.TargetMarketID, p.Side, t.limits.MaxSameSidePerMarket, domain.ErrExposureLimitExceeded)
	}

	if cap := bankroll.Mul(t.limits.MaxTotalExposurePct); t.total.Add(p.Notional).GreaterThan(cap) {
		return fmt.Errorf("exposure: total exposure cap %s exceeded: %w",
			cap.StringFixed(2), domain.ErrExposureLimitExceeded)
	}

	if t.limits.Cooldown > 0 {
		if last, ok := t.lastCopied[pairKey(p.TraderID, p.TargetMarketID)]; ok {
			if since := time.Since(last); since < t.limits.Cooldown {
				return fmt.Errorf("exposure: cooldown on %s/%s for another %s: %w",
					p.TraderID, p.TargetMarketID, (t.limits.Cooldown - since).Round(time.Second), domain.ErrExposureLimitExceeded)
			}
		}
	}

	if err := t.checkRate(); err != nil {
		return err
	}
	return nil
}

func (t *Tracker) checkRate() error {
	now := time.Now().UTC()
	dayAgo := now.Add(-24 * time.Hour)
	hourAgo := now.Add(-time.Hour)

	// Trim entries older than the longest window.
	keep := t.admissions[:0]
	for _, at := range t.admissions {
		if at.After(dayAgo) {
			keep = append(keep, at)
		}
	}
	t.admissions = keep

	if t.limits.MaxTradesPerDay > 0 && len(t.admissions) >= t.limits.MaxTradesPerDay {
		return fmt.Errorf("exposure: daily trade cap %d reached: %w", t.limits.MaxTradesPerDay, domain.ErrExposureLimitExceeded)
	}
	if t.limits.MaxTradesPerHour > 0 {
		inHour := 0
		for _, at := range t.admissions {
			if at.After(hourAgo) {
				inHour++
			}
		}
		if inHour >= t.limits.MaxTradesPerHour {
			return fmt.Errorf("exposure: hourly trade cap %d reached: %w", t.limits.MaxTradesPerHour, domain.ErrExposureLimitExceeded)
		}
	}
	return nil
}

// MarkFilled transitions the record for key to filled once the execution
// client reports a fill.
func (t *Tracker) MarkFilled(ctx context.Context, key, orderID string) error {
	return t.resolve(ctx, key, domain.RecordStatusFilled, orderID, "")
}

// MarkFailed transitions the record for key to failed. The committed
// notional is released: the order never reached the market.
func (t *Tracker) MarkFailed(ctx context.Context, key, reason string) error {
	return t.resolve(ctx, key, domain.RecordStatusFailed, "", reason)
}

func (t *Tracker) resolve(ctx context.Context, key string, status domain.RecordStatus, orderID, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.byKey[key]
	if !ok {
		return fmt.Errorf("exposure: no record for key %s: %w", key, domain.ErrNotFound)
	}
	if prev.Terminal() {
		return fmt.Errorf("exposure: record %s already %s", key, prev)
	}

	rec, err := t.store.GetByKey(ctx, key)
	if err != nil {
		return fmt.Errorf("exposure: load record %s: %w", key, err)
	}
	if err := t.store.UpdateStatusByKey(ctx, key, status, orderID, reason); err != nil {
		return fmt.Errorf("exposure: update record %s: %w", key, err)
	}

	t.byKey[key] = status
	if prev.Committed() && !status.Committed() {
		t.perTrader[rec.TraderID] = t.perTrader[rec.TraderID].Sub(rec.CommittedNotional)
		t.total = t.total.Sub(rec.CommittedNotional)
	}
	return nil
}

// Summary returns the aggregate exposure view.
func (t *Tracker) Summary() domain.ExposureSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := domain.ExposureSummary{
		Total:    t.total,
		ByTrader: make(map[string]decimal.Decimal, len(t.perTrader)),
		ByMarket: make(map[string]int, len(t.perMarket)),
		AsOf:     time.Now().UTC(),
	}
	for k, v := range t.perTrader {
		if v.IsPositive() {
			s.ByTrader[k] = v
		}
	}
	for k, v := range t.perMarket {
		s.ByMarket[k] = v
		s.OpenCount += v
	}
	return s
}

// PendingDispatch lists pending records so an admitted-but-undispatched copy
// survives a restart and is requeued instead of silently dropped.
func (t *Tracker) PendingDispatch(ctx context.Context) ([]domain.ExposureRecord, error) {
	recs, err := t.store.ListByStatus(ctx, domain.RecordStatusPending, domain.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("exposure: list pending: %w", err)
	}
	return recs, nil
}

func sideKey(marketID string, side domain.ContractSide) string {
	return marketID + "|" + string(side)
}

func pairKey(traderID, marketID string) string {
	return traderID + "|" + marketID
}
