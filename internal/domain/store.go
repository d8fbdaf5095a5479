package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists the normalized target-market rows behind the index.
type MarketStore interface {
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	// CloseMissing marks every active market not in activeIDs as closed and
	// returns how many rows changed. Called after a full index refresh.
	CloseMissing(ctx context.Context, activeIDs []string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// ExposureStore persists the append-only exposure ledger. Uniqueness of
// non-rejected records per idempotency key is enforced at this layer.
type ExposureStore interface {
	Insert(ctx context.Context, rec ExposureRecord) error
	UpdateStatusByKey(ctx context.Context, key string, status RecordStatus, orderID, failReason string) error
	GetByKey(ctx context.Context, key string) (ExposureRecord, error)
	// ListNonRejected returns every record whose status is not rejected;
	// these are the rows that hold exposure slots and idempotency keys.
	ListNonRejected(ctx context.Context) ([]ExposureRecord, error)
	ListByStatus(ctx context.Context, status RecordStatus, opts ListOpts) ([]ExposureRecord, error)
	ListByTrader(ctx context.Context, traderID string, opts ListOpts) ([]ExposureRecord, error)
	// ListTerminalBefore returns rejected/failed rows last touched before the
	// cutoff, oldest first, for archival.
	ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]ExposureRecord, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// DecisionStore persists the copy decision log.
type DecisionStore interface {
	Insert(ctx context.Context, d CopyDecision) error
	ListRecent(ctx context.Context, opts ListOpts) ([]CopyDecision, error)
	ListByTrader(ctx context.Context, traderID string, opts ListOpts) ([]CopyDecision, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]CopyDecision, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// MarketLinkStore persists confirmed cross-exchange market links.
type MarketLinkStore interface {
	Upsert(ctx context.Context, link MarketLink) error
	GetBySourceMarket(ctx context.Context, sourceMarketID string) (MarketLink, error)
	List(ctx context.Context, opts ListOpts) ([]MarketLink, error)
	DeleteBySourceMarket(ctx context.Context, sourceMarketID string) error
}

// CursorStore persists feed resume cursors across restarts.
type CursorStore interface {
	Get(ctx context.Context, feed string) (string, time.Time, error)
	Set(ctx context.Context, feed, cursor string) error
}

// TraderStore persists the tracked-trader roster and bankroll estimates.
type TraderStore interface {
	Upsert(ctx context.Context, t TrackedTrader) error
	GetByAddress(ctx context.Context, address string) (TrackedTrader, error)
	List(ctx context.Context) ([]TrackedTrader, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]AuditEntry, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}
