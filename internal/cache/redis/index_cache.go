package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// indexCacheTTL is generous on purpose: a seeded snapshot is stamped with
// its original refresh time, so the staleness gate still rejects it when too
// old. The TTL only stops a long-dead deployment from leaving garbage behind.
const indexCacheTTL = 24 * time.Hour

const (
	indexSnapshotKey    = "index:snapshot"
	indexRefreshedAtKey = "index:refreshed_at"
)

// IndexCache mirrors the market index snapshot so a restarting process can
// serve matches before its first live refresh completes.
type IndexCache struct {
	rdb *redis.Client
}

// NewIndexCache creates an IndexCache backed by the given Client.
func NewIndexCache(c *Client) *IndexCache {
	return &IndexCache{rdb: c.Underlying()}
}

// SetSnapshot stores the full market list and its refresh timestamp.
func (ic *IndexCache) SetSnapshot(ctx context.Context, markets []domain.Market, refreshedAt time.Time) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal index snapshot: %w", err)
	}

	pipe := ic.rdb.TxPipeline()
	pipe.Set(ctx, indexSnapshotKey, data, indexCacheTTL)
	pipe.Set(ctx, indexRefreshedAtKey, refreshedAt.UTC().Format(time.RFC3339Nano), indexCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set index snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the cached market list and its original refresh time.
// Returns domain.ErrNotFound when no snapshot is cached.
func (ic *IndexCache) GetSnapshot(ctx context.Context) ([]domain.Market, time.Time, error) {
	data, err := ic.rdb.Get(ctx, indexSnapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, domain.ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("redis: get index snapshot: %w", err)
	}

	var markets []domain.Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: unmarshal index snapshot: %w", err)
	}

	refreshedAt := time.Time{}
	if raw, err := ic.rdb.Get(ctx, indexRefreshedAtKey).Result(); err == nil {
		if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			refreshedAt = t
		}
	}
	return markets, refreshedAt, nil
}

// Invalidate drops the cached snapshot.
func (ic *IndexCache) Invalidate(ctx context.Context) error {
	if err := ic.rdb.Del(ctx, indexSnapshotKey, indexRefreshedAtKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate index snapshot: %w", err)
	}
	return nil
}

var _ domain.IndexCache = (*IndexCache)(nil)
