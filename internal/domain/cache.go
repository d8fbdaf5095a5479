package domain

import (
	"context"
	"time"
)

// IndexCache mirrors the latest market index snapshot so a restarting
// process can serve lookups before its first live refresh completes.
type IndexCache interface {
	SetSnapshot(ctx context.Context, markets []Market, refreshedAt time.Time) error
	GetSnapshot(ctx context.Context) ([]Market, time.Time, error)
	Invalidate(ctx context.Context) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// DecisionBus publishes copy decisions as they are made and retains them on
// a durable stream for the operator API and event subscribers.
type DecisionBus interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) (<-chan []byte, error)
	StreamAppend(ctx context.Context, payload []byte) error
	StreamRead(ctx context.Context, lastID string, count int) ([]StreamMessage, error)
}
