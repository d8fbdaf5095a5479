// Package feed moves raw source trades from the ingest paths (poller and
// websocket stream) into the copy engine. A shared TTL dedup absorbs the
// overlap between the two paths and the at-least-once replay of the poll
// cursor; a bounded queue with a small worker pool keeps a slow dispatch from
// stalling ingest.
package feed

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Dedup suppresses trade IDs already seen within a time-to-live window. It
// is safe for concurrent use. IDs are compared case-insensitively because
// the same transaction hash arrives checksummed from one path and lowercased
// from the other.
type Dedup struct {
	seen map[string]time.Time // trade ID -> last seen time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup instance that considers a trade a duplicate if it
// has been seen within the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// Seen returns true if the trade ID has been seen within the TTL window. If
// the ID has not been seen (or has expired), it is recorded and false is
// returned.
func (d *Dedup) Seen(tradeID string) bool {
	id := strings.ToLower(tradeID)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[id]; ok {
		if now.Sub(last) < d.ttl {
			return true
		}
	}

	d.seen[id] = now
	return false
}

// Cleanup removes entries that have expired beyond the TTL.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// RunCleanup calls Cleanup on a ticker until ctx is cancelled, bounding the
// memory held by the seen map.
func (d *Dedup) RunCleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Cleanup()
		}
	}
}
