package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// CursorStore persists feed resume cursors so a restart continues from the
// last durably processed point instead of replaying or skipping.
type CursorStore struct {
	pool *pgxpool.Pool
}

// NewCursorStore creates a CursorStore backed by the given pool.
func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Get returns the stored cursor and its update time for one feed. A feed
// with no cursor yet returns domain.ErrNotFound.
func (s *CursorStore) Get(ctx context.Context, feed string) (string, time.Time, error) {
	var cursor string
	var updatedAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT cursor, updated_at FROM feed_cursors WHERE feed = $1`, feed,
	).Scan(&cursor, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", time.Time{}, domain.ErrNotFound
		}
		return "", time.Time{}, fmt.Errorf("postgres: get cursor %s: %w", feed, err)
	}
	return cursor, updatedAt, nil
}

// Set stores the cursor for one feed.
func (s *CursorStore) Set(ctx context.Context, feed, cursor string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feed_cursors (feed, cursor, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (feed) DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = NOW()`,
		feed, cursor)
	if err != nil {
		return fmt.Errorf("postgres: set cursor %s: %w", feed, err)
	}
	return nil
}

var _ domain.CursorStore = (*CursorStore)(nil)
