package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/plateindex/plateindex/internal/catalog"
)

// RateStore implements catalog.RateStore on Postgres.
type RateStore struct {
	pool pool
}

// NewRateStore connects a pool and wraps it in a store.
func NewRateStore(ctx context.Context, cfg Config) (*RateStore, error) {
	p, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RateStore{pool: p}, nil
}

// NewRateStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewRateStoreWithPool(p pool) (*RateStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RateStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *RateStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// GetCounter returns the counter for a source, or catalog.ErrNotFound.
func (s *RateStore) GetCounter(ctx context.Context, source string) (catalog.RateCounter, error) {
	var c catalog.RateCounter
	err := s.pool.QueryRow(ctx, `
SELECT source, count, reset_at
FROM rate_counters
WHERE source = $1`, source).Scan(&c.Source, &c.Count, &c.ResetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.RateCounter{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.RateCounter{}, fmt.Errorf("get rate counter: %w", err)
	}
	return c, nil
}

// SaveCounter upserts the counter row for a source.
func (s *RateStore) SaveCounter(ctx context.Context, c catalog.RateCounter) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO rate_counters (source, count, reset_at)
VALUES ($1,$2,$3)
ON CONFLICT (source)
DO UPDATE SET count = EXCLUDED.count, reset_at = EXCLUDED.reset_at`,
		c.Source, c.Count, c.ResetAt)
	if err != nil {
		return fmt.Errorf("save rate counter: %w", err)
	}
	return nil
}
