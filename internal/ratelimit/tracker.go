// Package ratelimit tracks per-source request budgets: a persisted monthly
// counter with calendar-month rollover, and an in-process pacer that spaces
// requests to each source.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plateindex/plateindex/internal/catalog"
)

// Tracker maintains one monthly request counter per source. The reset window
// is "same day next month" with normal calendar overflow rules, not a fixed
// 30-day span. The check-then-reset is serialized per source so concurrent
// increments cannot double-reset.
type Tracker struct {
	store catalog.RateStore
	clock catalog.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker constructs a Tracker over the given store.
func NewTracker(store catalog.RateStore, clock catalog.Clock) *Tracker {
	return &Tracker{
		store: store,
		clock: clock,
		locks: make(map[string]*sync.Mutex),
	}
}

// Increment adds amount to the source's counter, rolling the window over
// first if it is due, and returns the new count.
func (t *Tracker) Increment(ctx context.Context, source string, amount int) (int, error) {
	lock := t.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	c, err := t.currentLocked(ctx, source)
	if err != nil {
		return 0, err
	}
	c.Count += amount
	if err := t.store.SaveCounter(ctx, c); err != nil {
		return 0, fmt.Errorf("save counter for %s: %w", source, err)
	}
	return c.Count, nil
}

// Count returns the source's counter after applying any due rollover.
func (t *Tracker) Count(ctx context.Context, source string) (int, error) {
	lock := t.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	c, err := t.currentLocked(ctx, source)
	if err != nil {
		return 0, err
	}
	return c.Count, nil
}

// DaysUntilReset reports whole days remaining until the source's window rolls
// over, rounded up. A window that is already due reports a fresh month.
func (t *Tracker) DaysUntilReset(ctx context.Context, source string) (int, error) {
	lock := t.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	c, err := t.currentLocked(ctx, source)
	if err != nil {
		return 0, err
	}
	remaining := nextReset(c.ResetAt).Sub(t.clock.Now())
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days, nil
}

// currentLocked loads the counter, creating or rolling it over as needed.
// Any number of elapsed months collapses to a single reset anchored at now.
func (t *Tracker) currentLocked(ctx context.Context, source string) (catalog.RateCounter, error) {
	now := t.clock.Now()
	c, err := t.store.GetCounter(ctx, source)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		c = catalog.RateCounter{Source: source, Count: 0, ResetAt: now}
		if err := t.store.SaveCounter(ctx, c); err != nil {
			return catalog.RateCounter{}, fmt.Errorf("init counter for %s: %w", source, err)
		}
		return c, nil
	case err != nil:
		return catalog.RateCounter{}, fmt.Errorf("load counter for %s: %w", source, err)
	}

	if !now.Before(nextReset(c.ResetAt)) {
		c.Count = 0
		c.ResetAt = now
		if err := t.store.SaveCounter(ctx, c); err != nil {
			return catalog.RateCounter{}, fmt.Errorf("roll counter for %s: %w", source, err)
		}
	}
	return c, nil
}

func (t *Tracker) sourceLock(source string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[source]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[source] = lock
	}
	return lock
}

// nextReset advances a window start by exactly one calendar month, with Go's
// normal day-overflow normalization (Jan 31 + 1 month = Mar 2/3).
func nextReset(from time.Time) time.Time {
	return from.AddDate(0, 1, 0)
}
