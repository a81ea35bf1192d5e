package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plateindex/plateindex/internal/catalog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeRateStore struct {
	mu       sync.Mutex
	counters map[string]catalog.RateCounter
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counters: make(map[string]catalog.RateCounter)}
}

func (s *fakeRateStore) GetCounter(_ context.Context, source string) (catalog.RateCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[source]
	if !ok {
		return catalog.RateCounter{}, catalog.ErrNotFound
	}
	return c, nil
}

func (s *fakeRateStore) SaveCounter(_ context.Context, c catalog.RateCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[c.Source] = c
	return nil
}

func TestTracker_IncrementCreatesCounter(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(newFakeRateStore(), clock)

	n, err := tr.Increment(context.Background(), "yelp", 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = tr.Increment(context.Background(), "yelp", 5)
	require.NoError(t, err)
	require.Equal(t, 6, n)

	count, err := tr.Count(context.Background(), "yelp")
	require.NoError(t, err)
	require.Equal(t, 6, count)
}

func TestTracker_CountersAreIndependentPerSource(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(newFakeRateStore(), clock)

	_, err := tr.Increment(context.Background(), "yelp", 3)
	require.NoError(t, err)

	count, err := tr.Count(context.Background(), "foursquare")
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestTracker_RollsOverAfterCalendarMonth(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(newFakeRateStore(), clock)

	_, err := tr.Increment(context.Background(), "yelp", 40)
	require.NoError(t, err)

	// One day before the window ends: no reset.
	clock.set(time.Date(2025, 4, 9, 12, 0, 0, 0, time.UTC))
	count, err := tr.Count(context.Background(), "yelp")
	require.NoError(t, err)
	require.Equal(t, 40, count)

	// Same day next month: reset is due.
	clock.set(time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC))
	n, err := tr.Increment(context.Background(), "yelp", 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestTracker_MultipleElapsedMonthsCollapseToOneReset(t *testing.T) {
	t.Parallel()

	store := newFakeRateStore()
	clock := &fakeClock{now: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(store, clock)

	_, err := tr.Increment(context.Background(), "yelp", 99)
	require.NoError(t, err)

	// Five months later the counter resets once, anchored at now.
	clock.set(time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC))
	n, err := tr.Increment(context.Background(), "yelp", 3)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	c, err := store.GetCounter(context.Background(), "yelp")
	require.NoError(t, err)
	require.Equal(t, clock.Now(), c.ResetAt)
}

func TestTracker_DaysUntilReset(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(newFakeRateStore(), clock)

	_, err := tr.Increment(context.Background(), "yelp", 1)
	require.NoError(t, err)

	days, err := tr.DaysUntilReset(context.Background(), "yelp")
	require.NoError(t, err)
	require.Equal(t, 31, days) // March has 31 days

	clock.advance(10 * 24 * time.Hour)
	days, err = tr.DaysUntilReset(context.Background(), "yelp")
	require.NoError(t, err)
	require.Equal(t, 21, days)
}

func TestTracker_ConcurrentIncrements(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(newFakeRateStore(), clock)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.Increment(context.Background(), "yelp", 1)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := tr.Count(context.Background(), "yelp")
	require.NoError(t, err)
	require.Equal(t, 20, count)
}
