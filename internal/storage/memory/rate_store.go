package memory

import (
	"context"
	"sync"

	"github.com/plateindex/plateindex/internal/catalog"
)

// RateStore implements catalog.RateStore in memory.
type RateStore struct {
	mu       sync.RWMutex
	counters map[string]catalog.RateCounter
}

// NewRateStore constructs an empty RateStore.
func NewRateStore() *RateStore {
	return &RateStore{counters: make(map[string]catalog.RateCounter)}
}

// GetCounter returns the counter for a source, or catalog.ErrNotFound.
func (s *RateStore) GetCounter(_ context.Context, source string) (catalog.RateCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[source]
	if !ok {
		return catalog.RateCounter{}, catalog.ErrNotFound
	}
	return c, nil
}

// SaveCounter stores the counter keyed by source.
func (s *RateStore) SaveCounter(_ context.Context, c catalog.RateCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[c.Source] = c
	return nil
}
