package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/plateindex/plateindex/internal/metrics"
)

// Pacer spaces outgoing requests per source using a token bucket.
type Pacer struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// PacerConfig holds pacer defaults applied to every source.
type PacerConfig struct {
	DefaultRPS   float64
	DefaultBurst int
}

// NewPacer creates a Pacer. A non-positive RPS disables pacing.
func NewPacer(cfg PacerConfig) *Pacer {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the source, respecting the
// context. Waits longer than a millisecond are recorded as metrics.
func (p *Pacer) Wait(ctx context.Context, source string) error {
	p.mu.Lock()
	limiter, exists := p.limiters[source]
	if !exists {
		limiter = rate.NewLimiter(p.defaultRate, p.defaultBurst)
		p.limiters[source] = limiter
	}
	p.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitWait(source, d)
	}
	return nil
}
