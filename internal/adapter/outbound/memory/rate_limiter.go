package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/streamkit/http-source/internal/domain/ratelimit"
)

// RateLimiter implements ratelimit.Limiter with GCRA over an in-process map
// of theoretical arrival times. Idle keys are swept by StartCleanup.
type RateLimiter struct {
	mu    sync.Mutex
	cells map[string]time.Time
	now   func() time.Time

	cleanupInterval time.Duration
	maxIdle         time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
}

// NewRateLimiter sweeps every 5 minutes and forgets keys idle for an hour.
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithConfig(5*time.Minute, time.Hour)
}

// NewRateLimiterWithConfig creates a limiter with custom sweep settings.
func NewRateLimiterWithConfig(cleanupInterval, maxIdle time.Duration) *RateLimiter {
	return &RateLimiter{
		cells:           make(map[string]time.Time),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
		stopCh:          make(chan struct{}),
	}
}

// Allow implements ratelimit.Limiter.
func (r *RateLimiter) Allow(_ context.Context, key string, cfg ratelimit.Config) (ratelimit.Result, error) {
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Rate
	}
	if cfg.Period <= 0 {
		cfg.Period = time.Second
	}
	emission := cfg.Period / time.Duration(cfg.Rate)
	tolerance := time.Duration(cfg.Burst) * emission

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	tat, ok := r.cells[key]
	if !ok || tat.Before(now) {
		tat = now
	}

	next := tat.Add(emission)
	if wait := next.Sub(now) - tolerance; wait > 0 {
		return ratelimit.Result{
			RetryAfter: wait,
			ResetAfter: tat.Sub(now),
		}, nil
	}
	r.cells[key] = next

	remaining := int((tolerance - next.Sub(now)) / emission)
	return ratelimit.Result{
		Allowed:    true,
		Remaining:  max(0, remaining),
		ResetAfter: next.Sub(now),
	}, nil
}

// StartCleanup sweeps idle keys until ctx is done or Stop is called.
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.maxIdle)
	removed := 0
	for key, tat := range r.cells {
		if tat.Before(cutoff) {
			delete(r.cells, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("rate limiter cleanup", "removed_keys", removed, "remaining_keys", len(r.cells))
	}
}

// Stop ends the sweep goroutine and waits for it. Safe to call repeatedly.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Size returns the number of tracked keys.
func (r *RateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cells)
}

var _ ratelimit.Limiter = (*RateLimiter)(nil)
