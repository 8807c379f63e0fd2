// Package service contains application services.
package service

import (
	"sync"
	"sync/atomic"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

// StatsService tracks ingestion statistics using lock-free atomic counters.
// All counter operations are safe for concurrent access from multiple goroutines.
type StatsService struct {
	delivered atomic.Int64
	rejected  atomic.Int64
	canceled  atomic.Int64
	errors    atomic.Int64

	// Rejection counters per failure kind (mutex-protected map).
	mu         sync.Mutex
	kindCounts map[string]int64
}

// NewStatsService creates a new StatsService with all counters initialized to zero.
func NewStatsService() *StatsService {
	return &StatsService{
		kindCounts: make(map[string]int64),
	}
}

// RecordDelivered increments the delivered counter.
func (s *StatsService) RecordDelivered() {
	s.delivered.Add(1)
}

// RecordRejected increments the rejected counter and the counter for kind.
func (s *StatsService) RecordRejected(kind pipeline.Kind) {
	s.rejected.Add(1)
	s.mu.Lock()
	s.kindCounts[kind.String()]++
	s.mu.Unlock()
}

// RecordCanceled increments the canceled counter.
func (s *StatsService) RecordCanceled() {
	s.canceled.Add(1)
}

// RecordError increments the error counter.
func (s *StatsService) RecordError() {
	s.errors.Add(1)
}

// Stats holds a snapshot of all counters at a point in time.
type Stats struct {
	Delivered  int64            `json:"delivered"`
	Rejected   int64            `json:"rejected"`
	Canceled   int64            `json:"canceled"`
	Errors     int64            `json:"errors"`
	KindCounts map[string]int64 `json:"rejections_by_kind"`
}

// GetStats returns a snapshot of all counters.
// The snapshot is consistent per-counter but not atomically across all counters.
func (s *StatsService) GetStats() Stats {
	s.mu.Lock()
	kc := make(map[string]int64, len(s.kindCounts))
	for k, v := range s.kindCounts {
		kc[k] = v
	}
	s.mu.Unlock()

	return Stats{
		Delivered:  s.delivered.Load(),
		Rejected:   s.rejected.Load(),
		Canceled:   s.canceled.Load(),
		Errors:     s.errors.Load(),
		KindCounts: kc,
	}
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	s.delivered.Store(0)
	s.rejected.Store(0)
	s.canceled.Store(0)
	s.errors.Store(0)

	s.mu.Lock()
	s.kindCounts = make(map[string]int64)
	s.mu.Unlock()
}
