package service

import (
	"sync"
	"testing"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

func TestStatsService_RecordAndGet(t *testing.T) {
	s := NewStatsService()

	s.RecordDelivered()
	s.RecordDelivered()
	s.RecordRejected(pipeline.KindSchemaViolation)
	s.RecordRejected(pipeline.KindStructuralViolation)
	s.RecordRejected(pipeline.KindStructuralViolation)
	s.RecordCanceled()
	s.RecordError()

	stats := s.GetStats()

	if stats.Delivered != 2 {
		t.Errorf("Delivered = %d, want 2", stats.Delivered)
	}
	if stats.Rejected != 3 {
		t.Errorf("Rejected = %d, want 3", stats.Rejected)
	}
	if stats.Canceled != 1 {
		t.Errorf("Canceled = %d, want 1", stats.Canceled)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if got := stats.KindCounts["structural_violation"]; got != 2 {
		t.Errorf("structural_violation = %d, want 2", got)
	}
	if got := stats.KindCounts["schema_violation"]; got != 1 {
		t.Errorf("schema_violation = %d, want 1", got)
	}
}

func TestStatsService_Reset(t *testing.T) {
	s := NewStatsService()

	s.RecordDelivered()
	s.RecordRejected(pipeline.KindMalformedPayload)
	s.RecordCanceled()
	s.RecordError()

	s.Reset()

	stats := s.GetStats()
	if stats.Delivered != 0 || stats.Rejected != 0 || stats.Canceled != 0 || stats.Errors != 0 {
		t.Errorf("after Reset, stats should be all zero: got %+v", stats)
	}
	if len(stats.KindCounts) != 0 {
		t.Errorf("after Reset, kind counts should be empty: got %+v", stats.KindCounts)
	}
}

func TestStatsService_ConcurrentAccess(t *testing.T) {
	s := NewStatsService()

	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines * 3)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				s.RecordDelivered()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				s.RecordRejected(pipeline.KindSchemaViolation)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				s.RecordError()
			}
		}()
	}

	wg.Wait()

	stats := s.GetStats()
	expected := int64(goroutines * opsPerGoroutine)

	if stats.Delivered != expected {
		t.Errorf("Delivered = %d, want %d", stats.Delivered, expected)
	}
	if stats.Rejected != expected {
		t.Errorf("Rejected = %d, want %d", stats.Rejected, expected)
	}
	if stats.KindCounts["schema_violation"] != expected {
		t.Errorf("schema_violation = %d, want %d", stats.KindCounts["schema_violation"], expected)
	}
	if stats.Errors != expected {
		t.Errorf("Errors = %d, want %d", stats.Errors, expected)
	}
}
