package http

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal not initialized")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration not initialized")
	}
	if m.EnvelopesTotal == nil {
		t.Error("EnvelopesTotal not initialized")
	}
	if m.PayloadBytes == nil {
		t.Error("PayloadBytes not initialized")
	}
	if m.StageDuration == nil {
		t.Error("StageDuration not initialized")
	}
	if m.StageFailures == nil {
		t.Error("StageFailures not initialized")
	}
}

func TestMetrics_ObserveStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveStage("schema", time.Millisecond, nil)
	m.ObserveStage("schema", time.Millisecond, pipeline.SchemaViolation(nil))
	m.ObserveStage("key", time.Millisecond, errors.New("boom"))

	if got := testutil.CollectAndCount(m.StageDuration); got != 2 {
		t.Errorf("stage_duration series = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.StageFailures.WithLabelValues("schema", "schema_violation")); got != 1 {
		t.Errorf("schema failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StageFailures.WithLabelValues("key", "error")); got != 1 {
		t.Errorf("key failures = %v, want 1", got)
	}
}

func TestMetrics_ObserverDrivesPipeline(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	matcher, err := pipeline.NewHeaderMatcher(nil)
	if err != nil {
		t.Fatalf("NewHeaderMatcher() error: %v", err)
	}
	p := pipeline.New([]pipeline.Stage{pipeline.NewHeaderStage(matcher)}, pipeline.WithObserver(m.ObserveStage))
	if _, err := p.Run(t.Context(), pipeline.NewEnvelope([]byte(`{}`), pipeline.NewHeaders())); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if got := testutil.CollectAndCount(m.StageFailures); got != 0 {
		t.Errorf("stage_failures series = %d, want 0", got)
	}
	if got := testutil.CollectAndCount(m.StageDuration); got != 1 {
		t.Errorf("stage_duration series = %d, want 1", got)
	}
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.EnvelopesTotal.WithLabelValues("delivered").Inc()
	if got := testutil.ToFloat64(m.EnvelopesTotal.WithLabelValues("delivered")); got != 1 {
		t.Errorf("EnvelopesTotal = %v, want 1", got)
	}

	m.PayloadBytes.Observe(128)
	gathered, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range gathered {
		if mf.GetName() == "http_source_payload_bytes" {
			found = true
			if c := mf.GetMetric()[0].GetHistogram().GetSampleCount(); c != 1 {
				t.Errorf("payload_bytes samples = %d, want 1", c)
			}
		}
	}
	if !found {
		t.Error("http_source_payload_bytes not gathered")
	}
}
