package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

const metricsNamespace = "http_source"

// Metrics holds all Prometheus metrics for the connector.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	EnvelopesTotal  *prometheus.CounterVec
	PayloadBytes    prometheus.Histogram
	StageDuration   *prometheus.HistogramVec
	StageFailures   *prometheus.CounterVec
	RateLimited     prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total number of ingest requests processed",
			},
			[]string{"method", "status"}, // status=2xx/4xx/5xx
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		EnvelopesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "envelopes_total",
				Help:      "Ingest outcomes by result",
			},
			[]string{"outcome"}, // delivered, canceled, error or a rejection kind
		),
		PayloadBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "payload_bytes",
				Help:      "Size of accepted request bodies",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
			},
		),
		StageDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"stage"},
		),
		StageFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "stage_failures_total",
				Help:      "Pipeline stage failures by stage and kind",
			},
			[]string{"stage", "kind"},
		),
		RateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rate_limited_total",
				Help:      "Ingest requests rejected by the per-client rate limit",
			},
		),
	}
}

// ObserveStage records one stage run. It satisfies pipeline.StageObserver.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err == nil {
		return
	}
	kind := "error"
	if pe, ok := pipeline.AsError(err); ok {
		kind = pe.Kind.String()
	}
	m.StageFailures.WithLabelValues(stage, kind).Inc()
}
