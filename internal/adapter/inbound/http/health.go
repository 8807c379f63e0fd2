package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/streamkit/http-source/internal/service"
)

const (
	statusUp   = "UP"
	statusDown = "DOWN"
)

// defaultHealthTimeout bounds the sink ping.
const defaultHealthTimeout = 2 * time.Second

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"` // "UP" or "DOWN"
	Checks  map[string]string `json:"checks"`
	Stats   *service.Stats    `json:"stats,omitempty"`
	Version string            `json:"version,omitempty"`
}

// Readiness is implemented by components that can report whether they
// accept traffic.
type Readiness interface {
	Ready(ctx context.Context) error
}

// HealthChecker verifies component health.
type HealthChecker struct {
	sink    Readiness
	stats   *service.StatsService
	version string
	timeout time.Duration
}

// NewHealthChecker creates a HealthChecker. stats may be nil.
func NewHealthChecker(sink Readiness, stats *service.StatsService, version string) *HealthChecker {
	return &HealthChecker{
		sink:    sink,
		stats:   stats,
		version: version,
		timeout: defaultHealthTimeout,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	status := statusUp

	if h.sink != nil {
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.sink.Ready(ctx)
		cancel()
		if err != nil {
			checks["sink"] = "error: " + err.Error()
			status = statusDown
		} else {
			checks["sink"] = "ok"
		}
	} else {
		checks["sink"] = "not configured"
	}

	checks["goroutines"] = strconv.Itoa(runtime.NumGoroutine())

	resp := HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
	if h.stats != nil {
		s := h.stats.GetStats()
		resp.Stats = &s
	}
	return resp
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != statusUp {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
