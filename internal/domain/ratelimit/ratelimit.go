// Package ratelimit defines per-client admission limits for the ingest
// endpoint.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Config allows Rate requests per Period with up to Burst at once.
type Config struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// Result is the outcome of one admission check.
type Result struct {
	Allowed bool

	// Remaining is how many more requests would be admitted right now.
	Remaining int

	// RetryAfter is set when Allowed is false.
	RetryAfter time.Duration

	// ResetAfter is the time until the client is back to a full burst.
	ResetAfter time.Duration
}

// Limiter admits or rejects a request for key under cfg. Implementations
// must be safe for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key string, cfg Config) (Result, error)
}

// ClientKey returns the limiter key for a client address.
func ClientKey(ip string) string {
	return fmt.Sprintf("ingest:ip:%s", ip)
}
