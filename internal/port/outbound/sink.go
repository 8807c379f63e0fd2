// Package outbound defines the outbound port interfaces for delivering
// finished envelopes downstream.
package outbound

import (
	"context"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

// Sink is the outbound port for the message stream. Adapters implement this
// for each supported transport (kafka, nats, sqlite outbox, stdout).
type Sink interface {
	// Deliver hands one finished envelope to the transport. It returns once
	// the transport accepted the message or failed.
	Deliver(ctx context.Context, env *pipeline.Envelope) error

	// Ping reports whether the transport is currently reachable.
	Ping(ctx context.Context) error

	// Close flushes pending messages and releases resources.
	Close() error
}
