// Package inbound defines the inbound port interfaces for the ingestion core.
// Inbound adapters (HTTP) call these interfaces.
package inbound

import (
	"context"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

// IngestService is the inbound port for the ingestion core.
type IngestService interface {
	// Ingest runs one request body through the pipeline and delivers the
	// resulting envelope. Client errors are returned as *pipeline.Error.
	Ingest(ctx context.Context, payload []byte, headers pipeline.Headers) (*pipeline.Envelope, error)

	// Ready reports whether the service can accept requests.
	Ready(ctx context.Context) error
}
