package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/streamkit/http-source/internal/ctxkey"
	"github.com/streamkit/http-source/internal/domain/pipeline"
	"github.com/streamkit/http-source/internal/port/inbound"
	"github.com/streamkit/http-source/internal/port/outbound"
)

// loggerFromContext retrieves the enriched logger from context.
// Uses the same key as HTTP middleware for request_id enrichment.
// Returns nil if no logger is in context, allowing caller to fall back.
func loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return nil
}

// IngestService runs request bodies through the pipeline and hands finished
// envelopes to the sink. It holds no per-request state.
type IngestService struct {
	pipeline *pipeline.Pipeline
	sink     outbound.Sink
	stats    *StatsService
	logger   *slog.Logger
	outcomes metric.Int64Counter
}

const meterName = "github.com/streamkit/http-source/internal/service"

// NewIngestService creates a new ingest service with the given dependencies.
// stats may be nil.
func NewIngestService(p *pipeline.Pipeline, sink outbound.Sink, stats *StatsService, logger *slog.Logger) *IngestService {
	if stats == nil {
		stats = NewStatsService()
	}
	if logger == nil {
		logger = slog.Default()
	}
	// The global meter is a no-op until telemetry installs a provider.
	outcomes, err := otel.Meter(meterName).Int64Counter("ingest.outcomes",
		metric.WithDescription("Ingest requests by outcome"))
	if err != nil {
		logger.Warn("failed to create outcome counter", "error", err)
	}
	return &IngestService{
		pipeline: p,
		sink:     sink,
		stats:    stats,
		logger:   logger,
		outcomes: outcomes,
	}
}

// Stats returns the service counters.
func (s *IngestService) Stats() *StatsService {
	return s.stats
}

// Ingest implements inbound.IngestService. The returned envelope is never
// nil; its state tells how far the request got.
func (s *IngestService) Ingest(ctx context.Context, payload []byte, headers pipeline.Headers) (*pipeline.Envelope, error) {
	// Use enriched logger from context if available (includes request_id)
	logger := loggerFromContext(ctx)
	if logger == nil {
		logger = s.logger
	}

	env := pipeline.NewEnvelope(payload, headers)

	env, err := s.pipeline.Run(ctx, env)
	if err != nil {
		s.recordFailure(ctx, logger, err)
		return env, err
	}

	// The request may have been abandoned while the last stage ran.
	if ctx.Err() != nil {
		env.Abort()
		s.stats.RecordCanceled()
		s.count(ctx, "canceled")
		logger.Debug("request canceled before delivery")
		return env, pipeline.ErrCanceled
	}

	if err := s.sink.Deliver(ctx, env); err != nil {
		env.Abort()
		if ctx.Err() != nil {
			s.stats.RecordCanceled()
			s.count(ctx, "canceled")
			return env, pipeline.ErrCanceled
		}
		s.stats.RecordError()
		s.count(ctx, "error")
		logger.Error("delivery failed", "error", err)
		return env, fmt.Errorf("deliver envelope: %w", err)
	}

	env.MarkDelivered()
	s.stats.RecordDelivered()
	s.count(ctx, "delivered")
	_, hasKey := env.Key()
	logger.Debug("envelope delivered", "bytes", len(env.Payload()), "keyed", hasKey)
	return env, nil
}

func (s *IngestService) recordFailure(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, pipeline.ErrCanceled) {
		s.stats.RecordCanceled()
		s.count(ctx, "canceled")
		logger.Debug("request canceled in pipeline")
		return
	}
	if pe, ok := pipeline.AsError(err); ok {
		s.count(ctx, pe.Kind.String())
		if pe.ClientError() {
			s.stats.RecordRejected(pe.Kind)
			logger.Warn("request rejected", "kind", pe.Kind.String(), "error", pe.Error())
			return
		}
		s.stats.RecordRejected(pe.Kind)
		logger.Error("request failed", "kind", pe.Kind.String(), "error", err)
		return
	}
	s.stats.RecordError()
	s.count(ctx, "error")
	logger.Error("pipeline failed", "error", err)
}

// count adds one to the otel outcome counter. A canceled ctx still counts.
func (s *IngestService) count(ctx context.Context, outcome string) {
	if s.outcomes == nil {
		return
	}
	s.outcomes.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Ready implements inbound.IngestService by pinging the sink.
func (s *IngestService) Ready(ctx context.Context) error {
	return s.sink.Ping(ctx)
}

// Compile-time interface verification.
var _ inbound.IngestService = (*IngestService)(nil)
