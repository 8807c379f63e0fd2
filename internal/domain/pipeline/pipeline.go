package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/streamkit/http-source/internal/domain/pipeline"

// Stage is one pipeline step. Apply either returns the envelope (possibly
// augmented) or aborts the request with an error.
type Stage interface {
	// Name identifies the stage in logs, traces and metrics.
	Name() string

	// Reaches is the lifecycle state an envelope is in after Apply succeeds.
	Reaches() State

	// Apply runs the stage against one envelope.
	Apply(ctx context.Context, env *Envelope) (*Envelope, error)
}

// StageObserver is notified after every stage run.
type StageObserver func(stage string, duration time.Duration, err error)

// Pipeline runs an ordered list of stages, stopping at the first failure.
// A Pipeline holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	stages   []Stage
	logger   *slog.Logger
	observer StageObserver
	tracer   trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for stage transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithObserver registers a callback invoked after every stage.
func WithObserver(o StageObserver) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// New creates a pipeline from active stages, in execution order.
func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages: stages,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the names of the active stages, in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}

// Run passes env through every stage. On failure the envelope is marked
// Aborted and the stage's error is returned unchanged. The context is
// checked before each stage so a canceled request stops early.
func (p *Pipeline) Run(ctx context.Context, env *Envelope) (*Envelope, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.Int("pipeline.stages", len(p.stages))))
	defer span.End()

	for _, stage := range p.stages {
		if ctx.Err() != nil {
			env.advance(StateAborted)
			span.SetStatus(codes.Error, "canceled")
			return env, ErrCanceled
		}

		next, err := p.apply(ctx, stage, env)
		if err != nil {
			env.advance(StateAborted)
			span.RecordError(err)
			span.SetStatus(codes.Error, stage.Name())
			return env, err
		}
		env = next
		env.advance(stage.Reaches())

		p.logger.Debug("stage completed",
			"stage", stage.Name(),
			"state", env.State().String(),
		)
	}

	return env, nil
}

func (p *Pipeline) apply(ctx context.Context, stage Stage, env *Envelope) (*Envelope, error) {
	ctx, span := p.tracer.Start(ctx, "stage."+stage.Name())
	defer span.End()

	start := time.Now()
	next, err := stage.Apply(ctx, env)
	if p.observer != nil {
		p.observer(stage.Name(), time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return next, err
}
