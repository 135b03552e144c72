package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunContext holds observability context for one pipeline run.
type RunContext struct {
	RunID     string
	Pipeline  string
	StartTime time.Time
	Metrics   *Metrics
}

// NewRunContext creates a run context. If metrics is nil, metric
// recording is silently skipped.
func NewRunContext(runID, pipeline string, metrics *Metrics) *RunContext {
	return &RunContext{
		RunID:     runID,
		Pipeline:  pipeline,
		StartTime: time.Now(),
		Metrics:   metrics,
	}
}

type runContextKey struct{}

// WithRunContext stores a RunContext in the context.
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFromContext retrieves the RunContext from context, or nil.
func RunContextFromContext(ctx context.Context) *RunContext {
	if rc, ok := ctx.Value(runContextKey{}).(*RunContext); ok {
		return rc
	}
	return nil
}

// StartStageSpan starts a traced span for a stage execution, annotated
// with the run identity.
func (rc *RunContext) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, SpanStageRun)
	span.SetAttributes(
		attribute.String(AttrStageName, stage),
		attribute.String(AttrRunID, rc.RunID),
	)
	return ctx, span
}

// EndStageSpan ends the span and records stage metrics.
func (rc *RunContext) EndStageSpan(ctx context.Context, span trace.Span, stage, status string, start time.Time, err error) {
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	}

	span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	span.End()

	if rc.Metrics != nil {
		rc.Metrics.RecordStage(ctx, stage, status, duration)
	}
}

// Duration returns the elapsed time since the run started.
func (rc *RunContext) Duration() time.Duration {
	return time.Since(rc.StartTime)
}
