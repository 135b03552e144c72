package engine

import (
	"context"
	"time"

	"github.com/stageflow/stageflow/logger"
	"github.com/stageflow/stageflow/observability"
)

// WithTracing wraps a StageRunner with OpenTelemetry span creation.
// Each execution creates a span named "{prefix}.{stage}".
func WithTracing(r StageRunner, prefix, stage string) StageRunner {
	return &tracingRunner{inner: r, prefix: prefix, stage: stage}
}

type tracingRunner struct {
	inner  StageRunner
	prefix string
	stage  string
}

func (t *tracingRunner) Execute(ctx context.Context) (*StageResult, error) {
	ctx, span := observability.StartSpan(ctx, t.prefix+"."+t.stage)
	defer span.End()

	observability.SetSpanAttribute(ctx, observability.AttrStageName, t.stage)

	res, err := t.inner.Execute(ctx)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return res, err
}

// WithMetrics wraps a StageRunner with metric recording: execution
// count, duration and row throughput.
func WithMetrics(r StageRunner, stage string, metrics *observability.Metrics) StageRunner {
	return &metricsRunner{inner: r, stage: stage, metrics: metrics}
}

type metricsRunner struct {
	inner   StageRunner
	stage   string
	metrics *observability.Metrics
}

func (m *metricsRunner) Execute(ctx context.Context) (*StageResult, error) {
	start := time.Now()
	res, err := m.inner.Execute(ctx)
	duration := time.Since(start)

	status := "passed"
	if err != nil {
		status = "failed"
		m.metrics.RecordError(ctx, "execute", m.stage)
	}
	m.metrics.RecordStage(ctx, m.stage, status, duration)
	if res != nil && res.Rows != nil {
		m.metrics.RecordRows(ctx, m.stage, *res.Rows)
	}
	return res, err
}

// WithLogging wraps a StageRunner with execution logging.
func WithLogging(r StageRunner, stage string, log *logger.Logger) StageRunner {
	return &loggingRunner{inner: r, stage: stage, log: log}
}

type loggingRunner struct {
	inner StageRunner
	stage string
	log   *logger.Logger
}

func (l *loggingRunner) Execute(ctx context.Context) (*StageResult, error) {
	start := time.Now()
	res, err := l.inner.Execute(ctx)
	duration := time.Since(start)

	fields := map[string]interface{}{
		logger.FieldStage: l.stage,
		"duration":        duration.String(),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.log.Error("stage body failed", fields)
	} else {
		l.log.Debug("stage body completed", fields)
	}
	return res, err
}
