package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

var _ ports.StageObserver = (*OTelStageObserver)(nil)

// OTelStageObserver traces pipeline stages with OpenTelemetry and reports
// their latency and row counts to a MetricsCollector. The span travels in
// the context, so one observer serves concurrent stages.
type OTelStageObserver struct {
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewOTelStageObserver creates an observer. metrics may be nil.
func NewOTelStageObserver(metrics ports.MetricsCollector) *OTelStageObserver {
	return &OTelStageObserver{
		metrics: metrics,
		tracer:  otel.Tracer("bankprep-pipeline"),
	}
}

// StageStarted opens a span for the stage.
func (o *OTelStageObserver) StageStarted(ctx context.Context, stage string, rows int) context.Context {
	ctx, _ = o.tracer.Start(ctx, "pipeline."+stage,
		trace.WithAttributes(
			attribute.String("pipeline.stage", stage),
			attribute.Int("pipeline.rows", rows),
		),
	)
	return ctx
}

// StageFinished records the outcome on the span and in metrics, then ends
// the span. Row-level failures are counted individually.
func (o *OTelStageObserver) StageFinished(
	ctx context.Context,
	stage string,
	rows int,
	elapsed time.Duration,
	err error,
) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	failed := 0
	var batch *domain.BatchError
	if errors.As(err, &batch) {
		failed = batch.FailedRows()
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if failed > 0 {
			span.AddEvent("pipeline.rows_rejected", trace.WithAttributes(
				attribute.Int("failed_rows", failed),
				attribute.Int("total_rows", batch.Total),
			))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if o.metrics == nil {
		return
	}
	o.metrics.RecordLatency(stage, elapsed, map[string]string{"stage": stage})

	status := "success"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordCounter(ports.MetricRows, float64(rows), map[string]string{"stage": stage, "status": status})
	if failed > 0 {
		o.metrics.RecordCounter(ports.MetricRowFailures, float64(failed), map[string]string{"stage": stage})
	}
}
