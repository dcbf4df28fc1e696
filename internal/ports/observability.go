package ports

import (
	"context"
	"time"
)

// Metric names shared by the pipeline and its collectors.
const (
	// MetricStageLatency is recorded through RecordLatency with the stage
	// name as operation.
	MetricStageLatency = "pipeline_stage_duration_seconds"

	// MetricRows counts rows entering a stage, labelled by stage and status.
	MetricRows = "pipeline_rows_total"

	// MetricRowFailures counts rows rejected by a stage.
	MetricRowFailures = "pipeline_row_failures_total"

	// MetricUnknownCategories counts categorical values unseen during fit,
	// labelled by feature.
	MetricUnknownCategories = "pipeline_unknown_categories_total"

	// MetricFittedColumns is the width of the last fitted matrix.
	MetricFittedColumns = "pipeline_fitted_columns"

	// MetricServingLatency and MetricServingRequests describe model calls,
	// labelled by endpoint and status.
	MetricServingLatency  = "serving_latency_seconds"
	MetricServingRequests = "serving_requests_total"
)

// StageObserver receives lifecycle callbacks around a pipeline stage such
// as feature engineering, fitting, transforming, or scoring.
type StageObserver interface {
	// StageStarted is called before the stage runs. The returned context
	// is passed to the stage and to StageFinished.
	StageStarted(ctx context.Context, stage string, rows int) context.Context

	// StageFinished is called once the stage returns.
	StageFinished(ctx context.Context, stage string, rows int, elapsed time.Duration, err error)
}

// NoopStageObserver discards every callback.
type NoopStageObserver struct{}

// StageStarted returns ctx unchanged.
func (NoopStageObserver) StageStarted(ctx context.Context, _ string, _ int) context.Context { return ctx }

// StageFinished does nothing.
func (NoopStageObserver) StageFinished(context.Context, string, int, time.Duration, error) {}
