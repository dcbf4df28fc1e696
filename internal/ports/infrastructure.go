package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-bankprep/internal/domain"
)

// ArtifactStore persists immutable artifacts such as fitted preprocessors.
// Implementations could use a local filesystem, S3, or any blob store.
type ArtifactStore interface {
	// Put stores data under key. A reader must never observe a partially
	// written artifact: either the full previous state or the full new data.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the data stored under key. It returns an error wrapping
	// domain.ErrArtifactNotFound when nothing is stored there.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether key holds an artifact.
	Exists(ctx context.Context, key string) (bool, error)
}

// ExperimentTracker is the read-mostly view of the experiment tracking store.
type ExperimentTracker interface {
	// RecordRun appends a finished training run.
	RecordRun(ctx context.Context, run domain.Run) error

	// BestRun returns the run of experiment with the highest value of
	// metric. Runs lacking the metric are ignored.
	BestRun(ctx context.Context, experiment, metric string) (domain.Run, error)
}

// ModelServer is the model registry/serving collaborator. It receives a
// finished feature matrix and returns one prediction per row.
type ModelServer interface {
	Predict(ctx context.Context, matrix *domain.FeatureMatrix) ([]domain.Prediction, error)
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like processed rows, unknown
	// categories, row failures, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
