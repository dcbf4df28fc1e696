package application

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

// Run metrics every training run records.
const (
	RunMetricFitRows       = "fit_rows"
	RunMetricFittedColumns = "fitted_columns"
)

// TrainerConfig holds the collaborators of a Trainer.
type TrainerConfig struct {
	Engineer     ports.FeatureEngineer
	Preprocessor ports.FittablePreprocessor
	Codec        ports.ArtifactCodec
	Store        ports.ArtifactStore

	// Tracker records finished runs. Nil skips tracking.
	Tracker ports.ExperimentTracker

	// Experiment is required when Tracker is set.
	Experiment string

	// RunID names the run. Empty generates a UUID per Train call.
	RunID string

	// Observer and Metrics are optional.
	Observer ports.StageObserver
	Metrics  ports.MetricsCollector
	Logger   *slog.Logger

	// Now is the clock used for run start times. Nil uses time.Now.
	Now func() time.Time
}

// Trainer runs the training-side pipeline: engineer, fit, persist, track.
// It holds the only fittable preprocessor in the system.
type Trainer struct {
	engineer     ports.FeatureEngineer
	preprocessor ports.FittablePreprocessor
	codec        ports.ArtifactCodec
	store        ports.ArtifactStore
	tracker      ports.ExperimentTracker
	experiment   string
	runID        string
	observer     ports.StageObserver
	metrics      ports.MetricsCollector
	logger       *slog.Logger
	now          func() time.Time
	tracer       trace.Tracer
}

// TrainResult is the outcome of one training run.
type TrainResult struct {
	// Run is the record written to the experiment tracker.
	Run domain.Run

	// Matrix is the preprocessed training data.
	Matrix *domain.FeatureMatrix

	// Preprocessor is the frozen preprocessor stored under Run.ArtifactKey.
	Preprocessor ports.FittedPreprocessor

	// Reused is true when an identical artifact was already stored.
	Reused bool
}

// TrainOption configures a single Train call.
type TrainOption func(*trainOptions)

type trainOptions struct {
	metrics map[string]float64
}

// WithRunMetrics attaches validation metrics, such as test_f1, to the
// recorded run. They take precedence over the built-in run metrics.
func WithRunMetrics(m map[string]float64) TrainOption {
	return func(o *trainOptions) { maps.Copy(o.metrics, m) }
}

// NewTrainer validates cfg and returns a Trainer.
func NewTrainer(cfg TrainerConfig) (*Trainer, error) {
	switch {
	case cfg.Engineer == nil:
		return nil, fmt.Errorf("trainer engineer can't be nil: %w", domain.ErrInvalidConfiguration)
	case cfg.Preprocessor == nil:
		return nil, fmt.Errorf("trainer preprocessor can't be nil: %w", domain.ErrInvalidConfiguration)
	case cfg.Codec == nil:
		return nil, fmt.Errorf("trainer codec can't be nil: %w", domain.ErrInvalidConfiguration)
	case cfg.Store == nil:
		return nil, fmt.Errorf("trainer store can't be nil: %w", domain.ErrInvalidConfiguration)
	case cfg.Tracker != nil && cfg.Experiment == "":
		return nil, fmt.Errorf("trainer experiment is required with a tracker: %w", domain.ErrInvalidConfiguration)
	}

	t := &Trainer{
		engineer:     cfg.Engineer,
		preprocessor: cfg.Preprocessor,
		codec:        cfg.Codec,
		store:        cfg.Store,
		tracker:      cfg.Tracker,
		experiment:   cfg.Experiment,
		runID:        cfg.RunID,
		observer:     cfg.Observer,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		now:          cfg.Now,
		tracer:       otel.Tracer("bankprep-trainer"),
	}
	if t.observer == nil {
		t.observer = ports.NoopStageObserver{}
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t, nil
}

// Train engineers features for records, fits the preprocessor, stores the
// encoded artifact under its content key, and records the run.
// An artifact is never rewritten: when identical bytes already exist the
// stored copy is reused.
func (t *Trainer) Train(ctx context.Context, records []domain.Record, opts ...TrainOption) (*TrainResult, error) {
	options := trainOptions{metrics: make(map[string]float64)}
	for _, opt := range opts {
		opt(&options)
	}

	runID := t.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	started := t.now().UTC()

	ctx, span := t.tracer.Start(ctx, "Trainer.Train",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("rows", len(records)),
		),
	)
	defer span.End()

	fail := func(err error) (*TrainResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if len(records) == 0 {
		return fail(fmt.Errorf("train: %w", domain.ErrEmptyBatch))
	}

	var engineered []domain.EngineeredRecord
	err := runStage(ctx, t.observer, StageEngineer, len(records), func(ctx context.Context) error {
		var err error
		engineered, err = t.engineer.Transform(ctx, records)
		return err
	})
	if err != nil {
		return fail(fmt.Errorf("engineer features: %w", err))
	}

	var (
		matrix *domain.FeatureMatrix
		fitted ports.FittedPreprocessor
	)
	err = runStage(ctx, t.observer, StageFit, len(engineered), func(ctx context.Context) error {
		var err error
		matrix, fitted, err = t.preprocessor.FitTransform(ctx, engineered)
		return err
	})
	if err != nil {
		return fail(fmt.Errorf("fit preprocessor: %w", err))
	}

	data, key, err := t.codec.Encode(fitted)
	if err != nil {
		return fail(fmt.Errorf("encode artifact: %w", err))
	}

	reused := false
	err = runStage(ctx, t.observer, StageStore, 1, func(ctx context.Context) error {
		exists, err := t.store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			reused = true
			return nil
		}
		return t.store.Put(ctx, key, data)
	})
	if err != nil {
		return fail(fmt.Errorf("store artifact: %w", err))
	}

	metrics := map[string]float64{
		RunMetricFitRows:       float64(len(engineered)),
		RunMetricFittedColumns: float64(matrix.Width()),
	}
	maps.Copy(metrics, options.metrics)

	run := domain.Run{
		ID:                runID,
		Experiment:        t.experiment,
		Metrics:           metrics,
		ArtifactKey:       key,
		SchemaFingerprint: fitted.Schema().Fingerprint(),
		StartedAt:         started,
	}
	if t.tracker != nil {
		if err := t.tracker.RecordRun(ctx, run); err != nil {
			return fail(fmt.Errorf("record run: %w", err))
		}
	}

	if t.metrics != nil {
		t.metrics.RecordGauge(ports.MetricFittedColumns, float64(matrix.Width()), nil)
	}

	span.SetAttributes(
		attribute.String("artifact.key", key),
		attribute.Int("columns", matrix.Width()),
		attribute.Bool("artifact.reused", reused),
	)
	t.logger.InfoContext(ctx, "training run complete",
		"run_id", runID,
		"experiment", t.experiment,
		"rows", len(engineered),
		"columns", matrix.Width(),
		"artifact", key,
		"reused", reused,
	)

	return &TrainResult{
		Run:          run,
		Matrix:       matrix,
		Preprocessor: fitted,
		Reused:       reused,
	}, nil
}
