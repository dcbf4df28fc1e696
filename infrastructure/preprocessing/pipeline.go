// Package preprocessing implements numeric scaling and categorical encoding
// with an explicit split between the fittable (training) and fitted
// (inference) states, plus the artifact format fitted state persists in.
package preprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

var _ ports.FittablePreprocessor = (*Pipeline)(nil)

const stage = "preprocessing"

// Pipeline is the fittable preprocessor. It holds no statistics; each
// FitTransform returns a new, independent FittedPipeline.
type Pipeline struct {
	schema          domain.FeatureSchema
	engineerVersion string
	runID           string
	now             func() time.Time
	logger          *slog.Logger
	tracer          trace.Tracer
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRunID stamps fitted artifacts with the training run that produced them.
func WithRunID(id string) PipelineOption { return func(p *Pipeline) { p.runID = id } }

// WithClock overrides the clock used to stamp fitted artifacts.
func WithClock(now func() time.Time) PipelineOption { return func(p *Pipeline) { p.now = now } }

// WithLogger sets the logger handed to fitted pipelines.
func WithLogger(l *slog.Logger) PipelineOption { return func(p *Pipeline) { p.logger = l } }

// NewPipeline creates a fittable preprocessor for schema. engineerVersion is
// recorded in every artifact so inference can refuse artifacts fit on
// differently engineered features.
func NewPipeline(schema domain.FeatureSchema, engineerVersion string, opts ...PipelineOption) (*Pipeline, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("preprocessing pipeline: %w", err)
	}
	if engineerVersion == "" {
		return nil, fmt.Errorf("preprocessing pipeline: engineer version is required: %w", domain.ErrInvalidConfiguration)
	}
	p := &Pipeline{
		schema:          schema,
		engineerVersion: engineerVersion,
		now:             time.Now,
		logger:          slog.Default(),
		tracer:          otel.Tracer("preprocessing"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// FitTransform estimates scaling and encoding statistics from records,
// freezes them, and transforms records with the frozen result. The matrix
// is produced by the returned FittedPipeline's own Transform, so training
// output and later inference output come from one code path.
func (p *Pipeline) FitTransform(
	ctx context.Context,
	records []domain.EngineeredRecord,
) (*domain.FeatureMatrix, ports.FittedPreprocessor, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.FitTransform",
		trace.WithAttributes(
			attribute.Int("rows", len(records)),
			attribute.String("schema.version", p.schema.Version),
		),
	)
	defer span.End()

	if len(records) == 0 {
		err := fmt.Errorf("fit: %w", domain.ErrEmptyBatch)
		span.RecordError(err)
		return nil, nil, err
	}
	if err := checkRecords(p.schema, records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid fit records")
		return nil, nil, err
	}

	fitted := &FittedPipeline{
		schema:  p.schema,
		scaler:  fitStandardScaler(p.schema.Numeric, records),
		encoder: fitOneHotEncoder(p.schema.Categorical, records),
		meta: Metadata{
			EngineerVersion: p.engineerVersion,
			FitRows:         len(records),
			RunID:           p.runID,
			CreatedAt:       p.now().UTC(),
		},
		logger: p.logger,
		tracer: p.tracer,
	}
	fitted.columns = fitted.buildColumns()

	span.SetAttributes(attribute.Int("columns", len(fitted.columns)))

	matrix, err := fitted.Transform(ctx, records)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	return matrix, fitted, nil
}
