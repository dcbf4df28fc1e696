package preprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

var _ ports.FittedPreprocessor = (*FittedPipeline)(nil)

// Metadata describes where a fitted preprocessor came from.
type Metadata struct {
	// EngineerVersion is the feature-engineering version the statistics
	// were estimated on.
	EngineerVersion string `json:"engineer_version"`

	// FitRows is the number of records seen during fit.
	FitRows int `json:"fit_rows"`

	// RunID and CreatedAt travel in the artifact envelope, outside the
	// content-addressed payload.
	RunID     string    `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// FittedPipeline is a frozen preprocessor. All state is set at construction
// and never mutated, so one value may be shared by any number of
// goroutines. It exposes no way to re-estimate statistics.
type FittedPipeline struct {
	schema  domain.FeatureSchema
	scaler  *standardScaler
	encoder *oneHotEncoder
	meta    Metadata
	columns []string

	logger *slog.Logger
	tracer trace.Tracer
}

// Schema returns the schema the pipeline was fit on.
func (f *FittedPipeline) Schema() domain.FeatureSchema { return f.schema }

// Columns returns the output column names in matrix order.
func (f *FittedPipeline) Columns() []string { return slices.Clone(f.columns) }

// Metadata returns the provenance of the fitted statistics.
func (f *FittedPipeline) Metadata() Metadata { return f.meta }

// EngineerVersion returns the feature-engineering version the pipeline was fit on.
func (f *FittedPipeline) EngineerVersion() string { return f.meta.EngineerVersion }

func (f *FittedPipeline) buildColumns() []string {
	cols := make([]string, 0, len(f.scaler.Features)+f.encoder.width())
	cols = append(cols, f.scaler.Features...)
	return append(cols, f.encoder.columns()...)
}

// ready returns a *domain.NotFittedError naming the first empty component.
func (f *FittedPipeline) ready() error {
	switch {
	case f == nil:
		return &domain.NotFittedError{Component: "preprocessor"}
	case !f.scaler.fitted():
		return &domain.NotFittedError{Component: "scaler"}
	case !f.encoder.fitted():
		return &domain.NotFittedError{Component: "encoder"}
	}
	return nil
}

// Transform applies the frozen scaler and encoder to records. Rows keep
// their input order and row_id. Unseen category values yield an all-zero
// block and are counted, never rejected.
func (f *FittedPipeline) Transform(ctx context.Context, records []domain.EngineeredRecord) (*domain.FeatureMatrix, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}

	ctx, span := f.tracer.Start(ctx, "FittedPipeline.Transform",
		trace.WithAttributes(
			attribute.Int("rows", len(records)),
			attribute.Int("columns", len(f.columns)),
		),
	)
	defer span.End()

	if err := checkRecords(f.schema, records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema mismatch")
		return nil, err
	}

	m := &domain.FeatureMatrix{
		Columns: slices.Clone(f.columns),
		RowIDs:  make([]string, len(records)),
		Rows:    make([][]float64, len(records)),
		Unknown: make(map[string]int),
	}
	numWidth := len(f.scaler.Features)
	labelled := len(records) > 0
	for i, r := range records {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("transform cancelled at row %d: %w", i, err)
			}
		}
		row := make([]float64, len(f.columns))
		f.scaler.apply(r, row[:numWidth])
		f.encoder.apply(r, row[numWidth:], m.Unknown)
		m.Rows[i] = row
		m.RowIDs[i] = r.RowID
		if r.Label == nil {
			labelled = false
		}
	}
	if labelled {
		m.Labels = make([]int, len(records))
		for i, r := range records {
			m.Labels[i] = *r.Label
		}
	}

	if total := m.UnknownTotal(); total > 0 {
		span.SetAttributes(attribute.Int("unknown_categories", total))
		f.logger.WarnContext(ctx, "unseen categorical values encoded as all-zero",
			"total", total, "by_feature", m.Unknown)
	}
	return m, nil
}
