// Package features implements the feature engineering step: pure, row-local
// derivation of model features from raw bank-marketing records.
package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

var _ ports.FeatureEngineer = (*Engineer)(nil)

// Version identifies the complete set of pinned engineering constants.
const Version = EngagementVersion + "/" + BinsVersion

const (
	// minRowsPerWorker keeps small batches on the calling goroutine.
	minRowsPerWorker = 256

	// maxSuggestionDistance bounds how different a present column may be
	// from a missing one and still be offered as a suggestion. Short names
	// get a tighter bound of half their length.
	maxSuggestionDistance = 3

	stage = "feature engineering"
)

var (
	errEmptyValue = errors.New("empty value")
	errNonFinite  = errors.New("non-finite value")
)

// engagementSources are the raw fields read by EngagementScore.
var engagementSources = []string{domain.FieldCampaign, domain.FieldPdays, domain.FieldPrevious}

// Engineer derives the features of a FeatureSchema from raw records.
//
// Concurrency: Engineer is stateless after construction and safe for
// concurrent use. Transform itself may fan rows out across workers; output
// order always matches input order.
type Engineer struct {
	schema  domain.FeatureSchema
	workers int
	tracer  trace.Tracer

	// numericInputs are the raw numeric fields that must be parsed: the
	// schema's raw numeric features plus the sources of derived features.
	numericInputs []string
	// binTables are the derived categorical features the schema asks for.
	binTables []BinTable
	// wantEngagement is set when the schema includes engagement_score.
	wantEngagement bool
}

// Option configures an Engineer.
type Option func(*Engineer)

// WithWorkers sets how many goroutines Transform may use. Values below 2
// keep Transform on the calling goroutine.
func WithWorkers(n int) Option {
	return func(e *Engineer) { e.workers = n }
}

// NewEngineer creates an Engineer for schema. It fails if the schema is
// structurally invalid.
func NewEngineer(schema domain.FeatureSchema, opts ...Option) (*Engineer, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("feature engineer: %w", err)
	}

	e := &Engineer{
		schema:  schema,
		workers: 1,
		tracer:  otel.Tracer("feature-engineer"),
	}
	for _, opt := range opts {
		opt(e)
	}

	inputs := schema.RawNumeric()
	addInput := func(name string) {
		if !slices.Contains(inputs, name) {
			inputs = append(inputs, name)
		}
	}
	if slices.Contains(schema.Numeric, domain.FeatureEngagementScore) {
		e.wantEngagement = true
		for _, src := range engagementSources {
			addInput(src)
		}
	}
	for _, table := range []BinTable{AgeBins, EmpVarBins, DurationBins} {
		if slices.Contains(schema.Categorical, table.Feature) {
			e.binTables = append(e.binTables, table)
			addInput(table.Source)
		}
	}
	e.numericInputs = inputs

	return e, nil
}

// Schema returns the schema the engineer produces.
func (e *Engineer) Schema() domain.FeatureSchema { return e.schema }

// Version returns the pinned formula and bin table version.
func (e *Engineer) Version() string { return Version }

// Transform engineers every record. On failure the returned error is a
// *domain.BatchError listing each failed row; the engineered slice is nil.
func (e *Engineer) Transform(ctx context.Context, records []domain.Record) ([]domain.EngineeredRecord, error) {
	ctx, span := e.tracer.Start(ctx, "FeatureEngineer.Transform",
		trace.WithAttributes(
			attribute.Int("rows", len(records)),
			attribute.Int("workers", e.workers),
			attribute.String("engineer.version", Version),
		),
	)
	defer span.End()

	out := make([]domain.EngineeredRecord, len(records))
	rowErrs := make([][]error, len(records))

	run := func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if i%minRowsPerWorker == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			out[i], rowErrs[i] = e.engineerRow(i, records[i])
		}
		return nil
	}

	workers := e.workers
	if n := len(records) / minRowsPerWorker; n < workers {
		workers = n
	}
	if workers < 2 {
		if err := run(0, len(records)); err != nil {
			span.RecordError(err)
			return nil, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		ctx = gctx
		chunk := (len(records) + workers - 1) / workers
		for lo := 0; lo < len(records); lo += chunk {
			hi := min(lo+chunk, len(records))
			g.Go(func() error { return run(lo, hi) })
		}
		if err := g.Wait(); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	batch := domain.NewBatchError(stage, len(records))
	for i, errs := range rowErrs {
		batch.AddRow(i, records[i].RowID, errs...)
	}
	if batch.HasErrors() {
		span.RecordError(batch)
		span.SetStatus(codes.Error, "row failures")
		span.SetAttributes(attribute.Int("rows.failed", batch.FailedRows()))
		return nil, batch
	}
	return out, nil
}

// engineerRow converts one record. It returns every field error of the row
// rather than stopping at the first.
func (e *Engineer) engineerRow(i int, rec domain.Record) (domain.EngineeredRecord, []error) {
	var errs []error

	parsed := make(map[string]float64, len(e.numericInputs))
	for _, name := range e.numericInputs {
		raw, ok := rec.Get(name)
		if !ok {
			errs = append(errs, e.missing(name, i, rec))
			continue
		}
		v, err := parseNumber(raw)
		if err != nil {
			errs = append(errs, &domain.TypeCoercionError{
				Field: name, Row: i, RowID: rec.RowID, Value: raw, Expected: "float64", Err: err,
			})
			continue
		}
		parsed[name] = v
	}

	categorical := make(map[string]string, len(e.schema.Categorical))
	var folder cases.Caser
	if e.schema.FoldCategories {
		// Casers are stateful; one per row keeps parallel workers independent.
		folder = cases.Fold()
	}
	for _, name := range e.schema.RawCategorical() {
		raw, ok := rec.Get(name)
		if !ok {
			errs = append(errs, e.missing(name, i, rec))
			continue
		}
		if e.schema.FoldCategories {
			raw = folder.String(strings.TrimSpace(raw))
		}
		categorical[name] = raw
	}

	var label *int
	if e.schema.Target != "" {
		if raw, ok := rec.Get(e.schema.Target); ok {
			l, err := parseLabel(raw)
			if err != nil {
				errs = append(errs, &domain.TypeCoercionError{
					Field: e.schema.Target, Row: i, RowID: rec.RowID, Value: raw, Expected: "label (yes/no)",
				})
			} else {
				label = &l
			}
		}
	}

	if len(errs) > 0 {
		return domain.EngineeredRecord{}, errs
	}

	for _, table := range e.binTables {
		categorical[table.Feature] = table.Assign(parsed[table.Source])
	}
	if e.wantEngagement {
		parsed[domain.FeatureEngagementScore] = EngagementScore(
			parsed[domain.FieldCampaign], parsed[domain.FieldPdays], parsed[domain.FieldPrevious],
		)
	}

	numeric := make(map[string]float64, len(e.schema.Numeric))
	for _, name := range e.schema.Numeric {
		numeric[name] = parsed[name]
	}

	return domain.EngineeredRecord{
		RowID:       rec.RowID,
		Numeric:     numeric,
		Categorical: categorical,
		Label:       label,
	}, nil
}

// missing builds a SchemaError and suggests the closest present column.
func (e *Engineer) missing(field string, i int, rec domain.Record) *domain.SchemaError {
	err := domain.NewSchemaError(field, i, rec.RowID)
	names := rec.FieldNames()
	slices.Sort(names)
	best := min(maxSuggestionDistance, len(field)/2) + 1
	for _, name := range names {
		if d := levenshtein.ComputeDistance(field, name); d < best {
			best = d
			err.Suggestion = name
		}
	}
	return err
}

// parseNumber parses a raw numeric field. Empty and non-finite values are
// rejected rather than imputed.
func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errEmptyValue
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNonFinite
	}
	return v, nil
}

// parseLabel maps the target column onto 1/0.
func parseLabel(raw string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "1":
		return 1, nil
	case "no", "0":
		return 0, nil
	}
	return 0, fmt.Errorf("unrecognized label %q", raw)
}
