package preprocessing

import (
	"math"
	"slices"
	"strconv"

	"github.com/ahrav/go-bankprep/internal/domain"
)

// checkRecords verifies that every record carries exactly the schema's
// features with finite numeric values. Missing features are never
// zero-filled; they fail the batch with a *domain.SchemaMismatchError.
func checkRecords(schema domain.FeatureSchema, records []domain.EngineeredRecord) error {
	batch := domain.NewBatchError(stage, len(records))
	for i, r := range records {
		var errs []error
		for _, name := range schema.Numeric {
			v, ok := r.Numeric[name]
			if !ok {
				errs = append(errs, &domain.SchemaMismatchError{Field: name, Row: i, RowID: r.RowID, Reason: "missing numeric"})
				continue
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				errs = append(errs, &domain.TypeCoercionError{
					Field: name, Row: i, RowID: r.RowID,
					Value: strconv.FormatFloat(v, 'g', -1, 64), Expected: "finite float64",
				})
			}
		}
		for _, name := range schema.Categorical {
			if _, ok := r.Categorical[name]; !ok {
				errs = append(errs, &domain.SchemaMismatchError{Field: name, Row: i, RowID: r.RowID, Reason: "missing categorical"})
			}
		}
		if len(r.Numeric) != len(schema.Numeric) || len(r.Categorical) != len(schema.Categorical) {
			for _, name := range unexpected(schema, r) {
				errs = append(errs, &domain.SchemaMismatchError{Field: name, Row: i, RowID: r.RowID, Reason: "unexpected"})
			}
		}
		batch.AddRow(i, r.RowID, errs...)
	}
	if batch.HasErrors() {
		return batch
	}
	return nil
}

// unexpected lists the features of r that the schema does not declare.
func unexpected(schema domain.FeatureSchema, r domain.EngineeredRecord) []string {
	numeric := make(map[string]struct{}, len(schema.Numeric))
	for _, n := range schema.Numeric {
		numeric[n] = struct{}{}
	}
	categorical := make(map[string]struct{}, len(schema.Categorical))
	for _, n := range schema.Categorical {
		categorical[n] = struct{}{}
	}

	var out []string
	for name := range r.Numeric {
		if _, ok := numeric[name]; !ok {
			out = append(out, name)
		}
	}
	for name := range r.Categorical {
		if _, ok := categorical[name]; !ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
