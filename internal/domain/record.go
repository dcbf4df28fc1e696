package domain

// RowIDField is the reserved column that carries a row's traceability id.
const RowIDField = "row_id"

// Record is one row of raw input: field values exactly as they were read,
// keyed by column name.
type Record struct {
	// RowID traces the row through the pipeline. Empty when the input has none.
	RowID string

	// Fields maps column name to raw text.
	Fields map[string]string
}

// Get returns the raw value of a field and whether the field is present.
func (r Record) Get(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// FieldNames returns the names of the fields present on the record.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	return names
}

// EngineeredRecord is a record after feature engineering: raw schema
// features converted to their types, plus the derived features.
type EngineeredRecord struct {
	RowID string

	// Numeric holds every numeric schema feature, derived ones included.
	Numeric map[string]float64

	// Categorical holds every categorical schema feature, derived ones included.
	Categorical map[string]string

	// Label is the parsed target (1 for "yes", 0 for "no"), nil when the
	// record has no target value.
	Label *int
}
