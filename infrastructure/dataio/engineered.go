package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/ahrav/go-bankprep/internal/domain"
)

// Target column values.
const (
	labelYes = "yes"
	labelNo  = "no"
)

// EngineeredHeader returns the column layout of the engineered file:
// row_id, numeric features, categorical features, then the target when
// withTarget is set.
func EngineeredHeader(schema domain.FeatureSchema, withTarget bool) []string {
	header := append([]string{domain.RowIDField}, schema.Features()...)
	if withTarget && schema.Target != "" {
		header = append(header, schema.Target)
	}
	return header
}

// WriteEngineered writes engineered records as comma-separated text in
// schema order. Values are unscaled; numbers use the shortest
// representation that parses back to the same float64. The target column
// is written only when every record carries a label.
func WriteEngineered(w io.Writer, schema domain.FeatureSchema, records []domain.EngineeredRecord) error {
	withTarget := schema.Target != "" && len(records) > 0
	for _, r := range records {
		if r.Label == nil {
			withTarget = false
			break
		}
	}

	cw := csv.NewWriter(w)
	cw.Comma = EngineeredDelimiter
	header := EngineeredHeader(schema, withTarget)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write engineered header: %w", err)
	}

	row := make([]string, len(header))
	for i, r := range records {
		row = row[:0]
		row = append(row, r.RowID)
		for _, name := range schema.Numeric {
			v, ok := r.Numeric[name]
			if !ok {
				return &domain.SchemaMismatchError{Field: name, Row: i, RowID: r.RowID, Reason: "missing numeric"}
			}
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		for _, name := range schema.Categorical {
			v, ok := r.Categorical[name]
			if !ok {
				return &domain.SchemaMismatchError{Field: name, Row: i, RowID: r.RowID, Reason: "missing categorical"}
			}
			row = append(row, v)
		}
		if withTarget {
			row = append(row, formatLabel(*r.Label))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write engineered row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadEngineered parses a file produced by WriteEngineered back into
// engineered records. Every schema feature must be present as a column and
// no other column than row_id and the target is accepted.
func ReadEngineered(in io.Reader, schema domain.FeatureSchema) ([]domain.EngineeredRecord, error) {
	cr := newCSVReader(in, EngineeredDelimiter)
	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(header))
	known[domain.RowIDField] = true
	for _, name := range schema.Features() {
		known[name] = true
	}
	if schema.Target != "" {
		known[schema.Target] = true
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		if !known[name] {
			return nil, &domain.SchemaMismatchError{Field: name, Row: -1, Reason: "unexpected column"}
		}
		cols[name] = i
	}
	for _, name := range schema.Features() {
		if _, ok := cols[name]; !ok {
			return nil, &domain.SchemaMismatchError{Field: name, Row: -1, Reason: "missing column"}
		}
	}
	idCol, hasID := cols[domain.RowIDField]
	targetCol, hasTarget := cols[schema.Target]
	hasTarget = hasTarget && schema.Target != ""

	var records []domain.EngineeredRecord
	for line := 0; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}

		r := domain.EngineeredRecord{
			Numeric:     make(map[string]float64, len(schema.Numeric)),
			Categorical: make(map[string]string, len(schema.Categorical)),
		}
		if hasID {
			r.RowID = row[idCol]
		}
		for _, name := range schema.Numeric {
			raw := row[cols[name]]
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &domain.TypeCoercionError{
					Field: name, Row: line, RowID: r.RowID, Value: raw, Expected: "float64", Err: err,
				}
			}
			r.Numeric[name] = v
		}
		for _, name := range schema.Categorical {
			r.Categorical[name] = row[cols[name]]
		}
		if hasTarget {
			label, err := parseLabel(row[targetCol])
			if err != nil {
				return nil, &domain.TypeCoercionError{
					Field: schema.Target, Row: line, RowID: r.RowID, Value: row[targetCol], Expected: "label (yes/no)",
				}
			}
			r.Label = &label
		}
		records = append(records, r)
	}
	return records, nil
}

func formatLabel(v int) string {
	if v == 1 {
		return labelYes
	}
	return labelNo
}

func parseLabel(s string) (int, error) {
	switch s {
	case labelYes, "1":
		return 1, nil
	case labelNo, "0":
		return 0, nil
	}
	return 0, fmt.Errorf("invalid label %q", s)
}
