package domain

// FeatureMatrix is the model-ready output of preprocessing. Rows are aligned
// positionally with RowIDs and with the records they were built from.
type FeatureMatrix struct {
	// Columns names every output column in order.
	Columns []string `json:"columns"`

	// RowIDs holds the row_id of each row; entries are empty for rows
	// that had none.
	RowIDs []string `json:"row_ids"`

	// Rows holds one feature vector per input record.
	Rows [][]float64 `json:"rows"`

	// Labels holds the target of each row. It is nil unless every row
	// carried a label.
	Labels []int `json:"labels,omitempty"`

	// Unknown counts, per categorical feature, the values that were not
	// seen during fit and were encoded as an all-zero block.
	Unknown map[string]int `json:"unknown,omitempty"`
}

// Len returns the number of rows.
func (m *FeatureMatrix) Len() int { return len(m.Rows) }

// Width returns the number of columns.
func (m *FeatureMatrix) Width() int { return len(m.Columns) }

// ColumnIndex returns the position of a column, or -1 if absent.
func (m *FeatureMatrix) ColumnIndex(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// UnknownTotal returns the number of unseen category values across all features.
func (m *FeatureMatrix) UnknownTotal() int {
	total := 0
	for _, n := range m.Unknown {
		total += n
	}
	return total
}
