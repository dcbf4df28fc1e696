package features

import (
	"fmt"
	"math"
)

// UnknownBin is the label assigned to values outside every bin of a table.
const UnknownBin = "unknown"

// BinTable maps a numeric source field onto fixed, half-open bins.
// Bin i covers [Edges[i], Edges[i+1]); Edges may start at -Inf and end at
// +Inf. The edges are constants, never estimated from data.
type BinTable struct {
	// Feature is the derived categorical feature the table produces.
	Feature string
	// Source is the raw numeric field the table reads.
	Source string
	// Edges are the strictly increasing bin boundaries.
	Edges []float64
	// Labels name each bin; len(Labels) == len(Edges)-1.
	Labels []string
}

// Assign returns the label of the bin containing v, or UnknownBin when v
// lies outside every bin or is NaN.
func (b BinTable) Assign(v float64) string {
	if math.IsNaN(v) || len(b.Edges) < 2 || v < b.Edges[0] {
		return UnknownBin
	}
	for i := 0; i < len(b.Labels); i++ {
		if v < b.Edges[i+1] {
			return b.Labels[i]
		}
	}
	// Only values at or beyond the last edge reach here.
	return UnknownBin
}

// validate checks the table invariants at package init.
func (b BinTable) validate() error {
	if len(b.Edges) < 2 || len(b.Labels) != len(b.Edges)-1 {
		return fmt.Errorf("bin table %s: %d edges for %d labels", b.Feature, len(b.Edges), len(b.Labels))
	}
	for i := 1; i < len(b.Edges); i++ {
		if !(b.Edges[i] > b.Edges[i-1]) {
			return fmt.Errorf("bin table %s: edges not strictly increasing at %d", b.Feature, i)
		}
	}
	for _, l := range b.Labels {
		if l == UnknownBin {
			return fmt.Errorf("bin table %s: label %q is reserved", b.Feature, UnknownBin)
		}
	}
	return nil
}

// Pinned bin tables. Changing any edge or label changes BinsVersion and
// invalidates every artifact fitted under the old tables.
var (
	// AgeBins buckets customer age in years.
	AgeBins = BinTable{
		Feature: "age_group",
		Source:  "age",
		Edges:   []float64{18, 30, 45, 60, math.Inf(1)},
		Labels:  []string{"18-29", "30-44", "45-59", "60+"},
	}

	// EmpVarBins buckets the quarterly employment variation rate.
	EmpVarBins = BinTable{
		Feature: "emp_var_category",
		Source:  "emp.var.rate",
		Edges:   []float64{math.Inf(-1), -1, 1, math.Inf(1)},
		Labels:  []string{"contraction", "stable", "expansion"},
	}

	// DurationBins buckets last-contact duration in seconds.
	DurationBins = BinTable{
		Feature: "duration_category",
		Source:  "duration",
		Edges:   []float64{0, 120, 300, 600, math.Inf(1)},
		Labels:  []string{"short", "medium", "long", "very_long"},
	}
)

// BinsVersion identifies the pinned bin tables above.
const BinsVersion = "bins-v1"

func init() {
	for _, t := range []BinTable{AgeBins, EmpVarBins, DurationBins} {
		if err := t.validate(); err != nil {
			panic(err)
		}
	}
}
