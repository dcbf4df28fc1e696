package preprocessing

import (
	"slices"

	"github.com/ahrav/go-bankprep/internal/domain"
)

// oneHotEncoder holds the frozen category layout of every categorical
// feature. Categories are sorted so the layout does not depend on the order
// rows arrived in during fit.
type oneHotEncoder struct {
	Features   []string   `json:"features"`
	Categories [][]string `json:"categories"`

	// index maps feature position -> category -> column offset within
	// that feature's block. Built once; read-only afterwards.
	index []map[string]int
}

// fitOneHotEncoder collects the distinct values of each feature.
func fitOneHotEncoder(features []string, records []domain.EngineeredRecord) *oneHotEncoder {
	e := &oneHotEncoder{
		Features:   append([]string(nil), features...),
		Categories: make([][]string, len(features)),
	}
	for j, name := range features {
		seen := make(map[string]struct{})
		for _, r := range records {
			seen[r.Categorical[name]] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for c := range seen {
			cats = append(cats, c)
		}
		slices.Sort(cats)
		e.Categories[j] = cats
	}
	e.buildIndex()
	return e
}

func (e *oneHotEncoder) buildIndex() {
	e.index = make([]map[string]int, len(e.Categories))
	for j, cats := range e.Categories {
		m := make(map[string]int, len(cats))
		for k, c := range cats {
			m[c] = k
		}
		e.index[j] = m
	}
}

// fitted reports whether the encoder holds a layout for every feature.
func (e *oneHotEncoder) fitted() bool {
	return e != nil && len(e.Categories) == len(e.Features) && len(e.index) == len(e.Features)
}

// width returns the number of output columns.
func (e *oneHotEncoder) width() int {
	w := 0
	for _, cats := range e.Categories {
		w += len(cats)
	}
	return w
}

// columns returns "feature=category" names in output order.
func (e *oneHotEncoder) columns() []string {
	cols := make([]string, 0, e.width())
	for j, name := range e.Features {
		for _, c := range e.Categories[j] {
			cols = append(cols, name+"="+c)
		}
	}
	return cols
}

// apply writes the one-hot blocks of r into dst, which must be zeroed.
// Values not seen during fit leave their block all zero and are counted in
// unknown by feature name.
func (e *oneHotEncoder) apply(r domain.EngineeredRecord, dst []float64, unknown map[string]int) {
	offset := 0
	for j, name := range e.Features {
		if k, ok := e.index[j][r.Categorical[name]]; ok {
			dst[offset+k] = 1
		} else {
			unknown[name]++
		}
		offset += len(e.Categories[j])
	}
}
