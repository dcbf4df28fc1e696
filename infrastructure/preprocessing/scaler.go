package preprocessing

import (
	"math"

	"github.com/ahrav/go-bankprep/internal/domain"
)

// MinScale is the smallest fitted standard deviation used as a divisor.
// A feature whose training std falls below it is treated as constant and
// scaled by 1.0 instead, so the constant maps to 0 and every other value
// stays finite.
const MinScale = 1e-8

// standardScaler holds frozen per-feature means and scales. Index i of Mean
// and Scale belongs to Features[i].
type standardScaler struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

// fitStandardScaler estimates population mean and standard deviation of
// every feature over records. records must be non-empty and validated.
func fitStandardScaler(features []string, records []domain.EngineeredRecord) *standardScaler {
	s := &standardScaler{
		Features: append([]string(nil), features...),
		Mean:     make([]float64, len(features)),
		Scale:    make([]float64, len(features)),
	}
	n := float64(len(records))
	for j, name := range features {
		sum := 0.0
		for _, r := range records {
			sum += r.Numeric[name]
		}
		mean := sum / n

		ss := 0.0
		for _, r := range records {
			d := r.Numeric[name] - mean
			ss += d * d
		}
		std := math.Sqrt(ss / n)

		s.Mean[j] = mean
		s.Scale[j] = scaleFor(std)
	}
	return s
}

// scaleFor applies the zero-variance floor.
func scaleFor(std float64) float64 {
	if !(std >= MinScale) {
		return 1.0
	}
	return std
}

// fitted reports whether the scaler holds statistics for every feature.
func (s *standardScaler) fitted() bool {
	return s != nil && len(s.Mean) == len(s.Features) && len(s.Scale) == len(s.Features)
}

// apply writes the scaled features of r into dst.
func (s *standardScaler) apply(r domain.EngineeredRecord, dst []float64) {
	for j, name := range s.Features {
		dst[j] = (r.Numeric[name] - s.Mean[j]) / s.Scale[j]
	}
}
