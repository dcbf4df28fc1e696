package dataio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ahrav/go-bankprep/internal/domain"
)

// PredictionHeader is the column layout of the predictions file.
var PredictionHeader = []string{domain.RowIDField, "prediction", "probability"}

// WritePredictions writes one line per prediction, in row order.
func WritePredictions(w io.Writer, predictions []domain.Prediction) error {
	cw := csv.NewWriter(w)
	cw.Comma = EngineeredDelimiter
	if err := cw.Write(PredictionHeader); err != nil {
		return fmt.Errorf("write predictions header: %w", err)
	}
	for _, p := range predictions {
		row := []string{
			p.RowID,
			strconv.Itoa(p.Label),
			strconv.FormatFloat(p.Probability, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write prediction row %d: %w", p.Row, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
