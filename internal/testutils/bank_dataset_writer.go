package testutils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ahrav/go-bankprep/internal/domain"
)

// WriteBankCSV writes records as a raw bank-marketing file: a row_id column
// followed by RawColumns, separated by delim. Fields absent from a record
// are written empty.
func WriteBankCSV(w io.Writer, records []domain.Record, delim rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.Write(append([]string{domain.RowIDField}, RawColumns...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, 0, len(RawColumns)+1)
	for i, r := range records {
		row = append(row[:0], r.RowID)
		for _, name := range RawColumns {
			row = append(row, r.Fields[name])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveBankDataset writes records to path with ";" separators, creating
// parent directories as needed.
func SaveBankDataset(path string, records []domain.Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	if err := WriteBankCSV(f, records, ';'); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
