// Package dataio reads and writes the delimiter-separated files that enter
// and leave the pipeline: raw campaign extracts, the engineered
// intermediate file, and prediction output.
package dataio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ahrav/go-bankprep/internal/domain"
)

// Delimiters used by the campaign extracts and the engineered file.
const (
	RawDelimiter        = ';'
	EngineeredDelimiter = ','
)

// ErrMalformedInput indicates a file that cannot be parsed as delimited text.
var ErrMalformedInput = errors.New("malformed input")

// Reader parses raw records from delimited text with a header line.
type Reader struct {
	// Delimiter separates fields. Zero means RawDelimiter.
	Delimiter rune

	// RowIDColumn names the column that carries row ids. Zero means
	// domain.RowIDField. Inputs without that column yield records with
	// empty row ids.
	RowIDColumn string
}

func (r Reader) delimiter() rune {
	if r.Delimiter == 0 {
		return RawDelimiter
	}
	return r.Delimiter
}

func (r Reader) rowIDColumn() string {
	if r.RowIDColumn == "" {
		return domain.RowIDField
	}
	return r.RowIDColumn
}

// ReadFile opens path and reads every record in it.
func (r Reader) ReadFile(path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	defer f.Close()

	records, err := r.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// Read parses every record from in. Field values are kept verbatim; typing
// happens during feature engineering.
func (r Reader) Read(in io.Reader) ([]domain.Record, error) {
	cr := newCSVReader(in, r.delimiter())

	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idCol := -1
	for i, name := range header {
		if name == r.rowIDColumn() {
			idCol = i
		}
	}

	var records []domain.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}

		rec := domain.Record{Fields: make(map[string]string, len(header))}
		for i, v := range row {
			if i == idCol {
				rec.RowID = v
				continue
			}
			rec.Fields[header[i]] = v
		}
		records = append(records, rec)
	}
	return records, nil
}

func newCSVReader(in io.Reader, delim rune) *csv.Reader {
	cr := csv.NewReader(bufio.NewReader(in))
	cr.Comma = delim
	cr.TrimLeadingSpace = true
	return cr
}

// readHeader returns the trimmed column names. Duplicate names are
// rejected since records are keyed by column name.
func readHeader(cr *csv.Reader) ([]string, error) {
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedInput, err)
	}

	seen := make(map[string]struct{}, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			return nil, fmt.Errorf("%w: header column %d is empty", ErrMalformedInput, i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate header column %q", ErrMalformedInput, name)
		}
		seen[name] = struct{}{}
		header[i] = name
	}
	return header, nil
}
