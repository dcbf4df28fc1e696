package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur while engineering or preprocessing
// records. Typed errors below unwrap to one of these so callers can branch
// with errors.Is.
var (
	// ErrSchema indicates that a required raw field is absent from a record.
	ErrSchema = errors.New("schema error")

	// ErrTypeCoercion indicates that a field value could not be converted
	// to the type the schema expects.
	ErrTypeCoercion = errors.New("type coercion error")

	// ErrNotFitted indicates that a transform was attempted with a
	// preprocessor whose statistics were never populated.
	ErrNotFitted = errors.New("preprocessor not fitted")

	// ErrSchemaMismatch indicates that input features diverge from the
	// schema a preprocessor was fit on.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrArtifactCorrupt indicates that a persisted artifact is truncated,
	// tampered with, or in an unknown format.
	ErrArtifactCorrupt = errors.New("artifact corrupt")

	// ErrArtifactNotFound indicates that no artifact exists under a key.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrEmptyBatch indicates that an operation which needs at least one
	// record received none.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// rowRef renders a row position plus its row_id when one is present.
func rowRef(index int, rowID string) string {
	if rowID == "" {
		return fmt.Sprintf("row=%d", index)
	}
	return fmt.Sprintf("row=%d, row_id=%s", index, rowID)
}

// SchemaError reports a raw field that is missing from a record.
type SchemaError struct {
	// Field is the name of the missing field.
	Field string

	// Row is the zero-based position of the offending record in its batch.
	Row int

	// RowID is the record's row_id, empty when the record has none.
	RowID string

	// Suggestion is the closest column name present on the record, if any
	// is close enough to be a likely rename or typo.
	Suggestion string
}

// Error implements the error interface for SchemaError.
func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("schema error: missing field %q (%s)", e.Field, rowRef(e.Row, e.RowID))
	if e.Suggestion != "" {
		msg += fmt.Sprintf(", did you mean %q?", e.Suggestion)
	}
	return msg
}

// Unwrap returns ErrSchema.
func (e *SchemaError) Unwrap() error { return ErrSchema }

// NewSchemaError creates a new SchemaError with the given details.
func NewSchemaError(field string, row int, rowID string) *SchemaError {
	return &SchemaError{Field: field, Row: row, RowID: rowID}
}

// TypeCoercionError reports a value that could not be converted to the type
// its field requires.
type TypeCoercionError struct {
	Field string
	Row   int
	RowID string
	// Value is the raw text that failed conversion.
	Value string
	// Expected names the target type, e.g. "float64".
	Expected string
	// Err is the underlying parse error, if any.
	Err error
}

// Error implements the error interface for TypeCoercionError.
func (e *TypeCoercionError) Error() string {
	msg := fmt.Sprintf("type coercion error: field %q value %q is not a valid %s (%s)",
		e.Field, e.Value, e.Expected, rowRef(e.Row, e.RowID))
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns both ErrTypeCoercion and the parse error.
func (e *TypeCoercionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTypeCoercion}
	}
	return []error{ErrTypeCoercion, e.Err}
}

// NotFittedError reports a transform invoked on a preprocessor that holds no
// fitted statistics.
type NotFittedError struct {
	// Component names the part of the preprocessor that is empty,
	// e.g. "scaler" or "encoder".
	Component string
}

// Error implements the error interface for NotFittedError.
func (e *NotFittedError) Error() string {
	return fmt.Sprintf("not fitted: %s has no fitted statistics; load a trained artifact before calling transform", e.Component)
}

// Unwrap returns ErrNotFitted.
func (e *NotFittedError) Unwrap() error { return ErrNotFitted }

// SchemaMismatchError reports divergence between the schema a preprocessor
// was fit on and the schema of the input it is asked to transform.
type SchemaMismatchError struct {
	// Field is the feature that is missing or unexpected. Empty when the
	// mismatch is between whole schemas.
	Field string

	// Row is the offending record position, or -1 for schema-level mismatches.
	Row   int
	RowID string

	// Reason describes the mismatch, e.g. "missing", "unexpected",
	// or "fingerprint".
	Reason string

	// Expected and Actual hold fingerprints or versions for schema-level
	// mismatches.
	Expected string
	Actual   string
}

// Error implements the error interface for SchemaMismatchError.
func (e *SchemaMismatchError) Error() string {
	if e.Row < 0 {
		if e.Field != "" {
			return fmt.Sprintf("schema mismatch: %s feature %q", e.Reason, e.Field)
		}
		return fmt.Sprintf("schema mismatch: %s expected=%s actual=%s", e.Reason, e.Expected, e.Actual)
	}
	return fmt.Sprintf("schema mismatch: %s feature %q (%s)", e.Reason, e.Field, rowRef(e.Row, e.RowID))
}

// Unwrap returns ErrSchemaMismatch.
func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// RowError groups the errors of one row so that a row with several bad
// fields counts once in a BatchError.
type RowError struct {
	Row   int
	RowID string
	Err   error
}

// Error implements the error interface for RowError.
func (e *RowError) Error() string {
	var joined interface{ Unwrap() []error }
	if errors.As(e.Err, &joined) {
		errs := joined.Unwrap()
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return fmt.Sprintf("%s: %d errors: %s", rowRef(e.Row, e.RowID), len(errs), strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("%s: %v", rowRef(e.Row, e.RowID), e.Err)
}

// Unwrap returns the underlying error.
func (e *RowError) Unwrap() error { return e.Err }

// BatchError collects the per-row failures of one batch so that every
// offending row is reported, not only the first.
type BatchError struct {
	// Stage names the pipeline stage that produced the failures.
	Stage string

	// Total is the number of rows in the batch.
	Total int

	// Errors holds one error per failed row, in row order.
	Errors []error
}

// maxListedRowErrors bounds how many row errors Error() spells out.
const maxListedRowErrors = 5

// Error implements the error interface for BatchError.
func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed for %d of %d rows", e.Stage, e.FailedRows(), e.Total)
	for i, err := range e.Errors {
		if i == maxListedRowErrors {
			fmt.Fprintf(&b, "; and %d more", len(e.Errors)-maxListedRowErrors)
			break
		}
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the row errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error { return e.Errors }

// Add appends a row failure.
func (e *BatchError) Add(err error) { e.Errors = append(e.Errors, err) }

// AddRow records the errors of one row as a single failure. A lone error is
// added as is; several are joined under a *RowError.
func (e *BatchError) AddRow(row int, rowID string, errs ...error) {
	switch len(errs) {
	case 0:
	case 1:
		e.Add(errs[0])
	default:
		e.Add(&RowError{Row: row, RowID: rowID, Err: errors.Join(errs...)})
	}
}

// FailedRows returns the number of rows that failed.
func (e *BatchError) FailedRows() int { return len(e.Errors) }

// HasErrors returns true if any row failed.
func (e *BatchError) HasErrors() bool { return len(e.Errors) > 0 }

// NewBatchError creates an empty BatchError for a stage over total rows.
func NewBatchError(stage string, total int) *BatchError {
	return &BatchError{Stage: stage, Total: total}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap returns ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
