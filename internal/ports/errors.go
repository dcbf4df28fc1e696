package ports

import (
	"errors"
	"fmt"
	"time"
)

// Common infrastructure errors that can occur during external service
// interactions.
var (
	// ErrRateLimited indicates that the service has rate limited the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that the external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates that the service returned an invalid
	// response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAuthenticationFailed indicates that authentication with the
	// service failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrRunNotFound indicates that the experiment tracker holds no
	// qualifying run.
	ErrRunNotFound = errors.New("run not found")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// ServingError represents an error from the model serving platform.
// It includes details about the endpoint, the row being scored, and any
// rate limit information.
type ServingError struct {
	// Endpoint is the model endpoint that was called.
	Endpoint string

	// Row is the matrix row being scored, or -1 for batch-level failures.
	Row int

	// RowID is the id of the row being scored, empty when unknown.
	RowID string

	// StatusCode is the HTTP status returned, 0 when no response arrived.
	StatusCode int

	// Err is the underlying error that occurred.
	Err error

	// RetryAfter indicates how long to wait before retrying, if applicable.
	RetryAfter *time.Duration
}

// Error implements the error interface for ServingError.
func (e *ServingError) Error() string {
	row := fmt.Sprintf("row=%d", e.Row)
	if e.RowID != "" {
		row += ", row_id=" + e.RowID
	}
	msg := fmt.Sprintf("serving error: endpoint=%s, %s, err=%v", e.Endpoint, row, e.Err)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status=%d", e.StatusCode)
	}
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ServingError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is temporary and the request can be
// retried.
func (e *ServingError) IsRetryable() bool {
	// Only network/service-level errors are retryable; logic errors are not
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewServingError creates a new ServingError with the given details.
func NewServingError(endpoint string, row int, err error) *ServingError {
	return &ServingError{
		Endpoint: endpoint,
		Row:      row,
		Err:      err,
	}
}

// StorageError represents an error from artifact store operations.
// It includes the key and operation that failed.
type StorageError struct {
	// Backend names the store implementation, e.g. "fs" or "s3".
	Backend string

	// Key is the artifact key that was involved in the failed operation.
	Key string

	// Operation is the name of the store operation that failed.
	Operation string

	// Err is the underlying error that caused the operation to fail.
	Err error
}

// Error implements the error interface for StorageError.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: backend=%s, operation=%s, key=%s, err=%v", e.Backend, e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError creates a new StorageError with the given details.
func NewStorageError(backend, key, operation string, err error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// ConfigKey is the configuration key that was involved in the failed
	// operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
