package audit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSweepInProgress is returned when a cleanup is triggered while another
	// cleanup is still running.
	ErrSweepInProgress = errors.New("cleanup already in progress")

	// ErrRecorderClosed is returned when a record is submitted after the
	// recorder has been closed.
	ErrRecorderClosed = errors.New("recorder is closed")

	// ErrInvalidQuery marks query parameter validation failures.
	ErrInvalidQuery = errors.New("invalid query")
)

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "postgres", "memory")
	Operation string // Operation that failed ("insert", "find", "delete", ...)
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// QueryError is returned by the query service when the store fails or the
// request parameters are invalid.
type QueryError struct {
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error [operation=%s]: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(operation string, cause error) *QueryError {
	return &QueryError{Operation: operation, Cause: cause}
}

// ValidationError creates a QueryError wrapping ErrInvalidQuery.
func ValidationError(format string, args ...any) *QueryError {
	return &QueryError{
		Operation: "validate",
		Cause:     fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...)),
	}
}

// IsValidation reports whether err is a query validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidQuery)
}

// CaptureError is raised while turning an HTTP exchange into a record or
// while persisting it. It is logged and never reaches the client.
type CaptureError struct {
	Stage    string // "build" or "persist"
	Endpoint string
	Cause    error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture error [stage=%s, endpoint=%s]: %v", e.Stage, e.Endpoint, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *CaptureError) Unwrap() error {
	return e.Cause
}

// CleanupError describes a failed retention sweep.
type CleanupError struct {
	Phase  string // "count", "fetch" or "delete"
	Cutoff time.Time
	Batch  int
	Cause  error
}

// Error implements the error interface.
func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup failed [phase=%s, cutoff=%s, batch=%d]: %v",
		e.Phase, e.Cutoff.Format(time.RFC3339), e.Batch, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *CleanupError) Unwrap() error {
	return e.Cause
}
