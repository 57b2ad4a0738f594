package ports

import (
	"errors"
	"fmt"
)

// Common infrastructure errors that can occur during storage and
// configuration interactions.
var (
	// ErrReviewNotFound indicates that the requested review does not exist.
	ErrReviewNotFound = errors.New("review not found")

	// ErrOrderingNotFound indicates that the participant has no ordering
	// stored for the review.
	ErrOrderingNotFound = errors.New("ordering not found")

	// ErrReviewExists indicates that a review with the given identifier
	// already exists.
	ErrReviewExists = errors.New("review already exists")

	// ErrStoreUnavailable indicates that the storage backend cannot be
	// reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// StoreError represents an error from review storage operations.
// It includes the review and operation that failed.
type StoreError struct {
	// Review is the review identifier involved in the failed operation.
	Review string

	// Operation is the name of the store operation that failed.
	Operation string

	// Err is the underlying error that caused the store operation to fail.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: operation=%s, review=%s, err=%v", e.Operation, e.Review, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func (e *StoreError) IsRetryable() bool {
	// Only backend availability problems are retryable; logic errors are not
	return errors.Is(e.Err, ErrStoreUnavailable)
}

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(review, operation string, err error) *StoreError {
	return &StoreError{
		Review:    review,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// Source identifies where the configuration came from, typically a
	// file path.
	Source string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: source=%s, err=%v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(source string, err error) *ConfigError {
	return &ConfigError{
		Source: source,
		Err:    err,
	}
}

// MetricsError represents an error from metrics collection operations.
type MetricsError struct {
	// Metric is the name of the metric that was being collected when the
	// error occurred.
	Metric string

	// Operation is the name of the metrics operation that failed.
	Operation string

	// Err is the underlying error that caused the metrics operation to fail.
	Err error
}

// Error implements the error interface for MetricsError.
func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics error: operation=%s, metric=%s, err=%v", e.Operation, e.Metric, e.Err)
}

// Unwrap returns the underlying error.
func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError creates a new MetricsError with the given details.
func NewMetricsError(metric, operation string, err error) *MetricsError {
	return &MetricsError{
		Metric:    metric,
		Operation: operation,
		Err:       err,
	}
}
