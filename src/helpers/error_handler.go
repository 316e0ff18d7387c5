package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"series-observer/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type SeriesError struct {
	Message string
	Cause   error
}

func (e *SeriesError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SeriesError) Unwrap() error {
	return e.Cause
}

// Engine errors. All are deterministic functions of the input.
type FormatError struct{ SeriesError }
type EmptyInputError struct{ SeriesError }
type ValidationError struct{ SeriesError }
type DegenerateRangeError struct{ SeriesError }

// Outer layer errors.
type ConfigurationError struct{ SeriesError }
type NetworkError struct{ SeriesError }
type DatabaseError struct{ SeriesError }
type NotFoundError struct{ SeriesError }

// -----------------------------------------------------------------------------

func NewFormatError(format string, args ...interface{}) error {
	return &FormatError{SeriesError{Message: fmt.Sprintf(format, args...)}}
}

func NewEmptyInputError(format string, args ...interface{}) error {
	return &EmptyInputError{SeriesError{Message: fmt.Sprintf(format, args...)}}
}

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{SeriesError{Message: fmt.Sprintf(format, args...)}}
}

func NewDegenerateRangeError(format string, args ...interface{}) error {
	return &DegenerateRangeError{SeriesError{Message: fmt.Sprintf(format, args...)}}
}

func NewNotFoundError(format string, args ...interface{}) error {
	return &NotFoundError{SeriesError{Message: fmt.Sprintf(format, args...)}}
}

func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{SeriesError{Message: fmt.Sprintf(format, args...)}}
}

func WrapDatabaseError(operation string, cause error) error {
	return &DatabaseError{SeriesError{Message: operation + " failed", Cause: cause}}
}

func WrapNetworkError(operation string, cause error) error {
	return &NetworkError{SeriesError{Message: operation + " failed", Cause: cause}}
}

// -----------------------------------------------------------------------------

// IsInputError reports whether err is caused by the caller's data rather than
// by the service. Such errors are never worth retrying.
func IsInputError(err error) bool {
	var fe *FormatError
	var ee *EmptyInputError
	var ve *ValidationError
	var de *DegenerateRangeError
	return errors.As(err, &fe) || errors.As(err, &ee) || errors.As(err, &ve) || errors.As(err, &de)
}

// IsPermanent reports whether retrying cannot change the outcome.
func IsPermanent(err error) bool {
	var nf *NotFoundError
	var ce *ConfigurationError
	return IsInputError(err) || errors.As(err, &nf) || errors.As(err, &ce)
}

// ErrorKind returns a short label for metrics and API responses.
func ErrorKind(err error) string {
	var fe *FormatError
	var ee *EmptyInputError
	var ve *ValidationError
	var de *DegenerateRangeError
	var nf *NotFoundError
	var ne *NetworkError
	var db *DatabaseError
	var ce *ConfigurationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &fe):
		return "format_error"
	case errors.As(err, &ee):
		return "empty_input"
	case errors.As(err, &ve):
		return "validation_error"
	case errors.As(err, &de):
		return "degenerate_range"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &ne):
		return "network_error"
	case errors.As(err, &db):
		return "database_error"
	case errors.As(err, &ce):
		return "configuration_error"
	default:
		return "internal_error"
	}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts fn up to maxRetries times with exponential backoff.
// Permanent errors are returned immediately.
func RetryWithBackoff[T any](ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if IsPermanent(err) || attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("%s failed (attempt %d/%d): %v. Retrying in %v", operation, attempt+1, maxRetries, err, delay)
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}
