package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a specific failure condition in the scrape taxonomy
type ErrorCode string

const (
	ErrCodeDriverUnavailable ErrorCode = "DRIVER_UNAVAILABLE"
	ErrCodePoolExhausted     ErrorCode = "POOL_EXHAUSTED"
	ErrCodeStepTimeout       ErrorCode = "STEP_TIMEOUT"
	ErrCodeNavigation        ErrorCode = "NAVIGATION_FAILED"
	ErrCodeInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrCodeInvalidRule       ErrorCode = "INVALID_RULE"
	ErrCodeMissingField      ErrorCode = "MISSING_FIELD"
	ErrCodeRetriesExhausted  ErrorCode = "RETRIES_EXHAUSTED"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"
	ErrCodeCancelled         ErrorCode = "CANCELLED"
)

// ScrapeError is the structured error surfaced to callers. Every failure
// is tagged Transient or Permanent at its point of origin; the retry
// engine consults the tag and never re-derives it. Raw driver-protocol
// errors are translated into this taxonomy at the session boundary.
type ScrapeError struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Transient  bool
	Details    map[string]any
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Underlying
}

// Is matches ScrapeErrors by code
func (e *ScrapeError) Is(target error) bool {
	if t, ok := target.(*ScrapeError); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Underlying, target)
}

// NewScrapeError creates a Permanent error with the given code
func NewScrapeError(code ErrorCode, message string, err error) *ScrapeError {
	return &ScrapeError{
		Code:       code,
		Message:    message,
		Underlying: err,
	}
}

// AsTransient marks the error as retryable
func (e *ScrapeError) AsTransient() *ScrapeError {
	e.Transient = true
	return e
}

// WithDetail attaches a key/value pair for caller context
func (e *ScrapeError) WithDetail(key string, value any) *ScrapeError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Detail returns the wire form of the error
func (e *ScrapeError) Detail() *ErrorDetail {
	return &ErrorDetail{
		Code:      e.Code,
		Message:   e.Error(),
		Transient: e.Transient,
		Details:   e.Details,
	}
}

// IsTransient reports whether err is tagged retryable. Unclassified
// errors are treated as permanent: classification is the producer's
// job and an untagged error means the producer opted out of retries.
func IsTransient(err error) bool {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}

// CodeOf extracts the taxonomy code from err, or "" if unclassified.
func CodeOf(err error) ErrorCode {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Exhausted wraps the last observed error once a retry budget is spent.
func Exhausted(attempts int, last error) *ScrapeError {
	e := NewScrapeError(ErrCodeRetriesExhausted,
		fmt.Sprintf("operation failed after %d attempts", attempts), last)
	return e.WithDetail("attempts", attempts)
}

// FromContext translates a context error into the taxonomy. Timeout and
// Cancelled always win over any in-progress retry.
func FromContext(ctx context.Context) *ScrapeError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewScrapeError(ErrCodeTimeout, "request deadline exceeded", ctx.Err())
	}
	return NewScrapeError(ErrCodeCancelled, "request cancelled", ctx.Err())
}
