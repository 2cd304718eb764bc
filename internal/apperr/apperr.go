// Package apperr defines the closed set of error kinds the gateway surfaces to callers.
//
// Callers branch on kind with errors.As (or the Is/As helpers below) rather than on
// message text.
package apperr

import (
	"errors"
	"fmt"
)

// Upstream error codes carried by APIError.Code.
const (
	CodeGeocode  = "GEO_ERR"
	CodeForecast = "FORECAST_ERR"
)

// ValidationError reports bad caller input. It is never retried.
// Err optionally carries a sentinel so callers can match with errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validation returns a ValidationError for field.
func Validation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// APIError reports a failed call to a remote service.
// Status is the HTTP status when one was received, 0 for transport failures.
type APIError struct {
	Code      string
	Message   string
	Status    int
	Retryable bool
	Err       error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// IndexBuildError reports that the gazetteer dataset could not be loaded or parsed.
type IndexBuildError struct {
	Path string
	Err  error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("build gazetteer index from %s: %v", e.Path, e.Err)
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// AsAPIError returns the APIError in err's chain, if any.
func AsAPIError(err error) (*APIError, bool) {
	var a *APIError
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}

// IsIndexBuild reports whether err is or wraps an IndexBuildError.
func IsIndexBuild(err error) bool {
	var b *IndexBuildError
	return errors.As(err, &b)
}
