package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/geoweather-gateway/internal/apperr"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (upstreamErrorsTotal).
const (
	ErrorCategoryTimeout     ErrorCategory = "timeout"
	ErrorCategoryNetwork     ErrorCategory = "network"
	ErrorCategoryCircuitOpen ErrorCategory = "circuit_open"
	ErrorCategoryRateLimited ErrorCategory = "rate_limited"
	ErrorCategoryUpstream4xx ErrorCategory = "upstream_4xx"
	ErrorCategoryUpstream5xx ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing     ErrorCategory = "parsing"
	ErrorCategoryValidation  ErrorCategory = "validation"
	ErrorCategoryIndexBuild  ErrorCategory = "index_build"
	ErrorCategoryUnknown     ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorCategoryCircuitOpen
	}
	if apperr.IsValidation(err) {
		return ErrorCategoryValidation
	}
	if apperr.IsIndexBuild(err) {
		return ErrorCategoryIndexBuild
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}

	if apiErr, ok := apperr.AsAPIError(err); ok {
		switch {
		case apiErr.Status == http.StatusTooManyRequests:
			return ErrorCategoryRateLimited
		case apiErr.Status >= 500:
			return ErrorCategoryUpstream5xx
		case apiErr.Status >= 400:
			return ErrorCategoryUpstream4xx
		case apiErr.Message == "parse response":
			return ErrorCategoryParsing
		}
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return ErrorCategoryParsing
	}

	return ErrorCategoryUnknown
}
