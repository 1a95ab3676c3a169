// Package errors provides standardized error handling for the quote engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Per-member, recoverable: the member is skipped, the run continues.
	ErrCodeGeographyNotResolved ErrorCode = "GEOGRAPHY_NOT_RESOLVED"

	// Per-member skip; group-fatal when it empties the member set.
	ErrCodeNoPlansAvailable ErrorCode = "NO_PLANS_AVAILABLE"

	// Member-level fatal for the subsidy calculation.
	ErrCodeNoSilverBenchmark ErrorCode = "NO_SILVER_BENCHMARK_AVAILABLE"

	// Transport-level, retried by the scheduler before surfacing.
	ErrCodeRateLimitExceeded  ErrorCode = "EXTERNAL_RATE_LIMIT_EXCEEDED"
	ErrCodeServiceUnavailable ErrorCode = "EXTERNAL_SERVICE_UNAVAILABLE"

	// Fatal, never retried.
	ErrCodeTrialLimitExceeded ErrorCode = "AFFORDABILITY_TRIAL_LIMIT_EXCEEDED"

	// Group-fatal even when pricing succeeded; deliberate product rule.
	ErrCodeComplianceUnavailable ErrorCode = "COMPLIANCE_DATA_UNAVAILABLE"

	// Caller errors, never retried.
	ErrCodeInvalidFilterInput ErrorCode = "INVALID_FILTER_INPUT"
	ErrCodeQuoteNotFound      ErrorCode = "QUOTE_NOT_FOUND"
	ErrCodeQuoteExpired       ErrorCode = "QUOTE_EXPIRED"

	// Infrastructure.
	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches structured context and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewGeographyNotResolvedError marks a member whose zip could not be
// mapped to a rating county. Recoverable: the member is skipped.
func NewGeographyNotResolvedError(memberID, zip string) *StandardError {
	return &StandardError{
		Code:      ErrCodeGeographyNotResolved,
		Message:   "Member zip could not be resolved to a rating county",
		Details:   fmt.Sprintf("memberId: %s, zip: %s", memberID, zip),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoPlansAvailableError is raised per member with zero priced
// candidates, and for the whole run when every member was dropped.
func NewNoPlansAvailableError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoPlansAvailable,
		Message:   "No priced plans available",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoSilverBenchmarkError means the rating area has zero priced active
// on-market Silver plans, so the subsidy formula has no benchmark.
func NewNoSilverBenchmarkError(ratingAreaID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoSilverBenchmark,
		Message:   "No on-market Silver benchmark plan available",
		Details:   fmt.Sprintf("ratingAreaId: %s", ratingAreaID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitExceededError creates a retryable rate-limit error.
func NewRateLimitExceededError(service string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimitExceeded,
		Message:   "External service rate limit exceeded",
		Details:   fmt.Sprintf("service: %s", service),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewServiceUnavailableError creates a retryable transport error.
func NewServiceUnavailableError(service string, err error) *StandardError {
	details := fmt.Sprintf("service: %s", service)
	if err != nil {
		details = fmt.Sprintf("service: %s, error: %s", service, err.Error())
	}
	return &StandardError{
		Code:      ErrCodeServiceUnavailable,
		Message:   "External service unavailable",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTrialLimitExceededError means the lifetime affordability call quota
// is exhausted. Never retried.
func NewTrialLimitExceededError(used, limit int) *StandardError {
	return &StandardError{
		Code:      ErrCodeTrialLimitExceeded,
		Message:   "Affordability trial call limit exhausted",
		Details:   fmt.Sprintf("used: %d, limit: %d", used, limit),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewComplianceUnavailableError aborts a quote that has no completed
// affordability calculation. No local estimate is substituted.
func NewComplianceUnavailableError(groupID, status string) *StandardError {
	return &StandardError{
		Code:      ErrCodeComplianceUnavailable,
		Message:   "Compliance determination not available for group",
		Details:   fmt.Sprintf("groupId: %s, calculationStatus: %s", groupID, status),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidFilterInputError creates a non-retryable caller error.
func NewInvalidFilterInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidFilterInput,
		Message:   "Filter input failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQuoteNotFoundError creates a non-retryable lookup error.
func NewQuoteNotFoundError(quoteID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQuoteNotFound,
		Message:   "Quote not found",
		Details:   fmt.Sprintf("quoteId: %s", quoteID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQuoteExpiredError creates a non-retryable expiry error.
func NewQuoteExpiredError(quoteID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQuoteExpired,
		Message:   "Quote has expired",
		Details:   fmt.Sprintf("quoteId: %s", quoteID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a retryable cache error.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Quote cache unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError creates a retryable persistence error.
func NewStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Quote store unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification Helpers
// ==========================

// CodeOf extracts the ErrorCode from any error, INTERNAL_ERROR otherwise.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether the scheduler may retry the failed call.
// Only transient transport failures qualify; business-validation errors
// are never retried.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// FromHTTPStatus classifies an external call's HTTP status. 429 and 5xx
// are retryable transport failures; other 4xx propagate immediately.
func FromHTTPStatus(service string, status int, body string) *StandardError {
	switch {
	case status == http.StatusTooManyRequests:
		return NewRateLimitExceededError(service)
	case status >= 500:
		return NewServiceUnavailableError(service, fmt.Errorf("status %d: %s", status, body))
	default:
		return &StandardError{
			Code:      ErrCodeInternal,
			Message:   fmt.Sprintf("%s request rejected", service),
			Details:   fmt.Sprintf("status %d: %s", status, body),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}
}
