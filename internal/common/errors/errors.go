// Package errors provides the standardized error taxonomy for the sync and
// matching pipelines.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Listing source errors.
	ErrCodeSourceFetchFailed ErrorCode = "SOURCE_FETCH_FAILED"
	ErrCodeSourcePageTimeout ErrorCode = "SOURCE_PAGE_TIMEOUT"

	// Remote relevance service errors. The retryable subset is
	// timeout/unavailable/internal; the rest must never be retried.
	ErrCodeRemoteTimeout          ErrorCode = "REMOTE_TIMEOUT"
	ErrCodeRemoteUnavailable      ErrorCode = "REMOTE_UNAVAILABLE"
	ErrCodeRemoteInternal         ErrorCode = "REMOTE_INTERNAL"
	ErrCodeRemoteNotFound         ErrorCode = "REMOTE_NOT_FOUND"
	ErrCodeRemoteAlreadyExists    ErrorCode = "REMOTE_ALREADY_EXISTS"
	ErrCodeRemotePermissionDenied ErrorCode = "REMOTE_PERMISSION_DENIED"

	// Record store errors.
	ErrCodeRecordConflict         ErrorCode = "RECORD_CONFLICT"
	ErrCodeRecordValidationFailed ErrorCode = "RECORD_VALIDATION_FAILED"
	ErrCodeStoreUnavailable       ErrorCode = "STORE_UNAVAILABLE"

	// Matching errors.
	ErrCodeQueryTooShort    ErrorCode = "QUERY_TOO_SHORT"
	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
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

// NewSourceFetchFailedError creates a retryable listing-source error.
func NewSourceFetchFailedError(page int, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSourceFetchFailed,
		Message:   "Listing source fetch failed",
		Details:   fmt.Sprintf("page: %d, error: %s", page, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSourcePageTimeoutError creates a retryable listing-source timeout error.
func NewSourcePageTimeoutError(page int) *StandardError {
	return &StandardError{
		Code:      ErrCodeSourcePageTimeout,
		Message:   "Listing source page timed out",
		Details:   fmt.Sprintf("page: %d", page),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRemoteTimeoutError creates a retryable remote-service timeout error.
func NewRemoteTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteTimeout,
		Message:   "Remote relevance service timed out",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRemoteUnavailableError creates a retryable remote-service availability error.
func NewRemoteUnavailableError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteUnavailable,
		Message:   "Remote relevance service unavailable",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRemoteInternalError creates a retryable remote-service internal error.
func NewRemoteInternalError(operation string, status int) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteInternal,
		Message:   "Remote relevance service internal error",
		Details:   fmt.Sprintf("operation: %s, status: %d", operation, status),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRemoteNotFoundError creates a non-retryable remote-record error.
// Callers handle it with an alternate code path (update falls through to
// create), never by retrying.
func NewRemoteNotFoundError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteNotFound,
		Message:   "Remote job record not found",
		Details:   fmt.Sprintf("remoteName: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRemoteAlreadyExistsError creates a non-retryable remote-record error.
func NewRemoteAlreadyExistsError(requisitionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteAlreadyExists,
		Message:   "Remote job record already exists",
		Details:   fmt.Sprintf("requisitionId: %s", requisitionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRemotePermissionDeniedError creates a non-retryable authorization error.
func NewRemotePermissionDeniedError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemotePermissionDenied,
		Message:   "Remote relevance service denied the request",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordConflictError creates a non-retryable unique-constraint error.
// The sync pipeline resolves it by falling through to the update path.
func NewRecordConflictError(externalID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordConflict,
		Message:   "Job record already exists",
		Details:   fmt.Sprintf("externalId: %s, error: %s", externalID, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordValidationFailedError creates a non-retryable validation error.
// The offending posting is skipped and counted as failed, never aborting
// the batch.
func NewRecordValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordValidationFailed,
		Message:   "Normalized job record failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError creates a retryable record-store error.
func NewStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Record store operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryTooShortError creates a non-retryable match-input error.
func NewQueryTooShortError(minLen int) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryTooShort,
		Message:   "Query text below minimum length",
		Details:   fmt.Sprintf("minimum: %d characters", minLen),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a retryable result-cache error.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Result cache operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// CodeOf extracts the error code from err, or "" when err is not a
// StandardError.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsRetryable reports whether err is a retryable StandardError. Unknown
// error types are treated as non-retryable.
func IsRetryable(err error) bool {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
