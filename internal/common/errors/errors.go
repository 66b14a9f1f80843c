// internal/common/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	ErrCodeStorageFailure      ErrorCode = "STORAGE_FAILURE"
	ErrCodeInvalidUnlockType   ErrorCode = "INVALID_UNLOCK_TYPE"
	ErrCodeInvalidPlan         ErrorCode = "INVALID_PLAN"
	ErrCodeAccountNotFound     ErrorCode = "ACCOUNT_NOT_FOUND"
)

// Sentinel errors for callers that branch with errors.Is. The string
// form doubles as the stable error code surfaced to the caller.
var (
	ErrInsufficientCredits = errors.New("INSUFFICIENT_CREDITS")
	ErrStorageFailure      = errors.New("STORAGE_FAILURE")
	ErrInvalidUnlockType   = errors.New("INVALID_UNLOCK_TYPE")
	ErrInvalidPlan         = errors.New("INVALID_PLAN")
	ErrAccountNotFound     = errors.New("ACCOUNT_NOT_FOUND")
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

// Unwrap maps structured errors back to their sentinel so callers can
// use errors.Is on either form.
func (e *StandardError) Unwrap() error {
	switch e.Code {
	case ErrCodeInsufficientCredits:
		return ErrInsufficientCredits
	case ErrCodeStorageFailure:
		return ErrStorageFailure
	case ErrCodeInvalidUnlockType:
		return ErrInvalidUnlockType
	case ErrCodeInvalidPlan:
		return ErrInvalidPlan
	case ErrCodeAccountNotFound:
		return ErrAccountNotFound
	default:
		return nil
	}
}

// NewInsufficientCreditsError creates a non-retryable balance error.
// No mutation has occurred when this is returned.
func NewInsufficientCreditsError(balance, required int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeInsufficientCredits,
		Message:   "Insufficient credits",
		Details:   fmt.Sprintf("balance: %d, required: %d", balance, required),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageFailureError creates a retryable storage error. Retry
// policy belongs to the transport layer, not the core.
func NewStorageFailureError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageFailure,
		Message:   "Storage operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidUnlockTypeError creates a non-retryable request error.
func NewInvalidUnlockTypeError(requested string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidUnlockType,
		Message:   "Unsupported unlock type",
		Details:   fmt.Sprintf("requested: %s", requested),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidPlanError creates a non-retryable plan error.
func NewInvalidPlanError(plan string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidPlan,
		Message:   "Unsupported subscription plan",
		Details:   fmt.Sprintf("plan: %s", plan),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAccountNotFoundError creates a non-retryable lookup error.
func NewAccountNotFoundError(userID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAccountNotFound,
		Message:   "Credit account not found",
		Details:   fmt.Sprintf("userId: %s", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsRetryable reports whether err carries a retryable StandardError.
func IsRetryable(err error) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
