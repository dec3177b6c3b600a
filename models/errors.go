package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeLaunch            = "SESSION_LAUNCH_FAILED"
	ErrCodeNavigationTimeout = "NAVIGATION_TIMEOUT"
	ErrCodeNavigation        = "NAVIGATION_FAILED"
	ErrCodeChallenge         = "CHALLENGE_UNRESOLVED"
	ErrCodeQueueTimeout      = "QUEUE_TIMEOUT"
	ErrCodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OpError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type OpError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError creates a new OpError.
func NewOpError(code, message string, err error) *OpError {
	return &OpError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *OpError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the error code of err, or ErrCodeInternal when err carries none.
func CodeOf(err error) string {
	var op *OpError
	if errors.As(err, &op) {
		return op.Code
	}
	return ErrCodeInternal
}
