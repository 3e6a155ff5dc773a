package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Worker process errors
	ErrCodeWorkerSpawnFailed ErrorCode = "WORKER_SPAWN_FAILED"
	ErrCodeWorkerExited      ErrorCode = "WORKER_EXITED"
	ErrCodeChannelClosed     ErrorCode = "CHANNEL_CLOSED"

	// Protocol errors
	ErrCodeRequestFailed  ErrorCode = "REQUEST_FAILED"
	ErrCodeRequestTimeout ErrorCode = "REQUEST_TIMEOUT"
	ErrCodeMalformedFrame ErrorCode = "MALFORMED_FRAME"

	// Discovery errors
	ErrCodeRecordInvalid  ErrorCode = "RECORD_INVALID"
	ErrCodeEnvNotFound    ErrorCode = "ENV_NOT_FOUND"
	ErrCodeRefreshFailed  ErrorCode = "REFRESH_FAILED"
	ErrCodeResolveFailed  ErrorCode = "RESOLVE_FAILED"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// ScoutError represents a structured error with context
type ScoutError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *ScoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *ScoutError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *ScoutError) WithDetail(key string, value interface{}) *ScoutError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *ScoutError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new ScoutError
func New(code ErrorCode, message string) *ScoutError {
	return &ScoutError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a ScoutError
func Wrap(err error, code ErrorCode, message string) *ScoutError {
	return &ScoutError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific ScoutError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	scoutErr, ok := err.(*ScoutError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return scoutErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	scoutErr, ok := err.(*ScoutError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return scoutErr.Code
}
