package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for metaworkflow errors.
type ErrorCode string

// Step failure taxonomy. These codes classify why a step (and by
// extension an execution) failed.
const (
	VALIDATION_ERROR ErrorCode = "VALIDATION_ERROR"
	SCRIPT_FAILURE   ErrorCode = "SCRIPT_FAILURE"
	NETWORK_FAILURE  ErrorCode = "NETWORK_FAILURE"
	HTTP_ERROR       ErrorCode = "HTTP_ERROR"
	EVALUATION_ERROR ErrorCode = "EVALUATION_ERROR"
	TIMEOUT_ERROR    ErrorCode = "TIMEOUT_ERROR"
	CANCELLED_ERROR  ErrorCode = "CANCELLED_ERROR"
	INTERNAL_ERROR   ErrorCode = "INTERNAL_ERROR"
)

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Database error codes
const (
	DB_OPEN_FAILED      ErrorCode = "DB_OPEN_FAILED"
	DB_MIGRATION_FAILED ErrorCode = "DB_MIGRATION_FAILED"
	DB_QUERY_FAILED     ErrorCode = "DB_QUERY_FAILED"
	DB_TX_FAILED        ErrorCode = "DB_TX_FAILED"
)

// Workflow store error codes
const (
	WORKFLOW_NOT_FOUND    ErrorCode = "WORKFLOW_NOT_FOUND"
	WORKFLOW_INVALID      ErrorCode = "WORKFLOW_INVALID"
	STEP_INVALID          ErrorCode = "STEP_INVALID"
	VERSION_NOT_FOUND     ErrorCode = "VERSION_NOT_FOUND"
	FOLDER_NOT_FOUND      ErrorCode = "FOLDER_NOT_FOUND"
	TRIGGER_NOT_FOUND     ErrorCode = "TRIGGER_NOT_FOUND"
	EXECUTION_NOT_FOUND   ErrorCode = "EXECUTION_NOT_FOUND"
	EXECUTION_NOT_WAITING ErrorCode = "EXECUTION_NOT_WAITING"
)

// Knowledge and retrieval error codes
const (
	KNOWLEDGE_NOT_FOUND     ErrorCode = "KNOWLEDGE_NOT_FOUND"
	KNOWLEDGE_INGEST_FAILED ErrorCode = "KNOWLEDGE_INGEST_FAILED"
	EMBEDDING_FAILED        ErrorCode = "EMBEDDING_FAILED"
	VECTOR_STORE_FAILED     ErrorCode = "VECTOR_STORE_FAILED"
	DOMAIN_INVALID          ErrorCode = "DOMAIN_INVALID"
)

// LLM error codes
const (
	LLM_NOT_CONFIGURED    ErrorCode = "LLM_NOT_CONFIGURED"
	LLM_COMPLETION_FAILED ErrorCode = "LLM_COMPLETION_FAILED"
)

// FlowError represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for error handling logic.
type FlowError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
// Format: "[CODE] message" or "[CODE] message: cause" if a cause exists.
func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error unwrapping chains,
// enabling errors.Is() and errors.As() over wrapped errors.
func (e *FlowError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code: target matches when it is a FlowError
// carrying the same Code.
func (e *FlowError) Is(target error) bool {
	var flowErr *FlowError
	if errors.As(target, &flowErr) {
		return e.Code == flowErr.Code
	}
	return false
}

// NewError creates a new non-retryable FlowError with the given code and message.
func NewError(code ErrorCode, message string) *FlowError {
	return &FlowError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewRetryableError creates a new retryable FlowError.
// Use for transient conditions that may succeed on retry (network timeouts,
// retryable HTTP statuses).
func NewRetryableError(code ErrorCode, message string) *FlowError {
	return &FlowError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     nil,
	}
}

// WrapError creates a non-retryable FlowError that wraps an existing error.
// The wrapped error stays accessible via Unwrap().
func WrapError(code ErrorCode, message string, cause error) *FlowError {
	return &FlowError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// IsRetryable reports whether err (or any error in its chain) is a
// FlowError marked retryable.
func IsRetryable(err error) bool {
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Retryable
	}
	return false
}
