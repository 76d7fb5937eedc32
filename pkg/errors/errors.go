// SPDX-License-Identifier: Apache-2.0
// Package errors provides the typed error taxonomy shared by the kernel,
// its registries and its functions.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode classifies kernel errors for callers, logs and metrics.
type ErrorCode string

const (
	// CodeConfiguration indicates a missing or invalid service binding,
	// credential or setting. Raised eagerly at binding or registration.
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// CodeInvalidFunctionType indicates a semantic-only operation was
	// called on a native function, or the reverse.
	CodeInvalidFunctionType ErrorCode = "INVALID_FUNCTION_TYPE"

	// CodeDuplicateRegistration indicates a name collision in a registry.
	CodeDuplicateRegistration ErrorCode = "DUPLICATE_REGISTRATION"

	// CodeInvocation indicates a fault raised inside a native procedure or
	// by the AI client during a semantic call.
	CodeInvocation ErrorCode = "INVOCATION"

	// CodeFunctionNotAvailable indicates a registry lookup miss.
	CodeFunctionNotAvailable ErrorCode = "FUNCTION_NOT_AVAILABLE"

	// CodeUnknownService indicates an unknown service capability or id.
	CodeUnknownService ErrorCode = "UNKNOWN_SERVICE"

	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates rate limiting was triggered.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeMemoryError indicates a memory store error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"
)

// KernelError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type KernelError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *KernelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *KernelError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *KernelError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		StatusCode  int                    `json:"status_code"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Attributes  map[string]string      `json:"attributes,omitempty"`
	}{
		Message:     e.Message,
		Code:        string(e.Code),
		Err:         cause,
		Recoverable: e.Recoverable,
		StatusCode:  e.StatusCode,
		Context:     e.Context,
		Attributes:  e.Attributes,
	})
}

// New creates a new KernelError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *KernelError {
	return &KernelError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// Newf creates a KernelError without a cause and a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *KernelError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *KernelError) WithContext(key string, value interface{}) *KernelError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *KernelError) WithAttribute(key, value string) *KernelError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *KernelError) WithRecoverable(recoverable bool) *KernelError {
	e.Recoverable = recoverable
	return e
}

// AsKernelError returns the first KernelError in err's chain, or wraps err
// as an internal error when none is found.
func AsKernelError(err error) *KernelError {
	if err == nil {
		return nil
	}
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke
	}
	return New(CodeInternal, "wrapped error", err)
}

// Is reports whether any KernelError in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var ke *KernelError
		if !errors.As(err, &ke) {
			return false
		}
		if ke.Code == code {
			return true
		}
		err = ke.Err
	}
	return false
}

// CodeOf returns the code of the outermost KernelError in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return CodeInternal
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *KernelError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound, CodeFunctionNotAvailable, CodeUnknownService:
		return 404
	case CodeInvalidInput, CodeInvalidFunctionType:
		return 400
	case CodeDuplicateRegistration:
		return 409
	case CodeTimeout:
		return 408
	case CodeRateLimit:
		return 429
	case CodeLLMError:
		return 502
	default:
		return 500
	}
}
