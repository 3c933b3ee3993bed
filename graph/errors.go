package graph

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a category of store failure.
type ErrorCode string

const (
	// ErrCodeConnectionFailed indicates the store could not be reached.
	ErrCodeConnectionFailed ErrorCode = "GRAPH_CONNECTION_FAILED"

	// ErrCodeQueryFailed indicates a query or mutation failed to execute.
	ErrCodeQueryFailed ErrorCode = "GRAPH_QUERY_FAILED"

	// ErrCodeNodeNotFound indicates a node required by the operation does
	// not exist.
	ErrCodeNodeNotFound ErrorCode = "GRAPH_NODE_NOT_FOUND"

	// ErrCodeAmbiguousMatch indicates a query that must identify a single
	// node matched several.
	ErrCodeAmbiguousMatch ErrorCode = "GRAPH_AMBIGUOUS_MATCH"

	// ErrCodeReferenceFailed indicates a mutation created fewer
	// relationships than requested, typically because an endpoint is
	// missing.
	ErrCodeReferenceFailed ErrorCode = "GRAPH_REFERENCE_FAILED"

	// ErrCodeConfigInvalid indicates invalid store configuration.
	ErrCodeConfigInvalid ErrorCode = "GRAPH_CONFIG_INVALID"

	// ErrCodeStoreClosed indicates the store was used after Close.
	ErrCodeStoreClosed ErrorCode = "GRAPH_STORE_CLOSED"

	// ErrCodeStorageFailed indicates the persistence layer failed, leaving
	// the store possibly diverged from disk.
	ErrCodeStorageFailed ErrorCode = "GRAPH_STORAGE_FAILED"
)

// Error is the structured error type returned by Store implementations.
// Code classifies the failure, Context carries operation details, and
// Retryable hints whether the same call may succeed later.
type Error struct {
	Code      ErrorCode
	Message   string
	Cause     error
	Context   map[string]any
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a graph error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithContext attaches a key/value detail to the error and returns it.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewConnectionError creates a retryable connection failure.
func NewConnectionError(message string, cause error) *Error {
	return &Error{
		Code:      ErrCodeConnectionFailed,
		Message:   message,
		Cause:     cause,
		Retryable: true,
	}
}

// NewQueryError creates a query execution failure.
func NewQueryError(message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeQueryFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewNodeNotFoundError creates an error for a missing node.
func NewNodeNotFoundError(message string) *Error {
	return &Error{
		Code:    ErrCodeNodeNotFound,
		Message: message,
	}
}

// NewAmbiguousMatchError creates an error for a query that matched several
// nodes where exactly one was required.
func NewAmbiguousMatchError(message string) *Error {
	return &Error{
		Code:    ErrCodeAmbiguousMatch,
		Message: message,
	}
}

// NewReferenceError creates an error for a mutation that created fewer
// relationships than requested. The counts are attached as context.
func NewReferenceError(message string, expected, actual int) *Error {
	e := &Error{
		Code:    ErrCodeReferenceFailed,
		Message: fmt.Sprintf("%s: expected %d relationships, created %d", message, expected, actual),
	}
	return e.WithContext("expected", expected).WithContext("actual", actual)
}

// NewConfigError creates a configuration validation failure.
func NewConfigError(message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeConfigInvalid,
		Message: message,
		Cause:   cause,
	}
}

// NewClosedError creates an error for operations on a closed store.
func NewClosedError(operation string) *Error {
	return &Error{
		Code:    ErrCodeStoreClosed,
		Message: fmt.Sprintf("store is closed: %s", operation),
	}
}

// NewStorageError creates a retryable persistence failure.
func NewStorageError(message string, cause error) *Error {
	return &Error{
		Code:      ErrCodeStorageFailed,
		Message:   message,
		Cause:     cause,
		Retryable: true,
	}
}
