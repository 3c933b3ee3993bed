package neoschema

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a category of engine failure.
type ErrorCode string

const (
	// ErrCodeSchemaViolation indicates an operation the schema does not
	// permit: an undeclared property on a strict class, an undeclared
	// relationship, or a class that forbids data nodes.
	ErrCodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// ErrCodeDuplicateName indicates a name or identity that must be
	// unique already exists.
	ErrCodeDuplicateName ErrorCode = "DUPLICATE_NAME"

	// ErrCodeNotFound indicates a class, property, namespace, or data
	// node the operation requires does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeReferenceFailed indicates a mutation touched fewer entities
	// than required, typically a relationship whose other end is missing.
	ErrCodeReferenceFailed ErrorCode = "REFERENCE_FAILED"

	// ErrCodeValidationFailed indicates malformed input rejected before
	// any write: blank names, conflicting options, unsupported shapes.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// ErrCodeImportFailed indicates a bulk or tree import aborted, with
	// the failing batch or record named in the context.
	ErrCodeImportFailed ErrorCode = "IMPORT_FAILED"
)

// Error is the structured error type returned by the engine. Code
// classifies the failure, Context carries the offending entities, and
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

// Is reports whether target is an engine error with the same code.
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

// NewSchemaViolationError creates an error for an operation the schema
// forbids.
func NewSchemaViolationError(message string) *Error {
	return &Error{
		Code:    ErrCodeSchemaViolation,
		Message: message,
	}
}

// NewDuplicateError creates an error for a name that already exists.
func NewDuplicateError(message string) *Error {
	return &Error{
		Code:    ErrCodeDuplicateName,
		Message: message,
	}
}

// NewNotFoundError creates an error for a missing entity.
func NewNotFoundError(message string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NewReferenceError creates an error for a mutation that touched fewer
// entities than required.
func NewReferenceError(message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeReferenceFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates an error for input rejected before any write.
func NewValidationError(message string) *Error {
	return &Error{
		Code:    ErrCodeValidationFailed,
		Message: message,
	}
}

// NewImportError creates an error for an aborted import.
func NewImportError(message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeImportFailed,
		Message: message,
		Cause:   cause,
	}
}
