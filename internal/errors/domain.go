package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error
type Kind string

const (
	KindSchema     Kind = "schema"
	KindType       Kind = "type"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindExpression Kind = "expression"
	KindPattern    Kind = "pattern"
	KindBoundary   Kind = "boundary"
	KindCancelled  Kind = "cancelled"
)

// Error is the structured error returned by every engine component.
// Parameter names the offending request parameter when one is known.
type Error struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Parameter string `json:"offending_parameter,omitempty"`
	Cause     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "unknown engine error"
	}
	if e.Parameter != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Parameter, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewSchemaError reports a structural inconsistency such as duplicate
// columns or a row arity mismatch.
func NewSchemaError(format string, args ...any) *Error {
	return &Error{Kind: KindSchema, Message: fmt.Sprintf(format, args...)}
}

// NewTypeError reports a value incompatible with a declared or target type.
func NewTypeError(format string, args ...any) *Error {
	return &Error{Kind: KindType, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports a referenced column or row that does not exist.
func NewNotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError reports a name collision or contradictory decisions.
func NewConflictError(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NewExpressionError reports a malformed or type-invalid derived-column
// expression.
func NewExpressionError(format string, args ...any) *Error {
	return &Error{Kind: KindExpression, Message: fmt.Sprintf(format, args...)}
}

// NewPatternError reports an invalid regular expression.
func NewPatternError(format string, args ...any) *Error {
	return &Error{Kind: KindPattern, Message: fmt.Sprintf(format, args...)}
}

// NewBoundaryError reports an undo or redo past the history bounds.
func NewBoundaryError(format string, args ...any) *Error {
	return &Error{Kind: KindBoundary, Message: fmt.Sprintf(format, args...)}
}

// NewCancelledError reports a scan aborted by the caller.
func NewCancelledError(cause error) *Error {
	return &Error{Kind: KindCancelled, Message: "operation cancelled by caller", Cause: cause}
}

// WithParameter attaches the offending parameter name.
func (e *Error) WithParameter(name string) *Error {
	e.Parameter = name
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// KindOf extracts the Kind from an error chain, or "" when the chain
// carries no engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
