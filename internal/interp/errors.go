package interp

import (
	"errors"
	"fmt"
)

// ErrEmptyTrainingSet is returned when a fit is attempted with no training
// points.
var ErrEmptyTrainingSet = errors.New("training set is empty")

// ErrDimensionMismatch is returned when the lengths of the points and values
// sequences disagree, when a training point does not share the model
// dimension, or when a query point does not share the model dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidKernel is returned when a kernel tag cannot be resolved to a
// kernel function.
type ErrInvalidKernel struct {
	Name string
}

func (e *ErrInvalidKernel) Error() string {
	return fmt.Sprintf("invalid kernel %q", e.Name)
}

// ErrSingularMatrix is returned when the interpolation system is numerically
// degenerate: after pivot selection the pivot magnitude fell below the solver
// threshold. This usually means duplicate or near-duplicate training points
// with too little smoothing.
type ErrSingularMatrix struct {
	Column int
	Pivot  float64
}

func (e *ErrSingularMatrix) Error() string {
	return fmt.Sprintf("singular matrix: pivot %g in column %d below threshold", e.Pivot, e.Column)
}

// Error represents an interpolation error with context that can be wrapped
// with additional information.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewError creates a new interpolation error with the given message.
func NewError(message string) *Error {
	return &Error{
		Message: message,
	}
}

// NewErrorf creates a new interpolation error with formatted message.
func NewErrorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with additional context.
// If err is nil, WrapError returns nil.
func WrapError(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: message,
		Err:     err,
	}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsInterpError checks if an error is of type Error.
// If it is, it returns the error and true; otherwise nil and false.
func IsInterpError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
