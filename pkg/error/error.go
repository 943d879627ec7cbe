package error

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorCategory classifies errors by their nature and appropriate handling strategy.
type ErrorCategory int

const (
	// ErrCategoryUser represents errors caused by invalid requests, such as
	// asking for a page outside a table file's bounds.
	ErrCategoryUser ErrorCategory = iota

	// ErrCategoryTransient represents errors that may succeed once the caller
	// has released resources, e.g. a buffer pool full of dirty pages.
	ErrCategoryTransient

	// ErrCategorySystem represents I/O and environment failures.
	ErrCategorySystem

	// ErrCategoryConcurrency represents errors from concurrent transaction
	// conflicts. The transaction must abort.
	ErrCategoryConcurrency

	// ErrCategoryInternal represents broken internal invariants.
	ErrCategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryUser:
		return "USER"
	case ErrCategoryTransient:
		return "TRANSIENT"
	case ErrCategorySystem:
		return "SYSTEM"
	case ErrCategoryConcurrency:
		return "CONCURRENCY"
	case ErrCategoryInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// DBError represents a structured database error with rich context information.
type DBError struct {
	// Code is a unique identifier for this error type (e.g., "DEADLOCK_DETECTED").
	Code string

	// Category classifies the error for appropriate handling strategy.
	Category ErrorCategory

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail provides additional context about the specific error instance.
	Detail string

	// Operation identifies the operation that was being performed, e.g. "GetPage".
	Operation string

	// Component identifies where the error originated, e.g. "BufferPool".
	Component string

	// Cause is the underlying error that triggered this database error.
	Cause error

	// Stack contains the call stack where this error was created.
	Stack []uintptr
}

// New creates a new DBError with the specified code, category, and message.
func New(category ErrorCategory, code, message string) *DBError {
	return &DBError{
		Code:     code,
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
}

// Wrap wraps an existing error with database-specific context information.
// If the error is already a DBError, it enriches the existing error with
// operation and component context (only if not already set).
func Wrap(err error, code, operation, component string) *DBError {
	if err == nil {
		return nil
	}

	if dbErr, ok := err.(*DBError); ok {
		if dbErr.Operation == "" {
			dbErr.Operation = operation
		}
		if dbErr.Component == "" {
			dbErr.Component = component
		}
		return dbErr
	}

	return &DBError{
		Code:      code,
		Category:  ErrCategorySystem,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// Newf creates an error instance from a sentinel, keeping its code and
// category and attaching a formatted detail, the operation and component.
// The result matches the sentinel with errors.Is.
func Newf(sentinel *DBError, operation, component, format string, args ...any) *DBError {
	return &DBError{
		Code:      sentinel.Code,
		Category:  sentinel.Category,
		Message:   sentinel.Message,
		Detail:    fmt.Sprintf(format, args...),
		Operation: operation,
		Component: component,
		Stack:     captureStack(),
	}
}

// WithCause is Newf with an underlying cause, e.g. the os error behind an
// I/O failure.
func WithCause(sentinel *DBError, cause error, operation, component, format string, args ...any) *DBError {
	e := Newf(sentinel, operation, component, format, args...)
	e.Cause = cause
	return e
}

// captureStack skips runtime.Callers, captureStack and the constructor.
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the standard Go error interface
//
// The format follows the pattern:
// [ERROR_CODE] Message: Detail (operation: Operation, component: Component) caused by: underlying error
func (e *DBError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}

	if e.Operation != "" {
		fmt.Fprintf(&b, " (operation: %s", e.Operation)
		if e.Component != "" {
			fmt.Fprintf(&b, ", component: %s", e.Component)
		}
		b.WriteString(")")
	}

	if e.Cause != nil {
		fmt.Fprintf(&b, " caused by: %v", e.Cause)
	}

	return b.String()
}

// Unwrap returns the underlying cause error, enabling error chain traversal
// with Go's standard error handling functions like errors.Is and errors.As.
func (e *DBError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DBError with the same code, so every
// instance created from a sentinel matches that sentinel.
func (e *DBError) Is(target error) bool {
	t, ok := target.(*DBError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// FormatStack returns a human-readable stack trace for debugging purposes.
func (e *DBError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "  %s\n    %s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}

	return b.String()
}
