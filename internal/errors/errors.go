// Package errors provides error types shared by the orchestration layer:
// panic recovery for generation backends, transient failures, and
// multi-error collection during shutdown.
package errors

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// PanicError wraps a recovered panic with its stack trace.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover runs fn and converts a panic into a *PanicError.
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, StackTrace: string(debug.Stack())}
		}
	}()
	return fn()
}

// TransientError marks a failure that a new user action may succeed on.
type TransientError struct {
	Op  string
	Err error
}

// NewTransientError wraps err as transient for the named operation.
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// MultiError collects several errors, e.g. from shutting down components.
type MultiError struct {
	Errors []error
}

// Append adds a non-nil error.
func (m *MultiError) Append(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

func (m *MultiError) Error() string {
	msgs := make([]string, 0, len(m.Errors))
	for _, err := range m.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d error(s): %s", len(m.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected errors to errors.Is / errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// ErrorOrNil returns nil when nothing was collected.
func (m *MultiError) ErrorOrNil() error {
	if m == nil || len(m.Errors) == 0 {
		return nil
	}
	return m
}
