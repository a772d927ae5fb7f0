// Package errors provides error types shared across nbrun: domain sentinels
// for run outcomes, a MultiError for collecting teardown failures, and panic
// recovery helpers for the runner boundary.
package errors

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Domain sentinels. Callers wrap these with fmt.Errorf("...: %w", ...) and
// match with errors.Is.
var (
	// ErrInvalidRange reports a malformed or out-of-bounds cell range spec.
	ErrInvalidRange = errors.New("invalid cell range")

	// ErrNotReady reports that the kernel failed to become ready within the
	// startup deadline.
	ErrNotReady = errors.New("kernel not ready")

	// ErrExecTimeout reports that a cell exceeded its execution deadline.
	ErrExecTimeout = errors.New("cell execution timed out")

	// ErrExecFailed reports a kernel-side execution failure for a cell.
	ErrExecFailed = errors.New("cell execution failed")

	// ErrTransport reports a communication fault with the kernel process.
	ErrTransport = errors.New("kernel transport error")
)

// MultiError collects multiple errors into one. Used during cleanup where
// every teardown step must run even when earlier steps fail.
type MultiError struct {
	Errors []error
}

// Append adds an error to the collection. Nil errors are ignored.
func (m *MultiError) Append(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// ErrorOrNil returns nil when no errors were collected, the single error when
// exactly one was, and the MultiError itself otherwise.
func (m *MultiError) ErrorOrNil() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors occurred: %s", len(m.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected errors to errors.Is / errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// PanicError wraps a recovered panic with its stack trace.
type PanicError struct {
	Value      any
	StackTrace string
}

// Error implements the error interface.
func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Recover runs fn and converts a panic into a *PanicError. Errors returned by
// fn pass through unchanged.
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				Value:      r,
				StackTrace: string(debug.Stack()),
			}
		}
	}()
	return fn()
}

// NewTransientError wraps an error with the operation that produced it.
// Transient errors are recorded during teardown but never abort it.
func NewTransientError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
