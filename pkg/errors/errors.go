package errors

import (
	"errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// ContextError is an error annotated with a description of the operation
// that failed. The chain of contexts reads like a call stack when printed.
type ContextError struct {
	Context string
	Err     error
}

// WithContext annotates err with the operation that produced it.
func WithContext(err error, context string) error {
	return ContextError{Context: context, Err: err}
}

func (err ContextError) Error() string {
	return fmt.Sprintf("%s: %s", err.Context, err.Err)
}

// Unwrap returns the wrapped error so that errors.Is and errors.As can
// traverse the context chain.
func (err ContextError) Unwrap() error {
	return err.Err
}

// FriendlyError is an error whose message is meant to be shown to the
// operator verbatim, without any context chain prepended.
type FriendlyError struct {
	Message string
}

// NewFriendlyError creates a FriendlyError with a formatted message.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}

func (err FriendlyError) Error() string {
	return err.Message
}

// friendlier is implemented by errors that can render an operator-facing
// message distinct from their Error() string.
type friendlier interface {
	FriendlyMessage() string
}

// GetPrintableMessage returns the message that should be printed to the
// operator for the given error. If any error in the chain is a
// FriendlyError (or provides a FriendlyMessage), that message is used.
// Otherwise, the full error string is returned.
func GetPrintableMessage(err error) string {
	for curr := err; curr != nil; curr = errors.Unwrap(curr) {
		if friendly, ok := curr.(FriendlyError); ok {
			return friendly.Message
		}
		if friendly, ok := curr.(friendlier); ok {
			return friendly.FriendlyMessage()
		}
	}
	return err.Error()
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
