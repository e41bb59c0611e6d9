// Package errors provides the error taxonomy shared by the engines and stores.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	ErrInput     = errors.New("invalid input")
	ErrNotFound  = errors.New("not found")
	ErrRetrieval = errors.New("retrieval failed")
)

// InputError reports malformed or empty input where usable input was required.
type InputError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *InputError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid input: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Is makes errors.Is(err, ErrInput) true.
func (e *InputError) Is(target error) bool { return target == ErrInput }

// NewInputError creates a new InputError.
func NewInputError(field string, value interface{}, message string) *InputError {
	return &InputError{Field: field, Value: value, Message: message}
}

// NotFoundError reports a missing instrument, owner, portfolio or price.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// RetrievalError wraps a failed collaborator call. It is never masked as an empty result.
type RetrievalError struct {
	Op     string
	Target string
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("retrieval failed [%s]: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("retrieval failed [%s] %s: %v", e.Op, e.Target, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// NewRetrievalError creates a new RetrievalError.
func NewRetrievalError(op, target string, err error) *RetrievalError {
	return &RetrievalError{Op: op, Target: target, Err: err}
}

// IsInput reports whether err is an input error.
func IsInput(err error) bool { return errors.Is(err, ErrInput) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRetrieval reports whether err is a retrieval failure.
func IsRetrieval(err error) bool { return errors.Is(err, ErrRetrieval) }
