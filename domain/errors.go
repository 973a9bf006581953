package domain

import "errors"

var (
	// ErrTaskNotFound is returned when a task is absent or owned by someone else.
	ErrTaskNotFound = errors.New("task not found")
	// ErrUnauthorized is returned when no verified owner identity is available.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation is the sentinel wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports a missing or malformed field in a request. Reason is
// a complete, user facing sentence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrValidation }
