package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected during engine execution.
//
// Rejections are not errors. A RuntimeError means the engine can no longer
// trust its own state.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Cascade identifies the cascade being processed.
	Cascade string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeIndexDiverged indicates a spatial index no longer mirrors state.
	ErrCodeIndexDiverged RuntimeErrorCode = "INDEX_DIVERGED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Cascade != "" {
		return fmt.Sprintf("%s: %s (cascade=%s)", e.Code, e.Message, e.Cascade)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsIndexDivergedError returns true if the error reports a diverged index.
func IsIndexDivergedError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeIndexDiverged
	}
	return false
}

// NewIndexDivergedError creates a RuntimeError for an index that failed
// verification after processing seq.
func NewIndexDivergedError(cascade string, seq int64, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeIndexDiverged,
		Message: "spatial index does not mirror committed state",
		Cascade: cascade,
		Details: map[string]string{"seq": fmt.Sprintf("%d", seq)},
		Err:     cause,
	}
}
