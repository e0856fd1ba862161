package analyzer

import (
	"errors"
	"fmt"
)

var (
	// ErrInstrumented is returned for classes that already carry coverage
	// instrumentation.
	ErrInstrumented = errors.New("class is already instrumented")

	// ErrDuplicateClass is returned when a bundle contains the same class
	// name twice with different content.
	ErrDuplicateClass = errors.New("duplicate class with different content")
)

// ClassError records a class or archive entry that could not be analyzed.
// Analysis of the surrounding bundle continues.
type ClassError struct {
	Location string
	Err      error
}

// Error implements the error interface.
func (e *ClassError) Error() string {
	return fmt.Sprintf("%s: %v", e.Location, e.Err)
}

// Unwrap returns the underlying error.
func (e *ClassError) Unwrap() error {
	return e.Err
}
