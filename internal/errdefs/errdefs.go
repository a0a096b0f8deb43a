// Package errdefs defines the error taxonomy shared by every bcnn package.
//
// Three kinds of failure exist:
//   - ErrInvalidConfiguration: unknown freeze mode, partition, version or a
//     malformed option value. Returned, never retried.
//   - ErrShapeViolation: a tensor did not have the expected shape at a
//     pipeline checkpoint. Raised as a panic carrying *ShapeError.
//   - ErrIO: an image, ground-truth table, task document or checkpoint could
//     not be read or written. Returned as *IOError.
package errdefs

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrShapeViolation       = errors.New("shape violation")
	ErrIO                   = errors.New("io failure")
)

// Invalid returns an ErrInvalidConfiguration error with a formatted detail.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// ShapeError describes a tensor that failed a shape checkpoint.
type ShapeError struct {
	Stage    string // Pipeline checkpoint (e.g. "input", "features", "embedding")
	Want     []int  // Expected shape, nil when only the rank is checked
	WantRank int
	Got      []int
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Want == nil {
		return fmt.Sprintf("%s: %s: expected rank %d, got shape %v", ErrShapeViolation, e.Stage, e.WantRank, e.Got)
	}
	return fmt.Sprintf("%s: %s: expected shape %v, got %v", ErrShapeViolation, e.Stage, e.Want, e.Got)
}

// Unwrap returns ErrShapeViolation so errors.Is matches.
func (e *ShapeError) Unwrap() error {
	return ErrShapeViolation
}

// CheckShape panics with a *ShapeError when got differs from want.
func CheckShape(stage string, got []int, want ...int) {
	if len(got) != len(want) {
		panic(&ShapeError{Stage: stage, Want: want, Got: got})
	}
	for i := range want {
		if got[i] != want[i] {
			panic(&ShapeError{Stage: stage, Want: want, Got: got})
		}
	}
}

// CheckRank panics with a *ShapeError when got does not have rank dims.
func CheckRank(stage string, got []int, rank int) {
	if len(got) != rank {
		panic(&ShapeError{Stage: stage, WantRank: rank, Got: got})
	}
}

// IOError records a failed read or write of an external file.
type IOError struct {
	Op   string // "read", "decode", "save", "load", ...
	Path string
	Err  error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes both ErrIO and the underlying cause.
func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// NewIOError wraps err as an *IOError. It returns nil when err is nil.
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}
