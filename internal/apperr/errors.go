// Package apperr holds the error values shared by the hierarchy, metrics and
// contest packages. Callers match them with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyEnrolled = errors.New("already enrolled")
	// ErrHierarchyCycle means an upline walk ran past its hop bound. It points
	// at a cycle written into the graph and must never be swallowed.
	ErrHierarchyCycle  = errors.New("hierarchy cycle detected")
	ErrInvalidRole     = errors.New("invalid role")
	ErrMobileTaken     = errors.New("mobile number already registered")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
)

// StitchFailure records one orphan that could not be linked to its new upline.
type StitchFailure struct {
	OrphanID string
	Err      error
}

func (f StitchFailure) Error() string {
	return fmt.Sprintf("stitch orphan %s: %v", f.OrphanID, f.Err)
}

func (f StitchFailure) Unwrap() error { return f.Err }
