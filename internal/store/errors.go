package store

import "errors"

var (
	// ErrNotFound is returned when an identifier does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("conflict")
)
