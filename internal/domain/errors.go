package domain

import "errors"

var (
	// ErrValidation marks malformed or incomplete input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a state transition that is no longer allowed.
	ErrConflict = errors.New("conflict")
	// ErrNoCandidates marks a batch that produced no usable flights or hotels.
	ErrNoCandidates = errors.New("no candidates")
)
