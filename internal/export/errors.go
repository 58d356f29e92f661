package export

import (
	"errors"
	"fmt"
)

// Service errors. The transport layer maps these to HTTP responses:
// ErrNotFound → 404, ErrForbidden → 403, ErrGone → 410,
// UnprocessableStateError → 422, InternalError → 500.
var (
	// ErrNotFound is returned when no job exists for the given ID.
	ErrNotFound = errors.New("export job not found")

	// ErrForbidden is returned when the requester does not own the job.
	ErrForbidden = errors.New("not authorized to access this export")

	// ErrGone is returned when the artifact has expired.
	ErrGone = errors.New("export has expired")

	// ErrInvalidTransition is returned by the store when a conditional
	// transition update matched no row (the job moved on concurrently).
	ErrInvalidTransition = errors.New("invalid status transition")
)

// UnprocessableStateError indicates an action that is not valid for the
// job's current status (download before completion, cancel of a terminal
// job, retry of a non-failed job).
type UnprocessableStateError struct {
	Action string
	Status Status
}

func (e *UnprocessableStateError) Error() string {
	return fmt.Sprintf("cannot %s export in status %s", e.Action, e.Status)
}

// InternalError indicates a persisted record that violates the pipeline's
// invariants (e.g. a COMPLETED job missing its file path). This is a store
// or producer bug, not a user error.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string {
	return "export record inconsistent: " + e.Reason
}
