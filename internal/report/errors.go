package report

import "errors"

// Service errors.
var (
	// ErrNotFound is returned when no report exists for the given ID.
	ErrNotFound = errors.New("report not found")

	// ErrForbidden is returned when the caller does not own the report.
	ErrForbidden = errors.New("not authorized to access this report")
)
