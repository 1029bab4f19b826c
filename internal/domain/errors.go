package domain

import "errors"

var (
	// ErrValidation marks malformed, oversized, or out-of-range input.
	// Requests failing validation are rejected before persistence and
	// never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown notification or template id.
	ErrNotFound = errors.New("not found")

	// ErrPermission marks an id that exists but is owned by another
	// recipient. Kept distinct from ErrNotFound so callers can tell
	// ownership violations apart from missing records.
	ErrPermission = errors.New("permission denied")

	// ErrConflict marks an operation that lost against the record's
	// current state, e.g. an illegal status transition.
	ErrConflict = errors.New("conflict")

	// ErrUnsupportedChannel marks a dispatch against a channel that is
	// declared but has no transport (SMS).
	ErrUnsupportedChannel = errors.New("unsupported channel")
)
