package attendance

import "errors"

// ErrDuplicate is returned by the ledger when an insert collides with the
// (student, room, course, day) uniqueness constraint. Callers treat it as
// the "already marked" outcome, never as a failure.
var ErrDuplicate = errors.New("attendance already recorded for this context")

// ValidationError carries field-level messages for malformed input.
// Surfaced over HTTP as 422.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string { return "validation failed" }

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {msg}}}
}

// NotFoundError is a user-visible, non-fatal miss (unknown student code,
// room or attendance id). Surfaced over HTTP as 404.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }
