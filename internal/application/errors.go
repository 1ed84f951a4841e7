package application

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrHoldNotFound is returned when a hold is missing or already expired.
	ErrHoldNotFound = errors.New("application: hold not found or expired")
	// ErrHoldConflict is returned when every candidate plan lost its tables
	// to a concurrent hold or assignment.
	ErrHoldConflict = errors.New("application: hold conflict")
	// ErrAssignmentConflict is returned when confirming a hold races with a
	// concurrent confirmation on the same tables or booking.
	ErrAssignmentConflict = errors.New("application: assignment conflict")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}
