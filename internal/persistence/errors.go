package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when an insert collides with an existing row.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrHoldConflict is returned when a hold insert loses the exclusion
	// check against an overlapping hold or assignment.
	ErrHoldConflict = errors.New("persistence: hold conflict")
	// ErrAssignmentConflict is returned when the confirm transaction finds a
	// competing assignment already in place.
	ErrAssignmentConflict = errors.New("persistence: assignment conflict")
	// ErrStaleStatus is returned when a guarded booking status update finds
	// the row in an unexpected state.
	ErrStaleStatus = errors.New("persistence: stale booking status")
)
