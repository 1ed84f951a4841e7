// Package lifecycle defines the booking status state machine. Status changes
// anywhere in the system go through ValidateTransition so illegal moves fail
// with a stable code instead of being silently coerced.
package lifecycle

import "fmt"

// Status is a booking lifecycle state.
type Status string

const (
	StatusPending           Status = "pending"
	StatusPendingAllocation Status = "pending_allocation"
	StatusConfirmed         Status = "confirmed"
	StatusCheckedIn         Status = "checked_in"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusNoShow            Status = "no_show"
)

// Stable error codes surfaced to callers.
const (
	CodeTransitionNotAllowed = "TRANSITION_NOT_ALLOWED"
	CodeAlreadyInState       = "ALREADY_IN_STATE"
	CodeUnknownStatus        = "UNKNOWN_STATUS"
)

// transitions is the allowed-move DAG. Cancellation and no-show are reachable
// from every pre-completion state; terminal states have no exits.
var transitions = map[Status][]Status{
	StatusPending:           {StatusPendingAllocation, StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusPendingAllocation: {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:         {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:         {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted:         nil,
	StatusCancelled:         nil,
	StatusNoShow:            nil,
}

// Known reports whether the status is a recognized lifecycle state.
func Known(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether the status has no outgoing transitions.
func Terminal(s Status) bool {
	targets, ok := transitions[s]
	return ok && len(targets) == 0
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	Code string
	From Status
	To   Status
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("lifecycle: %s (%s -> %s)", e.Code, e.From, e.To)
}

// Options adjusts transition validation.
type Options struct {
	// AllowSameState permits from == to, used by idempotent confirm retries.
	AllowSameState bool
}

// CanTransition is a pure predicate over the transition DAG. Same-state moves
// and moves from unknown states report false.
func CanTransition(from, to Status) bool {
	if !Known(from) || !Known(to) || from == to {
		return false
	}
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// ValidateTransition checks a status change and returns a coded
// TransitionError on violation.
func ValidateTransition(from, to Status, opts Options) error {
	if !Known(from) {
		return &TransitionError{Code: CodeUnknownStatus, From: from, To: to}
	}
	if from == to {
		if opts.AllowSameState {
			return nil
		}
		return &TransitionError{Code: CodeAlreadyInState, From: from, To: to}
	}
	if !Known(to) || !CanTransition(from, to) {
		return &TransitionError{Code: CodeTransitionNotAllowed, From: from, To: to}
	}
	return nil
}

// AssertTransition validates with default options: same-state moves rejected.
func AssertTransition(from, to Status) error {
	return ValidateTransition(from, to, Options{})
}
