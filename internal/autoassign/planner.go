// Package autoassign re-attempts table allocation for bookings whose inline
// attempt failed. Attempt planning is a pure function so escalation behavior
// is testable without a scheduler.
package autoassign

import "time"

// FailureKind classifies the most recent allocation failure for a booking.
type FailureKind string

const (
	// FailureNone means no prior attempt or a clean slate.
	FailureNone FailureKind = ""
	// FailureHard means no feasible capacity existed.
	FailureHard FailureKind = "hard"
	// FailureTimeout means the inline attempt ran out of time.
	FailureTimeout FailureKind = "timeout"
	// FailureConflict means a hold or confirm race was lost.
	FailureConflict FailureKind = "conflict"
	// FailurePolicy means the booking window was rejected by service policy.
	FailurePolicy FailureKind = "policy"
)

// PolicyVersion selects between the current and the compatibility retry
// policies.
type PolicyVersion string

const (
	// PolicyStrict is the current policy: a recent hard failure halves the
	// budget and skips the first attempt.
	PolicyStrict PolicyVersion = "strict"
	// PolicyLegacy never skips the first attempt and keeps the full budget
	// after hard failures.
	PolicyLegacy PolicyVersion = "legacy"
)

// DefaultMaxAttempts is the base attempt budget per booking per run.
const DefaultMaxAttempts = 3

// RecentFailureWindow bounds how long a hard failure keeps influencing the
// plan.
const RecentFailureWindow = 10 * time.Minute

// RelaxedMaxTables caps merged plans when the plan relaxes adjacency.
const RelaxedMaxTables = 4

// Outcome is the recorded result of the most recent allocation attempt.
type Outcome struct {
	Kind FailureKind
	At   time.Time
}

// AttemptPlan is the escalation strategy for one booking.
type AttemptPlan struct {
	MaxAttempts int
	// SkipFirst drops the initial attempt, leaving only relaxed retries.
	SkipFirst bool
	// RelaxAdjacency forces RequireAdjacency off from the first attempt.
	RelaxAdjacency bool
	// MaxTablesCap caps the table count when positive.
	MaxTablesCap int
}

// PlanAttempts derives the attempt plan from the prior outcome and the
// active policy version.
func PlanAttempts(prior Outcome, version PolicyVersion, now time.Time) AttemptPlan {
	plan := AttemptPlan{MaxAttempts: DefaultMaxAttempts}

	switch prior.Kind {
	case FailureHard:
		if !recent(prior.At, now) {
			return plan
		}
		if version == PolicyLegacy {
			return plan
		}
		plan.MaxAttempts = 2
		plan.SkipFirst = true
	case FailureTimeout:
		plan.RelaxAdjacency = true
		plan.MaxTablesCap = RelaxedMaxTables
	}

	return plan
}

func recent(at, now time.Time) bool {
	if at.IsZero() {
		return false
	}
	return now.Sub(at) <= RecentFailureWindow
}
