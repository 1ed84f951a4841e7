// Package allocation contains the capacity allocation engine: availability
// filtering against existing assignments and holds, and combinatorial table
// selection with pruning and weighted scoring.
package allocation

import (
	"time"

	"github.com/example/table-allocator/internal/adjacency"
)

// Table is the engine's view of one physical table. It mirrors the inventory
// record but carries only the fields selection needs.
type Table struct {
	ID       string
	Number   string
	ZoneID   string
	Capacity int
	MinParty int
	MaxParty int
	Category string
	Movable  bool
}

// BusyInterval marks a table as unavailable for a time range. Intervals come
// from confirmed assignments (already extended by the post-booking buffer)
// and from unexpired holds.
type BusyInterval struct {
	TableID   string
	BookingID string
	Start     time.Time
	End       time.Time
}

// CandidatePlan is one feasible table selection for a booking, ranked by
// score (lower preferred).
type CandidatePlan struct {
	TableIDs       []string
	TableNumbers   []string
	Capacity       int
	Slack          int
	Classification adjacency.Classification
	AdjacencyLabel string
	Score          float64
}

// Skip reasons tracked by selection diagnostics.
const (
	SkipAdjacencyFrontier  = "adjacency_frontier"
	SkipCapacityUpperBound = "capacity_upper_bound"
	SkipAdjacencyMode      = "adjacency_mode"
	SkipPartySizeBounds    = "party_size_bounds"
)

// Diagnostics reports search effort for observability and regression guards.
type Diagnostics struct {
	CombinationsEvaluated int
	Skipped               map[string]int
}

func (d *Diagnostics) skip(reason string) {
	if d.Skipped == nil {
		d.Skipped = make(map[string]int)
	}
	d.Skipped[reason]++
}

// NoPlanReason explains a rejection without inventory, as a structured value
// rather than an error so batch callers can tell "no inventory" from a bug.
type NoPlanReason string

const (
	ReasonNone                   NoPlanReason = ""
	ReasonCapacityExceeded       NoPlanReason = "capacity_exceeded"
	ReasonAdjacencyUnsatisfiable NoPlanReason = "adjacency_unsatisfiable"
	ReasonNoFeasibleCombination  NoPlanReason = "no_feasible_combination"
)
