package application

import (
	"time"

	"github.com/example/table-allocator/internal/adjacency"
	"github.com/example/table-allocator/internal/allocation"
	"github.com/example/table-allocator/internal/persistence"
	"github.com/example/table-allocator/internal/policy"
)

// Rejection reasons surfaced alongside the allocation engine's own reasons.
const (
	ReasonServiceNotFound = "service_not_found"
	ReasonServiceOverrun  = "service_overrun"
)

// QuoteParams parameterizes a quote-and-hold request.
type QuoteParams struct {
	BookingID string
	// HoldTTL overrides the service default when positive.
	HoldTTL time.Duration
	// MaxTables caps merged plans; zero uses the engine default.
	MaxTables int
	// DisableCombinations restricts the search to single tables.
	DisableCombinations bool
	RequireAdjacency    bool
	AdjacencyMode       adjacency.Mode
	CreatedBy           string
}

// QuoteResult reports the outcome of a quote. When Hold is nil, Reason
// explains the rejection.
type QuoteResult struct {
	Candidate   *allocation.CandidatePlan
	Alternates  []allocation.CandidatePlan
	Hold        *persistence.Hold
	Window      policy.BookingWindow
	Reason      string
	Diagnostics allocation.Diagnostics
}

// Accepted reports whether the quote produced a hold.
func (r QuoteResult) Accepted() bool {
	return r.Hold != nil
}

// TableConflict describes one busy interval blocking a table for the manual
// assignment view.
type TableConflict struct {
	TableID   string
	BookingID string
	Start     time.Time
	End       time.Time
	// Source is "assignment" or "hold".
	Source string
}

// ManualContext is the read model backing the staff manual-assignment screen:
// the booking's derived window plus every table with its conflicts inside
// that window.
type ManualContext struct {
	Booking   persistence.Booking
	Window    policy.BookingWindow
	Tables    []persistence.Table
	Zones     []persistence.Zone
	Conflicts []TableConflict
}

// ManualSelectionParams carries a staff-chosen table set for validation or
// hold creation. The same checks run on both paths so the UI preview cannot
// drift from the hold it produces.
type ManualSelectionParams struct {
	BookingID string
	TableIDs  []string
	// AdjacencyMode defaults to connected, the weakest combinability rule.
	AdjacencyMode adjacency.Mode
	HoldTTL       time.Duration
	CreatedBy     string
}

// engineTable converts an inventory row into the engine's view.
func engineTable(t persistence.Table) allocation.Table {
	return allocation.Table{
		ID:       t.ID,
		Number:   t.Number,
		ZoneID:   t.ZoneID,
		Capacity: t.Capacity,
		MinParty: t.MinParty,
		MaxParty: t.MaxParty,
		Category: t.Category,
		Movable:  t.Movable,
	}
}

// allocatable reports whether the inventory row participates in allocation.
func allocatable(t persistence.Table) bool {
	return t.Active && t.Status != persistence.TableOutOfService
}

func busyFromAssignments(assignments []persistence.Assignment) []allocation.BusyInterval {
	busy := make([]allocation.BusyInterval, 0, len(assignments))
	for _, a := range assignments {
		busy = append(busy, allocation.BusyInterval{
			TableID:   a.TableID,
			BookingID: a.BookingID,
			Start:     a.Start,
			End:       a.End,
		})
	}
	return busy
}

func busyFromHolds(holds []persistence.Hold, now time.Time) []allocation.BusyInterval {
	var busy []allocation.BusyInterval
	for _, h := range holds {
		if !h.ExpiresAt.After(now) {
			continue
		}
		for _, tableID := range h.TableIDs {
			busy = append(busy, allocation.BusyInterval{
				TableID:   tableID,
				BookingID: h.BookingID,
				Start:     h.Start,
				End:       h.End,
			})
		}
	}
	return busy
}
