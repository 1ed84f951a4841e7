// Package persistence defines the storage contracts for the allocation
// engine: inventory reads, booking lifecycle rows, holds, assignments, and
// the two atomic operations the engine depends on (guarded hold creation and
// the confirm transaction).
package persistence

import "time"

// TableStatus reflects the operational state staff set on a table.
type TableStatus string

const (
	TableAvailable    TableStatus = "available"
	TableReserved     TableStatus = "reserved"
	TableOccupied     TableStatus = "occupied"
	TableOutOfService TableStatus = "out_of_service"
)

// Table is one physical table owned by a restaurant. Staff CRUD mutates it
// elsewhere; the engine only reads.
type Table struct {
	ID           string
	RestaurantID string
	ZoneID       string
	Number       string
	Capacity     int
	MinParty     int
	MaxParty     int
	Category     string
	SeatingType  string
	Movable      bool
	Status       TableStatus
	Active       bool
	PosX         *float64
	PosY         *float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Zone groups tables sharing a physical area. Adjacency is scoped per zone.
type Zone struct {
	ID           string
	RestaurantID string
	Name         string
}

// AdjacencyEdge is one undirected "can combine" relation between two tables
// in the same zone.
type AdjacencyEdge struct {
	RestaurantID string
	ZoneID       string
	TableA       string
	TableB       string
}

// Booking is a guest reservation. Status values come from the lifecycle
// package; the window is fixed at creation.
type Booking struct {
	ID           string
	RestaurantID string
	PartySize    int
	Start        time.Time
	End          time.Time
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Hold is a TTL-bound reservation of tables pending confirmation. At most one
// unexpired hold may cover a table for an overlapping buffered window.
// BufferEnd extends End by the post-booking turnover buffer; conflict guards
// compare buffered windows so back-to-back seatings keep the buffer gap.
type Hold struct {
	ID           string
	BookingID    string
	RestaurantID string
	ZoneID       string
	TableIDs     []string
	Start        time.Time
	End          time.Time
	BufferEnd    time.Time
	ExpiresAt    time.Time
	CreatedBy    string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// BufferedEnd returns the end of the table-blocking window, falling back to
// the dining end when no buffer was recorded.
func (h Hold) BufferedEnd() time.Time {
	if h.BufferEnd.IsZero() {
		return h.End
	}
	return h.BufferEnd
}

// Assignment durably binds a confirmed booking to one table for a window.
// Rows are immutable; corrections create new rows. BufferEnd carries the
// post-booking buffer into the stored window so the conflict guards block the
// turnover gap as well as the dining time.
type Assignment struct {
	ID           string
	BookingID    string
	RestaurantID string
	TableID      string
	Start        time.Time
	End          time.Time
	BufferEnd    time.Time
	CreatedAt    time.Time
}

// BufferedEnd returns the end of the table-blocking window, falling back to
// the dining end when no buffer was recorded.
func (a Assignment) BufferedEnd() time.Time {
	if a.BufferEnd.IsZero() {
		return a.End
	}
	return a.BufferEnd
}

// StrategicConfigRow stores scoring coefficients. RestaurantID is empty for
// the global default row.
type StrategicConfigRow struct {
	RestaurantID             string
	ScarcityWeight           float64
	DemandMultiplierOverride *float64
	FutureConflictPenalty    float64
	UpdatedAt                time.Time
}

// DemandRuleRow is one persisted demand-profile rule.
type DemandRuleRow struct {
	ID           string
	RestaurantID string
	Label        string
	Priority     int
	Weekdays     []time.Weekday
	StartMinute  int
	EndMinute    int
	ServiceKey   string
	Multiplier   float64
}

// RestaurantPolicy stores a restaurant's timezone together with its service
// definitions and duration bands serialized as JSON.
type RestaurantPolicy struct {
	RestaurantID string
	Timezone     string
	PolicyJSON   string
}
