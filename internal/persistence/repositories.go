package persistence

import (
	"context"
	"time"
)

// InventoryRepository reads the table/zone/adjacency inventory for a
// restaurant.
type InventoryRepository interface {
	ListTables(ctx context.Context, restaurantID string) ([]Table, error)
	ListZones(ctx context.Context, restaurantID string) ([]Zone, error)
	ListAdjacency(ctx context.Context, restaurantID string) ([]AdjacencyEdge, error)
	GetRestaurantPolicy(ctx context.Context, restaurantID string) (RestaurantPolicy, error)
}

// BookingRepository reads and advances booking rows. Status updates are
// conditional on the expected source statuses so concurrent writers cannot
// clobber a transition.
type BookingRepository interface {
	GetBooking(ctx context.Context, id string) (Booking, error)
	CreateBooking(ctx context.Context, booking Booking) error
	// UpdateBookingStatus moves a booking to status iff its current status is
	// one of expectedFrom. Returns ErrStaleStatus when the guard fails.
	UpdateBookingStatus(ctx context.Context, id string, expectedFrom []string, to string, updatedAt time.Time) error
	ListBookingsByStatus(ctx context.Context, restaurantID, status string, limit int) ([]Booking, error)
}

// AssignmentRepository reads durable table assignments.
type AssignmentRepository interface {
	ListAssignmentsInRange(ctx context.Context, restaurantID string, from, to time.Time) ([]Assignment, error)
	ListAssignmentsForBooking(ctx context.Context, bookingID string) ([]Assignment, error)
}

// HoldRepository stores TTL-bound table holds. CreateHold must be atomic:
// the insert succeeds only if no unexpired hold and no assignment overlaps
// any of the hold's tables for the window, otherwise ErrHoldConflict.
type HoldRepository interface {
	CreateHold(ctx context.Context, hold Hold) error
	GetHold(ctx context.Context, id string) (Hold, error)
	DeleteHold(ctx context.Context, id string) error
	ListHoldsInRange(ctx context.Context, restaurantID string, from, to time.Time) ([]Hold, error)
	// SweepExpired deletes up to limit holds whose expiry is at or before
	// now, returning the number removed.
	SweepExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ConfirmParams carries everything the confirm transaction writes. The
// caller pre-builds assignment rows and the validated status transition; the
// store re-verifies the hold and the idempotency record inside one
// transaction.
type ConfirmParams struct {
	HoldID         string
	BookingID      string
	IdempotencyKey string
	Assignments    []Assignment
	StatusFrom     []string
	StatusTo       string
	Now            time.Time
}

// ConfirmResult reports the assignments bound to the booking. Replayed is
// true when the idempotency key had already been consumed and the stored
// result was returned unchanged.
type ConfirmResult struct {
	Assignments []Assignment
	Replayed    bool
}

// ConfirmStore executes the atomic hold-to-assignment conversion: verify the
// hold exists and is unexpired, insert assignment rows, advance the booking
// status, record the idempotency key, and delete the hold, all or nothing.
type ConfirmStore interface {
	ConfirmHold(ctx context.Context, params ConfirmParams) (ConfirmResult, error)
	// GetConfirmation returns a prior result for an idempotency key, or
	// ErrNotFound.
	GetConfirmation(ctx context.Context, idempotencyKey string) (ConfirmResult, error)
}

// StrategyRepository reads scoring configuration. StrategicConfig applies
// the restaurant-then-global fallback itself.
type StrategyRepository interface {
	GetStrategicConfig(ctx context.Context, restaurantID string) (StrategicConfigRow, error)
	ListDemandRules(ctx context.Context, restaurantID string) ([]DemandRuleRow, error)
}
