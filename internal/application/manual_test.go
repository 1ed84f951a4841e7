package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/table-allocator/internal/persistence"
)

func TestManualContextListsConflicts(t *testing.T) {
	t.Parallel()

	env := newQuoteEnv(t)
	env.inventory.tables = []persistence.Table{
		testTable("t2", 4),
		testTable("t1", 4),
	}
	env.inventory.zones = []persistence.Zone{{ID: "zone-1", RestaurantID: "rest-1", Name: "Main"}}
	env.bookings.bookings["b1"] = pendingBooking("b1", 4, bookingStart)
	env.assignments.assignments = []persistence.Assignment{{
		ID:        "a1",
		BookingID: "other",
		TableID:   "t2",
		Start:     bookingStart,
		End:       bookingStart.Add(time.Hour),
	}}
	env.holds.holds = []persistence.Hold{{
		ID:        "h1",
		BookingID: "third",
		TableIDs:  []string{"t1"},
		Start:     bookingStart.Add(30 * time.Minute),
		End:       bookingStart.Add(2 * time.Hour),
		ExpiresAt: testNow.Add(5 * time.Minute),
	}}

	view, err := env.service.ManualContext(context.Background(), "b1")
	if err != nil {
		t.Fatalf("ManualContext returned error: %v", err)
	}
	if view.Booking.ID != "b1" {
		t.Fatalf("booking = %q, want b1", view.Booking.ID)
	}
	if len(view.Tables) != 2 || view.Tables[0].Number != "t1" {
		t.Fatalf("tables must be sorted by number, got %v", view.Tables)
	}
	if len(view.Zones) != 1 {
		t.Fatalf("expected one zone, got %d", len(view.Zones))
	}
	if len(view.Conflicts) != 2 {
		t.Fatalf("expected two conflicts, got %v", view.Conflicts)
	}
	if view.Conflicts[0].TableID != "t1" || view.Conflicts[0].Source != "hold" {
		t.Fatalf("conflicts must be sorted by table, got %+v", view.Conflicts[0])
	}
	if view.Conflicts[1].TableID != "t2" || view.Conflicts[1].Source != "assignment" {
		t.Fatalf("expected the assignment conflict on t2, got %+v", view.Conflicts[1])
	}
}

func TestManualContextSkipsExpiredHolds(t *testing.T) {
	t.Parallel()

	env := newQuoteEnv(t)
	env.inventory.tables = []persistence.Table{testTable("t1", 4)}
	env.bookings.bookings["b1"] = pendingBooking("b1", 4, bookingStart)
	env.holds.holds = []persistence.Hold{{
		ID:        "stale",
		BookingID: "other",
		TableIDs:  []string{"t1"},
		Start:     bookingStart,
		End:       bookingStart.Add(time.Hour),
		ExpiresAt: testNow.Add(-time.Second),
	}}

	view, err := env.service.ManualContext(context.Background(), "b1")
	if err != nil {
		t.Fatalf("ManualContext returned error: %v", err)
	}
	if len(view.Conflicts) != 0 {
		t.Fatalf("expired hold must not surface as a conflict, got %v", view.Conflicts)
	}
}

func TestValidateManualSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(env *quoteEnv)
		params    ManualSelectionParams
		wantField string
	}{
		{
			name:      "empty selection",
			setup:     func(env *quoteEnv) {},
			params:    ManualSelectionParams{BookingID: "b1"},
			wantField: "tables",
		},
		{
			name:      "unknown table",
			setup:     func(env *quoteEnv) {},
			params:    ManualSelectionParams{BookingID: "b1", TableIDs: []string{"ghost"}},
			wantField: "tables",
		},
		{
			name:      "duplicate table",
			setup:     func(env *quoteEnv) {},
			params:    ManualSelectionParams{BookingID: "b1", TableIDs: []string{"t1", "t1"}},
			wantField: "tables",
		},
		{
			name: "out of service table",
			setup: func(env *quoteEnv) {
				broken := testTable("t9", 4)
				broken.Status = persistence.TableOutOfService
				env.inventory.tables = append(env.inventory.tables, broken)
			},
			params:    ManualSelectionParams{BookingID: "b1", TableIDs: []string{"t9"}},
			wantField: "tables",
		},
		{
			name:      "capacity below party",
			setup:     func(env *quoteEnv) {},
			params:    ManualSelectionParams{BookingID: "b2", TableIDs: []string{"t1"}},
			wantField: "capacity",
		},
		{
			name:      "disconnected tables",
			setup:     func(env *quoteEnv) {},
			params:    ManualSelectionParams{BookingID: "b1", TableIDs: []string{"t1", "t3"}},
			wantField: "adjacency",
		},
		{
			name: "occupied table",
			setup: func(env *quoteEnv) {
				env.assignments.assignments = []persistence.Assignment{{
					ID:        "a1",
					BookingID: "other",
					TableID:   "t1",
					Start:     bookingStart,
					End:       bookingStart.Add(time.Hour),
				}}
			},
			params:    ManualSelectionParams{BookingID: "b1", TableIDs: []string{"t1"}},
			wantField: "conflict",
		},
		{
			name: "terminal booking",
			setup: func(env *quoteEnv) {
				cancelled := pendingBooking("b3", 4, bookingStart)
				cancelled.Status = "cancelled"
				env.bookings.bookings["b3"] = cancelled
			},
			params:    ManualSelectionParams{BookingID: "b3", TableIDs: []string{"t1"}},
			wantField: "status",
		},
		{
			name: "outside service hours",
			setup: func(env *quoteEnv) {
				late := pendingBooking("b4", 4, time.Date(2025, time.June, 3, 9, 0, 0, 0, time.UTC))
				env.bookings.bookings["b4"] = late
			},
			params:    ManualSelectionParams{BookingID: "b4", TableIDs: []string{"t1"}},
			wantField: "window",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newQuoteEnv(t)
			env.inventory.tables = []persistence.Table{
				testTable("t1", 4),
				testTable("t2", 4),
				testTable("t3", 4),
			}
			env.inventory.edges = []persistence.AdjacencyEdge{
				{RestaurantID: "rest-1", ZoneID: "zone-1", TableA: "t1", TableB: "t2"},
			}
			env.bookings.bookings["b1"] = pendingBooking("b1", 4, bookingStart)
			env.bookings.bookings["b2"] = pendingBooking("b2", 8, bookingStart)
			tt.setup(env)

			err := env.service.ValidateManualSelection(context.Background(), tt.params)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if _, ok := vErr.FieldErrors[tt.wantField]; !ok {
				t.Fatalf("expected a %q field error, got %v", tt.wantField, vErr.FieldErrors)
			}
		})
	}
}

func TestValidateManualSelectionAcceptsAdjacentPair(t *testing.T) {
	t.Parallel()

	env := newQuoteEnv(t)
	env.inventory.tables = []persistence.Table{
		testTable("t1", 4),
		testTable("t2", 4),
	}
	env.inventory.edges = []persistence.AdjacencyEdge{
		{RestaurantID: "rest-1", ZoneID: "zone-1", TableA: "t1", TableB: "t2"},
	}
	env.bookings.bookings["b1"] = pendingBooking("b1", 7, bookingStart)

	err := env.service.ValidateManualSelection(context.Background(), ManualSelectionParams{
		BookingID: "b1",
		TableIDs:  []string{"t1", "t2"},
	})
	if err != nil {
		t.Fatalf("ValidateManualSelection returned error: %v", err)
	}
}

func TestHoldManualSelection(t *testing.T) {
	t.Parallel()

	env := newQuoteEnv(t)
	env.inventory.tables = []persistence.Table{testTable("t1", 4)}
	env.bookings.bookings["b1"] = pendingBooking("b1", 4, bookingStart)

	hold, err := env.service.HoldManualSelection(context.Background(), ManualSelectionParams{
		BookingID: "b1",
		TableIDs:  []string{"t1"},
		HoldTTL:   5 * time.Minute,
		CreatedBy: "staff-2",
	})
	if err != nil {
		t.Fatalf("HoldManualSelection returned error: %v", err)
	}
	if hold.Metadata["origin"] != "manual" {
		t.Fatalf("hold metadata = %v, want origin=manual", hold.Metadata)
	}
	if !hold.ExpiresAt.Equal(testNow.Add(5 * time.Minute)) {
		t.Fatalf("hold expiry = %v, want the requested TTL applied", hold.ExpiresAt)
	}
	if hold.CreatedBy != "staff-2" {
		t.Fatalf("hold CreatedBy = %q, want staff-2", hold.CreatedBy)
	}
	if len(env.holds.created) != 1 {
		t.Fatalf("expected one stored hold, got %d", len(env.holds.created))
	}
}

func TestHoldManualSelectionLosesRace(t *testing.T) {
	t.Parallel()

	env := newQuoteEnv(t)
	env.inventory.tables = []persistence.Table{testTable("t1", 4)}
	env.bookings.bookings["b1"] = pendingBooking("b1", 4, bookingStart)
	env.holds.conflictsFor = 1

	_, err := env.service.HoldManualSelection(context.Background(), ManualSelectionParams{
		BookingID: "b1",
		TableIDs:  []string{"t1"},
	})
	if !errors.Is(err, ErrHoldConflict) {
		t.Fatalf("err = %v, want ErrHoldConflict", err)
	}
}
