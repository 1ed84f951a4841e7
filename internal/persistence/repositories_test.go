package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/table-allocator/internal/persistence"
	"github.com/example/table-allocator/internal/testfixtures"
)

func TestInventoryRepository(t *testing.T) {
	t.Parallel()

	t.Run("reads back tables, zones, and adjacency", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)

		zone := persistence.Zone{ID: "zone-1", RestaurantID: "rest-1", Name: "Main"}
		if err := harness.Store.InsertZone(ctx, zone); err != nil {
			t.Fatalf("InsertZone failed: %v", err)
		}

		for _, id := range []string{"t1", "t2"} {
			table := testfixtures.NewTableFixture(
				testfixtures.WithTableID(id),
				testfixtures.WithTableZone("zone-1"),
			)
			if err := harness.Store.InsertTable(ctx, table); err != nil {
				t.Fatalf("InsertTable(%s) failed: %v", id, err)
			}
		}

		edge := persistence.AdjacencyEdge{RestaurantID: "rest-1", ZoneID: "zone-1", TableA: "t1", TableB: "t2"}
		if err := harness.Store.InsertAdjacency(ctx, edge); err != nil {
			t.Fatalf("InsertAdjacency failed: %v", err)
		}

		tables, err := harness.Inventory.ListTables(ctx, "rest-1")
		if err != nil {
			t.Fatalf("ListTables failed: %v", err)
		}
		if len(tables) != 2 {
			t.Fatalf("ListTables returned %d tables, want 2", len(tables))
		}

		zones, err := harness.Inventory.ListZones(ctx, "rest-1")
		if err != nil {
			t.Fatalf("ListZones failed: %v", err)
		}
		if len(zones) != 1 || zones[0].Name != "Main" {
			t.Fatalf("ListZones returned %+v", zones)
		}

		edges, err := harness.Inventory.ListAdjacency(ctx, "rest-1")
		if err != nil {
			t.Fatalf("ListAdjacency failed: %v", err)
		}
		if len(edges) != 1 || edges[0].TableA != "t1" || edges[0].TableB != "t2" {
			t.Fatalf("ListAdjacency returned %+v", edges)
		}
	})

	t.Run("scopes reads to the restaurant", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)

		mine := testfixtures.NewTableFixture(testfixtures.WithTableID("t1"))
		other := testfixtures.NewTableFixture(
			testfixtures.WithTableID("t2"),
			testfixtures.WithTableRestaurant("rest-2"),
		)
		if err := harness.Store.InsertTable(ctx, mine); err != nil {
			t.Fatalf("InsertTable failed: %v", err)
		}
		if err := harness.Store.InsertTable(ctx, other); err != nil {
			t.Fatalf("InsertTable failed: %v", err)
		}

		tables, err := harness.Inventory.ListTables(ctx, "rest-1")
		if err != nil {
			t.Fatalf("ListTables failed: %v", err)
		}
		if len(tables) != 1 || tables[0].ID != "t1" {
			t.Fatalf("ListTables returned %+v, want only t1", tables)
		}
	})

	t.Run("round-trips the restaurant policy", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)

		if _, err := harness.Inventory.GetRestaurantPolicy(ctx, "rest-1"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("GetRestaurantPolicy on empty store = %v, want ErrNotFound", err)
		}

		row := testfixtures.NewPolicyFixture("rest-1")
		if err := harness.Store.UpsertRestaurantPolicy(ctx, row); err != nil {
			t.Fatalf("UpsertRestaurantPolicy failed: %v", err)
		}

		stored, err := harness.Inventory.GetRestaurantPolicy(ctx, "rest-1")
		if err != nil {
			t.Fatalf("GetRestaurantPolicy failed: %v", err)
		}
		if stored.Timezone != row.Timezone || stored.PolicyJSON != row.PolicyJSON {
			t.Fatalf("stored policy %+v does not match %+v", stored, row)
		}

		row.Timezone = "America/New_York"
		if err := harness.Store.UpsertRestaurantPolicy(ctx, row); err != nil {
			t.Fatalf("UpsertRestaurantPolicy update failed: %v", err)
		}
		stored, err = harness.Inventory.GetRestaurantPolicy(ctx, "rest-1")
		if err != nil {
			t.Fatalf("GetRestaurantPolicy after update failed: %v", err)
		}
		if stored.Timezone != "America/New_York" {
			t.Fatalf("Timezone = %q after update", stored.Timezone)
		}
	})
}

func TestBookingRepository(t *testing.T) {
	t.Parallel()

	t.Run("lists pending allocation in creation order", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)

		for _, id := range []string{"b1", "b2", "b3"} {
			booking := testfixtures.NewBookingFixture(
				testfixtures.WithBookingID(id),
				testfixtures.WithBookingStatus("pending_allocation"),
			)
			if err := harness.Bookings.CreateBooking(ctx, booking); err != nil {
				t.Fatalf("CreateBooking(%s) failed: %v", id, err)
			}
		}
		confirmed := testfixtures.NewBookingFixture(
			testfixtures.WithBookingID("b4"),
			testfixtures.WithBookingStatus("confirmed"),
		)
		if err := harness.Bookings.CreateBooking(ctx, confirmed); err != nil {
			t.Fatalf("CreateBooking(b4) failed: %v", err)
		}

		queued, err := harness.Bookings.ListBookingsByStatus(ctx, "", "pending_allocation", 2)
		if err != nil {
			t.Fatalf("ListBookingsByStatus failed: %v", err)
		}
		if len(queued) != 2 || queued[0].ID != "b1" || queued[1].ID != "b2" {
			t.Fatalf("ListBookingsByStatus returned %+v, want b1 then b2", queued)
		}
	})

	t.Run("returns ErrNotFound for unknown bookings", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)

		if _, err := harness.Bookings.GetBooking(ctx, "ghost"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("GetBooking = %v, want ErrNotFound", err)
		}
	})
}

func TestHoldRepositoryRangeQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)

	base := testfixtures.ReferenceTime()
	early := testfixtures.NewHoldFixture(
		testfixtures.WithHoldID("h-early"),
		testfixtures.WithHoldTables("t1"),
		testfixtures.WithHoldWindow(base.Add(1*time.Hour), base.Add(2*time.Hour)),
	)
	late := testfixtures.NewHoldFixture(
		testfixtures.WithHoldID("h-late"),
		testfixtures.WithHoldTables("t2"),
		testfixtures.WithHoldWindow(base.Add(6*time.Hour), base.Add(8*time.Hour)),
	)
	for _, hold := range []persistence.Hold{early, late} {
		if err := harness.Holds.CreateHold(ctx, hold); err != nil {
			t.Fatalf("CreateHold(%s) failed: %v", hold.ID, err)
		}
	}

	// The window is half open: a hold ending exactly at from is excluded.
	holds, err := harness.Holds.ListHoldsInRange(ctx, "rest-1", base.Add(2*time.Hour), base.Add(7*time.Hour))
	if err != nil {
		t.Fatalf("ListHoldsInRange failed: %v", err)
	}
	if len(holds) != 1 || holds[0].ID != "h-late" {
		t.Fatalf("ListHoldsInRange returned %+v, want only h-late", holds)
	}
	if len(holds[0].TableIDs) != 1 || holds[0].TableIDs[0] != "t2" {
		t.Fatalf("hold tables = %v, want [t2]", holds[0].TableIDs)
	}

	if err := harness.Holds.DeleteHold(ctx, "h-late"); err != nil {
		t.Fatalf("DeleteHold failed: %v", err)
	}
	if _, err := harness.Holds.GetHold(ctx, "h-late"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("GetHold after delete = %v, want ErrNotFound", err)
	}
	if err := harness.Holds.DeleteHold(ctx, "h-late"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("DeleteHold twice = %v, want ErrNotFound", err)
	}
}

func TestAssignmentRepositoryRangeQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)

	booking := testfixtures.NewBookingFixture(testfixtures.WithBookingID("b1"))
	if err := harness.Bookings.CreateBooking(ctx, booking); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	hold := testfixtures.NewHoldFixture(
		testfixtures.WithHoldID("h1"),
		testfixtures.WithHoldBooking("b1"),
		testfixtures.WithHoldTables("t1", "t2"),
		testfixtures.WithHoldWindow(booking.Start, booking.End),
		testfixtures.WithHoldExpiry(booking.Start),
	)
	if err := harness.Holds.CreateHold(ctx, hold); err != nil {
		t.Fatalf("CreateHold failed: %v", err)
	}

	assignments := make([]persistence.Assignment, 0, len(hold.TableIDs))
	for _, tableID := range hold.TableIDs {
		assignments = append(assignments, persistence.Assignment{
			ID:           "asg-" + tableID,
			BookingID:    "b1",
			RestaurantID: "rest-1",
			TableID:      tableID,
			Start:        hold.Start,
			End:          hold.End,
			CreatedAt:    hold.Start,
		})
	}
	result, err := harness.Confirms.ConfirmHold(ctx, persistence.ConfirmParams{
		HoldID:         "h1",
		BookingID:      "b1",
		IdempotencyKey: "key-1",
		Assignments:    assignments,
		StatusFrom:     []string{"pending"},
		StatusTo:       "confirmed",
		Now:            booking.Start.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("ConfirmHold failed: %v", err)
	}
	if len(result.Assignments) != 2 || result.Replayed {
		t.Fatalf("ConfirmHold returned %+v", result)
	}

	byBooking, err := harness.Assignments.ListAssignmentsForBooking(ctx, "b1")
	if err != nil {
		t.Fatalf("ListAssignmentsForBooking failed: %v", err)
	}
	if len(byBooking) != 2 || byBooking[0].TableID != "t1" || byBooking[1].TableID != "t2" {
		t.Fatalf("ListAssignmentsForBooking returned %+v", byBooking)
	}

	inRange, err := harness.Assignments.ListAssignmentsInRange(ctx, "rest-1", booking.Start, booking.End)
	if err != nil {
		t.Fatalf("ListAssignmentsInRange failed: %v", err)
	}
	if len(inRange) != 2 {
		t.Fatalf("ListAssignmentsInRange returned %d rows, want 2", len(inRange))
	}

	// Half-open semantics: a probe starting at the assignment end sees nothing.
	after, err := harness.Assignments.ListAssignmentsInRange(ctx, "rest-1", booking.End, booking.End.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListAssignmentsInRange failed: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("ListAssignmentsInRange past the window returned %+v", after)
	}
}
