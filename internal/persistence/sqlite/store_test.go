package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/table-allocator/internal/persistence"
)

var testBase = time.Date(2025, time.June, 3, 18, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "allocator.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func seedBooking(t *testing.T, store *Store, id, status string) persistence.Booking {
	t.Helper()
	booking := persistence.Booking{
		ID:           id,
		RestaurantID: "rest-1",
		PartySize:    4,
		Start:        testBase,
		End:          testBase.Add(90 * time.Minute),
		Status:       status,
		CreatedAt:    testBase.Add(-time.Hour),
		UpdatedAt:    testBase.Add(-time.Hour),
	}
	if err := store.CreateBooking(context.Background(), booking); err != nil {
		t.Fatalf("failed to seed booking: %v", err)
	}
	return booking
}

// testHold carries a 90 minute dining window plus a 15 minute turnover
// buffer, matching the default policy.
func testHold(id, bookingID string, tableIDs []string, start time.Time) persistence.Hold {
	return persistence.Hold{
		ID:           id,
		BookingID:    bookingID,
		RestaurantID: "rest-1",
		TableIDs:     tableIDs,
		Start:        start,
		End:          start.Add(90 * time.Minute),
		BufferEnd:    start.Add(105 * time.Minute),
		ExpiresAt:    testBase.Add(10 * time.Minute),
		CreatedBy:    "tester",
		CreatedAt:    testBase.Add(-time.Minute),
	}
}

func TestCreateHoldRejectsOverlappingTables(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedBooking(t, store, "booking-1", "pending")
	seedBooking(t, store, "booking-2", "pending")

	if err := store.CreateHold(ctx, testHold("hold-1", "booking-1", []string{"t1", "t2"}, testBase)); err != nil {
		t.Fatalf("first hold failed: %v", err)
	}

	err := store.CreateHold(ctx, testHold("hold-2", "booking-2", []string{"t2"}, testBase.Add(30*time.Minute)))
	if !errors.Is(err, persistence.ErrHoldConflict) {
		t.Fatalf("expected ErrHoldConflict, got %v", err)
	}

	// A window starting at the dining end still sits inside the turnover
	// buffer and must lose.
	err = store.CreateHold(ctx, testHold("hold-3", "booking-2", []string{"t2"}, testBase.Add(90*time.Minute)))
	if !errors.Is(err, persistence.ErrHoldConflict) {
		t.Fatalf("expected ErrHoldConflict inside the buffer, got %v", err)
	}

	// One buffer after the dining end the table is free again.
	if err := store.CreateHold(ctx, testHold("hold-4", "booking-2", []string{"t2"}, testBase.Add(105*time.Minute))); err != nil {
		t.Fatalf("hold after the buffer failed: %v", err)
	}
}

func TestCreateHoldIgnoresExpiredHolds(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedBooking(t, store, "booking-1", "pending")
	seedBooking(t, store, "booking-2", "pending")

	stale := testHold("hold-1", "booking-1", []string{"t1"}, testBase)
	stale.ExpiresAt = testBase.Add(-time.Minute)
	if err := store.CreateHold(ctx, stale); err != nil {
		t.Fatalf("stale hold failed: %v", err)
	}

	fresh := testHold("hold-2", "booking-2", []string{"t1"}, testBase)
	fresh.CreatedAt = testBase
	if err := store.CreateHold(ctx, fresh); err != nil {
		t.Fatalf("expected expired hold to be ignored, got %v", err)
	}
}

func TestCreateHoldRejectsAssignmentOverlap(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	booking := seedBooking(t, store, "booking-1", "pending")
	hold := testHold("hold-1", booking.ID, []string{"t1"}, testBase)
	if err := store.CreateHold(ctx, hold); err != nil {
		t.Fatalf("hold failed: %v", err)
	}
	if _, err := store.ConfirmHold(ctx, persistence.ConfirmParams{
		HoldID:      hold.ID,
		BookingID:   booking.ID,
		Assignments: assignmentsForHold(hold, "asg"),
		StatusFrom:  []string{"pending"},
		StatusTo:    "confirmed",
		Now:         testBase.Add(-30 * time.Second),
	}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	seedBooking(t, store, "booking-2", "pending")
	err := store.CreateHold(ctx, testHold("hold-2", "booking-2", []string{"t1"}, testBase.Add(time.Hour)))
	if !errors.Is(err, persistence.ErrHoldConflict) {
		t.Fatalf("expected ErrHoldConflict against assignment, got %v", err)
	}
}

func TestCreateHoldRejectsAssignmentBuffer(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	booking := seedBooking(t, store, "booking-1", "pending")
	hold := testHold("hold-1", booking.ID, []string{"t1"}, testBase)
	if err := store.CreateHold(ctx, hold); err != nil {
		t.Fatalf("hold failed: %v", err)
	}
	if _, err := store.ConfirmHold(ctx, persistence.ConfirmParams{
		HoldID:      hold.ID,
		BookingID:   booking.ID,
		Assignments: assignmentsForHold(hold, "asg"),
		StatusFrom:  []string{"pending"},
		StatusTo:    "confirmed",
		Now:         testBase,
	}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	// The assignment dines until 19:30 and blocks the table until 19:45. A
	// hold starting 19:35 sits inside that buffer and must lose.
	seedBooking(t, store, "booking-2", "pending")
	err := store.CreateHold(ctx, testHold("hold-2", "booking-2", []string{"t1"}, testBase.Add(95*time.Minute)))
	if !errors.Is(err, persistence.ErrHoldConflict) {
		t.Fatalf("expected ErrHoldConflict inside the assignment buffer, got %v", err)
	}

	if err := store.CreateHold(ctx, testHold("hold-3", "booking-2", []string{"t1"}, testBase.Add(105*time.Minute))); err != nil {
		t.Fatalf("hold after the assignment buffer failed: %v", err)
	}
}

func TestConfirmHoldRejectsBufferedAssignmentOverlap(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	booking := seedBooking(t, store, "booking-1", "pending")
	hold := testHold("hold-1", booking.ID, []string{"t1"}, testBase)
	if err := store.CreateHold(ctx, hold); err != nil {
		t.Fatalf("hold failed: %v", err)
	}
	if _, err := store.ConfirmHold(ctx, persistence.ConfirmParams{
		HoldID:      hold.ID,
		BookingID:   booking.ID,
		Assignments: assignmentsForHold(hold, "asg"),
		StatusFrom:  []string{"pending"},
		StatusTo:    "confirmed",
		Now:         testBase,
	}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	seedBooking(t, store, "booking-2", "pending")
	other := testHold("hold-2", "booking-2", []string{"t2"}, testBase)
	if err := store.CreateHold(ctx, other); err != nil {
		t.Fatalf("hold on free table failed: %v", err)
	}

	// The candidate rows start inside the t1 assignment's buffer; the
	// in-transaction guard must catch what the hold guard never saw.
	late := testHold("hold-late", "booking-2", []string{"t1"}, testBase.Add(95*time.Minute))
	_, err := store.ConfirmHold(ctx, persistence.ConfirmParams{
		HoldID:      other.ID,
		BookingID:   "booking-2",
		Assignments: assignmentsForHold(late, "late"),
		StatusFrom:  []string{"pending"},
		StatusTo:    "confirmed",
		Now:         testBase,
	})
	if !errors.Is(err, persistence.ErrAssignmentConflict) {
		t.Fatalf("expected ErrAssignmentConflict inside the buffer, got %v", err)
	}
}

func assignmentsForHold(hold persistence.Hold, prefix string) []persistence.Assignment {
	assignments := make([]persistence.Assignment, 0, len(hold.TableIDs))
	for i, tableID := range hold.TableIDs {
		assignments = append(assignments, persistence.Assignment{
			ID:           prefix + "-" + tableID,
			BookingID:    hold.BookingID,
			RestaurantID: hold.RestaurantID,
			TableID:      tableID,
			Start:        hold.Start,
			End:          hold.End,
			BufferEnd:    hold.BufferEnd,
			CreatedAt:    hold.CreatedAt.Add(time.Duration(i) * time.Millisecond),
		})
	}
	return assignments
}

func TestConfirmHoldWritesAssignmentsAndAdvancesBooking(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	booking := seedBooking(t, store, "booking-1", "pending")
	hold := testHold("hold-1", booking.ID, []string{"t1", "t2"}, testBase)
	if err := store.CreateHold(ctx, hold); err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	result, err := store.ConfirmHold(ctx, persistence.ConfirmParams{
		HoldID:         hold.ID,
		BookingID:      booking.ID,
		IdempotencyKey: "key-1",
		Assignments:    assignmentsForHold(hold, "asg"),
		StatusFrom:     []string{"pending"},
		StatusTo:       "confirmed",
		Now:            testBase,
	})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if result.Replayed {
		t.Fatal("first confirm must not be a replay")
	}
	if len(result.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(result.Assignments))
	}

	updated, err := store.GetBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get booking failed: %v", err)
	}
	if updated.Status != "confirmed" {
		t.Fatalf("expected status confirmed, got %q", updated.Status)
	}

	if _, err := store.GetHold(ctx, hold.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected hold deleted, got %v", err)
	}
}

func TestConfirmHoldReplaysIdempotencyKey(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	booking := seedBooking(t, store, "booking-1", "pending")
	hold := testHold("hold-1", booking.ID, []string{"t1"}, testBase)
	if err := store.CreateHold(ctx, hold); err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	params := persistence.ConfirmParams{
		HoldID:         hold.ID,
		BookingID:      booking.ID,
		IdempotencyKey: "key-1",
		Assignments:    assignmentsForHold(hold, "asg"),
		StatusFrom:     []string{"pending"},
		StatusTo:       "confirmed",
		Now:            testBase,
	}
	first, err := store.ConfirmHold(ctx, params)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	replay, err := store.ConfirmHold(ctx, params)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !replay.Replayed {
		t.Fatal("expected replayed result")
	}
	if len(replay.Assignments) != len(first.Assignments) {
		t.Fatalf("replay returned %d assignments, want %d", len(replay.Assignments), len(first.Assignments))
	}
	if replay.Assignments[0].ID != first.Assignments[0].ID {
		t.Fatalf("replay returned assignment %q, want %q", replay.Assignments[0].ID, first.Assignments[0].ID)
	}
}

func TestConfirmHoldRejectsStaleStatus(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	booking := seedBooking(t, store, "booking-1", "cancelled")
	hold := testHold("hold-1", booking.ID, []string{"t1"}, testBase)
	if err := store.CreateHold(ctx, hold); err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	_, err := store.ConfirmHold(ctx, persistence.ConfirmParams{
		HoldID:      hold.ID,
		BookingID:   booking.ID,
		Assignments: assignmentsForHold(hold, "asg"),
		StatusFrom:  []string{"pending", "pending_allocation"},
		StatusTo:    "confirmed",
		Now:         testBase,
	})
	if !errors.Is(err, persistence.ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}

	// The failed transaction must leave no assignments behind.
	assignments, err := store.ListAssignmentsForBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("list assignments failed: %v", err)
	}
	if len(assignments) != 0 {
		t.Fatalf("expected no assignments after rollback, got %d", len(assignments))
	}
}

func TestConfirmHoldRejectsExpiredHold(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	booking := seedBooking(t, store, "booking-1", "pending")
	hold := testHold("hold-1", booking.ID, []string{"t1"}, testBase)
	if err := store.CreateHold(ctx, hold); err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	_, err := store.ConfirmHold(ctx, persistence.ConfirmParams{
		HoldID:      hold.ID,
		BookingID:   booking.ID,
		Assignments: assignmentsForHold(hold, "asg"),
		StatusFrom:  []string{"pending"},
		StatusTo:    "confirmed",
		Now:         hold.ExpiresAt.Add(time.Second),
	})
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired hold, got %v", err)
	}
}

func TestSweepExpiredHonorsLimit(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"hold-1", "hold-2", "hold-3"} {
		seedBooking(t, store, id+"-booking", "pending")
		hold := testHold(id, id+"-booking", []string{id + "-table"}, testBase.Add(time.Duration(i)*2*time.Hour))
		hold.ExpiresAt = testBase.Add(-time.Minute)
		if err := store.CreateHold(ctx, hold); err != nil {
			t.Fatalf("hold %s failed: %v", id, err)
		}
	}

	removed, err := store.SweepExpired(ctx, testBase, 2)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	removed, err = store.SweepExpired(ctx, testBase, 2)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}

func TestUpdateBookingStatusGuard(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	booking := seedBooking(t, store, "booking-1", "pending")

	err := store.UpdateBookingStatus(ctx, booking.ID, []string{"confirmed"}, "checked_in", testBase)
	if !errors.Is(err, persistence.ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}

	err = store.UpdateBookingStatus(ctx, "missing", []string{"pending"}, "cancelled", testBase)
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.UpdateBookingStatus(ctx, booking.ID, []string{"pending"}, "pending_allocation", testBase); err != nil {
		t.Fatalf("guarded update failed: %v", err)
	}
	updated, _ := store.GetBooking(ctx, booking.ID)
	if updated.Status != "pending_allocation" {
		t.Fatalf("expected pending_allocation, got %q", updated.Status)
	}
}

func TestStrategicConfigFallsBackToGlobal(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	global := persistence.StrategicConfigRow{
		RestaurantID:          "",
		ScarcityWeight:        1.0,
		FutureConflictPenalty: 0.25,
		UpdatedAt:             testBase,
	}
	if err := store.UpsertStrategicConfig(ctx, global); err != nil {
		t.Fatalf("upsert global failed: %v", err)
	}

	row, err := store.GetStrategicConfig(ctx, "rest-1")
	if err != nil {
		t.Fatalf("fallback lookup failed: %v", err)
	}
	if row.ScarcityWeight != 1.0 {
		t.Fatalf("expected global scarcity weight, got %v", row.ScarcityWeight)
	}

	override := 2.5
	specific := persistence.StrategicConfigRow{
		RestaurantID:             "rest-1",
		ScarcityWeight:           0.5,
		DemandMultiplierOverride: &override,
		FutureConflictPenalty:    0.1,
		UpdatedAt:                testBase,
	}
	if err := store.UpsertStrategicConfig(ctx, specific); err != nil {
		t.Fatalf("upsert specific failed: %v", err)
	}

	row, err = store.GetStrategicConfig(ctx, "rest-1")
	if err != nil {
		t.Fatalf("specific lookup failed: %v", err)
	}
	if row.ScarcityWeight != 0.5 || row.DemandMultiplierOverride == nil || *row.DemandMultiplierOverride != 2.5 {
		t.Fatalf("unexpected specific row: %+v", row)
	}
}

func TestInventoryRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.InsertZone(ctx, persistence.Zone{ID: "zone-1", RestaurantID: "rest-1", Name: "Main"}); err != nil {
		t.Fatalf("insert zone failed: %v", err)
	}
	table := persistence.Table{
		ID:           "t1",
		RestaurantID: "rest-1",
		ZoneID:       "zone-1",
		Number:       "T001",
		Capacity:     4,
		MinParty:     1,
		Category:     "standard",
		Movable:      true,
		Status:       persistence.TableAvailable,
		Active:       true,
		CreatedAt:    testBase,
		UpdatedAt:    testBase,
	}
	if err := store.InsertTable(ctx, table); err != nil {
		t.Fatalf("insert table failed: %v", err)
	}
	if err := store.InsertAdjacency(ctx, persistence.AdjacencyEdge{
		RestaurantID: "rest-1", ZoneID: "zone-1", TableA: "t1", TableB: "t2",
	}); err != nil {
		t.Fatalf("insert adjacency failed: %v", err)
	}

	tables, err := store.ListTables(ctx, "rest-1")
	if err != nil {
		t.Fatalf("list tables failed: %v", err)
	}
	if len(tables) != 1 || tables[0].Number != "T001" || !tables[0].Active {
		t.Fatalf("unexpected tables: %+v", tables)
	}

	edges, err := store.ListAdjacency(ctx, "rest-1")
	if err != nil {
		t.Fatalf("list adjacency failed: %v", err)
	}
	if len(edges) != 1 || edges[0].TableA != "t1" {
		t.Fatalf("unexpected edges: %+v", edges)
	}
}
