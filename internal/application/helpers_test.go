package application

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/example/table-allocator/internal/adjacency"
	"github.com/example/table-allocator/internal/observability"
	"github.com/example/table-allocator/internal/persistence"
	"github.com/example/table-allocator/internal/policy"
	"github.com/example/table-allocator/internal/strategy"
)

var testNow = time.Date(2025, time.June, 3, 17, 30, 0, 0, time.UTC)

func testPolicy() policy.Policy {
	return policy.Policy{
		Location: time.UTC,
		Services: []policy.Service{
			{Key: "dinner", Open: policy.ClockTime{Hour: 17}, Close: policy.ClockTime{Hour: 23}},
		},
		Bands: []policy.DurationBand{
			{ServiceKey: "dinner", MinParty: 7, Minutes: 120},
		},
		DefaultMinutes: 90,
		BufferMinutes:  15,
	}
}

type policyProviderStub struct {
	policy policy.Policy
	err    error
}

func (p *policyProviderStub) PolicyFor(context.Context, string) (policy.Policy, error) {
	if p.err != nil {
		return policy.Policy{}, p.err
	}
	return p.policy, nil
}

type inventoryStub struct {
	tables []persistence.Table
	zones  []persistence.Zone
	edges  []persistence.AdjacencyEdge
}

func (s *inventoryStub) ListTables(context.Context, string) ([]persistence.Table, error) {
	return s.tables, nil
}

func (s *inventoryStub) ListZones(context.Context, string) ([]persistence.Zone, error) {
	return s.zones, nil
}

func (s *inventoryStub) ListAdjacency(context.Context, string) ([]persistence.AdjacencyEdge, error) {
	return s.edges, nil
}

func (s *inventoryStub) GetRestaurantPolicy(context.Context, string) (persistence.RestaurantPolicy, error) {
	return persistence.RestaurantPolicy{}, persistence.ErrNotFound
}

type statusChange struct {
	ID   string
	From []string
	To   string
}

type bookingRepoStub struct {
	bookings map[string]persistence.Booking
	changes  []statusChange
}

func (s *bookingRepoStub) GetBooking(_ context.Context, id string) (persistence.Booking, error) {
	booking, ok := s.bookings[id]
	if !ok {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	return booking, nil
}

func (s *bookingRepoStub) CreateBooking(_ context.Context, booking persistence.Booking) error {
	s.bookings[booking.ID] = booking
	return nil
}

func (s *bookingRepoStub) UpdateBookingStatus(_ context.Context, id string, from []string, to string, updatedAt time.Time) error {
	booking, ok := s.bookings[id]
	if !ok {
		return persistence.ErrNotFound
	}
	s.changes = append(s.changes, statusChange{ID: id, From: from, To: to})
	booking.Status = to
	booking.UpdatedAt = updatedAt
	s.bookings[id] = booking
	return nil
}

func (s *bookingRepoStub) ListBookingsByStatus(_ context.Context, _, status string, _ int) ([]persistence.Booking, error) {
	var out []persistence.Booking
	for _, b := range s.bookings {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

type assignmentRepoStub struct {
	assignments []persistence.Assignment
}

func (s *assignmentRepoStub) ListAssignmentsInRange(_ context.Context, _ string, from, to time.Time) ([]persistence.Assignment, error) {
	var out []persistence.Assignment
	for _, a := range s.assignments {
		if policy.Overlaps(from, to, a.Start, a.End) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *assignmentRepoStub) ListAssignmentsForBooking(_ context.Context, bookingID string) ([]persistence.Assignment, error) {
	var out []persistence.Assignment
	for _, a := range s.assignments {
		if a.BookingID == bookingID {
			out = append(out, a)
		}
	}
	return out, nil
}

type holdRepoStub struct {
	holds        []persistence.Hold
	created      []persistence.Hold
	deleted      []string
	conflictsFor int
	swept        []int
	sweepReturns []int
}

func (s *holdRepoStub) CreateHold(_ context.Context, hold persistence.Hold) error {
	if s.conflictsFor > 0 {
		s.conflictsFor--
		return persistence.ErrHoldConflict
	}
	s.created = append(s.created, hold)
	return nil
}

func (s *holdRepoStub) GetHold(_ context.Context, id string) (persistence.Hold, error) {
	for _, hold := range s.holds {
		if hold.ID == id {
			return hold, nil
		}
	}
	return persistence.Hold{}, persistence.ErrNotFound
}

func (s *holdRepoStub) DeleteHold(_ context.Context, id string) error {
	for i, hold := range s.holds {
		if hold.ID == id {
			s.holds = append(s.holds[:i], s.holds[i+1:]...)
			s.deleted = append(s.deleted, id)
			return nil
		}
	}
	return persistence.ErrNotFound
}

func (s *holdRepoStub) ListHoldsInRange(_ context.Context, _ string, from, to time.Time) ([]persistence.Hold, error) {
	var out []persistence.Hold
	for _, hold := range s.holds {
		if policy.Overlaps(from, to, hold.Start, hold.End) {
			out = append(out, hold)
		}
	}
	return out, nil
}

func (s *holdRepoStub) SweepExpired(_ context.Context, _ time.Time, limit int) (int, error) {
	s.swept = append(s.swept, limit)
	if len(s.sweepReturns) == 0 {
		return 0, nil
	}
	n := s.sweepReturns[0]
	s.sweepReturns = s.sweepReturns[1:]
	return n, nil
}

type confirmStoreStub struct {
	params        persistence.ConfirmParams
	result        persistence.ConfirmResult
	err           error
	confirmations map[string]persistence.ConfirmResult
	// missFirstGet makes the first GetConfirmation miss, simulating a racing
	// confirm that lands between the pre-check and the transaction.
	missFirstGet bool
}

func (s *confirmStoreStub) ConfirmHold(_ context.Context, params persistence.ConfirmParams) (persistence.ConfirmResult, error) {
	s.params = params
	if s.err != nil {
		return persistence.ConfirmResult{}, s.err
	}
	if s.result.Assignments == nil {
		return persistence.ConfirmResult{Assignments: params.Assignments}, nil
	}
	return s.result, nil
}

func (s *confirmStoreStub) GetConfirmation(_ context.Context, key string) (persistence.ConfirmResult, error) {
	if s.missFirstGet {
		s.missFirstGet = false
		return persistence.ConfirmResult{}, persistence.ErrNotFound
	}
	prior, ok := s.confirmations[key]
	if !ok {
		return persistence.ConfirmResult{}, persistence.ErrNotFound
	}
	return prior, nil
}

type recordingSink struct {
	events []observability.Event
}

func (s *recordingSink) Record(_ context.Context, event observability.Event) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) byType(eventType string) []observability.Event {
	var out []observability.Event
	for _, event := range s.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type quoteEnv struct {
	inventory   *inventoryStub
	bookings    *bookingRepoStub
	assignments *assignmentRepoStub
	holds       *holdRepoStub
	sink        *recordingSink
	service     *AllocationService
}

func newQuoteEnv(t *testing.T) *quoteEnv {
	t.Helper()

	env := &quoteEnv{
		inventory:   &inventoryStub{},
		bookings:    &bookingRepoStub{bookings: make(map[string]persistence.Booking)},
		assignments: &assignmentRepoStub{},
		holds:       &holdRepoStub{},
		sink:        &recordingSink{},
	}

	graphs := adjacency.NewCache(func(ctx context.Context, restaurantID string) ([][2]string, error) {
		edges, err := env.inventory.ListAdjacency(ctx, restaurantID)
		if err != nil {
			return nil, err
		}
		pairs := make([][2]string, 0, len(edges))
		for _, edge := range edges {
			pairs = append(pairs, [2]string{edge.TableA, edge.TableB})
		}
		return pairs, nil
	}, time.Minute, 8)

	counter := 0
	idGenerator := func() string {
		counter++
		return fmt.Sprintf("id-%d", counter)
	}
	env.service = NewAllocationService(AllocationServiceOptions{
		Inventory:   env.inventory,
		Bookings:    env.bookings,
		Assignments: env.assignments,
		Holds:       env.holds,
		Graphs:      graphs,
		Strategies:  strategy.NewResolver(nil, time.Minute, slog.Default()),
		Policies:    &policyProviderStub{policy: testPolicy()},
		IDGenerator: idGenerator,
		Now:         func() time.Time { return testNow },
		Sink:        env.sink,
	})
	return env
}

func testTable(id string, capacity int) persistence.Table {
	return persistence.Table{
		ID:           id,
		RestaurantID: "rest-1",
		ZoneID:       "zone-1",
		Number:       id,
		Capacity:     capacity,
		MinParty:     1,
		Category:     "standard",
		Movable:      true,
		Status:       persistence.TableAvailable,
		Active:       true,
	}
}

func pendingBooking(id string, partySize int, start time.Time) persistence.Booking {
	return persistence.Booking{
		ID:           id,
		RestaurantID: "rest-1",
		PartySize:    partySize,
		Start:        start,
		End:          start.Add(90 * time.Minute),
		Status:       "pending",
		CreatedAt:    testNow.Add(-time.Hour),
		UpdatedAt:    testNow.Add(-time.Hour),
	}
}
