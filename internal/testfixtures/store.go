package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/table-allocator/internal/persistence"
	"github.com/example/table-allocator/internal/policy"
)

// MemoryStore is an in-memory implementation of every persistence contract.
// Application and transport tests run against it; the hold conflict check and
// the confirm transaction mirror the SQLite store's semantics under one
// mutex.
type MemoryStore struct {
	mu sync.Mutex

	tables        map[string]persistence.Table
	zones         map[string]persistence.Zone
	adjacency     []persistence.AdjacencyEdge
	bookings      map[string]persistence.Booking
	holds         map[string]persistence.Hold
	assignments   map[string]persistence.Assignment
	confirmations map[string]persistence.ConfirmResult
	configs       map[string]persistence.StrategicConfigRow
	demandRules   []persistence.DemandRuleRow
	policies      map[string]persistence.RestaurantPolicy
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:        make(map[string]persistence.Table),
		zones:         make(map[string]persistence.Zone),
		bookings:      make(map[string]persistence.Booking),
		holds:         make(map[string]persistence.Hold),
		assignments:   make(map[string]persistence.Assignment),
		confirmations: make(map[string]persistence.ConfirmResult),
		configs:       make(map[string]persistence.StrategicConfigRow),
		policies:      make(map[string]persistence.RestaurantPolicy),
	}
}

// ----------------------------- Seeding helpers -----------------------------

// AddTable stores an inventory row.
func (s *MemoryStore) AddTable(table persistence.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table.ID] = table
}

// AddZone stores a zone row.
func (s *MemoryStore) AddZone(zone persistence.Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[zone.ID] = zone
}

// AddAdjacency stores one undirected adjacency edge.
func (s *MemoryStore) AddAdjacency(edge persistence.AdjacencyEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjacency = append(s.adjacency, edge)
}

// AddBooking stores a booking row.
func (s *MemoryStore) AddBooking(booking persistence.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[booking.ID] = booking
}

// AddAssignment stores an assignment row without conflict checks.
func (s *MemoryStore) AddAssignment(assignment persistence.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[assignment.ID] = assignment
}

// AddHold stores a hold row without conflict checks.
func (s *MemoryStore) AddHold(hold persistence.Hold) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds[hold.ID] = hold
}

// SetRestaurantPolicy stores a policy row.
func (s *MemoryStore) SetRestaurantPolicy(row persistence.RestaurantPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[row.RestaurantID] = row
}

// SetStrategicConfig stores a scoring config row. An empty RestaurantID sets
// the global fallback.
func (s *MemoryStore) SetStrategicConfig(row persistence.StrategicConfigRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[row.RestaurantID] = row
}

// AddDemandRule stores a demand rule row.
func (s *MemoryStore) AddDemandRule(row persistence.DemandRuleRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.demandRules = append(s.demandRules, row)
}

// Booking returns a stored booking for assertions.
func (s *MemoryStore) Booking(id string) (persistence.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	booking, ok := s.bookings[id]
	return booking, ok
}

// HoldCount reports the number of stored holds.
func (s *MemoryStore) HoldCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holds)
}

// --------------------------- InventoryRepository ---------------------------

// ListTables implements persistence.InventoryRepository.
func (s *MemoryStore) ListTables(_ context.Context, restaurantID string) ([]persistence.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Table
	for _, table := range s.tables {
		if table.RestaurantID == restaurantID {
			out = append(out, table)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// ListZones implements persistence.InventoryRepository.
func (s *MemoryStore) ListZones(_ context.Context, restaurantID string) ([]persistence.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Zone
	for _, zone := range s.zones {
		if zone.RestaurantID == restaurantID {
			out = append(out, zone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListAdjacency implements persistence.InventoryRepository.
func (s *MemoryStore) ListAdjacency(_ context.Context, restaurantID string) ([]persistence.AdjacencyEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.AdjacencyEdge
	for _, edge := range s.adjacency {
		if edge.RestaurantID == restaurantID {
			out = append(out, edge)
		}
	}
	return out, nil
}

// GetRestaurantPolicy implements persistence.InventoryRepository.
func (s *MemoryStore) GetRestaurantPolicy(_ context.Context, restaurantID string) (persistence.RestaurantPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.policies[restaurantID]
	if !ok {
		return persistence.RestaurantPolicy{}, persistence.ErrNotFound
	}
	return row, nil
}

// ---------------------------- BookingRepository ----------------------------

// GetBooking implements persistence.BookingRepository.
func (s *MemoryStore) GetBooking(_ context.Context, id string) (persistence.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	booking, ok := s.bookings[id]
	if !ok {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	return booking, nil
}

// CreateBooking implements persistence.BookingRepository.
func (s *MemoryStore) CreateBooking(_ context.Context, booking persistence.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookings[booking.ID]; exists {
		return persistence.ErrDuplicate
	}
	s.bookings[booking.ID] = booking
	return nil
}

// UpdateBookingStatus implements persistence.BookingRepository.
func (s *MemoryStore) UpdateBookingStatus(_ context.Context, id string, expectedFrom []string, to string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	booking, ok := s.bookings[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if !statusIn(booking.Status, expectedFrom) {
		return persistence.ErrStaleStatus
	}
	booking.Status = to
	booking.UpdatedAt = updatedAt
	s.bookings[id] = booking
	return nil
}

// ListBookingsByStatus implements persistence.BookingRepository. An empty
// restaurantID matches all restaurants.
func (s *MemoryStore) ListBookingsByStatus(_ context.Context, restaurantID, status string, limit int) ([]persistence.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Booking
	for _, booking := range s.bookings {
		if booking.Status != status {
			continue
		}
		if restaurantID != "" && booking.RestaurantID != restaurantID {
			continue
		}
		out = append(out, booking)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -------------------------- AssignmentRepository ---------------------------

// ListAssignmentsInRange implements persistence.AssignmentRepository.
func (s *MemoryStore) ListAssignmentsInRange(_ context.Context, restaurantID string, from, to time.Time) ([]persistence.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Assignment
	for _, a := range s.assignments {
		if a.RestaurantID != restaurantID {
			continue
		}
		if policy.Overlaps(from, to, a.Start, a.End) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListAssignmentsForBooking implements persistence.AssignmentRepository.
func (s *MemoryStore) ListAssignmentsForBooking(_ context.Context, bookingID string) ([]persistence.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Assignment
	for _, a := range s.assignments {
		if a.BookingID == bookingID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableID < out[j].TableID })
	return out, nil
}

// ----------------------------- HoldRepository ------------------------------

// CreateHold implements persistence.HoldRepository. The conflict check and
// the insert happen under one lock: the hold lands only if no unexpired hold
// and no assignment overlaps any of its tables for the buffered window.
func (s *MemoryStore) CreateHold(_ context.Context, hold persistence.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.holds[hold.ID]; exists {
		return persistence.ErrDuplicate
	}
	if s.holdConflictsLocked(hold) {
		return persistence.ErrHoldConflict
	}
	s.holds[hold.ID] = hold
	return nil
}

func (s *MemoryStore) holdConflictsLocked(hold persistence.Hold) bool {
	wanted := make(map[string]struct{}, len(hold.TableIDs))
	for _, id := range hold.TableIDs {
		wanted[id] = struct{}{}
	}

	for _, existing := range s.holds {
		if !existing.ExpiresAt.After(hold.CreatedAt) {
			continue
		}
		if !policy.Overlaps(hold.Start, hold.BufferedEnd(), existing.Start, existing.BufferedEnd()) {
			continue
		}
		for _, id := range existing.TableIDs {
			if _, clash := wanted[id]; clash {
				return true
			}
		}
	}

	for _, a := range s.assignments {
		if _, clash := wanted[a.TableID]; !clash {
			continue
		}
		if policy.Overlaps(hold.Start, hold.BufferedEnd(), a.Start, a.BufferedEnd()) {
			return true
		}
	}
	return false
}

// GetHold implements persistence.HoldRepository.
func (s *MemoryStore) GetHold(_ context.Context, id string) (persistence.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[id]
	if !ok {
		return persistence.Hold{}, persistence.ErrNotFound
	}
	return hold, nil
}

// DeleteHold implements persistence.HoldRepository.
func (s *MemoryStore) DeleteHold(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holds[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.holds, id)
	return nil
}

// ListHoldsInRange implements persistence.HoldRepository.
func (s *MemoryStore) ListHoldsInRange(_ context.Context, restaurantID string, from, to time.Time) ([]persistence.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Hold
	for _, hold := range s.holds {
		if hold.RestaurantID != restaurantID {
			continue
		}
		if policy.Overlaps(from, to, hold.Start, hold.End) {
			out = append(out, hold)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SweepExpired implements persistence.HoldRepository.
func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for id, hold := range s.holds {
		if !hold.ExpiresAt.After(now) {
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, id := range expired {
		delete(s.holds, id)
	}
	return len(expired), nil
}

// ------------------------------ ConfirmStore -------------------------------

// ConfirmHold implements persistence.ConfirmStore with the same all-or-nothing
// semantics as the SQLite transaction.
func (s *MemoryStore) ConfirmHold(_ context.Context, params persistence.ConfirmParams) (persistence.ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if params.IdempotencyKey != "" {
		if prior, ok := s.confirmations[params.IdempotencyKey]; ok {
			return persistence.ConfirmResult{Assignments: prior.Assignments, Replayed: true}, nil
		}
	}

	hold, ok := s.holds[params.HoldID]
	if !ok || !hold.ExpiresAt.After(params.Now) {
		return persistence.ConfirmResult{}, persistence.ErrNotFound
	}

	for _, candidate := range params.Assignments {
		for _, existing := range s.assignments {
			if existing.TableID != candidate.TableID {
				continue
			}
			if policy.Overlaps(candidate.Start, candidate.BufferedEnd(), existing.Start, existing.BufferedEnd()) {
				return persistence.ConfirmResult{}, persistence.ErrAssignmentConflict
			}
		}
	}

	booking, ok := s.bookings[params.BookingID]
	if !ok {
		return persistence.ConfirmResult{}, persistence.ErrNotFound
	}
	if !statusIn(booking.Status, params.StatusFrom) {
		return persistence.ConfirmResult{}, persistence.ErrStaleStatus
	}

	for _, a := range params.Assignments {
		s.assignments[a.ID] = a
	}
	booking.Status = params.StatusTo
	booking.UpdatedAt = params.Now
	s.bookings[params.BookingID] = booking
	delete(s.holds, params.HoldID)

	result := persistence.ConfirmResult{Assignments: append([]persistence.Assignment(nil), params.Assignments...)}
	if params.IdempotencyKey != "" {
		s.confirmations[params.IdempotencyKey] = result
	}
	return result, nil
}

// GetConfirmation implements persistence.ConfirmStore.
func (s *MemoryStore) GetConfirmation(_ context.Context, idempotencyKey string) (persistence.ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior, ok := s.confirmations[idempotencyKey]
	if !ok {
		return persistence.ConfirmResult{}, persistence.ErrNotFound
	}
	return prior, nil
}

// ---------------------------- StrategyRepository ---------------------------

// GetStrategicConfig implements persistence.StrategyRepository with the
// restaurant-then-global fallback.
func (s *MemoryStore) GetStrategicConfig(_ context.Context, restaurantID string) (persistence.StrategicConfigRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.configs[restaurantID]; ok {
		return row, nil
	}
	if row, ok := s.configs[""]; ok {
		return row, nil
	}
	return persistence.StrategicConfigRow{}, persistence.ErrNotFound
}

// ListDemandRules implements persistence.StrategyRepository.
func (s *MemoryStore) ListDemandRules(_ context.Context, restaurantID string) ([]persistence.DemandRuleRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.DemandRuleRow
	for _, row := range s.demandRules {
		if row.RestaurantID == restaurantID {
			out = append(out, row)
		}
	}
	return out, nil
}

func statusIn(status string, allowed []string) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}
