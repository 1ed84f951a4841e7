package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/table-allocator/internal/adjacency"
	"github.com/example/table-allocator/internal/lifecycle"
	"github.com/example/table-allocator/internal/observability"
	"github.com/example/table-allocator/internal/persistence"
	"github.com/example/table-allocator/internal/policy"
)

// ManualContext assembles the read model for the staff assignment screen: the
// booking's derived window plus per-table conflicts inside it.
func (s *AllocationService) ManualContext(ctx context.Context, bookingID string) (ManualContext, error) {
	if s == nil {
		return ManualContext{}, fmt.Errorf("AllocationService is nil")
	}

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return ManualContext{}, mapRepoError(err)
	}

	pol, err := s.policies.PolicyFor(ctx, booking.RestaurantID)
	if err != nil {
		return ManualContext{}, err
	}
	window, err := pol.Resolve(booking.Start, booking.PartySize)
	if err != nil {
		return ManualContext{}, err
	}

	tables, err := s.inventory.ListTables(ctx, booking.RestaurantID)
	if err != nil {
		return ManualContext{}, err
	}
	zones, err := s.inventory.ListZones(ctx, booking.RestaurantID)
	if err != nil {
		return ManualContext{}, err
	}

	buffer := time.Duration(pol.BufferMinutes) * time.Minute
	conflicts, err := s.windowConflicts(ctx, booking, window, buffer)
	if err != nil {
		return ManualContext{}, err
	}

	sort.Slice(tables, func(i, j int) bool { return tables[i].Number < tables[j].Number })

	return ManualContext{
		Booking:   booking,
		Window:    window,
		Tables:    tables,
		Zones:     zones,
		Conflicts: conflicts,
	}, nil
}

// ValidateManualSelection re-runs capacity, adjacency, and conflict checks on
// a staff-chosen table set. Any doubt fails the selection; staff resolve it
// by changing tables, not by overriding the check.
func (s *AllocationService) ValidateManualSelection(ctx context.Context, params ManualSelectionParams) error {
	if s == nil {
		return fmt.Errorf("AllocationService is nil")
	}
	_, _, err := s.checkManualSelection(ctx, params)
	return err
}

// HoldManualSelection validates a staff-chosen table set and places a hold on
// it through the same conflict-checked path automatic quotes use.
func (s *AllocationService) HoldManualSelection(ctx context.Context, params ManualSelectionParams) (persistence.Hold, error) {
	if s == nil {
		return persistence.Hold{}, fmt.Errorf("AllocationService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "allocation", "manual_hold", "booking_id", params.BookingID)

	booking, window, err := s.checkManualSelection(ctx, params)
	if err != nil {
		return persistence.Hold{}, err
	}

	ttl := params.HoldTTL
	if ttl <= 0 {
		ttl = s.holdTTL
	}
	now := s.now()
	hold := persistence.Hold{
		ID:           s.idGenerator(),
		BookingID:    booking.ID,
		RestaurantID: booking.RestaurantID,
		TableIDs:     append([]string(nil), params.TableIDs...),
		Start:        window.DiningStart,
		End:          window.DiningEnd,
		BufferEnd:    window.BufferEnd,
		ExpiresAt:    now.Add(ttl),
		CreatedBy:    params.CreatedBy,
		Metadata:     map[string]string{"origin": "manual"},
		CreatedAt:    now,
	}

	if err := s.holds.CreateHold(ctx, hold); err != nil {
		if errors.Is(err, persistence.ErrHoldConflict) {
			return persistence.Hold{}, ErrHoldConflict
		}
		return persistence.Hold{}, err
	}

	observability.Emit(ctx, s.sink, logger, observability.Event{
		Source:   "allocation",
		Type:     observability.EventHoldCreated,
		Severity: observability.SeverityInfo,
		Context: map[string]any{
			"booking_id": booking.ID,
			"hold_id":    hold.ID,
			"origin":     "manual",
			"expires_at": hold.ExpiresAt,
		},
	})
	return hold, nil
}

// checkManualSelection shares the validation between the preview and hold
// paths so the two cannot drift.
func (s *AllocationService) checkManualSelection(ctx context.Context, params ManualSelectionParams) (persistence.Booking, policy.BookingWindow, error) {
	booking, err := s.bookings.GetBooking(ctx, params.BookingID)
	if err != nil {
		return persistence.Booking{}, policy.BookingWindow{}, mapRepoError(err)
	}

	vErr := &ValidationError{}

	status := lifecycle.Status(booking.Status)
	if lifecycle.Terminal(status) || !lifecycle.Known(status) {
		vErr.add("status", fmt.Sprintf("booking in status %q cannot be assigned", booking.Status))
	}
	if len(params.TableIDs) == 0 {
		vErr.add("tables", "at least one table must be selected")
	}
	if vErr.HasErrors() {
		return persistence.Booking{}, policy.BookingWindow{}, vErr
	}

	pol, err := s.policies.PolicyFor(ctx, booking.RestaurantID)
	if err != nil {
		return persistence.Booking{}, policy.BookingWindow{}, err
	}
	window, err := pol.Resolve(booking.Start, booking.PartySize)
	if err != nil {
		if reason, ok := policyReason(err); ok {
			vErr.add("window", reason)
			return persistence.Booking{}, policy.BookingWindow{}, vErr
		}
		return persistence.Booking{}, policy.BookingWindow{}, err
	}

	rows, err := s.inventory.ListTables(ctx, booking.RestaurantID)
	if err != nil {
		return persistence.Booking{}, policy.BookingWindow{}, err
	}
	byID := make(map[string]persistence.Table, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	tableErrs, capacity, seen := validateTableSet(params.TableIDs, byID)
	vErr.merge(tableErrs)
	if vErr.HasErrors() {
		return persistence.Booking{}, policy.BookingWindow{}, vErr
	}

	if capacity < booking.PartySize {
		vErr.add("capacity", fmt.Sprintf("selected capacity %d is below party size %d", capacity, booking.PartySize))
	}

	if len(params.TableIDs) > 1 {
		mode := params.AdjacencyMode
		if !mode.Valid() {
			mode = adjacency.ModeConnected
		}
		graph, err := s.graphs.Graph(ctx, booking.RestaurantID)
		if err != nil {
			return persistence.Booking{}, policy.BookingWindow{}, err
		}
		classification := adjacency.Classify(params.TableIDs, graph)
		if !mode.Satisfied(classification) {
			vErr.add("adjacency", fmt.Sprintf("selected tables do not satisfy the %s rule", mode))
		}
	}

	buffer := time.Duration(pol.BufferMinutes) * time.Minute
	conflicts, err := s.windowConflicts(ctx, booking, window, buffer)
	if err != nil {
		return persistence.Booking{}, policy.BookingWindow{}, err
	}
	for _, conflict := range conflicts {
		if _, selected := seen[conflict.TableID]; selected {
			vErr.add("conflict", fmt.Sprintf("table %s is occupied by booking %s", conflict.TableID, conflict.BookingID))
		}
	}

	if vErr.HasErrors() {
		return persistence.Booking{}, policy.BookingWindow{}, vErr
	}
	return booking, window, nil
}

// validateTableSet checks the selected table ids against the restaurant's
// inventory and returns their combined capacity alongside the id set.
func validateTableSet(tableIDs []string, byID map[string]persistence.Table) (*ValidationError, int, map[string]struct{}) {
	vErr := &ValidationError{}
	capacity := 0
	seen := make(map[string]struct{}, len(tableIDs))
	for _, id := range tableIDs {
		if _, dup := seen[id]; dup {
			vErr.add("tables", fmt.Sprintf("table %s selected twice", id))
			continue
		}
		seen[id] = struct{}{}

		row, ok := byID[id]
		if !ok {
			vErr.add("tables", fmt.Sprintf("table %s does not exist", id))
			continue
		}
		if !allocatable(row) {
			vErr.add("tables", fmt.Sprintf("table %s is not in service", row.Number))
			continue
		}
		capacity += row.Capacity
	}
	return vErr, capacity, seen
}

// windowConflicts lists every busy interval blocking a table for the buffered
// window, excluding the booking's own holds and assignments.
func (s *AllocationService) windowConflicts(ctx context.Context, booking persistence.Booking, window policy.BookingWindow, buffer time.Duration) ([]TableConflict, error) {
	from := window.DiningStart.Add(-buffer)
	to := window.BufferEnd

	assignments, err := s.assignments.ListAssignmentsInRange(ctx, booking.RestaurantID, from, to)
	if err != nil {
		return nil, err
	}
	holds, err := s.holds.ListHoldsInRange(ctx, booking.RestaurantID, from, to)
	if err != nil {
		return nil, err
	}

	var conflicts []TableConflict
	for _, a := range assignments {
		if a.BookingID == booking.ID {
			continue
		}
		if policy.Overlaps(window.DiningStart, window.BufferEnd, a.Start, a.End.Add(buffer)) {
			conflicts = append(conflicts, TableConflict{
				TableID:   a.TableID,
				BookingID: a.BookingID,
				Start:     a.Start,
				End:       a.End,
				Source:    "assignment",
			})
		}
	}
	now := s.now()
	for _, h := range holds {
		if h.BookingID == booking.ID || !h.ExpiresAt.After(now) {
			continue
		}
		if !policy.Overlaps(window.DiningStart, window.BufferEnd, h.Start, h.End.Add(buffer)) {
			continue
		}
		for _, tableID := range h.TableIDs {
			conflicts = append(conflicts, TableConflict{
				TableID:   tableID,
				BookingID: h.BookingID,
				Start:     h.Start,
				End:       h.End,
				Source:    "hold",
			})
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].TableID != conflicts[j].TableID {
			return conflicts[i].TableID < conflicts[j].TableID
		}
		return conflicts[i].Start.Before(conflicts[j].Start)
	})
	return conflicts, nil
}
