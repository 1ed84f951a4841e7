package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/table-allocator/internal/adjacency"
	"github.com/example/table-allocator/internal/allocation"
	"github.com/example/table-allocator/internal/autoassign"
	"github.com/example/table-allocator/internal/lifecycle"
	"github.com/example/table-allocator/internal/observability"
	"github.com/example/table-allocator/internal/persistence"
	"github.com/example/table-allocator/internal/policy"
	"github.com/example/table-allocator/internal/strategy"
)

// DefaultHoldTTL applies when neither the request nor the service options set
// a hold expiry.
const DefaultHoldTTL = 10 * time.Minute

// riskHorizon bounds how far past the dining window the service looks when
// estimating future contention on a plan's tables.
const riskHorizon = 2 * time.Hour

// maxAlternates caps the alternate plans returned alongside the held winner.
const maxAlternates = 3

// AllocationServiceOptions wires the quote service's dependencies.
type AllocationServiceOptions struct {
	Inventory   persistence.InventoryRepository
	Bookings    persistence.BookingRepository
	Assignments persistence.AssignmentRepository
	Holds       persistence.HoldRepository
	Graphs      *adjacency.Cache
	Strategies  *strategy.Resolver
	Policies    PolicyProvider
	IDGenerator func() string
	Now         func() time.Time
	Sink        observability.Sink
	Logger      *slog.Logger
	HoldTTL     time.Duration
}

// AllocationService orchestrates the quote flow: derive the booking window,
// filter availability, run table selection, and place a TTL hold on the
// winning plan.
type AllocationService struct {
	inventory   persistence.InventoryRepository
	bookings    persistence.BookingRepository
	assignments persistence.AssignmentRepository
	holds       persistence.HoldRepository
	graphs      *adjacency.Cache
	strategies  *strategy.Resolver
	policies    PolicyProvider
	idGenerator func() string
	now         func() time.Time
	sink        observability.Sink
	logger      *slog.Logger
	holdTTL     time.Duration
}

// NewAllocationService wires dependencies for quote operations.
func NewAllocationService(opts AllocationServiceOptions) *AllocationService {
	idGenerator := opts.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	holdTTL := opts.HoldTTL
	if holdTTL <= 0 {
		holdTTL = DefaultHoldTTL
	}
	return &AllocationService{
		inventory:   opts.Inventory,
		bookings:    opts.Bookings,
		assignments: opts.Assignments,
		holds:       opts.Holds,
		graphs:      opts.Graphs,
		strategies:  opts.Strategies,
		policies:    opts.Policies,
		idGenerator: idGenerator,
		now:         now,
		sink:        opts.Sink,
		logger:      defaultLogger(opts.Logger),
		holdTTL:     holdTTL,
	}
}

// Quote computes candidate plans for a booking and holds the best one. A
// rejection without inventory returns a result carrying a structured Reason
// and no error; losing every candidate to concurrent holds returns
// ErrHoldConflict.
func (s *AllocationService) Quote(ctx context.Context, params QuoteParams) (QuoteResult, error) {
	if s == nil {
		return QuoteResult{}, fmt.Errorf("AllocationService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "allocation", "quote", "booking_id", params.BookingID)

	booking, err := s.bookings.GetBooking(ctx, params.BookingID)
	if err != nil {
		return QuoteResult{}, mapRepoError(err)
	}

	status := lifecycle.Status(booking.Status)
	if status != lifecycle.StatusPending && status != lifecycle.StatusPendingAllocation {
		vErr := &ValidationError{}
		vErr.add("status", fmt.Sprintf("booking in status %q is not eligible for allocation", booking.Status))
		return QuoteResult{}, vErr
	}

	pol, err := s.policies.PolicyFor(ctx, booking.RestaurantID)
	if err != nil {
		return QuoteResult{}, err
	}

	window, err := pol.Resolve(booking.Start, booking.PartySize)
	if err != nil {
		reason, ok := policyReason(err)
		if !ok {
			return QuoteResult{}, err
		}
		s.markPendingAllocation(ctx, logger, booking)
		s.emitRejection(ctx, booking, reason, allocation.Diagnostics{})
		return QuoteResult{Reason: reason}, nil
	}

	buffer := time.Duration(pol.BufferMinutes) * time.Minute
	snapshot, err := s.loadBusy(ctx, booking, window, buffer)
	if err != nil {
		return QuoteResult{}, err
	}

	graph, err := s.graphs.Graph(ctx, booking.RestaurantID)
	if err != nil {
		return QuoteResult{}, err
	}

	available := allocation.FilterAvailable(allocation.FilterInput{
		Tables:           snapshot.tables,
		Busy:             snapshot.busy,
		Start:            window.DiningStart,
		End:              window.BufferEnd,
		Buffer:           buffer,
		ExcludeBookingID: booking.ID,
	})

	cfg := s.strategies.Config(ctx, booking.RestaurantID)
	multiplier := s.strategies.ResolveMultiplier(ctx, booking.RestaurantID, window.DiningStart, window.ServiceKey, pol.Location)

	result := allocation.Select(allocation.SelectInput{
		Tables:             available,
		PartySize:          booking.PartySize,
		Graph:              graph,
		Score:              cfg.ScoreConfig(multiplier),
		EnableCombinations: !params.DisableCombinations,
		RequireAdjacency:   params.RequireAdjacency,
		AdjacencyMode:      params.AdjacencyMode,
		MaxTables:          params.MaxTables,
		ProjectedRisk:      snapshot.riskFunc(window),
	})

	observability.Emit(ctx, s.sink, logger, observability.Event{
		Source:   "allocation",
		Type:     observability.EventSelectionProfiled,
		Severity: observability.SeverityInfo,
		Context: map[string]any{
			"booking_id":             booking.ID,
			"restaurant_id":          booking.RestaurantID,
			"tables_available":       len(available),
			"plans":                  len(result.Plans),
			"combinations_evaluated": result.Diagnostics.CombinationsEvaluated,
			"skipped":                result.Diagnostics.Skipped,
		},
	})

	if len(result.Plans) == 0 {
		s.markPendingAllocation(ctx, logger, booking)
		s.emitRejection(ctx, booking, string(result.Reason), result.Diagnostics)
		return QuoteResult{
			Window:      window,
			Reason:      string(result.Reason),
			Diagnostics: result.Diagnostics,
		}, nil
	}

	hold, held, err := s.holdFirstAvailable(ctx, logger, booking, window, result.Plans, params)
	if err != nil {
		return QuoteResult{}, err
	}

	alternates := alternatePlans(result.Plans, held)
	observability.Emit(ctx, s.sink, logger, observability.Event{
		Source:   "allocation",
		Type:     observability.EventQuoteAccepted,
		Severity: observability.SeverityInfo,
		Context: map[string]any{
			"booking_id":             booking.ID,
			"restaurant_id":          booking.RestaurantID,
			"hold_id":                hold.ID,
			"tables":                 result.Plans[held].TableNumbers,
			"score":                  result.Plans[held].Score,
			"combinations_evaluated": result.Diagnostics.CombinationsEvaluated,
		},
	})

	winner := result.Plans[held]
	return QuoteResult{
		Candidate:   &winner,
		Alternates:  alternates,
		Hold:        &hold,
		Window:      window,
		Diagnostics: result.Diagnostics,
	}, nil
}

// busySnapshot is the availability data loaded for one quote.
type busySnapshot struct {
	tables []allocation.Table
	busy   []allocation.BusyInterval
}

// riskFunc estimates future contention as the mean number of busy intervals
// per plan table that start at or after the dining end.
func (b busySnapshot) riskFunc(window policy.BookingWindow) func([]string) float64 {
	laterByTable := make(map[string]int)
	for _, interval := range b.busy {
		if !interval.Start.Before(window.DiningEnd) {
			laterByTable[interval.TableID]++
		}
	}
	return func(tableIDs []string) float64 {
		if len(tableIDs) == 0 {
			return 0
		}
		total := 0
		for _, id := range tableIDs {
			total += laterByTable[id]
		}
		return float64(total) / float64(len(tableIDs))
	}
}

func (s *AllocationService) loadBusy(ctx context.Context, booking persistence.Booking, window policy.BookingWindow, buffer time.Duration) (busySnapshot, error) {
	rows, err := s.inventory.ListTables(ctx, booking.RestaurantID)
	if err != nil {
		return busySnapshot{}, err
	}
	tables := make([]allocation.Table, 0, len(rows))
	for _, row := range rows {
		if !allocatable(row) {
			continue
		}
		tables = append(tables, engineTable(row))
	}

	from := window.DiningStart.Add(-buffer)
	to := window.DiningEnd.Add(riskHorizon)

	assignments, err := s.assignments.ListAssignmentsInRange(ctx, booking.RestaurantID, from, to)
	if err != nil {
		return busySnapshot{}, err
	}
	holds, err := s.holds.ListHoldsInRange(ctx, booking.RestaurantID, from, to)
	if err != nil {
		return busySnapshot{}, err
	}

	busy := busyFromAssignments(assignments)
	busy = append(busy, busyFromHolds(holds, s.now())...)
	return busySnapshot{tables: tables, busy: busy}, nil
}

// holdFirstAvailable walks the ranked plans and holds the first whose tables
// survive the store's atomic conflict check. It returns the index of the held
// plan.
func (s *AllocationService) holdFirstAvailable(ctx context.Context, logger *slog.Logger, booking persistence.Booking, window policy.BookingWindow, plans []allocation.CandidatePlan, params QuoteParams) (persistence.Hold, int, error) {
	ttl := params.HoldTTL
	if ttl <= 0 {
		ttl = s.holdTTL
	}

	for i, plan := range plans {
		now := s.now()
		hold := persistence.Hold{
			ID:           s.idGenerator(),
			BookingID:    booking.ID,
			RestaurantID: booking.RestaurantID,
			TableIDs:     plan.TableIDs,
			Start:        window.DiningStart,
			End:          window.DiningEnd,
			BufferEnd:    window.BufferEnd,
			ExpiresAt:    now.Add(ttl),
			CreatedBy:    params.CreatedBy,
			CreatedAt:    now,
		}

		err := s.holds.CreateHold(ctx, hold)
		if err == nil {
			observability.Emit(ctx, s.sink, logger, observability.Event{
				Source:   "allocation",
				Type:     observability.EventHoldCreated,
				Severity: observability.SeverityInfo,
				Context: map[string]any{
					"booking_id": booking.ID,
					"hold_id":    hold.ID,
					"tables":     plan.TableNumbers,
					"expires_at": hold.ExpiresAt,
				},
			})
			return hold, i, nil
		}
		if !errors.Is(err, persistence.ErrHoldConflict) {
			return persistence.Hold{}, 0, err
		}

		logger.InfoContext(ctx, "candidate lost to concurrent hold, trying alternate",
			"tables", plan.TableNumbers, "rank", i)
		observability.Emit(ctx, s.sink, logger, observability.Event{
			Source:   "allocation",
			Type:     observability.EventHoldConflict,
			Severity: observability.SeverityWarning,
			Context: map[string]any{
				"booking_id": booking.ID,
				"tables":     plan.TableNumbers,
				"rank":       i,
			},
		})
	}

	return persistence.Hold{}, 0, ErrHoldConflict
}

// markPendingAllocation moves a pending booking into the retry queue. The
// update is guarded; losing the race to another writer is not an error.
func (s *AllocationService) markPendingAllocation(ctx context.Context, logger *slog.Logger, booking persistence.Booking) {
	if lifecycle.Status(booking.Status) != lifecycle.StatusPending {
		return
	}
	err := s.bookings.UpdateBookingStatus(ctx, booking.ID,
		[]string{string(lifecycle.StatusPending)},
		string(lifecycle.StatusPendingAllocation), s.now())
	if err != nil && !errors.Is(err, persistence.ErrStaleStatus) {
		logger.WarnContext(ctx, "failed to queue booking for auto-assign", "error", err)
	}
}

func (s *AllocationService) emitRejection(ctx context.Context, booking persistence.Booking, reason string, diag allocation.Diagnostics) {
	eventType := observability.EventQuoteRejected
	severity := observability.SeverityWarning
	if reason == string(allocation.ReasonCapacityExceeded) {
		eventType = observability.EventCapacityExceeded
	}
	observability.Emit(ctx, s.sink, s.logger, observability.Event{
		Source:   "allocation",
		Type:     eventType,
		Severity: severity,
		Context: map[string]any{
			"booking_id":             booking.ID,
			"restaurant_id":          booking.RestaurantID,
			"party_size":             booking.PartySize,
			"reason":                 reason,
			"combinations_evaluated": diag.CombinationsEvaluated,
		},
	})
}

func policyReason(err error) (string, bool) {
	switch {
	case errors.Is(err, policy.ErrServiceNotFound):
		return ReasonServiceNotFound, true
	case errors.Is(err, policy.ErrServiceOverrun):
		return ReasonServiceOverrun, true
	}
	return "", false
}

func alternatePlans(plans []allocation.CandidatePlan, held int) []allocation.CandidatePlan {
	var alternates []allocation.CandidatePlan
	for i, plan := range plans {
		if i == held {
			continue
		}
		alternates = append(alternates, plan)
		if len(alternates) == maxAlternates {
			break
		}
	}
	return alternates
}

func mapRepoError(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// AttemptAllocation adapts Quote for the auto-assign job, classifying the
// outcome into the job's failure kinds.
func (s *AllocationService) AttemptAllocation(ctx context.Context, booking persistence.Booking, strat autoassign.AttemptStrategy) (autoassign.AttemptResult, error) {
	result, err := s.Quote(ctx, QuoteParams{
		BookingID:        booking.ID,
		RequireAdjacency: strat.RequireAdjacency,
		MaxTables:        strat.MaxTables,
		CreatedBy:        "auto-assign",
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrHoldConflict):
			return autoassign.AttemptResult{Failure: autoassign.FailureConflict}, nil
		case errors.Is(err, context.DeadlineExceeded):
			return autoassign.AttemptResult{Failure: autoassign.FailureTimeout}, nil
		}
		return autoassign.AttemptResult{}, err
	}
	if result.Accepted() {
		return autoassign.AttemptResult{Accepted: true}, nil
	}

	switch result.Reason {
	case ReasonServiceNotFound, ReasonServiceOverrun:
		return autoassign.AttemptResult{Failure: autoassign.FailurePolicy}, nil
	default:
		return autoassign.AttemptResult{Failure: autoassign.FailureHard}, nil
	}
}

// ListPendingAllocation implements the auto-assign job's booking source
// across all restaurants.
func (s *AllocationService) ListPendingAllocation(ctx context.Context, limit int) ([]persistence.Booking, error) {
	return s.bookings.ListBookingsByStatus(ctx, "", string(lifecycle.StatusPendingAllocation), limit)
}
