package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/table-allocator/internal/lifecycle"
	"github.com/example/table-allocator/internal/observability"
	"github.com/example/table-allocator/internal/persistence"
)

// ConfirmParams identifies the hold to convert into durable assignments.
type ConfirmParams struct {
	HoldID    string
	BookingID string
	// IdempotencyKey makes retried confirms replay the original result. An
	// empty key disables replay.
	IdempotencyKey string
}

// ConfirmResult reports the assignments bound to the booking. Replayed is
// true when a retried request returned the stored result.
type ConfirmResult struct {
	Assignments []persistence.Assignment
	Replayed    bool
}

// HoldService converts holds into assignments and sweeps expired holds.
type HoldService struct {
	bookings    persistence.BookingRepository
	holds       persistence.HoldRepository
	store       persistence.ConfirmStore
	idGenerator func() string
	now         func() time.Time
	sink        observability.Sink
	logger      *slog.Logger
}

// NewHoldService wires dependencies for hold confirmation and sweeping.
func NewHoldService(bookings persistence.BookingRepository, holds persistence.HoldRepository, store persistence.ConfirmStore, idGenerator func() string, now func() time.Time, sink observability.Sink, logger *slog.Logger) *HoldService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &HoldService{
		bookings:    bookings,
		holds:       holds,
		store:       store,
		idGenerator: idGenerator,
		now:         now,
		sink:        sink,
		logger:      defaultLogger(logger),
	}
}

// ConfirmHold converts a hold into durable assignments and advances the
// booking to confirmed. The write is atomic: the store re-verifies the hold
// and the idempotency record inside one transaction, so two racing confirms
// on the same tables cannot both succeed.
func (s *HoldService) ConfirmHold(ctx context.Context, params ConfirmParams) (ConfirmResult, error) {
	if s == nil {
		return ConfirmResult{}, fmt.Errorf("HoldService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "hold", "confirm",
		"hold_id", params.HoldID, "booking_id", params.BookingID)

	if params.IdempotencyKey != "" {
		prior, err := s.store.GetConfirmation(ctx, params.IdempotencyKey)
		if err == nil {
			logger.InfoContext(ctx, "confirm replayed from idempotency record")
			return ConfirmResult{Assignments: prior.Assignments, Replayed: true}, nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return ConfirmResult{}, err
		}
	}

	hold, err := s.holds.GetHold(ctx, params.HoldID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ConfirmResult{}, ErrHoldNotFound
		}
		return ConfirmResult{}, err
	}
	if hold.BookingID != params.BookingID {
		vErr := &ValidationError{}
		vErr.add("booking_id", "hold belongs to a different booking")
		return ConfirmResult{}, vErr
	}

	now := s.now()
	if !hold.ExpiresAt.After(now) {
		return ConfirmResult{}, ErrHoldNotFound
	}

	booking, err := s.bookings.GetBooking(ctx, params.BookingID)
	if err != nil {
		return ConfirmResult{}, mapRepoError(err)
	}

	from := lifecycle.Status(booking.Status)
	if err := lifecycle.AssertTransition(from, lifecycle.StatusConfirmed); err != nil {
		return ConfirmResult{}, err
	}

	assignments := make([]persistence.Assignment, 0, len(hold.TableIDs))
	for _, tableID := range hold.TableIDs {
		assignments = append(assignments, persistence.Assignment{
			ID:           s.idGenerator(),
			BookingID:    booking.ID,
			RestaurantID: booking.RestaurantID,
			TableID:      tableID,
			Start:        hold.Start,
			End:          hold.End,
			BufferEnd:    hold.BufferedEnd(),
			CreatedAt:    now,
		})
	}

	result, err := s.store.ConfirmHold(ctx, persistence.ConfirmParams{
		HoldID:         hold.ID,
		BookingID:      booking.ID,
		IdempotencyKey: params.IdempotencyKey,
		Assignments:    assignments,
		StatusFrom:     []string{string(from)},
		StatusTo:       string(lifecycle.StatusConfirmed),
		Now:            now,
	})
	if err != nil {
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			// The hold expired or was swept between the read and the write.
			return ConfirmResult{}, ErrHoldNotFound
		case errors.Is(err, persistence.ErrAssignmentConflict), errors.Is(err, persistence.ErrStaleStatus):
			return ConfirmResult{}, ErrAssignmentConflict
		case errors.Is(err, persistence.ErrDuplicate) && params.IdempotencyKey != "":
			prior, readErr := s.store.GetConfirmation(ctx, params.IdempotencyKey)
			if readErr != nil {
				return ConfirmResult{}, err
			}
			return ConfirmResult{Assignments: prior.Assignments, Replayed: true}, nil
		}
		return ConfirmResult{}, err
	}

	observability.Emit(ctx, s.sink, logger, observability.Event{
		Source:   "hold",
		Type:     observability.EventHoldConfirmed,
		Severity: observability.SeverityInfo,
		Context: map[string]any{
			"booking_id": booking.ID,
			"hold_id":    hold.ID,
			"tables":     hold.TableIDs,
			"replayed":   result.Replayed,
		},
	})

	return ConfirmResult{Assignments: result.Assignments, Replayed: result.Replayed}, nil
}

// ReleaseHold deletes a hold before its TTL expires, freeing the tables for
// other quotes. Releasing a hold that already expired or was confirmed
// returns ErrHoldNotFound.
func (s *HoldService) ReleaseHold(ctx context.Context, holdID, bookingID string) error {
	if s == nil {
		return fmt.Errorf("HoldService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "hold", "release",
		"hold_id", holdID, "booking_id", bookingID)

	hold, err := s.holds.GetHold(ctx, holdID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrHoldNotFound
		}
		return err
	}
	if bookingID != "" && hold.BookingID != bookingID {
		vErr := &ValidationError{}
		vErr.add("booking_id", "hold belongs to a different booking")
		return vErr
	}

	if err := s.holds.DeleteHold(ctx, holdID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrHoldNotFound
		}
		return err
	}

	observability.Emit(ctx, s.sink, logger, observability.Event{
		Source:   "hold",
		Type:     observability.EventHoldReleased,
		Severity: observability.SeverityInfo,
		Context: map[string]any{
			"booking_id": hold.BookingID,
			"hold_id":    hold.ID,
			"tables":     hold.TableIDs,
		},
	})
	return nil
}

// SweepExpiredHolds removes up to limit expired holds and reports the count.
func (s *HoldService) SweepExpiredHolds(ctx context.Context, limit int) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("HoldService is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	removed, err := s.holds.SweepExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		observability.Emit(ctx, s.sink, s.logger, observability.Event{
			Source:   "hold",
			Type:     observability.EventHoldsSwept,
			Severity: observability.SeverityInfo,
			Context:  map[string]any{"removed": removed},
		})
	}
	return removed, nil
}

// SweepUntilDrained repeats batch sweeps until a batch comes back smaller
// than the limit, pausing between batches so a backlog cannot monopolize the
// store.
func (s *HoldService) SweepUntilDrained(ctx context.Context, limit int, pause time.Duration) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		removed, err := s.SweepExpiredHolds(ctx, limit)
		if err != nil {
			return total, err
		}
		total += removed
		if removed < limit || limit <= 0 {
			return total, nil
		}
		if pause > 0 {
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
}
