package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/table-allocator/internal/persistence"
)

// ConfirmHold implements persistence.ConfirmStore. Everything happens in one
// transaction: re-verify the hold, re-check assignment overlap, insert the
// assignment rows, advance the booking under its status guard, record the
// idempotency key, and delete the hold.
func (s *Store) ConfirmHold(ctx context.Context, params persistence.ConfirmParams) (persistence.ConfirmResult, error) {
	var result persistence.ConfirmResult

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if params.IdempotencyKey != "" {
			prior, err := confirmationInTx(ctx, tx, params.IdempotencyKey)
			if err == nil {
				result = persistence.ConfirmResult{Assignments: prior.Assignments, Replayed: true}
				return nil
			}
			if err != persistence.ErrNotFound {
				return err
			}
		}

		var expiresAt string
		err := tx.QueryRowContext(ctx, `SELECT expires_at FROM holds WHERE id = ?`, params.HoldID).Scan(&expiresAt)
		if err != nil {
			return mapError(err)
		}
		holdExpiry, err := parseTime(expiresAt)
		if err != nil {
			return err
		}
		if !holdExpiry.After(params.Now) {
			return persistence.ErrNotFound
		}

		// Buffered comparison, mirroring the hold guard: a seating may not
		// begin inside the turnover buffer of an existing one.
		for _, candidate := range params.Assignments {
			var clashes int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM assignments
				WHERE table_id = ? AND start_at < ? AND buffer_end_at > ?
			`, candidate.TableID, formatTime(candidate.BufferedEnd()), formatTime(candidate.Start)).Scan(&clashes)
			if err != nil {
				return mapError(err)
			}
			if clashes > 0 {
				return persistence.ErrAssignmentConflict
			}
		}

		if len(params.StatusFrom) == 0 {
			return fmt.Errorf("sqlite: confirm requires expected statuses")
		}
		placeholders := strings.Repeat("?,", len(params.StatusFrom))
		placeholders = placeholders[:len(placeholders)-1]
		args := []any{params.StatusTo, formatTime(params.Now), params.BookingID}
		for _, status := range params.StatusFrom {
			args = append(args, status)
		}
		updated, err := tx.ExecContext(ctx, fmt.Sprintf(
			`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status IN (%s)`,
			placeholders), args...)
		if err != nil {
			return mapError(err)
		}
		affected, err := updated.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrStaleStatus
		}

		assignmentIDs := make([]string, 0, len(params.Assignments))
		for _, a := range params.Assignments {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO assignments (id, booking_id, restaurant_id, table_id, start_at, end_at, buffer_end_at, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, a.ID, a.BookingID, a.RestaurantID, a.TableID,
				formatTime(a.Start), formatTime(a.End), formatTime(a.BufferedEnd()), formatTime(a.CreatedAt))
			if err != nil {
				return mapError(err)
			}
			assignmentIDs = append(assignmentIDs, a.ID)
		}

		if params.IdempotencyKey != "" {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO hold_confirmations (idempotency_key, booking_id, assignment_ids, created_at)
				VALUES (?, ?, ?, ?)
			`, params.IdempotencyKey, params.BookingID,
				strings.Join(assignmentIDs, ","), formatTime(params.Now))
			if err != nil {
				return mapError(err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM holds WHERE id = ?`, params.HoldID); err != nil {
			return mapError(err)
		}

		result = persistence.ConfirmResult{Assignments: params.Assignments}
		return nil
	})
	if err != nil {
		return persistence.ConfirmResult{}, err
	}
	return result, nil
}

// GetConfirmation implements persistence.ConfirmStore.
func (s *Store) GetConfirmation(ctx context.Context, idempotencyKey string) (persistence.ConfirmResult, error) {
	var (
		bookingID     string
		assignmentIDs string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT booking_id, assignment_ids FROM hold_confirmations WHERE idempotency_key = ?`,
		idempotencyKey).Scan(&bookingID, &assignmentIDs)
	if err != nil {
		return persistence.ConfirmResult{}, mapError(err)
	}

	assignments, err := s.ListAssignmentsForBooking(ctx, bookingID)
	if err != nil {
		return persistence.ConfirmResult{}, err
	}
	return persistence.ConfirmResult{Assignments: filterAssignments(assignments, assignmentIDs), Replayed: true}, nil
}

func confirmationInTx(ctx context.Context, tx *sql.Tx, idempotencyKey string) (persistence.ConfirmResult, error) {
	var (
		bookingID     string
		assignmentIDs string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT booking_id, assignment_ids FROM hold_confirmations WHERE idempotency_key = ?`,
		idempotencyKey).Scan(&bookingID, &assignmentIDs)
	if err != nil {
		return persistence.ConfirmResult{}, mapError(err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, booking_id, restaurant_id, table_id, start_at, end_at, buffer_end_at, created_at
		FROM assignments
		WHERE booking_id = ?
		ORDER BY table_id ASC
	`, bookingID)
	if err != nil {
		return persistence.ConfirmResult{}, mapError(err)
	}
	defer rows.Close()

	assignments, err := scanAssignments(rows)
	if err != nil {
		return persistence.ConfirmResult{}, err
	}
	return persistence.ConfirmResult{Assignments: filterAssignments(assignments, assignmentIDs), Replayed: true}, nil
}

// filterAssignments keeps the rows named by the stored comma-joined ID list.
func filterAssignments(assignments []persistence.Assignment, idList string) []persistence.Assignment {
	if idList == "" {
		return assignments
	}
	wanted := make(map[string]struct{})
	for _, id := range strings.Split(idList, ",") {
		wanted[id] = struct{}{}
	}
	var out []persistence.Assignment
	for _, a := range assignments {
		if _, ok := wanted[a.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}
