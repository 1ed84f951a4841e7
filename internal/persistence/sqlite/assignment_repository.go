package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/table-allocator/internal/persistence"
)

// ListAssignmentsInRange implements persistence.AssignmentRepository. Rows
// overlapping the half-open [from, to) window are returned.
func (s *Store) ListAssignmentsInRange(ctx context.Context, restaurantID string, from, to time.Time) ([]persistence.Assignment, error) {
	query := `
		SELECT id, booking_id, restaurant_id, table_id, start_at, end_at, buffer_end_at, created_at
		FROM assignments
		WHERE restaurant_id = ? AND start_at < ? AND end_at > ?
		ORDER BY start_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, restaurantID, formatTime(to), formatTime(from))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// ListAssignmentsForBooking implements persistence.AssignmentRepository.
func (s *Store) ListAssignmentsForBooking(ctx context.Context, bookingID string) ([]persistence.Assignment, error) {
	query := `
		SELECT id, booking_id, restaurant_id, table_id, start_at, end_at, buffer_end_at, created_at
		FROM assignments
		WHERE booking_id = ?
		ORDER BY table_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func scanAssignments(rows *sql.Rows) ([]persistence.Assignment, error) {
	var assignments []persistence.Assignment
	for rows.Next() {
		var (
			a                                      persistence.Assignment
			startAt, endAt, bufferEndAt, createdAt string
		)
		err := rows.Scan(&a.ID, &a.BookingID, &a.RestaurantID, &a.TableID,
			&startAt, &endAt, &bufferEndAt, &createdAt)
		if err != nil {
			return nil, mapError(err)
		}
		if a.Start, err = parseTime(startAt); err != nil {
			return nil, err
		}
		if a.End, err = parseTime(endAt); err != nil {
			return nil, err
		}
		if a.BufferEnd, err = parseTime(bufferEndAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}
