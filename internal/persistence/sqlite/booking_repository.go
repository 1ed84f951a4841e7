package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/table-allocator/internal/persistence"
)

// GetBooking implements persistence.BookingRepository.
func (s *Store) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	query := `
		SELECT id, restaurant_id, party_size, start_at, end_at, status, created_at, updated_at
		FROM bookings
		WHERE id = ?
	`
	var (
		b                                    persistence.Booking
		startAt, endAt, createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.RestaurantID,
		&b.PartySize, &startAt, &endAt, &b.Status, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Booking{}, mapError(err)
	}

	if b.Start, err = parseTime(startAt); err != nil {
		return persistence.Booking{}, err
	}
	if b.End, err = parseTime(endAt); err != nil {
		return persistence.Booking{}, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Booking{}, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Booking{}, err
	}
	return b, nil
}

// CreateBooking implements persistence.BookingRepository.
func (s *Store) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, restaurant_id, party_size, start_at, end_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, booking.ID, booking.RestaurantID, booking.PartySize,
		formatTime(booking.Start), formatTime(booking.End), booking.Status,
		formatTime(booking.CreatedAt), formatTime(booking.UpdatedAt))
	return mapError(err)
}

// UpdateBookingStatus implements persistence.BookingRepository. The guard on
// the current status runs inside the UPDATE, so a concurrent transition makes
// the statement a no-op and surfaces as ErrStaleStatus.
func (s *Store) UpdateBookingStatus(ctx context.Context, id string, expectedFrom []string, to string, updatedAt time.Time) error {
	if len(expectedFrom) == 0 {
		return fmt.Errorf("sqlite: expectedFrom must not be empty")
	}

	placeholders := strings.Repeat("?,", len(expectedFrom))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status IN (%s)`,
		placeholders)

	args := []any{to, formatTime(updatedAt), id}
	for _, status := range expectedFrom {
		args = append(args, status)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&exists); err != nil {
			return mapError(err)
		}
		return persistence.ErrStaleStatus
	}
	return nil
}

// ListBookingsByStatus implements persistence.BookingRepository. An empty
// restaurantID matches every restaurant.
func (s *Store) ListBookingsByStatus(ctx context.Context, restaurantID, status string, limit int) ([]persistence.Booking, error) {
	query := `
		SELECT id, restaurant_id, party_size, start_at, end_at, status, created_at, updated_at
		FROM bookings
		WHERE status = ? AND (? = '' OR restaurant_id = ?)
		ORDER BY created_at ASC, id ASC
	`
	args := []any{status, restaurantID, restaurantID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var bookings []persistence.Booking
	for rows.Next() {
		var (
			b                                    persistence.Booking
			startAt, endAt, createdAt, updatedAt string
		)
		err := rows.Scan(&b.ID, &b.RestaurantID, &b.PartySize, &startAt, &endAt,
			&b.Status, &createdAt, &updatedAt)
		if err != nil {
			return nil, mapError(err)
		}
		if b.Start, err = parseTime(startAt); err != nil {
			return nil, err
		}
		if b.End, err = parseTime(endAt); err != nil {
			return nil, err
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
