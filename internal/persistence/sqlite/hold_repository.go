package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/table-allocator/internal/persistence"
)

// CreateHold implements persistence.HoldRepository. The conflict guard and
// the insert run in one transaction: the hold lands only if none of its
// tables carries an unexpired hold or an assignment whose buffered window
// overlaps the candidate's buffered window.
func (s *Store) CreateHold(ctx context.Context, hold persistence.Hold) error {
	if len(hold.TableIDs) == 0 {
		return fmt.Errorf("sqlite: hold %s has no tables", hold.ID)
	}

	metadata := "{}"
	if len(hold.Metadata) > 0 {
		encoded, err := json.Marshal(hold.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: encode hold metadata: %w", err)
		}
		metadata = string(encoded)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		conflicts, err := countHoldConflicts(tx, hold)
		if err != nil {
			return err
		}
		if conflicts > 0 {
			return persistence.ErrHoldConflict
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO holds (id, booking_id, restaurant_id, zone_id, start_at, end_at,
				buffer_end_at, expires_at, created_by, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, hold.ID, hold.BookingID, hold.RestaurantID, hold.ZoneID,
			formatTime(hold.Start), formatTime(hold.End), formatTime(hold.BufferedEnd()),
			formatTime(hold.ExpiresAt), hold.CreatedBy, metadata, formatTime(hold.CreatedAt))
		if err != nil {
			return mapError(err)
		}

		for _, tableID := range hold.TableIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO hold_tables (hold_id, table_id) VALUES (?, ?)`,
				hold.ID, tableID); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// countHoldConflicts counts unexpired holds and assignments whose buffered
// windows overlap the candidate hold's tables and buffered window. Both sides
// compare start against the other's buffer end, so a seating may begin no
// sooner than one buffer after the previous one ends.
func countHoldConflicts(tx *sql.Tx, hold persistence.Hold) (int, error) {
	placeholders := strings.Repeat("?,", len(hold.TableIDs))
	placeholders = placeholders[:len(placeholders)-1]

	holdQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM holds h
		JOIN hold_tables ht ON ht.hold_id = h.id
		WHERE ht.table_id IN (%s)
		  AND h.expires_at > ?
		  AND h.start_at < ?
		  AND h.buffer_end_at > ?
	`, placeholders)

	args := make([]any, 0, len(hold.TableIDs)+3)
	for _, id := range hold.TableIDs {
		args = append(args, id)
	}
	args = append(args, formatTime(hold.CreatedAt), formatTime(hold.BufferedEnd()), formatTime(hold.Start))

	var holdConflicts int
	if err := tx.QueryRow(holdQuery, args...).Scan(&holdConflicts); err != nil {
		return 0, mapError(err)
	}
	if holdConflicts > 0 {
		return holdConflicts, nil
	}

	assignmentQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM assignments
		WHERE table_id IN (%s)
		  AND start_at < ?
		  AND buffer_end_at > ?
	`, placeholders)

	args = args[:len(hold.TableIDs)]
	args = append(args, formatTime(hold.BufferedEnd()), formatTime(hold.Start))

	var assignmentConflicts int
	if err := tx.QueryRow(assignmentQuery, args...).Scan(&assignmentConflicts); err != nil {
		return 0, mapError(err)
	}
	return assignmentConflicts, nil
}

// GetHold implements persistence.HoldRepository.
func (s *Store) GetHold(ctx context.Context, id string) (persistence.Hold, error) {
	query := `
		SELECT id, booking_id, restaurant_id, zone_id, start_at, end_at, buffer_end_at,
		       expires_at, created_by, metadata, created_at
		FROM holds
		WHERE id = ?
	`
	hold, err := scanHold(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return persistence.Hold{}, err
	}

	hold.TableIDs, err = s.holdTables(ctx, id)
	if err != nil {
		return persistence.Hold{}, err
	}
	return hold, nil
}

func (s *Store) holdTables(ctx context.Context, holdID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_id FROM hold_tables WHERE hold_id = ? ORDER BY table_id ASC`, holdID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var tableIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		tableIDs = append(tableIDs, id)
	}
	return tableIDs, rows.Err()
}

// DeleteHold implements persistence.HoldRepository.
func (s *Store) DeleteHold(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM holds WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListHoldsInRange implements persistence.HoldRepository.
func (s *Store) ListHoldsInRange(ctx context.Context, restaurantID string, from, to time.Time) ([]persistence.Hold, error) {
	query := `
		SELECT id, booking_id, restaurant_id, zone_id, start_at, end_at, buffer_end_at,
		       expires_at, created_by, metadata, created_at
		FROM holds
		WHERE restaurant_id = ? AND start_at < ? AND end_at > ?
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, restaurantID, formatTime(to), formatTime(from))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var holds []persistence.Hold
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, hold)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range holds {
		holds[i].TableIDs, err = s.holdTables(ctx, holds[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return holds, nil
}

// SweepExpired implements persistence.HoldRepository.
func (s *Store) SweepExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	var removed int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM holds
			WHERE id IN (
				SELECT id FROM holds WHERE expires_at <= ? ORDER BY expires_at ASC LIMIT ?
			)
		`, formatTime(now), limit)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		removed = int(affected)
		return nil
	})
	return removed, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHold(row rowScanner) (persistence.Hold, error) {
	var (
		hold                                              persistence.Hold
		startAt, endAt, bufferEndAt, expiresAt, createdAt string
		metadata                                          string
	)
	err := row.Scan(&hold.ID, &hold.BookingID, &hold.RestaurantID, &hold.ZoneID,
		&startAt, &endAt, &bufferEndAt, &expiresAt, &hold.CreatedBy, &metadata, &createdAt)
	if err != nil {
		return persistence.Hold{}, mapError(err)
	}

	if hold.Start, err = parseTime(startAt); err != nil {
		return persistence.Hold{}, err
	}
	if hold.End, err = parseTime(endAt); err != nil {
		return persistence.Hold{}, err
	}
	if hold.BufferEnd, err = parseTime(bufferEndAt); err != nil {
		return persistence.Hold{}, err
	}
	if hold.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Hold{}, err
	}
	if hold.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Hold{}, err
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &hold.Metadata); err != nil {
			return persistence.Hold{}, fmt.Errorf("sqlite: decode hold metadata: %w", err)
		}
	}
	return hold, nil
}
