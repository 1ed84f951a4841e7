package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/example/table-allocator/internal/persistence"
)

// GetStrategicConfig implements persistence.StrategyRepository with the
// restaurant-then-global fallback.
func (s *Store) GetStrategicConfig(ctx context.Context, restaurantID string) (persistence.StrategicConfigRow, error) {
	row, err := s.strategicConfig(ctx, restaurantID)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) || restaurantID == "" {
		return persistence.StrategicConfigRow{}, err
	}
	return s.strategicConfig(ctx, "")
}

func (s *Store) strategicConfig(ctx context.Context, restaurantID string) (persistence.StrategicConfigRow, error) {
	var (
		row       persistence.StrategicConfigRow
		override  sql.NullFloat64
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT restaurant_id, scarcity_weight, demand_multiplier_override,
		       future_conflict_penalty, updated_at
		FROM strategic_configs
		WHERE restaurant_id = ?
	`, restaurantID).Scan(&row.RestaurantID, &row.ScarcityWeight, &override,
		&row.FutureConflictPenalty, &updatedAt)
	if err != nil {
		return persistence.StrategicConfigRow{}, mapError(err)
	}

	if override.Valid {
		v := override.Float64
		row.DemandMultiplierOverride = &v
	}
	if row.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.StrategicConfigRow{}, err
	}
	return row, nil
}

// UpsertStrategicConfig stores or replaces a scoring config row.
func (s *Store) UpsertStrategicConfig(ctx context.Context, row persistence.StrategicConfigRow) error {
	var override any
	if row.DemandMultiplierOverride != nil {
		override = *row.DemandMultiplierOverride
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategic_configs (restaurant_id, scarcity_weight, demand_multiplier_override,
			future_conflict_penalty, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (restaurant_id) DO UPDATE SET
			scarcity_weight = excluded.scarcity_weight,
			demand_multiplier_override = excluded.demand_multiplier_override,
			future_conflict_penalty = excluded.future_conflict_penalty,
			updated_at = excluded.updated_at
	`, row.RestaurantID, row.ScarcityWeight, override, row.FutureConflictPenalty,
		formatTime(row.UpdatedAt))
	return mapError(err)
}

// ListDemandRules implements persistence.StrategyRepository.
func (s *Store) ListDemandRules(ctx context.Context, restaurantID string) ([]persistence.DemandRuleRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, restaurant_id, label, priority, weekdays, start_minute, end_minute,
		       service_key, multiplier
		FROM demand_rules
		WHERE restaurant_id = ?
		ORDER BY priority DESC, id ASC
	`, restaurantID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []persistence.DemandRuleRow
	for rows.Next() {
		var (
			row      persistence.DemandRuleRow
			weekdays string
		)
		err := rows.Scan(&row.ID, &row.RestaurantID, &row.Label, &row.Priority,
			&weekdays, &row.StartMinute, &row.EndMinute, &row.ServiceKey, &row.Multiplier)
		if err != nil {
			return nil, mapError(err)
		}
		if row.Weekdays, err = parseWeekdays(weekdays); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertDemandRule stores a demand rule row.
func (s *Store) InsertDemandRule(ctx context.Context, row persistence.DemandRuleRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO demand_rules (id, restaurant_id, label, priority, weekdays,
			start_minute, end_minute, service_key, multiplier)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.RestaurantID, row.Label, row.Priority, formatWeekdays(row.Weekdays),
		row.StartMinute, row.EndMinute, row.ServiceKey, row.Multiplier)
	return mapError(err)
}

func formatWeekdays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, len(days))
	for i, day := range days {
		parts[i] = strconv.Itoa(int(day))
	}
	return strings.Join(parts, ",")
}

func parseWeekdays(encoded string) ([]time.Weekday, error) {
	if encoded == "" {
		return nil, nil
	}
	parts := strings.Split(encoded, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}
