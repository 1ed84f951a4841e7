package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/table-allocator/internal/persistence"
)

// ListTables implements persistence.InventoryRepository.
func (s *Store) ListTables(ctx context.Context, restaurantID string) ([]persistence.Table, error) {
	query := `
		SELECT id, restaurant_id, zone_id, number, capacity, min_party, max_party,
		       category, seating_type, movable, status, active, pos_x, pos_y,
		       created_at, updated_at
		FROM tables
		WHERE restaurant_id = ?
		ORDER BY number ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, restaurantID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var tables []persistence.Table
	for rows.Next() {
		var (
			t                    persistence.Table
			movable, active      int
			posX, posY           sql.NullFloat64
			createdAt, updatedAt string
		)
		err := rows.Scan(&t.ID, &t.RestaurantID, &t.ZoneID, &t.Number, &t.Capacity,
			&t.MinParty, &t.MaxParty, &t.Category, &t.SeatingType, &movable,
			&t.Status, &active, &posX, &posY, &createdAt, &updatedAt)
		if err != nil {
			return nil, mapError(err)
		}

		t.Movable = movable != 0
		t.Active = active != 0
		if posX.Valid {
			v := posX.Float64
			t.PosX = &v
		}
		if posY.Valid {
			v := posY.Float64
			t.PosY = &v
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// ListZones implements persistence.InventoryRepository.
func (s *Store) ListZones(ctx context.Context, restaurantID string) ([]persistence.Zone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, restaurant_id, name FROM zones WHERE restaurant_id = ? ORDER BY name ASC`,
		restaurantID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var zones []persistence.Zone
	for rows.Next() {
		var zone persistence.Zone
		if err := rows.Scan(&zone.ID, &zone.RestaurantID, &zone.Name); err != nil {
			return nil, mapError(err)
		}
		zones = append(zones, zone)
	}
	return zones, rows.Err()
}

// ListAdjacency implements persistence.InventoryRepository.
func (s *Store) ListAdjacency(ctx context.Context, restaurantID string) ([]persistence.AdjacencyEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT restaurant_id, zone_id, table_a, table_b FROM table_adjacency WHERE restaurant_id = ?`,
		restaurantID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var edges []persistence.AdjacencyEdge
	for rows.Next() {
		var edge persistence.AdjacencyEdge
		if err := rows.Scan(&edge.RestaurantID, &edge.ZoneID, &edge.TableA, &edge.TableB); err != nil {
			return nil, mapError(err)
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// GetRestaurantPolicy implements persistence.InventoryRepository.
func (s *Store) GetRestaurantPolicy(ctx context.Context, restaurantID string) (persistence.RestaurantPolicy, error) {
	var row persistence.RestaurantPolicy
	err := s.db.QueryRowContext(ctx,
		`SELECT restaurant_id, timezone, policy_json FROM restaurant_policies WHERE restaurant_id = ?`,
		restaurantID).Scan(&row.RestaurantID, &row.Timezone, &row.PolicyJSON)
	if err != nil {
		return persistence.RestaurantPolicy{}, mapError(err)
	}
	return row, nil
}

// UpsertRestaurantPolicy stores or replaces a policy row. Seeding and admin
// flows use it.
func (s *Store) UpsertRestaurantPolicy(ctx context.Context, row persistence.RestaurantPolicy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO restaurant_policies (restaurant_id, timezone, policy_json)
		VALUES (?, ?, ?)
		ON CONFLICT (restaurant_id) DO UPDATE SET timezone = excluded.timezone, policy_json = excluded.policy_json
	`, row.RestaurantID, row.Timezone, row.PolicyJSON)
	return mapError(err)
}

// InsertTable stores an inventory row. Seeding and admin flows use it.
func (s *Store) InsertTable(ctx context.Context, t persistence.Table) error {
	var posX, posY any
	if t.PosX != nil {
		posX = *t.PosX
	}
	if t.PosY != nil {
		posY = *t.PosY
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tables (id, restaurant_id, zone_id, number, capacity, min_party,
			max_party, category, seating_type, movable, status, active, pos_x, pos_y,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.RestaurantID, t.ZoneID, t.Number, t.Capacity, t.MinParty, t.MaxParty,
		t.Category, t.SeatingType, boolInt(t.Movable), string(t.Status), boolInt(t.Active),
		posX, posY, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return mapError(err)
}

// InsertZone stores a zone row.
func (s *Store) InsertZone(ctx context.Context, zone persistence.Zone) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO zones (id, restaurant_id, name) VALUES (?, ?, ?)`,
		zone.ID, zone.RestaurantID, zone.Name)
	return mapError(err)
}

// InsertAdjacency stores one adjacency edge.
func (s *Store) InsertAdjacency(ctx context.Context, edge persistence.AdjacencyEdge) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO table_adjacency (restaurant_id, zone_id, table_a, table_b) VALUES (?, ?, ?, ?)`,
		edge.RestaurantID, edge.ZoneID, edge.TableA, edge.TableB)
	return mapError(err)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
