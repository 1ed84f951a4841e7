package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS zones (
	id            TEXT PRIMARY KEY,
	restaurant_id TEXT NOT NULL,
	name          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tables (
	id            TEXT PRIMARY KEY,
	restaurant_id TEXT NOT NULL,
	zone_id       TEXT NOT NULL,
	number        TEXT NOT NULL,
	capacity      INTEGER NOT NULL CHECK (capacity > 0),
	min_party     INTEGER NOT NULL DEFAULT 1,
	max_party     INTEGER NOT NULL DEFAULT 0,
	category      TEXT NOT NULL DEFAULT 'standard',
	seating_type  TEXT NOT NULL DEFAULT '',
	movable       INTEGER NOT NULL DEFAULT 1,
	status        TEXT NOT NULL DEFAULT 'available',
	active        INTEGER NOT NULL DEFAULT 1,
	pos_x         REAL,
	pos_y         REAL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	UNIQUE (restaurant_id, number)
);

CREATE INDEX IF NOT EXISTS idx_tables_restaurant ON tables (restaurant_id);

CREATE TABLE IF NOT EXISTS table_adjacency (
	restaurant_id TEXT NOT NULL,
	zone_id       TEXT NOT NULL,
	table_a       TEXT NOT NULL,
	table_b       TEXT NOT NULL,
	PRIMARY KEY (table_a, table_b)
);

CREATE TABLE IF NOT EXISTS bookings (
	id            TEXT PRIMARY KEY,
	restaurant_id TEXT NOT NULL,
	party_size    INTEGER NOT NULL CHECK (party_size > 0),
	start_at      TEXT NOT NULL,
	end_at        TEXT NOT NULL,
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings (status, restaurant_id);

CREATE TABLE IF NOT EXISTS holds (
	id            TEXT PRIMARY KEY,
	booking_id    TEXT NOT NULL,
	restaurant_id TEXT NOT NULL,
	zone_id       TEXT NOT NULL DEFAULT '',
	start_at      TEXT NOT NULL,
	end_at        TEXT NOT NULL,
	buffer_end_at TEXT NOT NULL,
	expires_at    TEXT NOT NULL,
	created_by    TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_holds_expiry ON holds (expires_at);
CREATE INDEX IF NOT EXISTS idx_holds_window ON holds (restaurant_id, start_at);

CREATE TABLE IF NOT EXISTS hold_tables (
	hold_id  TEXT NOT NULL REFERENCES holds (id) ON DELETE CASCADE,
	table_id TEXT NOT NULL,
	PRIMARY KEY (hold_id, table_id)
);

CREATE INDEX IF NOT EXISTS idx_hold_tables_table ON hold_tables (table_id);

CREATE TABLE IF NOT EXISTS assignments (
	id            TEXT PRIMARY KEY,
	booking_id    TEXT NOT NULL,
	restaurant_id TEXT NOT NULL,
	table_id      TEXT NOT NULL,
	start_at      TEXT NOT NULL,
	end_at        TEXT NOT NULL,
	buffer_end_at TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assignments_table ON assignments (table_id, start_at);
CREATE INDEX IF NOT EXISTS idx_assignments_booking ON assignments (booking_id);
CREATE INDEX IF NOT EXISTS idx_assignments_window ON assignments (restaurant_id, start_at);

CREATE TABLE IF NOT EXISTS hold_confirmations (
	idempotency_key TEXT PRIMARY KEY,
	booking_id      TEXT NOT NULL,
	assignment_ids  TEXT NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS strategic_configs (
	restaurant_id              TEXT PRIMARY KEY,
	scarcity_weight            REAL NOT NULL,
	demand_multiplier_override REAL,
	future_conflict_penalty    REAL NOT NULL,
	updated_at                 TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS demand_rules (
	id            TEXT PRIMARY KEY,
	restaurant_id TEXT NOT NULL,
	label         TEXT NOT NULL,
	priority      INTEGER NOT NULL DEFAULT 0,
	weekdays      TEXT NOT NULL DEFAULT '',
	start_minute  INTEGER NOT NULL,
	end_minute    INTEGER NOT NULL,
	service_key   TEXT NOT NULL DEFAULT '',
	multiplier    REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_demand_rules_restaurant ON demand_rules (restaurant_id);

CREATE TABLE IF NOT EXISTS restaurant_policies (
	restaurant_id TEXT PRIMARY KEY,
	timezone      TEXT NOT NULL,
	policy_json   TEXT NOT NULL
);
`
