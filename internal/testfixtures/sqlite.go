package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/table-allocator/internal/persistence"
	"github.com/example/table-allocator/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite store
// for integration-style persistence tests.
type SQLiteHarness struct {
	Store       *sqlite.Store
	Inventory   persistence.InventoryRepository
	Bookings    persistence.BookingRepository
	Assignments persistence.AssignmentRepository
	Holds       persistence.HoldRepository
	Confirms    persistence.ConfirmStore
	Strategies  persistence.StrategyRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a harness over a temporary database file that
// is migrated automatically. A cleanup callback is registered with tb.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "allocator.db")

	store, err := sqlite.Open(path)
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate store: %v", err)
	}

	harness := &SQLiteHarness{
		Store:       store,
		Inventory:   store,
		Bookings:    store,
		Assignments: store,
		Holds:       store,
		Confirms:    store,
		Strategies:  store,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
