package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/table-allocator/internal/persistence"
)

var (
	tableCounter   uint64
	bookingCounter uint64
	holdCounter    uint64
)

var referenceTime = time.Date(2025, time.June, 3, 12, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// DefaultRestaurantID is the tenant used by fixtures unless overridden.
const DefaultRestaurantID = "rest-1"

// ----------------------------- Table fixtures -----------------------------

// TableOption configures a generated table fixture.
type TableOption func(*persistence.Table)

// NewTableFixture returns a deterministic active four-top with optional
// overrides.
func NewTableFixture(opts ...TableOption) persistence.Table {
	idx := atomic.AddUint64(&tableCounter, 1)
	table := persistence.Table{
		ID:           fmt.Sprintf("table-%03d", idx),
		RestaurantID: DefaultRestaurantID,
		ZoneID:       "zone-main",
		Number:       fmt.Sprintf("T%03d", idx),
		Capacity:     4,
		MinParty:     1,
		Category:     "standard",
		Movable:      true,
		Status:       persistence.TableAvailable,
		Active:       true,
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&table)
	}
	return table
}

// WithTableID overrides the generated table ID and number.
func WithTableID(id string) TableOption {
	return func(t *persistence.Table) {
		t.ID = id
		t.Number = id
	}
}

// WithTableCapacity sets the seat count.
func WithTableCapacity(capacity int) TableOption {
	return func(t *persistence.Table) {
		t.Capacity = capacity
	}
}

// WithTableZone assigns the table to a zone.
func WithTableZone(zoneID string) TableOption {
	return func(t *persistence.Table) {
		t.ZoneID = zoneID
	}
}

// WithTablePartyBounds sets the min/max party size the table accepts.
func WithTablePartyBounds(minParty, maxParty int) TableOption {
	return func(t *persistence.Table) {
		t.MinParty = minParty
		t.MaxParty = maxParty
	}
}

// WithTableStatus sets the operational status.
func WithTableStatus(status persistence.TableStatus) TableOption {
	return func(t *persistence.Table) {
		t.Status = status
	}
}

// WithTableInactive soft-deletes the table.
func WithTableInactive() TableOption {
	return func(t *persistence.Table) {
		t.Active = false
	}
}

// WithTableRestaurant moves the table to another tenant.
func WithTableRestaurant(restaurantID string) TableOption {
	return func(t *persistence.Table) {
		t.RestaurantID = restaurantID
	}
}

// ---------------------------- Booking fixtures -----------------------------

// BookingOption configures a generated booking fixture.
type BookingOption func(*persistence.Booking)

// NewBookingFixture returns a deterministic pending booking for four guests
// at 18:00 on the reference day, inside the default dinner service.
func NewBookingFixture(opts ...BookingOption) persistence.Booking {
	idx := atomic.AddUint64(&bookingCounter, 1)
	booking := persistence.Booking{
		ID:           fmt.Sprintf("booking-%03d", idx),
		RestaurantID: DefaultRestaurantID,
		PartySize:    4,
		Start:        referenceTime.Add(6 * time.Hour),
		End:          referenceTime.Add(6*time.Hour + 90*time.Minute),
		Status:       "pending",
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&booking)
	}
	return booking
}

// WithBookingID overrides the generated booking ID.
func WithBookingID(id string) BookingOption {
	return func(b *persistence.Booking) {
		b.ID = id
	}
}

// WithBookingPartySize sets the party size.
func WithBookingPartySize(size int) BookingOption {
	return func(b *persistence.Booking) {
		b.PartySize = size
	}
}

// WithBookingStart sets the requested start and keeps a 90 minute span.
func WithBookingStart(start time.Time) BookingOption {
	return func(b *persistence.Booking) {
		b.Start = start
		b.End = start.Add(90 * time.Minute)
	}
}

// WithBookingStatus sets the lifecycle status.
func WithBookingStatus(status string) BookingOption {
	return func(b *persistence.Booking) {
		b.Status = status
	}
}

// WithBookingRestaurant moves the booking to another tenant.
func WithBookingRestaurant(restaurantID string) BookingOption {
	return func(b *persistence.Booking) {
		b.RestaurantID = restaurantID
	}
}

// ------------------------------ Hold fixtures ------------------------------

// HoldOption configures a generated hold fixture.
type HoldOption func(*persistence.Hold)

// NewHoldFixture returns a deterministic unexpired hold with optional
// overrides.
func NewHoldFixture(opts ...HoldOption) persistence.Hold {
	idx := atomic.AddUint64(&holdCounter, 1)
	hold := persistence.Hold{
		ID:           fmt.Sprintf("hold-%03d", idx),
		BookingID:    fmt.Sprintf("booking-%03d", idx),
		RestaurantID: DefaultRestaurantID,
		TableIDs:     []string{fmt.Sprintf("table-%03d", idx)},
		Start:        referenceTime.Add(6 * time.Hour),
		End:          referenceTime.Add(6*time.Hour + 90*time.Minute),
		BufferEnd:    referenceTime.Add(6*time.Hour + 105*time.Minute),
		ExpiresAt:    referenceTime.Add(10 * time.Minute),
		CreatedBy:    "tester",
		CreatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&hold)
	}
	return hold
}

// WithHoldID overrides the generated hold ID.
func WithHoldID(id string) HoldOption {
	return func(h *persistence.Hold) {
		h.ID = id
	}
}

// WithHoldBooking binds the hold to a booking.
func WithHoldBooking(bookingID string) HoldOption {
	return func(h *persistence.Hold) {
		h.BookingID = bookingID
	}
}

// WithHoldTables overrides the held table set.
func WithHoldTables(tableIDs ...string) HoldOption {
	return func(h *persistence.Hold) {
		h.TableIDs = tableIDs
	}
}

// WithHoldWindow sets the dining window and keeps the default 15 minute
// turnover buffer after it.
func WithHoldWindow(start, end time.Time) HoldOption {
	return func(h *persistence.Hold) {
		h.Start = start
		h.End = end
		h.BufferEnd = end.Add(15 * time.Minute)
	}
}

// WithHoldExpiry sets the expiry instant.
func WithHoldExpiry(expiresAt time.Time) HoldOption {
	return func(h *persistence.Hold) {
		h.ExpiresAt = expiresAt
	}
}

// ----------------------------- Policy fixtures -----------------------------

// DefaultPolicyJSON is a dinner-only policy in UTC: service from 17:00 to
// 23:00, 90 minute default duration, 15 minute turnover buffer, and a 120
// minute band for parties of seven or more.
const DefaultPolicyJSON = `{
  "services": [
    {"key": "dinner", "open": {"hour": 17, "minute": 0}, "close": {"hour": 23, "minute": 0}}
  ],
  "bands": [
    {"service_key": "dinner", "min_party": 7, "max_party": 0, "minutes": 120}
  ],
  "default_minutes": 90,
  "buffer_minutes": 15
}`

// NewPolicyFixture returns the default dinner policy row for a restaurant.
func NewPolicyFixture(restaurantID string) persistence.RestaurantPolicy {
	if restaurantID == "" {
		restaurantID = DefaultRestaurantID
	}
	return persistence.RestaurantPolicy{
		RestaurantID: restaurantID,
		Timezone:     "UTC",
		PolicyJSON:   DefaultPolicyJSON,
	}
}
