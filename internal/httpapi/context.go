package httpapi

import "context"

type contextKey string

const (
	bookingIDContextKey contextKey = "booking_id"
	holdIDContextKey    contextKey = "hold_id"
)

// ContextWithBookingID injects the booking identifier resolved from the
// request path.
func ContextWithBookingID(ctx context.Context, bookingID string) context.Context {
	return context.WithValue(ctx, bookingIDContextKey, bookingID)
}

// BookingIDFromContext extracts a booking identifier previously associated
// with the context.
func BookingIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(bookingIDContextKey).(string)
	return id, ok
}

// ContextWithHoldID injects the hold identifier resolved from the request
// path.
func ContextWithHoldID(ctx context.Context, holdID string) context.Context {
	return context.WithValue(ctx, holdIDContextKey, holdID)
}

// HoldIDFromContext extracts a hold identifier previously associated with
// the context.
func HoldIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(holdIDContextKey).(string)
	return id, ok
}
