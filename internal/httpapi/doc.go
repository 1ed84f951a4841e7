// Package httpapi provides the JSON surface for the allocation engine.
//
// The router exposes the following endpoints:
//   - POST /quotes: computes candidate plans for a booking and holds the best
//     one. Body: quoteRequest in allocation_handler.go. A rejection without
//     inventory returns 200 with accepted=false and a structured reason;
//     losing every candidate to concurrent holds returns 409.
//   - GET /bookings/{id}/manual-context: the read model for the staff manual
//     assignment screen (booking window, tables sorted by number, conflicts).
//   - POST /manual/validate: dry-runs a staff table selection, returning 204
//     or 422 with field errors.
//   - POST /manual/hold: validates and holds a staff table selection.
//   - POST /holds/{id}/confirm: converts a hold into durable assignments.
//     Retried requests carrying the same Idempotency-Key header replay the
//     original result.
//   - DELETE /holds/{id}: releases a hold before its TTL expires.
//   - POST /admin/sweep-holds: drains expired holds immediately.
//
// Identifiers are opaque strings, timestamps RFC3339 with offset, durations
// in minutes. Request/response DTOs live alongside their handlers.
package httpapi
