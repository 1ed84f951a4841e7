// Package observability defines the structured event sink the engine reports
// to. Recording is fire-and-forget: sink failures are logged and never fail
// the operation that produced the event.
package observability

import (
	"context"
	"log/slog"
)

// Severity grades an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event types emitted by the allocation engine.
const (
	EventQuoteAccepted     = "quote_accepted"
	EventQuoteRejected     = "quote_rejected"
	EventHoldCreated       = "hold_created"
	EventHoldConflict      = "hold_conflict"
	EventHoldConfirmed     = "hold_confirmed"
	EventHoldReleased      = "hold_released"
	EventHoldsSwept        = "holds_swept"
	EventCapacityExceeded  = "capacity_exceeded"
	EventRetriesExhausted  = "retries_exhausted"
	EventSelectionProfiled = "selection_profiled"
)

// Event is one structured record sent to the sink.
type Event struct {
	Source   string
	Type     string
	Severity Severity
	Context  map[string]any
}

// Sink accepts engine events. Implementations may buffer or drop; callers
// never depend on delivery.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Emit records an event and swallows sink failures with a warning.
func Emit(ctx context.Context, sink Sink, logger *slog.Logger, event Event) {
	if sink == nil {
		return
	}
	if err := sink.Record(ctx, event); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.WarnContext(ctx, "failed to record observability event",
			"event_type", event.Type, "error", err)
	}
}

// LogSink writes events to a structured logger. It is the default sink.
type LogSink struct {
	Logger *slog.Logger
}

// Record implements Sink.
func (s LogSink) Record(ctx context.Context, event Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"source", event.Source, "severity", string(event.Severity)}
	for key, value := range event.Context {
		attrs = append(attrs, key, value)
	}

	switch event.Severity {
	case SeverityError:
		logger.ErrorContext(ctx, event.Type, attrs...)
	case SeverityWarning:
		logger.WarnContext(ctx, event.Type, attrs...)
	default:
		logger.InfoContext(ctx, event.Type, attrs...)
	}
	return nil
}

// NopSink discards all events.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, Event) error { return nil }
