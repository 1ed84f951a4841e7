package autoassign

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/table-allocator/internal/observability"
	"github.com/example/table-allocator/internal/persistence"
)

// AttemptStrategy adjusts one allocation attempt.
type AttemptStrategy struct {
	RequireAdjacency bool
	MaxTables        int
}

// AttemptResult reports one allocation attempt back to the job.
type AttemptResult struct {
	Accepted bool
	Failure  FailureKind
}

// Allocator runs one allocation attempt for a booking. The quote service
// implements this.
type Allocator interface {
	AttemptAllocation(ctx context.Context, booking persistence.Booking, strategy AttemptStrategy) (AttemptResult, error)
}

// BookingSource lists bookings awaiting allocation.
type BookingSource interface {
	ListPendingAllocation(ctx context.Context, limit int) ([]persistence.Booking, error)
}

// JobConfig tunes the retry job.
type JobConfig struct {
	BatchSize        int
	PolicyVersion    PolicyVersion
	RequireAdjacency bool
	MaxTables        int
}

// Job is the background auto-assign worker. It runs concurrently with live
// quote traffic; every attempt goes through the same conflict-safe hold
// path, so lost races surface as conflict outcomes rather than corruption.
type Job struct {
	source    BookingSource
	allocator Allocator
	cfg       JobConfig
	sink      observability.Sink
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	outcomes map[string]Outcome
}

// NewJob wires the retry worker.
func NewJob(source BookingSource, allocator Allocator, cfg JobConfig, sink observability.Sink, logger *slog.Logger, now func() time.Time) *Job {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxTables <= 0 {
		cfg.MaxTables = 3
	}
	if cfg.PolicyVersion == "" {
		cfg.PolicyVersion = PolicyStrict
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Job{
		source:    source,
		allocator: allocator,
		cfg:       cfg,
		sink:      sink,
		logger:    logger,
		now:       now,
		outcomes:  make(map[string]Outcome),
	}
}

// RecordOutcome feeds the most recent inline failure for a booking so the
// next run plans around it.
func (j *Job) RecordOutcome(bookingID string, outcome Outcome) {
	if j == nil || bookingID == "" {
		return
	}
	j.mu.Lock()
	j.outcomes[bookingID] = outcome
	j.mu.Unlock()
}

func (j *Job) lastOutcome(bookingID string) Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outcomes[bookingID]
}

// Run processes one batch of pending-allocation bookings. Context
// cancellation stops new attempts but never interrupts one in flight.
func (j *Job) Run(ctx context.Context) error {
	bookings, err := j.source.ListPendingAllocation(ctx, j.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, booking := range bookings {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.process(ctx, booking)
	}
	return nil
}

func (j *Job) process(ctx context.Context, booking persistence.Booking) {
	plan := PlanAttempts(j.lastOutcome(booking.ID), j.cfg.PolicyVersion, j.now())

	start := 0
	if plan.SkipFirst {
		start = 1
	}

	for attempt := start; attempt < plan.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		result, err := j.allocator.AttemptAllocation(ctx, booking, j.strategyFor(plan, attempt))
		if err != nil {
			j.logger.WarnContext(ctx, "auto-assign attempt errored",
				"booking_id", booking.ID, "attempt", attempt+1, "error", err)
			continue
		}
		if result.Accepted {
			j.RecordOutcome(booking.ID, Outcome{})
			return
		}

		j.RecordOutcome(booking.ID, Outcome{Kind: result.Failure, At: j.now()})
		if result.Failure == FailurePolicy {
			// Policy rejections will not change on retry within this run.
			break
		}
	}

	// Booking stays in pending_allocation; staff or the next run picks it up.
	observability.Emit(ctx, j.sink, j.logger, observability.Event{
		Source:   "autoassign",
		Type:     observability.EventRetriesExhausted,
		Severity: observability.SeverityWarning,
		Context: map[string]any{
			"booking_id":   booking.ID,
			"max_attempts": plan.MaxAttempts,
			"skip_first":   plan.SkipFirst,
		},
	})
}

// strategyFor escalates relaxation: the first attempt keeps the configured
// strategy unless the plan already relaxes it; later attempts drop the
// adjacency requirement and cap the table count.
func (j *Job) strategyFor(plan AttemptPlan, attempt int) AttemptStrategy {
	strategy := AttemptStrategy{
		RequireAdjacency: j.cfg.RequireAdjacency,
		MaxTables:        j.cfg.MaxTables,
	}
	if plan.RelaxAdjacency || attempt > 0 {
		strategy.RequireAdjacency = false
		limit := plan.MaxTablesCap
		if limit <= 0 {
			limit = RelaxedMaxTables
		}
		if strategy.MaxTables > limit {
			strategy.MaxTables = limit
		}
	}
	return strategy
}
