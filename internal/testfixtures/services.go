package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/table-allocator/internal/adjacency"
	"github.com/example/table-allocator/internal/application"
	"github.com/example/table-allocator/internal/observability"
	"github.com/example/table-allocator/internal/strategy"
)

// Env bundles a memory store with fully wired application services, a
// deterministic clock, and a deterministic ID generator. Application and
// transport tests build one per test case.
type Env struct {
	Store       *MemoryStore
	Clock       *Clock
	IDGenerator *IDGenerator
	Allocation  *application.AllocationService
	Holds       *application.HoldService
	Sink        observability.Sink
}

// EnvOption configures the environment under construction.
type EnvOption func(*Env)

// WithEnvClock overrides the deterministic clock.
func WithEnvClock(clock *Clock) EnvOption {
	return func(e *Env) {
		e.Clock = clock
	}
}

// WithEnvSink overrides the observability sink.
func WithEnvSink(sink observability.Sink) EnvOption {
	return func(e *Env) {
		e.Sink = sink
	}
}

// NewEnv constructs a ready-to-use service environment over a fresh memory
// store.
func NewEnv(opts ...EnvOption) *Env {
	env := &Env{
		Store:       NewMemoryStore(),
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Sink:        observability.NopSink{},
	}
	for _, opt := range opts {
		opt(env)
	}

	logger := slog.Default()
	graphs := adjacency.NewCache(application.AdjacencyLoader(env.Store), time.Minute, 16)
	strategies := strategy.NewResolver(strategy.NewStoreSource(env.Store), time.Minute, logger)
	policies := application.NewStoredPolicyProvider(env.Store, time.Minute)

	env.Allocation = application.NewAllocationService(application.AllocationServiceOptions{
		Inventory:   env.Store,
		Bookings:    env.Store,
		Assignments: env.Store,
		Holds:       env.Store,
		Graphs:      graphs,
		Strategies:  strategies,
		Policies:    policies,
		IDGenerator: env.IDGenerator.NextFunc(),
		Now:         env.Clock.NowFunc(),
		Sink:        env.Sink,
		Logger:      logger,
	})
	env.Holds = application.NewHoldService(env.Store, env.Store, env.Store,
		env.IDGenerator.NextFunc(), env.Clock.NowFunc(), env.Sink, logger)

	return env
}
