package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/table-allocator/internal/adjacency"
	"github.com/example/table-allocator/internal/application"
	"github.com/example/table-allocator/internal/autoassign"
	"github.com/example/table-allocator/internal/config"
	"github.com/example/table-allocator/internal/httpapi"
	"github.com/example/table-allocator/internal/jobs"
	"github.com/example/table-allocator/internal/logging"
	"github.com/example/table-allocator/internal/observability"
	"github.com/example/table-allocator/internal/persistence/sqlite"
	"github.com/example/table-allocator/internal/strategy"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := store.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	now := time.Now
	sink := observability.LogSink{Logger: logger}

	graphs := adjacency.NewCache(application.AdjacencyLoader(store), cfg.CacheTTL, 256)
	strategies := strategy.NewResolver(strategy.NewStoreSource(store), cfg.CacheTTL, logger)
	policies := application.NewStoredPolicyProvider(store, cfg.CacheTTL)

	allocationService := application.NewAllocationService(application.AllocationServiceOptions{
		Inventory:   store,
		Bookings:    store,
		Assignments: store,
		Holds:       store,
		Graphs:      graphs,
		Strategies:  strategies,
		Policies:    policies,
		IDGenerator: idGenerator,
		Now:         now,
		Sink:        sink,
		Logger:      logger,
		HoldTTL:     cfg.HoldTTL,
	})
	holdService := application.NewHoldService(store, store, store, idGenerator, now, sink, logger)

	assignJob := autoassign.NewJob(allocationService, allocationService, autoassign.JobConfig{
		BatchSize:     cfg.AutoAssignBatch,
		PolicyVersion: cfg.RetryPolicy,
		MaxTables:     cfg.MaxTables,
	}, sink, logger, now)

	scheduler, err := jobs.NewScheduler(jobs.Config{
		SweepSchedule:      cfg.SweepSchedule,
		AutoAssignSchedule: cfg.AutoAssignSchedule,
		SweepBatchLimit:    cfg.SweepBatchLimit,
		SweepPause:         cfg.SweepPause,
	}, holdService, assignJob, logger)
	if err != nil {
		logger.Error("failed to build job scheduler", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Allocations: httpapi.NewAllocationHandler(allocationService, logger),
		Holds:       httpapi.NewHoldHandler(holdService, logger),
		Middleware:  []func(http.Handler) http.Handler{httpapi.RequestLogger(logger)},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("allocator API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}
