// Package config loads the allocator's environment driven configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/table-allocator/internal/autoassign"
)

// Config captures environment driven configuration values for the allocator
// service.
type Config struct {
	HTTPPort  int
	SQLiteDSN string
	LogLevel  string

	HoldTTL         time.Duration
	MaxTables       int
	CacheTTL        time.Duration
	RetryPolicy     autoassign.PolicyVersion
	AutoAssignBatch int

	SweepSchedule      string
	AutoAssignSchedule string
	SweepBatchLimit    int
	SweepPause         time.Duration
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults; every malformed value is collected
// and reported in one error rather than failing on the first.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:           8080,
		SQLiteDSN:          "file:allocator.db",
		LogLevel:           "info",
		HoldTTL:            10 * time.Minute,
		MaxTables:          3,
		CacheTTL:           time.Minute,
		RetryPolicy:        autoassign.PolicyStrict,
		AutoAssignBatch:    50,
		SweepSchedule:      "@every 1m",
		AutoAssignSchedule: "@every 2m",
		SweepBatchLimit:    100,
		SweepPause:         100 * time.Millisecond,
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("ALLOCATOR_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "ALLOCATOR_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("ALLOCATOR_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if level := strings.TrimSpace(os.Getenv("ALLOCATOR_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if ttlValue := strings.TrimSpace(os.Getenv("ALLOCATOR_HOLD_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "ALLOCATOR_HOLD_TTL")
		} else {
			cfg.HoldTTL = ttl
		}
	}

	if tablesValue := strings.TrimSpace(os.Getenv("ALLOCATOR_MAX_TABLES")); tablesValue != "" {
		tables, err := strconv.Atoi(tablesValue)
		if err != nil || tables <= 0 {
			invalid = append(invalid, "ALLOCATOR_MAX_TABLES")
		} else {
			cfg.MaxTables = tables
		}
	}

	if ttlValue := strings.TrimSpace(os.Getenv("ALLOCATOR_CACHE_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "ALLOCATOR_CACHE_TTL")
		} else {
			cfg.CacheTTL = ttl
		}
	}

	if policyValue := strings.TrimSpace(os.Getenv("ALLOCATOR_RETRY_POLICY")); policyValue != "" {
		switch autoassign.PolicyVersion(policyValue) {
		case autoassign.PolicyStrict, autoassign.PolicyLegacy:
			cfg.RetryPolicy = autoassign.PolicyVersion(policyValue)
		default:
			invalid = append(invalid, "ALLOCATOR_RETRY_POLICY")
		}
	}

	if batchValue := strings.TrimSpace(os.Getenv("ALLOCATOR_AUTO_ASSIGN_BATCH")); batchValue != "" {
		batch, err := strconv.Atoi(batchValue)
		if err != nil || batch <= 0 {
			invalid = append(invalid, "ALLOCATOR_AUTO_ASSIGN_BATCH")
		} else {
			cfg.AutoAssignBatch = batch
		}
	}

	if schedule := strings.TrimSpace(os.Getenv("ALLOCATOR_SWEEP_SCHEDULE")); schedule != "" {
		cfg.SweepSchedule = schedule
	}

	if schedule := strings.TrimSpace(os.Getenv("ALLOCATOR_AUTO_ASSIGN_SCHEDULE")); schedule != "" {
		cfg.AutoAssignSchedule = schedule
	}

	if limitValue := strings.TrimSpace(os.Getenv("ALLOCATOR_SWEEP_BATCH_LIMIT")); limitValue != "" {
		limit, err := strconv.Atoi(limitValue)
		if err != nil || limit <= 0 {
			invalid = append(invalid, "ALLOCATOR_SWEEP_BATCH_LIMIT")
		} else {
			cfg.SweepBatchLimit = limit
		}
	}

	if pauseValue := strings.TrimSpace(os.Getenv("ALLOCATOR_SWEEP_PAUSE")); pauseValue != "" {
		pause, err := time.ParseDuration(pauseValue)
		if err != nil || pause < 0 {
			invalid = append(invalid, "ALLOCATOR_SWEEP_PAUSE")
		} else {
			cfg.SweepPause = pause
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
