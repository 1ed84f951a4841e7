// Package strategy resolves per-restaurant scoring configuration and
// time-window demand multipliers. Lookups are cached with a short TTL; the
// cache is advisory and never consulted for conflict decisions.
package strategy

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/table-allocator/internal/allocation"
)

// Config carries the per-restaurant scoring coefficients.
type Config struct {
	ScarcityWeight           float64
	DemandMultiplierOverride *float64
	FutureConflictPenalty    float64
	UpdatedAt                time.Time
}

// ScoreConfig converts the strategic rows into selector coefficients,
// applying the resolved demand multiplier.
func (c Config) ScoreConfig(demandMultiplier float64) allocation.ScoreConfig {
	return allocation.ScoreConfig{
		ScarcityWeight:        c.ScarcityWeight,
		DemandMultiplier:      demandMultiplier,
		FutureConflictPenalty: c.FutureConflictPenalty,
	}
}

// DefaultConfig mirrors the global fallback row.
func DefaultConfig() Config {
	return Config{ScarcityWeight: 1.0, FutureConflictPenalty: 0.25}
}

// DemandRule is one priority-ordered multiplier rule. An empty Weekdays slice
// matches all days; an empty ServiceKey matches all services. StartMinute and
// EndMinute are minutes after local midnight with half-open [start, end)
// matching; EndMinute at or below StartMinute wraps past midnight.
type DemandRule struct {
	Label       string
	Priority    int
	Weekdays    []time.Weekday
	StartMinute int
	EndMinute   int
	ServiceKey  string
	Multiplier  float64
}

func (r DemandRule) matches(local time.Time, serviceKey string) bool {
	if r.ServiceKey != "" && r.ServiceKey != serviceKey {
		return false
	}
	if len(r.Weekdays) > 0 {
		found := false
		for _, day := range r.Weekdays {
			if day == local.Weekday() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	minute := local.Hour()*60 + local.Minute()
	if r.EndMinute > r.StartMinute {
		return minute >= r.StartMinute && minute < r.EndMinute
	}
	// Wrapping window, e.g. 22:00-02:00.
	return minute >= r.StartMinute || minute < r.EndMinute
}

// Source supplies strategic rows and demand rules from the store. Lookups
// must already apply the restaurant-then-global fallback.
type Source interface {
	StrategicConfig(ctx context.Context, restaurantID string) (Config, error)
	DemandRules(ctx context.Context, restaurantID string) ([]DemandRule, error)
}

// Resolver caches Source lookups and answers scoring questions for the
// selector.
type Resolver struct {
	source   Source
	configs  *expirable.LRU[string, Config]
	rules    *expirable.LRU[string, []DemandRule]
	logger   *slog.Logger
	override *Config
}

// NewResolver wires a resolver with TTL-bound caches.
func NewResolver(source Source, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		source:  source,
		configs: expirable.NewLRU[string, Config](256, nil, ttl),
		rules:   expirable.NewLRU[string, []DemandRule](256, nil, ttl),
		logger:  logger,
	}
}

// WithOverride returns a resolver that answers Config with a fixed value
// while sharing nothing mutable with the receiver. Tests use it to pin
// coefficients without touching the shared cache.
func (r *Resolver) WithOverride(cfg Config) *Resolver {
	clone := *r
	clone.override = &cfg
	return &clone
}

// Config returns the strategic config for a restaurant. Source failures are
// logged and fall back to defaults so a scoring lookup never fails a quote.
func (r *Resolver) Config(ctx context.Context, restaurantID string) Config {
	if r.override != nil {
		return *r.override
	}
	if r.source == nil {
		return DefaultConfig()
	}

	if cfg, ok := r.configs.Get(restaurantID); ok {
		return cfg
	}

	cfg, err := r.source.StrategicConfig(ctx, restaurantID)
	if err != nil {
		r.logger.WarnContext(ctx, "strategic config lookup failed, using defaults",
			"restaurant_id", restaurantID, "error", err)
		return DefaultConfig()
	}

	r.configs.Add(restaurantID, cfg)
	return cfg
}

// ResolveMultiplier evaluates demand rules for the local service start,
// highest priority first; the first matching rule wins and the default is
// 1.0. A configured override on the strategic row short-circuits the rules.
func (r *Resolver) ResolveMultiplier(ctx context.Context, restaurantID string, serviceStart time.Time, serviceKey string, loc *time.Location) float64 {
	cfg := r.Config(ctx, restaurantID)
	if cfg.DemandMultiplierOverride != nil {
		return *cfg.DemandMultiplierOverride
	}
	if r.source == nil {
		return 1.0
	}

	rules, ok := r.rules.Get(restaurantID)
	if !ok {
		loaded, err := r.source.DemandRules(ctx, restaurantID)
		if err != nil {
			r.logger.WarnContext(ctx, "demand rule lookup failed, using default multiplier",
				"restaurant_id", restaurantID, "error", err)
			return 1.0
		}
		rules = make([]DemandRule, len(loaded))
		copy(rules, loaded)
		sort.SliceStable(rules, func(i, j int) bool {
			return rules[i].Priority > rules[j].Priority
		})
		r.rules.Add(restaurantID, rules)
	}

	if loc == nil {
		loc = time.UTC
	}
	local := serviceStart.In(loc)
	for _, rule := range rules {
		if rule.matches(local, serviceKey) {
			return rule.Multiplier
		}
	}
	return 1.0
}

// Invalidate drops cached rows for a restaurant after a config edit.
func (r *Resolver) Invalidate(restaurantID string) {
	if r == nil {
		return
	}
	r.configs.Remove(restaurantID)
	r.rules.Remove(restaurantID)
}
