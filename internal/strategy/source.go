package strategy

import (
	"context"

	"github.com/example/table-allocator/internal/persistence"
)

// StoreSource adapts the persistence strategy repository to the resolver's
// Source interface.
type StoreSource struct {
	repo persistence.StrategyRepository
}

// NewStoreSource wraps a strategy repository.
func NewStoreSource(repo persistence.StrategyRepository) *StoreSource {
	return &StoreSource{repo: repo}
}

// StrategicConfig implements Source.
func (s *StoreSource) StrategicConfig(ctx context.Context, restaurantID string) (Config, error) {
	row, err := s.repo.GetStrategicConfig(ctx, restaurantID)
	if err != nil {
		return Config{}, err
	}
	return Config{
		ScarcityWeight:           row.ScarcityWeight,
		DemandMultiplierOverride: row.DemandMultiplierOverride,
		FutureConflictPenalty:    row.FutureConflictPenalty,
		UpdatedAt:                row.UpdatedAt,
	}, nil
}

// DemandRules implements Source.
func (s *StoreSource) DemandRules(ctx context.Context, restaurantID string) ([]DemandRule, error) {
	rows, err := s.repo.ListDemandRules(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	rules := make([]DemandRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, DemandRule{
			Label:       row.Label,
			Priority:    row.Priority,
			Weekdays:    row.Weekdays,
			StartMinute: row.StartMinute,
			EndMinute:   row.EndMinute,
			ServiceKey:  row.ServiceKey,
			Multiplier:  row.Multiplier,
		})
	}
	return rules, nil
}
