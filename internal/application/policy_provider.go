package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/table-allocator/internal/persistence"
	"github.com/example/table-allocator/internal/policy"
)

// PolicyProvider resolves the booking policy for a restaurant. Implementations
// must return a Policy whose Location is already loaded.
type PolicyProvider interface {
	PolicyFor(ctx context.Context, restaurantID string) (policy.Policy, error)
}

// policySource is the slice of the inventory repository the provider needs.
type policySource interface {
	GetRestaurantPolicy(ctx context.Context, restaurantID string) (persistence.RestaurantPolicy, error)
}

// StoredPolicyProvider loads restaurant policies from the store and caches the
// parsed result with a short TTL.
type StoredPolicyProvider struct {
	source policySource
	cache  *expirable.LRU[string, policy.Policy]
}

// NewStoredPolicyProvider wires a provider over the inventory repository.
func NewStoredPolicyProvider(source policySource, ttl time.Duration) *StoredPolicyProvider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StoredPolicyProvider{
		source: source,
		cache:  expirable.NewLRU[string, policy.Policy](256, nil, ttl),
	}
}

// PolicyFor implements PolicyProvider.
func (p *StoredPolicyProvider) PolicyFor(ctx context.Context, restaurantID string) (policy.Policy, error) {
	if cached, ok := p.cache.Get(restaurantID); ok {
		return cached, nil
	}

	row, err := p.source.GetRestaurantPolicy(ctx, restaurantID)
	if err != nil {
		return policy.Policy{}, err
	}

	parsed, err := parsePolicy(row)
	if err != nil {
		return policy.Policy{}, err
	}

	p.cache.Add(restaurantID, parsed)
	return parsed, nil
}

// Invalidate drops the cached policy after a configuration edit.
func (p *StoredPolicyProvider) Invalidate(restaurantID string) {
	if p == nil {
		return
	}
	p.cache.Remove(restaurantID)
}

func parsePolicy(row persistence.RestaurantPolicy) (policy.Policy, error) {
	var parsed policy.Policy
	if err := json.Unmarshal([]byte(row.PolicyJSON), &parsed); err != nil {
		return policy.Policy{}, fmt.Errorf("parse policy for restaurant %s: %w", row.RestaurantID, err)
	}

	loc := time.UTC
	if row.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(row.Timezone)
		if err != nil {
			return policy.Policy{}, fmt.Errorf("load timezone %q for restaurant %s: %w", row.Timezone, row.RestaurantID, err)
		}
	}
	parsed.Location = loc
	return parsed, nil
}
