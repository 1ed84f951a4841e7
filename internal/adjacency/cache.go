package adjacency

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Loader fetches the adjacency edges for a restaurant from the inventory
// store.
type Loader func(ctx context.Context, restaurantID string) ([][2]string, error)

// Cache is a read-through, TTL-bound cache of per-restaurant adjacency
// graphs. Cached graphs are advisory only; conflict detection always re-reads
// the transactional store.
type Cache struct {
	loader Loader
	lru    *expirable.LRU[string, Graph]
}

// NewCache wires a loader behind an expirable LRU. Entries older than ttl are
// reloaded on next access; maxEntries bounds memory on multi-tenant hosts.
func NewCache(loader Loader, ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &Cache{
		loader: loader,
		lru:    expirable.NewLRU[string, Graph](maxEntries, nil, ttl),
	}
}

// Graph returns the adjacency graph for a restaurant, loading it on a miss.
func (c *Cache) Graph(ctx context.Context, restaurantID string) (Graph, error) {
	if c == nil || c.loader == nil {
		return Graph{}, nil
	}

	if g, ok := c.lru.Get(restaurantID); ok {
		return g, nil
	}

	pairs, err := c.loader(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	g := NewGraph(pairs)
	c.lru.Add(restaurantID, g)
	return g, nil
}

// Invalidate drops the cached graph for a restaurant. Inventory edit flows
// call this after mutating tables or adjacency rows.
func (c *Cache) Invalidate(restaurantID string) {
	if c == nil {
		return
	}
	c.lru.Remove(restaurantID)
}
