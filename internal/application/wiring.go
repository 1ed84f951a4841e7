package application

import (
	"context"

	"github.com/example/table-allocator/internal/adjacency"
	"github.com/example/table-allocator/internal/persistence"
)

// AdjacencyLoader adapts the inventory repository to the adjacency cache's
// loader signature.
func AdjacencyLoader(inventory persistence.InventoryRepository) adjacency.Loader {
	return func(ctx context.Context, restaurantID string) ([][2]string, error) {
		edges, err := inventory.ListAdjacency(ctx, restaurantID)
		if err != nil {
			return nil, err
		}
		pairs := make([][2]string, 0, len(edges))
		for _, edge := range edges {
			pairs = append(pairs, [2]string{edge.TableA, edge.TableB})
		}
		return pairs, nil
	}
}
