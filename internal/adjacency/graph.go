// Package adjacency models the "can be physically combined" relation between
// tables within a zone and classifies candidate table sets against it.
package adjacency

// Graph is an undirected adjacency relation stored as an adjacency list.
// Keys are table ids; values are neighbor sets.
type Graph map[string]map[string]struct{}

// NewGraph builds a graph from undirected edge pairs.
func NewGraph(pairs [][2]string) Graph {
	g := make(Graph, len(pairs))
	for _, pair := range pairs {
		g.Add(pair[0], pair[1])
	}
	return g
}

// Add records an undirected edge between two tables. Self edges are ignored.
func (g Graph) Add(a, b string) {
	if a == "" || b == "" || a == b {
		return
	}
	if g[a] == nil {
		g[a] = make(map[string]struct{})
	}
	if g[b] == nil {
		g[b] = make(map[string]struct{})
	}
	g[a][b] = struct{}{}
	g[b][a] = struct{}{}
}

// Adjacent reports whether two tables are directly adjacent.
func (g Graph) Adjacent(a, b string) bool {
	if g == nil {
		return false
	}
	_, ok := g[a][b]
	return ok
}

// Neighbors returns the neighbor set for a table. The returned map must not
// be mutated.
func (g Graph) Neighbors(id string) map[string]struct{} {
	if g == nil {
		return nil
	}
	return g[id]
}

// Classification captures which adjacency properties a table set satisfies.
type Classification struct {
	// Connected means the induced subgraph on the set is connected.
	Connected bool
	// Pairwise means every pair in the set is directly adjacent (a clique).
	Pairwise bool
	// HubAligned means the set is connected through a single hub table that
	// is adjacent to every other member while the spokes are not mutually
	// adjacent (a star).
	HubAligned bool
}

// Label returns the strictest true classification: "pairwise" beats
// "neighbors" (hub-aligned) beats "connected". Empty when the set is not even
// connected.
func (c Classification) Label() string {
	switch {
	case c.Pairwise:
		return "pairwise"
	case c.HubAligned:
		return "neighbors"
	case c.Connected:
		return "connected"
	default:
		return ""
	}
}

// Mode names the adjacency requirement a caller imposes on a plan.
type Mode string

const (
	// ModeConnected accepts any connected set.
	ModeConnected Mode = "connected"
	// ModePairwise accepts only cliques.
	ModePairwise Mode = "pairwise"
	// ModeNeighbors accepts cliques and hub-aligned stars.
	ModeNeighbors Mode = "neighbors"
)

// Valid reports whether the mode is one of the known values.
func (m Mode) Valid() bool {
	switch m {
	case ModeConnected, ModePairwise, ModeNeighbors:
		return true
	}
	return false
}

// Satisfied reports whether a classification meets the mode's requirement.
// Satisfaction is monotonic: a pairwise set satisfies every mode, and a
// hub-aligned set satisfies neighbors and connected.
func (m Mode) Satisfied(c Classification) bool {
	switch m {
	case ModePairwise:
		return c.Pairwise
	case ModeNeighbors:
		return c.Pairwise || c.HubAligned
	case ModeConnected:
		return c.Connected
	}
	return false
}

// Classify evaluates a candidate table set against the graph. Sets of zero or
// one table trivially satisfy every property.
func Classify(tableIDs []string, g Graph) Classification {
	if len(tableIDs) <= 1 {
		return Classification{Connected: true, Pairwise: true}
	}

	connected := isConnected(tableIDs, g)
	pairwise := isPairwise(tableIDs, g)

	c := Classification{Connected: connected, Pairwise: pairwise}
	if connected && !pairwise {
		c.HubAligned = isHubAligned(tableIDs, g)
	}
	return c
}

// isConnected runs a BFS over the induced subgraph from the first member.
func isConnected(tableIDs []string, g Graph) bool {
	members := make(map[string]struct{}, len(tableIDs))
	for _, id := range tableIDs {
		members[id] = struct{}{}
	}

	visited := make(map[string]struct{}, len(tableIDs))
	queue := []string{tableIDs[0]}
	visited[tableIDs[0]] = struct{}{}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for neighbor := range g.Neighbors(current) {
			if _, inSet := members[neighbor]; !inSet {
				continue
			}
			if _, seen := visited[neighbor]; seen {
				continue
			}
			visited[neighbor] = struct{}{}
			queue = append(queue, neighbor)
		}
	}

	return len(visited) == len(members)
}

func isPairwise(tableIDs []string, g Graph) bool {
	for i := 0; i < len(tableIDs); i++ {
		for j := i + 1; j < len(tableIDs); j++ {
			if !g.Adjacent(tableIDs[i], tableIDs[j]) {
				return false
			}
		}
	}
	return true
}

// isHubAligned checks for a star topology: one hub adjacent to all other
// members, with no two spokes directly adjacent.
func isHubAligned(tableIDs []string, g Graph) bool {
	for _, hub := range tableIDs {
		if !adjacentToAll(hub, tableIDs, g) {
			continue
		}
		if spokesIndependent(hub, tableIDs, g) {
			return true
		}
	}
	return false
}

func adjacentToAll(hub string, tableIDs []string, g Graph) bool {
	for _, other := range tableIDs {
		if other == hub {
			continue
		}
		if !g.Adjacent(hub, other) {
			return false
		}
	}
	return true
}

func spokesIndependent(hub string, tableIDs []string, g Graph) bool {
	for i := 0; i < len(tableIDs); i++ {
		if tableIDs[i] == hub {
			continue
		}
		for j := i + 1; j < len(tableIDs); j++ {
			if tableIDs[j] == hub {
				continue
			}
			if g.Adjacent(tableIDs[i], tableIDs[j]) {
				return false
			}
		}
	}
	return true
}
