package allocation

import (
	"sort"
	"strings"

	"github.com/example/table-allocator/internal/adjacency"
)

// DefaultMaxTables bounds merged plans when the caller does not specify one.
const DefaultMaxTables = 3

// DefaultSearchBudget caps combination evaluations per request so dense
// adjacency graphs cannot make a quote unbounded.
const DefaultSearchBudget = 5000

// SkipSearchBudget is recorded when the evaluation budget stops the search.
const SkipSearchBudget = "search_budget"

// ScoreConfig carries the weighted-objective coefficients. Lower scores win.
type ScoreConfig struct {
	ScarcityWeight        float64
	DemandMultiplier      float64
	FutureConflictPenalty float64
}

// DefaultScoreConfig returns the coefficients used when no strategic config
// row exists for a restaurant.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{ScarcityWeight: 1.0, DemandMultiplier: 1.0, FutureConflictPenalty: 0.25}
}

// SelectInput parameterizes one selection run.
type SelectInput struct {
	Tables    []Table
	PartySize int
	Graph     adjacency.Graph
	Score     ScoreConfig

	EnableCombinations bool
	RequireAdjacency   bool
	AdjacencyMode      adjacency.Mode
	MaxTables          int
	SearchBudget       int

	// ProjectedRisk estimates future contention for a plan's tables. Nil
	// means zero risk.
	ProjectedRisk func(tableIDs []string) float64
}

// SelectResult is the ranked outcome of one selection run.
type SelectResult struct {
	Plans       []CandidatePlan
	Diagnostics Diagnostics
	Reason      NoPlanReason
}

// Select enumerates single-table and merged candidate plans, prunes
// infeasible branches, scores survivors, and returns them ranked best-first.
// An empty plan list carries a structured Reason instead of an error.
func Select(in SelectInput) SelectResult {
	maxTables := in.MaxTables
	if maxTables <= 0 {
		maxTables = DefaultMaxTables
	}
	budget := in.SearchBudget
	if budget <= 0 {
		budget = DefaultSearchBudget
	}
	mode := in.AdjacencyMode
	if !mode.Valid() {
		mode = adjacency.ModeConnected
	}

	tables := make([]Table, len(in.Tables))
	copy(tables, in.Tables)
	sort.Slice(tables, func(i, j int) bool {
		if tables[i].Number == tables[j].Number {
			return tables[i].ID < tables[j].ID
		}
		return tables[i].Number < tables[j].Number
	})

	s := &search{
		tables:    tables,
		party:     in.PartySize,
		graph:     in.Graph,
		mode:      mode,
		require:   in.RequireAdjacency,
		maxTables: maxTables,
		budget:    budget,
		risk:      in.ProjectedRisk,
		score:     in.Score,
	}

	s.singles()
	if in.EnableCombinations && maxTables >= 2 {
		s.prepareBounds()
		s.combine(nil, 0, 0)
	}

	rankPlans(s.plans)

	reason := ReasonNone
	if len(s.plans) == 0 {
		reason = s.noPlanReason()
	}

	return SelectResult{Plans: s.plans, Diagnostics: s.diag, Reason: reason}
}

type search struct {
	tables    []Table
	party     int
	graph     adjacency.Graph
	mode      adjacency.Mode
	require   bool
	maxTables int
	budget    int
	risk      func([]string) float64
	score     ScoreConfig

	// topSums[i][s] is the sum of the s largest capacities in tables[i:],
	// used for the capacity upper-bound prune.
	topSums [][]int

	plans []CandidatePlan
	diag  Diagnostics
}

func (s *search) singles() {
	for _, table := range s.tables {
		if table.Capacity < s.party {
			continue
		}
		if s.party < table.MinParty || (table.MaxParty > 0 && s.party > table.MaxParty) {
			s.diag.skip(SkipPartySizeBounds)
			continue
		}
		s.record([]Table{table})
	}
}

func (s *search) prepareBounds() {
	n := len(s.tables)
	s.topSums = make([][]int, n+1)
	s.topSums[n] = make([]int, s.maxTables+1)
	for i := n - 1; i >= 0; i-- {
		caps := make([]int, 0, n-i)
		for _, table := range s.tables[i:] {
			caps = append(caps, table.Capacity)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(caps)))
		sums := make([]int, s.maxTables+1)
		for k := 1; k <= s.maxTables; k++ {
			sums[k] = sums[k-1]
			if k-1 < len(caps) {
				sums[k] += caps[k-1]
			}
		}
		s.topSums[i] = sums
	}
}

// combine walks index-ordered table subsets depth first. A branch stops as
// soon as its capacity covers the party, since adding tables only adds slack.
func (s *search) combine(current []Table, next int, capacity int) {
	if s.diag.CombinationsEvaluated >= s.budget {
		s.diag.skip(SkipSearchBudget)
		return
	}
	if len(current) == s.maxTables {
		return
	}

	remaining := s.maxTables - len(current)
	if capacity+s.topSums[next][remaining] < s.party {
		if len(current) > 0 {
			s.diag.skip(SkipCapacityUpperBound)
		}
		return
	}

	extended := false
	for j := next; j < len(s.tables); j++ {
		if s.diag.CombinationsEvaluated >= s.budget {
			s.diag.skip(SkipSearchBudget)
			return
		}
		candidate := s.tables[j]

		if s.require && len(current) > 0 && !s.adjacentToAny(candidate.ID, current) {
			continue
		}
		extended = true

		set := append(current, candidate)
		newCapacity := capacity + candidate.Capacity

		if len(set) >= 2 && newCapacity >= s.party {
			s.diag.CombinationsEvaluated++
			s.evaluate(set)
			continue
		}

		s.combine(set, j+1, newCapacity)
		// append may share backing arrays between siblings; re-slice to keep
		// the parent's view intact.
		current = set[:len(current):len(current)]
	}

	if s.require && len(current) > 0 && !extended {
		s.diag.skip(SkipAdjacencyFrontier)
	}
}

func (s *search) adjacentToAny(id string, current []Table) bool {
	for _, member := range current {
		if s.graph.Adjacent(id, member.ID) {
			return true
		}
	}
	return false
}

func (s *search) evaluate(set []Table) {
	if s.require {
		ids := tableIDs(set)
		classification := adjacency.Classify(ids, s.graph)
		if !s.mode.Satisfied(classification) {
			s.diag.skip(SkipAdjacencyMode)
			return
		}
	}
	s.record(set)
}

func (s *search) record(set []Table) {
	ids := tableIDs(set)
	numbers := make([]string, len(set))
	capacity := 0
	for i, table := range set {
		numbers[i] = table.Number
		capacity += table.Capacity
	}

	classification := adjacency.Classify(ids, s.graph)
	slack := capacity - s.party

	plan := CandidatePlan{
		TableIDs:       ids,
		TableNumbers:   numbers,
		Capacity:       capacity,
		Slack:          slack,
		Classification: classification,
		AdjacencyLabel: classification.Label(),
	}
	plan.Score = s.planScore(plan)
	s.plans = append(s.plans, plan)
}

// planScore applies the weighted objective. Slack penalizes wasting seats,
// the demand multiplier scales the cost of occupying more tables during busy
// windows, and the projected-conflict term adjusts for future contention.
func (s *search) planScore(plan CandidatePlan) float64 {
	slackPenalty := float64(plan.Slack)
	baseUtility := float64(len(plan.TableIDs))
	var projectedRisk float64
	if s.risk != nil {
		projectedRisk = s.risk(plan.TableIDs)
	}
	return s.score.ScarcityWeight*slackPenalty +
		s.score.DemandMultiplier*baseUtility -
		s.score.FutureConflictPenalty*projectedRisk
}

func (s *search) noPlanReason() NoPlanReason {
	best := 0
	if len(s.topSums) > 0 {
		best = s.topSums[0][s.maxTables]
	} else {
		for _, table := range s.tables {
			if table.Capacity > best {
				best = table.Capacity
			}
		}
	}
	if best < s.party {
		return ReasonCapacityExceeded
	}
	if s.diag.Skipped[SkipAdjacencyFrontier] > 0 || s.diag.Skipped[SkipAdjacencyMode] > 0 {
		return ReasonAdjacencyUnsatisfiable
	}
	return ReasonNoFeasibleCombination
}

func rankPlans(plans []CandidatePlan) {
	sort.SliceStable(plans, func(i, j int) bool {
		a, b := plans[i], plans[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if len(a.TableIDs) != len(b.TableIDs) {
			return len(a.TableIDs) < len(b.TableIDs)
		}
		if a.Capacity != b.Capacity {
			return a.Capacity < b.Capacity
		}
		return strings.Join(a.TableNumbers, ",") < strings.Join(b.TableNumbers, ",")
	})
}

func tableIDs(set []Table) []string {
	ids := make([]string, len(set))
	for i, table := range set {
		ids[i] = table.ID
	}
	return ids
}
