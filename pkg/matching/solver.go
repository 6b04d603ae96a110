package matching

import (
	"sort"

	"github.com/Ramsey-B/tansy/pkg/models"
)

// Solver computes a one-to-one assignment over a candidate subgraph using a
// deterministic greedy-augmenting policy. Pairs are visited in (confidence
// descending, left ID ascending, right ID ascending) order and accepted when
// both endpoints are still free and the confidence clears the threshold.
//
// The greedy policy is not globally optimal but carries the standard
// matching bound: total accepted weight is at least half the true optimum.
// Acceptance order is a pure function of the input, so identical subgraphs
// always solve to identical assignments.
type Solver struct {
	minConfidence float64
}

// NewSolver creates a solver with the configured acceptance threshold
func NewSolver(minConfidence float64) *Solver {
	return &Solver{minConfidence: minConfidence}
}

// Solve returns the accepted pairs for the given subgraph. freeLeft and
// freeRight hold the endpoints available for matching; pairs touching an
// occupied endpoint are skipped, which keeps matches outside the subgraph
// untouched. An empty subgraph is a no-op.
func (s *Solver) Solve(pairs []models.CandidatePair, freeLeft, freeRight map[string]bool) []models.CandidatePair {
	if len(pairs) == 0 {
		return nil
	}

	sorted := make([]models.CandidatePair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		if sorted[i].LeftID != sorted[j].LeftID {
			return sorted[i].LeftID < sorted[j].LeftID
		}
		return sorted[i].RightID < sorted[j].RightID
	})

	var accepted []models.CandidatePair
	takenLeft := make(map[string]bool)
	takenRight := make(map[string]bool)

	for _, pair := range sorted {
		if pair.Confidence < s.minConfidence {
			// Sorted by confidence, so nothing later can clear the
			// threshold either.
			break
		}
		if !freeLeft[pair.LeftID] || !freeRight[pair.RightID] {
			continue
		}
		if takenLeft[pair.LeftID] || takenRight[pair.RightID] {
			continue
		}
		takenLeft[pair.LeftID] = true
		takenRight[pair.RightID] = true
		accepted = append(accepted, pair)
	}

	return accepted
}
