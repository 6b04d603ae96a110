package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tansy/pkg/models"
)

func allFree(pairs []models.CandidatePair) (map[string]bool, map[string]bool) {
	freeLeft := make(map[string]bool)
	freeRight := make(map[string]bool)
	for _, p := range pairs {
		freeLeft[p.LeftID] = true
		freeRight[p.RightID] = true
	}
	return freeLeft, freeRight
}

func TestSolverSolve(t *testing.T) {
	solver := NewSolver(0.5)

	t.Run("empty subgraph is a no-op", func(t *testing.T) {
		assert.Nil(t, solver.Solve(nil, nil, nil))
	})

	t.Run("higher confidence wins contention", func(t *testing.T) {
		pairs := []models.CandidatePair{
			{LeftID: "l1", RightID: "r1", Confidence: 0.7},
			{LeftID: "l2", RightID: "r1", Confidence: 0.9},
		}
		freeLeft, freeRight := allFree(pairs)

		accepted := solver.Solve(pairs, freeLeft, freeRight)
		require.Len(t, accepted, 1)
		assert.Equal(t, "l2", accepted[0].LeftID)
		assert.Equal(t, "r1", accepted[0].RightID)
	})

	t.Run("threshold rejects weak pairs", func(t *testing.T) {
		pairs := []models.CandidatePair{
			{LeftID: "l1", RightID: "r1", Confidence: 0.49},
		}
		freeLeft, freeRight := allFree(pairs)
		assert.Empty(t, solver.Solve(pairs, freeLeft, freeRight))
	})

	t.Run("one to one", func(t *testing.T) {
		pairs := []models.CandidatePair{
			{LeftID: "l1", RightID: "r1", Confidence: 0.9},
			{LeftID: "l1", RightID: "r2", Confidence: 0.8},
			{LeftID: "l2", RightID: "r1", Confidence: 0.8},
			{LeftID: "l2", RightID: "r2", Confidence: 0.7},
		}
		freeLeft, freeRight := allFree(pairs)

		accepted := solver.Solve(pairs, freeLeft, freeRight)
		require.Len(t, accepted, 2)
		assert.Equal(t, "l1", accepted[0].LeftID)
		assert.Equal(t, "r1", accepted[0].RightID)
		assert.Equal(t, "l2", accepted[1].LeftID)
		assert.Equal(t, "r2", accepted[1].RightID)
	})

	t.Run("ties break on left then right ID", func(t *testing.T) {
		pairs := []models.CandidatePair{
			{LeftID: "l2", RightID: "r1", Confidence: 0.8},
			{LeftID: "l1", RightID: "r1", Confidence: 0.8},
		}
		freeLeft, freeRight := allFree(pairs)

		accepted := solver.Solve(pairs, freeLeft, freeRight)
		require.Len(t, accepted, 1)
		assert.Equal(t, "l1", accepted[0].LeftID)
	})

	t.Run("occupied endpoints are skipped", func(t *testing.T) {
		pairs := []models.CandidatePair{
			{LeftID: "l1", RightID: "r1", Confidence: 0.9},
			{LeftID: "l2", RightID: "r2", Confidence: 0.8},
		}
		freeLeft, freeRight := allFree(pairs)
		freeRight["r1"] = false

		accepted := solver.Solve(pairs, freeLeft, freeRight)
		require.Len(t, accepted, 1)
		assert.Equal(t, "l2", accepted[0].LeftID)
	})

	t.Run("deterministic regardless of input order", func(t *testing.T) {
		pairs := []models.CandidatePair{
			{LeftID: "l3", RightID: "r2", Confidence: 0.6},
			{LeftID: "l1", RightID: "r1", Confidence: 0.9},
			{LeftID: "l2", RightID: "r2", Confidence: 0.6},
			{LeftID: "l1", RightID: "r2", Confidence: 0.7},
		}
		reversed := make([]models.CandidatePair, len(pairs))
		for i, p := range pairs {
			reversed[len(pairs)-1-i] = p
		}

		freeLeft, freeRight := allFree(pairs)
		first := solver.Solve(pairs, freeLeft, freeRight)
		second := solver.Solve(reversed, freeLeft, freeRight)
		assert.Equal(t, first, second)
	})

	t.Run("input slice is not mutated", func(t *testing.T) {
		pairs := []models.CandidatePair{
			{LeftID: "l2", RightID: "r2", Confidence: 0.6},
			{LeftID: "l1", RightID: "r1", Confidence: 0.9},
		}
		freeLeft, freeRight := allFree(pairs)
		solver.Solve(pairs, freeLeft, freeRight)
		assert.Equal(t, "l2", pairs[0].LeftID)
	})
}
