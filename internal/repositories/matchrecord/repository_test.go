package matchrecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tansy/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestCollapseEvents(t *testing.T) {
	t.Run("stolen partner is released before it is claimed", func(t *testing.T) {
		// l0 takes r1 away from l1; the engine orders entries by left ID,
		// so the claiming upsert arrives first
		ordered := collapseEvents([]models.ResultEvent{
			{Op: models.ResultOpUpsert, LeftID: "l0", RightID: strPtr("r1"), Confidence: 1.0},
			{Op: models.ResultOpRetract, LeftID: "l1", RightID: strPtr("r1"), Confidence: 0.8},
			{Op: models.ResultOpUpsert, LeftID: "l1", Confidence: 0},
		})

		require.Len(t, ordered, 2)
		assert.Equal(t, "l1", ordered[0].LeftID)
		assert.Equal(t, models.ResultOpUpsert, ordered[0].Op)
		assert.Nil(t, ordered[0].RightID)
		assert.Equal(t, "l0", ordered[1].LeftID)
		require.NotNil(t, ordered[1].RightID)
		assert.Equal(t, "r1", *ordered[1].RightID)
	})

	t.Run("retract then upsert collapses to the upsert", func(t *testing.T) {
		ordered := collapseEvents([]models.ResultEvent{
			{Op: models.ResultOpRetract, LeftID: "l1", RightID: strPtr("r1"), Confidence: 0.8},
			{Op: models.ResultOpUpsert, LeftID: "l1", RightID: strPtr("r2"), Confidence: 0.9},
		})

		require.Len(t, ordered, 1)
		assert.Equal(t, models.ResultOpUpsert, ordered[0].Op)
		require.NotNil(t, ordered[0].RightID)
		assert.Equal(t, "r2", *ordered[0].RightID)
	})

	t.Run("upsert then retract collapses to the retract", func(t *testing.T) {
		ordered := collapseEvents([]models.ResultEvent{
			{Op: models.ResultOpUpsert, LeftID: "l1", RightID: strPtr("r1"), Confidence: 0.9},
			{Op: models.ResultOpRetract, LeftID: "l1", RightID: strPtr("r1"), Confidence: 0.9},
		})

		require.Len(t, ordered, 1)
		assert.Equal(t, models.ResultOpRetract, ordered[0].Op)
	})

	t.Run("retracts precede gaining upserts", func(t *testing.T) {
		ordered := collapseEvents([]models.ResultEvent{
			{Op: models.ResultOpUpsert, LeftID: "l0", RightID: strPtr("r1"), Confidence: 1.0},
			{Op: models.ResultOpRetract, LeftID: "l1", RightID: strPtr("r1"), Confidence: 0.8},
		})

		require.Len(t, ordered, 2)
		assert.Equal(t, models.ResultOpRetract, ordered[0].Op)
		assert.Equal(t, "l1", ordered[0].LeftID)
		assert.Equal(t, "l0", ordered[1].LeftID)
	})

	t.Run("empty input yields no statements", func(t *testing.T) {
		assert.Empty(t, collapseEvents(nil))
	})
}
