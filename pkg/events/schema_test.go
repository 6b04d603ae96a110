package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tansy/pkg/models"
)

func TestFromResultEvent(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	right := "r1"

	t.Run("upsert", func(t *testing.T) {
		evt := FromResultEvent(models.ResultEvent{
			Op:         models.ResultOpUpsert,
			LeftID:     "l1",
			RightID:    &right,
			Confidence: 0.9,
			Timestamp:  ts,
		}, "batch-1")

		assert.Equal(t, EventTypeUpsert, evt.EventType)
		assert.Equal(t, SchemaVersion, evt.SchemaVersion)
		assert.Equal(t, "batch-1", evt.BatchID)
		assert.Equal(t, "l1", evt.LeftID)
		require.NotNil(t, evt.RightID)
		assert.Equal(t, "r1", *evt.RightID)
		assert.Equal(t, 0.9, evt.Confidence)
		assert.Equal(t, ts, evt.Timestamp)
	})

	t.Run("retract", func(t *testing.T) {
		evt := FromResultEvent(models.ResultEvent{
			Op:        models.ResultOpRetract,
			LeftID:    "l1",
			RightID:   &right,
			Timestamp: ts,
		}, "batch-1")

		assert.Equal(t, EventTypeRetract, evt.EventType)
	})

	t.Run("unmatched upsert keeps nil partner", func(t *testing.T) {
		evt := FromResultEvent(models.ResultEvent{
			Op:        models.ResultOpUpsert,
			LeftID:    "l1",
			Timestamp: ts,
		}, "")

		assert.Nil(t, evt.RightID)
		assert.Equal(t, 0.0, evt.Confidence)
		assert.Empty(t, evt.BatchID)
	})
}
