package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tansy/pkg/models"
)

func TestParseBatch(t *testing.T) {
	t.Run("parses a delta batch", func(t *testing.T) {
		msg := &IncomingMessage{
			Key: "key-1",
			Value: []byte(`{
				"batch_id": "batch-1",
				"source": "bank-feed",
				"deltas": [
					{"side": "L", "op": "insert", "id": "l1", "fields": {"amount": "100"}},
					{"side": "R", "op": "remove", "id": "r1"}
				]
			}`),
		}

		require.NoError(t, msg.ParseBatch())
		require.NotNil(t, msg.Batch)
		assert.Equal(t, "batch-1", msg.Batch.BatchID)
		require.Len(t, msg.Batch.Deltas, 2)
		assert.Equal(t, models.SideLeft, msg.Batch.Deltas[0].Side)
		assert.Equal(t, models.DeltaOpInsert, msg.Batch.Deltas[0].Op)
		assert.Equal(t, "100", msg.Batch.Deltas[0].Fields["amount"])
		assert.Equal(t, models.DeltaOpRemove, msg.Batch.Deltas[1].Op)
	})

	t.Run("wraps a bare delta event into a batch of one", func(t *testing.T) {
		msg := &IncomingMessage{
			Key:   "key-2",
			Value: []byte(`{"side": "L", "op": "insert", "id": "l1", "fields": {"amount": "100"}}`),
		}

		require.NoError(t, msg.ParseBatch())
		require.NotNil(t, msg.Batch)
		assert.Equal(t, "key-2", msg.Batch.BatchID)
		require.Len(t, msg.Batch.Deltas, 1)
		assert.Equal(t, "l1", msg.Batch.Deltas[0].ID)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`not json`)}
		assert.Error(t, msg.ParseBatch())
	})

	t.Run("rejects json that is neither shape", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{"foo": "bar"}`)}
		assert.Error(t, msg.ParseBatch())
	})
}

func TestGetBatchID(t *testing.T) {
	msg := &IncomingMessage{Key: "key-1", Batch: &DeltaBatchMessage{BatchID: "batch-1"}}
	assert.Equal(t, "batch-1", msg.GetBatchID())

	msg = &IncomingMessage{Key: "key-1", Batch: &DeltaBatchMessage{}}
	assert.Equal(t, "key-1", msg.GetBatchID())
}

func TestGetSource(t *testing.T) {
	msg := &IncomingMessage{Batch: &DeltaBatchMessage{Source: "bank-feed"}}
	assert.Equal(t, "bank-feed", msg.GetSource())

	msg = &IncomingMessage{
		Headers: map[string]string{"source": "ledger-feed"},
		Batch:   &DeltaBatchMessage{},
	}
	assert.Equal(t, "ledger-feed", msg.GetSource())
}
