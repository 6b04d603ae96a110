package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tansy/pkg/models"
)

func engineConfig() models.MatchConfig {
	return models.MatchConfig{
		Fields: []models.FieldSpec{
			{Name: "amount", Kind: models.FieldKindNumber},
			{Name: "recipient", Kind: models.FieldKindString, Normalizers: []string{"nname"}},
		},
		Comparators: []models.ComparatorSpec{
			{Field: "amount", Comparator: models.ComparatorNumericTolerance, Weight: 0.5, Tolerance: 50},
			{Field: "recipient", Comparator: models.ComparatorJaroWinkler, Weight: 0.5},
		},
		Blocking: []models.BlockingSpec{
			{Name: "amt", Field: "amount", Kind: models.BlockingNumericBucket, BucketWidth: 100},
			{Name: "name", Field: "recipient", Kind: models.BlockingTokens, Normalizers: []string{"nname"}},
		},
		MinConfidence: 0.6,
		MaxCandidates: 100,
		ScoreWorkers:  2,
	}
}

func insertEvent(side models.Side, id, amount, recipient string) models.DeltaEvent {
	return models.DeltaEvent{
		Side: side,
		Op:   models.DeltaOpInsert,
		ID:   id,
		Fields: map[string]string{
			"amount":    amount,
			"recipient": recipient,
		},
	}
}

func removeEvent(side models.Side, id string) models.DeltaEvent {
	return models.DeltaEvent{Side: side, Op: models.DeltaOpRemove, ID: id}
}

func apply(t *testing.T, e *Engine, deltas ...models.DeltaEvent) models.AssignmentDiff {
	t.Helper()
	diff, err := e.ApplyBatch(context.Background(), deltas)
	require.NoError(t, err)
	return diff
}

func TestEngineMatchOnArrival(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	diff := apply(t, e, insertEvent(models.SideLeft, "l1", "100", "alice smith"))
	require.Len(t, diff.Entries, 1)
	assert.Equal(t, models.DiffAdded, diff.Entries[0].Kind)
	assert.Equal(t, "l1", diff.Entries[0].LeftID)
	assert.Nil(t, diff.Entries[0].NewRightID)
	assert.Equal(t, 0.0, diff.Entries[0].NewConfidence)

	// The exact counterpart arriving later upgrades the row in place
	diff = apply(t, e, insertEvent(models.SideRight, "r1", "100", "alice smith"))
	require.Len(t, diff.Entries, 1)
	entry := diff.Entries[0]
	assert.Equal(t, models.DiffChanged, entry.Kind)
	assert.Equal(t, "l1", entry.LeftID)
	assert.Nil(t, entry.OldRightID)
	require.NotNil(t, entry.NewRightID)
	assert.Equal(t, "r1", *entry.NewRightID)
	assert.Equal(t, 1.0, entry.NewConfidence)

	row, ok := e.Row("l1")
	require.True(t, ok)
	require.NotNil(t, row.RightID)
	assert.Equal(t, "r1", *row.RightID)
	assert.Equal(t, 1.0, row.Confidence)

	left, ok := e.MatchedLeft("r1")
	require.True(t, ok)
	assert.Equal(t, "l1", left)
	_, ok = e.MatchedLeft("ghost")
	assert.False(t, ok)
}

func TestEngineUnmatchedLeft(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	diff := apply(t, e, insertEvent(models.SideLeft, "l1", "5000", "zed quux"))
	require.Len(t, diff.Entries, 1)
	assert.Equal(t, models.DiffAdded, diff.Entries[0].Kind)
	assert.Nil(t, diff.Entries[0].NewRightID)
	assert.Equal(t, 0.0, diff.Entries[0].NewConfidence)

	rows := e.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "l1", rows[0].LeftID)
	assert.Nil(t, rows[0].RightID)
	assert.Equal(t, 0.0, rows[0].Confidence)
}

func TestEngineContention(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	apply(t, e,
		insertEvent(models.SideLeft, "l1", "100", "alice smith"),
		insertEvent(models.SideLeft, "l2", "105", "alice smith"),
	)

	// Both lefts want r1; the exact-amount one wins, the other stays open
	apply(t, e, insertEvent(models.SideRight, "r1", "100", "alice smith"))

	row1, ok := e.Row("l1")
	require.True(t, ok)
	require.NotNil(t, row1.RightID)
	assert.Equal(t, "r1", *row1.RightID)
	assert.Equal(t, 1.0, row1.Confidence)

	row2, ok := e.Row("l2")
	require.True(t, ok)
	assert.Nil(t, row2.RightID)
	assert.Equal(t, 0.0, row2.Confidence)
}

func TestEngineRemoveMatchedRight(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	apply(t, e,
		insertEvent(models.SideLeft, "l1", "100", "alice smith"),
		insertEvent(models.SideRight, "r1", "100", "alice smith"),
	)

	diff := apply(t, e, removeEvent(models.SideRight, "r1"))
	require.Len(t, diff.Entries, 1)
	entry := diff.Entries[0]
	assert.Equal(t, models.DiffChanged, entry.Kind)
	assert.Equal(t, "l1", entry.LeftID)
	require.NotNil(t, entry.OldRightID)
	assert.Equal(t, "r1", *entry.OldRightID)
	assert.Equal(t, 1.0, entry.OldConfidence)
	assert.Nil(t, entry.NewRightID)
	assert.Equal(t, 0.0, entry.NewConfidence)

	stats := e.Stats()
	assert.Equal(t, 0, stats.RightRecords)
	assert.Equal(t, 0, stats.MatchedPairs)
	assert.Equal(t, 0, stats.CandidatePairs)
}

func TestEngineRemoveMatchedLeft(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	apply(t, e,
		insertEvent(models.SideLeft, "l1", "100", "alice smith"),
		insertEvent(models.SideRight, "r1", "100", "alice smith"),
	)

	diff := apply(t, e, removeEvent(models.SideLeft, "l1"))
	require.Len(t, diff.Entries, 1)
	entry := diff.Entries[0]
	assert.Equal(t, models.DiffRemoved, entry.Kind)
	assert.Equal(t, "l1", entry.LeftID)
	require.NotNil(t, entry.OldRightID)
	assert.Equal(t, "r1", *entry.OldRightID)

	_, ok := e.Row("l1")
	assert.False(t, ok)
	assert.Equal(t, 0, e.Stats().MatchedPairs)
}

func TestEngineDuplicateInsertIsNoOp(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	apply(t, e,
		insertEvent(models.SideLeft, "l1", "100", "alice smith"),
		insertEvent(models.SideRight, "r1", "100", "alice smith"),
	)
	statsBefore := e.Stats()

	diff := apply(t, e, insertEvent(models.SideLeft, "l1", "100", "alice smith"))
	assert.True(t, diff.Empty())

	statsAfter := e.Stats()
	statsAfter.BatchesApplied = statsBefore.BatchesApplied
	assert.Equal(t, statsBefore, statsAfter)
}

func TestEngineReinsertWithChangedFields(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	apply(t, e,
		insertEvent(models.SideLeft, "l1", "100", "alice smith"),
		insertEvent(models.SideRight, "r1", "100", "alice smith"),
	)

	// Same ID, different fields: the old record is replaced and the match
	// dissolves because the new fields no longer block with r1
	diff := apply(t, e, insertEvent(models.SideLeft, "l1", "9000", "zed quux"))
	require.Len(t, diff.Entries, 1)
	entry := diff.Entries[0]
	assert.Equal(t, models.DiffChanged, entry.Kind)
	require.NotNil(t, entry.OldRightID)
	assert.Equal(t, "r1", *entry.OldRightID)
	assert.Nil(t, entry.NewRightID)

	assert.Equal(t, 1, e.Stats().LeftRecords)
}

func TestEngineBetterRightSteals(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	apply(t, e,
		insertEvent(models.SideLeft, "l1", "105", "alice smith"),
		insertEvent(models.SideRight, "r1", "120", "alice smith"),
	)

	row, ok := e.Row("l1")
	require.True(t, ok)
	require.NotNil(t, row.RightID)
	assert.Equal(t, "r1", *row.RightID)

	// A closer right arrives; l1 is reconsidered and switches partner
	diff := apply(t, e, insertEvent(models.SideRight, "r2", "105", "alice smith"))
	require.Len(t, diff.Entries, 1)
	entry := diff.Entries[0]
	assert.Equal(t, models.DiffChanged, entry.Kind)
	require.NotNil(t, entry.OldRightID)
	assert.Equal(t, "r1", *entry.OldRightID)
	require.NotNil(t, entry.NewRightID)
	assert.Equal(t, "r2", *entry.NewRightID)
	assert.Equal(t, 1.0, entry.NewConfidence)
}

func TestEngineLocality(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	apply(t, e,
		insertEvent(models.SideLeft, "l1", "100", "alice smith"),
		insertEvent(models.SideRight, "r1", "100", "alice smith"),
	)

	// A batch in a disjoint block cannot disturb the existing match
	diff := apply(t, e,
		insertEvent(models.SideLeft, "l2", "70000", "bob jones"),
		insertEvent(models.SideRight, "r2", "70000", "bob jones"),
	)
	require.Len(t, diff.Entries, 1)
	assert.Equal(t, "l2", diff.Entries[0].LeftID)

	row, ok := e.Row("l1")
	require.True(t, ok)
	require.NotNil(t, row.RightID)
	assert.Equal(t, "r1", *row.RightID)
}

func TestEngineReplayDeterminism(t *testing.T) {
	batches := [][]models.DeltaEvent{
		{
			insertEvent(models.SideLeft, "l1", "100", "alice smith"),
			insertEvent(models.SideLeft, "l2", "105", "alice smith"),
			insertEvent(models.SideRight, "r1", "100", "alice smith"),
		},
		{
			insertEvent(models.SideRight, "r2", "105", "alice smyth"),
			insertEvent(models.SideLeft, "l3", "250", "carol jones"),
		},
		{
			removeEvent(models.SideRight, "r1"),
			insertEvent(models.SideRight, "r3", "250", "carol jones"),
		},
	}

	run := func() []models.ResultRow {
		e := NewEngine(testLogger(), engineConfig())
		for _, batch := range batches {
			apply(t, e, batch...)
		}
		return e.Snapshot()
	}

	assert.Equal(t, run(), run())
}

func TestEngineMalformedEventsSkipped(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	diff := apply(t, e,
		models.DeltaEvent{Side: "X", Op: models.DeltaOpInsert, ID: "bad"},
		models.DeltaEvent{Side: models.SideLeft, Op: "truncate", ID: "bad2"},
		models.DeltaEvent{Side: models.SideLeft, Op: models.DeltaOpInsert, ID: ""},
		removeEvent(models.SideRight, "never-seen"),
	)
	assert.True(t, diff.Empty())
	assert.Equal(t, 0, e.Stats().LeftRecords)
	assert.Equal(t, 0, e.Stats().RightRecords)
}

func TestEngineEmptyBatch(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())
	diff := apply(t, e)
	assert.True(t, diff.Empty())
}

func TestEngineCorruptionRollsBackBatch(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	apply(t, e,
		insertEvent(models.SideLeft, "l1", "100", "alice smith"),
		insertEvent(models.SideRight, "r1", "100", "alice smith"),
	)
	before := e.Snapshot()

	// Break the reverse index so the next dissolve trips the invariant check
	e.rightMatch["r1"] = "someone-else"

	_, err := e.ApplyBatch(context.Background(), []models.DeltaEvent{
		insertEvent(models.SideRight, "r2", "100", "alice smith"),
	})
	require.ErrorIs(t, err, ErrStateCorruption)

	// The rejected batch left no trace: r2 is gone from records, indexes
	// and the candidate graph
	assert.Equal(t, before, e.Snapshot())
	stats := e.Stats()
	assert.Equal(t, 1, stats.RightRecords)
	assert.Equal(t, 1, stats.CandidatePairs)
	assert.Equal(t, 1, e.gen.IndexLen(models.SideRight))
}

func TestCheckAssignment(t *testing.T) {
	e := NewEngine(testLogger(), engineConfig())

	t.Run("duplicate right rejected", func(t *testing.T) {
		err := e.checkAssignment([]models.CandidatePair{
			{LeftID: "l1", RightID: "r1", Confidence: 0.9},
			{LeftID: "l2", RightID: "r1", Confidence: 0.8},
		}, nil)
		assert.ErrorIs(t, err, ErrStateCorruption)
	})

	t.Run("duplicate left rejected", func(t *testing.T) {
		err := e.checkAssignment([]models.CandidatePair{
			{LeftID: "l1", RightID: "r1", Confidence: 0.9},
			{LeftID: "l1", RightID: "r2", Confidence: 0.8},
		}, nil)
		assert.ErrorIs(t, err, ErrStateCorruption)
	})

	t.Run("out of range confidence rejected", func(t *testing.T) {
		err := e.checkAssignment([]models.CandidatePair{
			{LeftID: "l1", RightID: "r1", Confidence: 1.5},
		}, nil)
		assert.ErrorIs(t, err, ErrStateCorruption)
	})

	t.Run("valid assignment passes", func(t *testing.T) {
		err := e.checkAssignment([]models.CandidatePair{
			{LeftID: "l1", RightID: "r1", Confidence: 0.9},
			{LeftID: "l2", RightID: "r2", Confidence: 0.8},
		}, nil)
		assert.NoError(t, err)
	})
}
