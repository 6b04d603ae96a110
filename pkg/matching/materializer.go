package matching

import (
	"time"

	"github.com/Ramsey-B/tansy/pkg/models"
)

// Materializer converts assignment diffs into the left-join shaped output
// stream. Every event is keyed by left ID; a changed row retracts the old
// value before upserting the new one so downstream consumers can treat the
// stream as a keyed changelog.
type Materializer struct {
	now func() time.Time
}

func NewMaterializer() *Materializer {
	return &Materializer{now: time.Now}
}

// Events flattens a diff into ordered result events
func (m *Materializer) Events(diff models.AssignmentDiff) []models.ResultEvent {
	if diff.Empty() {
		return nil
	}

	ts := m.now().UTC()
	events := make([]models.ResultEvent, 0, len(diff.Entries))
	for _, entry := range diff.Entries {
		switch entry.Kind {
		case models.DiffAdded:
			events = append(events, models.ResultEvent{
				Op:         models.ResultOpUpsert,
				LeftID:     entry.LeftID,
				RightID:    entry.NewRightID,
				Confidence: entry.NewConfidence,
				Timestamp:  ts,
			})
		case models.DiffRemoved:
			events = append(events, models.ResultEvent{
				Op:         models.ResultOpRetract,
				LeftID:     entry.LeftID,
				RightID:    entry.OldRightID,
				Confidence: entry.OldConfidence,
				Timestamp:  ts,
			})
		case models.DiffChanged:
			events = append(events,
				models.ResultEvent{
					Op:         models.ResultOpRetract,
					LeftID:     entry.LeftID,
					RightID:    entry.OldRightID,
					Confidence: entry.OldConfidence,
					Timestamp:  ts,
				},
				models.ResultEvent{
					Op:         models.ResultOpUpsert,
					LeftID:     entry.LeftID,
					RightID:    entry.NewRightID,
					Confidence: entry.NewConfidence,
					Timestamp:  ts,
				},
			)
		}
	}
	return events
}

// RowEvents materializes current output rows directly: an upsert per present
// row and a retract per absent left ID. Used to re-point downstream state at
// the engine when a redelivered batch produces no new diff.
func (m *Materializer) RowEvents(rows []models.ResultRow, absent []string) []models.ResultEvent {
	if len(rows) == 0 && len(absent) == 0 {
		return nil
	}

	ts := m.now().UTC()
	events := make([]models.ResultEvent, 0, len(rows)+len(absent))
	for _, row := range rows {
		events = append(events, models.ResultEvent{
			Op:         models.ResultOpUpsert,
			LeftID:     row.LeftID,
			RightID:    row.RightID,
			Confidence: row.Confidence,
			Timestamp:  ts,
		})
	}
	for _, leftID := range absent {
		events = append(events, models.ResultEvent{
			Op:        models.ResultOpRetract,
			LeftID:    leftID,
			Timestamp: ts,
		})
	}
	return events
}
