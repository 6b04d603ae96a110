// Package events handles event emission for reconciliation output changes
package events

import (
	"time"

	"github.com/Ramsey-B/tansy/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	// EventTypeUpsert announces the current output row for a left record
	EventTypeUpsert = "reconciliation.upsert"
	// EventTypeRetract withdraws a previously announced row
	EventTypeRetract = "reconciliation.retract"
)

// ReconciliationEvent is the outbound wire format for one output change.
// RightID is null for unmatched rows, which always carry confidence 0.
type ReconciliationEvent struct {
	EventType     string    `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	BatchID       string    `json:"batch_id,omitempty"`
	LeftID        string    `json:"left_id"`
	RightID       *string   `json:"right_id"`
	Confidence    float64   `json:"confidence"`
	Timestamp     time.Time `json:"timestamp"`
}

// FromResultEvent converts an engine result event to its wire form
func FromResultEvent(result models.ResultEvent, batchID string) *ReconciliationEvent {
	eventType := EventTypeUpsert
	if result.Op == models.ResultOpRetract {
		eventType = EventTypeRetract
	}

	return &ReconciliationEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		BatchID:       batchID,
		LeftID:        result.LeftID,
		RightID:       result.RightID,
		Confidence:    result.Confidence,
		Timestamp:     result.Timestamp,
	}
}
