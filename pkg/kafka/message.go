package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/tansy/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	Batch *DeltaBatchMessage
}

// DeltaBatchMessage is the wire format of one delta batch on the input
// topic. A batch is the unit of atomicity: it applies in full or not at all.
type DeltaBatchMessage struct {
	BatchID string              `json:"batch_id"`
	Source  string              `json:"source,omitempty"`
	Deltas  []models.DeltaEvent `json:"deltas"`
}

// ParseBatch parses the message value as a delta batch. A bare delta event
// is accepted too and wrapped into a batch of one, so simple producers can
// publish events directly.
func (m *IncomingMessage) ParseBatch() error {
	var batch DeltaBatchMessage
	if err := json.Unmarshal(m.Value, &batch); err == nil && len(batch.Deltas) > 0 {
		m.Batch = &batch
		return nil
	}

	var single models.DeltaEvent
	if err := json.Unmarshal(m.Value, &single); err != nil {
		return fmt.Errorf("message is neither a delta batch nor a delta event: %w", err)
	}
	if single.Op == "" || single.ID == "" {
		return fmt.Errorf("message is neither a delta batch nor a delta event")
	}

	m.Batch = &DeltaBatchMessage{
		BatchID: m.Key,
		Deltas:  []models.DeltaEvent{single},
	}
	return nil
}

// GetBatchID returns the batch ID, falling back to the message key
func (m *IncomingMessage) GetBatchID() string {
	if m.Batch != nil && m.Batch.BatchID != "" {
		return m.Batch.BatchID
	}
	return m.Key
}

// GetSource returns the originating feed name for this batch
func (m *IncomingMessage) GetSource() string {
	if m.Batch != nil && m.Batch.Source != "" {
		return m.Batch.Source
	}
	return m.Headers["source"]
}
