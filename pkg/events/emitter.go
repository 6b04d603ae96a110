package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

// Publisher delivers reconciliation events to the output topic
type Publisher interface {
	PublishReconciliationEvents(ctx context.Context, evts []*ReconciliationEvent) error
}

// Emitter converts engine result events to their wire form and publishes
// them
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitResults publishes the result events of one applied batch. Retracts
// and upserts keep their engine ordering so a changed row always retracts
// before it upserts.
func (e *Emitter) EmitResults(ctx context.Context, batchID string, results []models.ResultEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitResults")
	defer span.End()

	if len(results) == 0 {
		return nil
	}

	evts := make([]*ReconciliationEvent, len(results))
	for i, result := range results {
		evts[i] = FromResultEvent(result, batchID)
	}

	if err := e.publisher.PublishReconciliationEvents(ctx, evts); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": batchID,
		}).Error("Failed to emit reconciliation events")
		return err
	}

	return nil
}
