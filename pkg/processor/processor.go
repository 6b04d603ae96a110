// Package processor wires the input topic to the matching engine. Each
// Kafka message carries one delta batch; the processor validates it, applies
// it to the engine, and pushes the resulting output changes to the event
// emitter and the persisted sink.
package processor

import (
	gocontext "context"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/tansy/pkg/context"
	"github.com/Ramsey-B/tansy/pkg/events"
	"github.com/Ramsey-B/tansy/pkg/kafka"
	"github.com/Ramsey-B/tansy/pkg/matching"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

// ResultSink persists the materialized output of an applied batch. Nil sinks
// are allowed when the service runs without a database.
type ResultSink interface {
	ApplyEvents(ctx gocontext.Context, batchID string, results []models.ResultEvent) error
	// ReleaseRights clears right IDs the engine no longer assigns from any
	// persisted row still holding them
	ReleaseRights(ctx gocontext.Context, batchID string, rightIDs []string) error
}

// Processor handles delta batch processing
type Processor struct {
	logger       ectologger.Logger
	validate     *validator.Validate
	engine       *matching.Engine
	materializer *matching.Materializer
	emitter      *events.Emitter
	sink         ResultSink
}

// NewProcessor creates a new delta batch processor
func NewProcessor(
	logger ectologger.Logger,
	engine *matching.Engine,
	materializer *matching.Materializer,
	emitter *events.Emitter,
	sink ResultSink,
) *Processor {
	return &Processor{
		logger:       logger,
		validate:     validator.New(),
		engine:       engine,
		materializer: materializer,
		emitter:      emitter,
		sink:         sink,
	}
}

// HandleMessage processes one delta batch message. Returning an error leaves
// the message uncommitted so it is redelivered.
func (p *Processor) HandleMessage(ctx gocontext.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	batchID := msg.GetBatchID()
	ctx = context.SetBatchID(ctx, batchID)

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": batchID,
		"source":   msg.GetSource(),
		"deltas":   len(msg.Batch.Deltas),
	})

	deltas := p.validDeltas(ctx, msg.Batch.Deltas)
	if len(deltas) == 0 {
		log.Warn("Batch contains no valid delta events, skipping")
		return nil
	}

	diff, err := p.engine.ApplyBatch(ctx, deltas)
	if err != nil {
		log.WithError(err).Error("Failed to apply delta batch")
		return err
	}

	results := p.materializer.Events(diff)
	if len(results) == 0 {
		// A redelivered batch re-applies as a no-op, but the previous
		// attempt may have failed after the engine mutated and before the
		// sink committed. Re-point the sink at current engine state for
		// the touched rows instead of committing past it.
		if err := p.refreshSink(ctx, batchID, deltas); err != nil {
			log.WithError(err).Error("Failed to refresh persisted output")
			return err
		}
		log.Debug("Batch produced no output changes")
		return nil
	}

	if err := p.emitter.EmitResults(ctx, batchID, results); err != nil {
		return err
	}

	if p.sink != nil {
		if err := p.sink.ApplyEvents(ctx, batchID, results); err != nil {
			log.WithError(err).Error("Failed to persist output changes")
			return err
		}
	}

	log.WithFields(map[string]any{"changes": len(results)}).Info("Applied delta batch")
	return nil
}

// refreshSink upserts the current output rows for every left record a batch
// can touch: left delta IDs plus the assigned partners of right delta IDs.
// Lefts no longer active are retracted.
func (p *Processor) refreshSink(ctx gocontext.Context, batchID string, deltas []models.DeltaEvent) error {
	if p.sink == nil {
		return nil
	}

	seenLeft := make(map[string]struct{}, len(deltas))
	seenRight := make(map[string]struct{})
	lefts := make([]string, 0, len(deltas))
	var releases []string
	for _, ev := range deltas {
		leftID := ev.ID
		if ev.Side == models.SideRight {
			assigned, ok := p.engine.MatchedLeft(ev.ID)
			if !ok {
				// An unassigned right must not linger on any persisted row
				if _, dup := seenRight[ev.ID]; !dup {
					seenRight[ev.ID] = struct{}{}
					releases = append(releases, ev.ID)
				}
				continue
			}
			leftID = assigned
		}
		if _, dup := seenLeft[leftID]; dup {
			continue
		}
		seenLeft[leftID] = struct{}{}
		lefts = append(lefts, leftID)
	}
	sort.Strings(lefts)
	sort.Strings(releases)

	if len(releases) > 0 {
		if err := p.sink.ReleaseRights(ctx, batchID, releases); err != nil {
			return err
		}
	}

	var rows []models.ResultRow
	var absent []string
	for _, leftID := range lefts {
		if row, ok := p.engine.Row(leftID); ok {
			rows = append(rows, row)
		} else {
			absent = append(absent, leftID)
		}
	}

	results := p.materializer.RowEvents(rows, absent)
	if len(results) == 0 {
		return nil
	}
	return p.sink.ApplyEvents(ctx, batchID, results)
}

// validDeltas drops events that fail structural validation. A bad event
// never poisons its batch; the rest still applies.
func (p *Processor) validDeltas(ctx gocontext.Context, deltas []models.DeltaEvent) []models.DeltaEvent {
	valid := make([]models.DeltaEvent, 0, len(deltas))
	for i := range deltas {
		if err := p.validate.Struct(&deltas[i]); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"side": deltas[i].Side,
				"op":   deltas[i].Op,
				"id":   deltas[i].ID,
			}).Warn("Invalid delta event, dropping it")
			continue
		}
		valid = append(valid, deltas[i])
	}
	return valid
}
