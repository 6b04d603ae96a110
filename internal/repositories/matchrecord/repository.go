// Package matchrecord persists the current materialized output so readers
// can query the left-join view without holding the engine lock. Only the
// latest row per left ID is stored; retract-then-upsert sequences collapse
// into a single upsert.
package matchrecord

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/tansy/pkg/database"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

// Repository handles match record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// MatchRecordRow is the persisted shape of one output row
type MatchRecordRow struct {
	LeftID     string    `db:"left_id" json:"left_id"`
	RightID    *string   `db:"right_id" json:"right_id"`
	Confidence float64   `db:"confidence" json:"confidence"`
	BatchID    string    `db:"batch_id" json:"batch_id"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ApplyEvents applies the result events of one batch inside a single
// transaction so readers never observe a half-applied batch
func (r *Repository) ApplyEvents(ctx context.Context, batchID string, results []models.ResultEvent) error {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.ApplyEvents")
	defer span.End()

	if len(results) == 0 {
		return nil
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":   "ApplyEvents",
		"batch_id": batchID,
	})

	final := collapseEvents(results)

	ctx, tx, err := r.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for i := range final {
		ev := final[i]
		if ev.Op == models.ResultOpRetract {
			if err := r.deleteRow(ctx, tx, ev.LeftID); err != nil {
				log.WithError(err).Error("Failed to delete match record")
				return err
			}
			continue
		}
		if err := r.upsertRow(ctx, tx, MatchRecordRow{
			LeftID:     ev.LeftID,
			RightID:    ev.RightID,
			Confidence: ev.Confidence,
			BatchID:    batchID,
			UpdatedAt:  now,
		}); err != nil {
			log.WithError(err).Error("Failed to upsert match record")
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit match records")
	}

	log.WithFields(map[string]any{"rows": len(final)}).Debug("Applied match record batch")
	return nil
}

// collapseEvents reduces a batch to its final state per left ID, then orders
// the statements so the unique right_id index never trips mid-batch: deletes
// and right-releasing upserts go first, right-gaining upserts last. A right
// record moving between left rows is released before it is claimed.
func collapseEvents(results []models.ResultEvent) []models.ResultEvent {
	final := make(map[string]models.ResultEvent, len(results))
	order := make([]string, 0, len(results))
	for _, ev := range results {
		if _, seen := final[ev.LeftID]; !seen {
			order = append(order, ev.LeftID)
		}
		final[ev.LeftID] = ev
	}

	ordered := make([]models.ResultEvent, 0, len(order))
	for _, leftID := range order {
		if ev := final[leftID]; ev.Op == models.ResultOpRetract || ev.RightID == nil {
			ordered = append(ordered, ev)
		}
	}
	for _, leftID := range order {
		if ev := final[leftID]; ev.Op == models.ResultOpUpsert && ev.RightID != nil {
			ordered = append(ordered, ev)
		}
	}
	return ordered
}

func (r *Repository) upsertRow(ctx context.Context, tx database.Tx, row MatchRecordRow) error {
	if row.RightID != nil {
		if err := r.releaseRight(ctx, tx, *row.RightID, row.LeftID); err != nil {
			return err
		}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_records")
	sb.Cols("left_id", "right_id", "confidence", "batch_id", "updated_at")
	sb.Values(row.LeftID, row.RightID, row.Confidence, row.BatchID, row.UpdatedAt)

	query, args := sb.Build()
	query += ` ON CONFLICT (left_id) DO UPDATE SET
		right_id = EXCLUDED.right_id,
		confidence = EXCLUDED.confidence,
		batch_id = EXCLUDED.batch_id,
		updated_at = EXCLUDED.updated_at`

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert match record")
	}
	return nil
}

// ReleaseRights clears the given right IDs from any persisted row still
// holding them, leaving those rows unmatched. Used when the engine no longer
// assigns a right record but the diff that released it was never persisted.
func (r *Repository) ReleaseRights(ctx context.Context, batchID string, rightIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.ReleaseRights")
	defer span.End()

	if len(rightIDs) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_records")
	ub.Set(
		ub.Assign("right_id", nil),
		ub.Assign("confidence", 0.0),
		ub.Assign("batch_id", batchID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.In("right_id", sqlbuilder.Flatten(rightIDs)...))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to release match record partners")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to release match record partners")
	}
	return nil
}

// releaseRight clears a right ID from any other row before it is claimed.
// Rows holding a right record the engine has since reassigned would otherwise
// collide with the unique right_id index.
func (r *Repository) releaseRight(ctx context.Context, tx database.Tx, rightID, leftID string) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_records")
	ub.Set(ub.Assign("right_id", nil), ub.Assign("confidence", 0.0))
	ub.Where(ub.Equal("right_id", rightID), ub.NotEqual("left_id", leftID))

	query, args := ub.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to release match record partner")
	}
	return nil
}

func (r *Repository) deleteRow(ctx context.Context, tx database.Tx, leftID string) error {
	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("match_records")
	sb.Where(sb.Equal("left_id", leftID))

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete match record")
	}
	return nil
}

// List returns persisted output rows ordered by left ID
func (r *Repository) List(ctx context.Context, limit, offset int) ([]MatchRecordRow, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.List")
	defer span.End()

	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("left_id", "right_id", "confidence", "batch_id", "updated_at")
	sb.From("match_records")
	sb.OrderBy("left_id").Asc()
	sb.Limit(limit).Offset(offset)

	query, args := sb.Build()

	rows := []MatchRecordRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list match records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match records")
	}

	return rows, nil
}

// GetByLeftID returns the persisted output row for one left record
func (r *Repository) GetByLeftID(ctx context.Context, leftID string) (*MatchRecordRow, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.GetByLeftID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("left_id", "right_id", "confidence", "batch_id", "updated_at")
	sb.From("match_records")
	sb.Where(sb.Equal("left_id", leftID))

	query, args := sb.Build()

	var row MatchRecordRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "match record not found")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match record")
	}

	return &row, nil
}

// Counts summarizes the persisted output
type Counts struct {
	Total     int `db:"total"`
	Matched   int `db:"matched"`
	Unmatched int `db:"unmatched"`
}

// Stats returns row counts for the persisted output
func (r *Repository) Stats(ctx context.Context) (*Counts, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.Stats")
	defer span.End()

	query := `SELECT
		COUNT(*) AS total,
		COUNT(right_id) AS matched,
		COUNT(*) - COUNT(right_id) AS unmatched
	FROM match_records`

	var counts Counts
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match record stats")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match record stats")
	}

	return &counts, nil
}
