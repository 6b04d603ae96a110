package models

import "time"

// DeltaOp is the operation carried by an input delta event
type DeltaOp string

const (
	DeltaOpInsert DeltaOp = "insert"
	DeltaOpRemove DeltaOp = "remove"
)

// DeltaEvent is a single input change on either record collection.
// Ingestion collaborators guarantee IDs are unique within a side and stable
// across time.
type DeltaEvent struct {
	Side   Side              `json:"side" validate:"required,oneof=L R"`
	Op     DeltaOp           `json:"op" validate:"required,oneof=insert remove"`
	ID     string            `json:"id" validate:"required"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ResultOp is the operation carried by an output event
type ResultOp string

const (
	ResultOpUpsert  ResultOp = "upsert"
	ResultOpRetract ResultOp = "retract"
)

// ResultEvent is a single output change to the materialized reconciliation.
// Output rows are keyed by left record ID; an unmatched left record carries a
// nil RightID and confidence 0.
type ResultEvent struct {
	Op         ResultOp  `json:"op"`
	LeftID     string    `json:"left_id"`
	RightID    *string   `json:"right_id,omitempty"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// MatchPair is a matched (left, right) pair with its confidence
type MatchPair struct {
	LeftID     string  `json:"left_id" db:"left_id"`
	RightID    string  `json:"right_id" db:"right_id"`
	Confidence float64 `json:"confidence" db:"confidence"`
}

// CandidatePair is a scored candidate match. Derived state: it can be
// recomputed from the two records at any time and is only cached.
type CandidatePair struct {
	LeftID     string  `json:"left_id"`
	RightID    string  `json:"right_id"`
	Confidence float64 `json:"confidence"`
}

// DiffKind classifies an assignment diff entry
type DiffKind string

const (
	// DiffAdded means the left record appeared in the materialized output
	DiffAdded DiffKind = "added"
	// DiffRemoved means the left record left the materialized output
	DiffRemoved DiffKind = "removed"
	// DiffChanged means the left record's partner or confidence changed
	DiffChanged DiffKind = "changed"
)

// DiffEntry is one change to the materialized left-join output
type DiffEntry struct {
	Kind DiffKind `json:"kind"`

	LeftID string `json:"left_id"`

	// Old pairing, meaningful for removed and changed entries
	OldRightID     *string `json:"old_right_id,omitempty"`
	OldConfidence  float64 `json:"old_confidence,omitempty"`

	// New pairing, meaningful for added and changed entries
	NewRightID    *string `json:"new_right_id,omitempty"`
	NewConfidence float64 `json:"new_confidence,omitempty"`
}

// AssignmentDiff is the ordered set of changes produced by one applied batch.
// It is consumed exactly once by the materializer.
type AssignmentDiff struct {
	Entries []DiffEntry `json:"entries"`
}

// Empty reports whether the batch changed nothing visible downstream.
func (d AssignmentDiff) Empty() bool {
	return len(d.Entries) == 0
}

// ResultRow is the materialized output shape for a single left record
type ResultRow struct {
	LeftID     string  `json:"left_id"`
	RightID    *string `json:"right_id"`
	Confidence float64 `json:"confidence"`
}

// EngineStats is a point-in-time snapshot of engine state counters
type EngineStats struct {
	LeftRecords    int   `json:"left_records"`
	RightRecords   int   `json:"right_records"`
	CandidatePairs int   `json:"candidate_pairs"`
	MatchedPairs   int   `json:"matched_pairs"`
	DegradedCount  int64 `json:"degraded_count"`
	BatchesApplied int64 `json:"batches_applied"`
}
