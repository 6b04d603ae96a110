package matching

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/scoring"
	"github.com/Ramsey-B/tansy/pkg/tracing"
)

// ErrStateCorruption is returned when a batch would violate the one-to-one
// assignment invariant. The batch is rejected wholesale and prior state
// remains authoritative; the condition is never silently repaired.
var ErrStateCorruption = errors.New("matching: one-to-one assignment invariant violated")

type pairKey struct {
	left  string
	right string
}

type matchInfo struct {
	right string
	conf  float64
}

// leftBefore captures a left record's materialized output row at the moment
// the batch first touches it, so the assignment diff can be derived.
type leftBefore struct {
	present bool
	matched bool
	right   string
	conf    float64
}

// Engine is the incremental maintainer: the sole owner of the blocking
// indexes, the candidate graph and the current assignment. All mutation is
// funneled through ApplyBatch, serialized by a mutex so batches apply one at
// a time in arrival order.
type Engine struct {
	logger ectologger.Logger
	cfg    models.MatchConfig
	scorer *scoring.Scorer
	gen    *Generator
	solver *Solver

	mu sync.Mutex

	records map[models.Side]map[string]*models.Record

	// candidate graph: cached pair scores plus adjacency on both sides
	candidates map[pairKey]float64
	byLeft     map[string]map[string]struct{}
	byRight    map[string]map[string]struct{}

	// current assignment, kept consistent in both directions
	leftMatch  map[string]matchInfo
	rightMatch map[string]string

	batches int64
}

// NewEngine creates an engine from the matching configuration
func NewEngine(logger ectologger.Logger, cfg models.MatchConfig) *Engine {
	return &Engine{
		logger: logger,
		cfg:    cfg,
		scorer: scoring.NewScorer(cfg),
		gen:    NewGenerator(logger, cfg),
		solver: NewSolver(cfg.MinConfidence),
		records: map[models.Side]map[string]*models.Record{
			models.SideLeft:  make(map[string]*models.Record),
			models.SideRight: make(map[string]*models.Record),
		},
		candidates: make(map[pairKey]float64),
		byLeft:     make(map[string]map[string]struct{}),
		byRight:    make(map[string]map[string]struct{}),
		leftMatch:  make(map[string]matchInfo),
		rightMatch: make(map[string]string),
	}
}

// batchState accumulates the effects of one batch while it is applied
type batchState struct {
	affected map[models.Side]map[string]struct{}
	before   map[string]leftBefore
}

func (b *batchState) touch(side models.Side, id string) {
	b.affected[side][id] = struct{}{}
}

// ApplyBatch applies a batch of delta events and returns the diff of the
// materialized output. The batch either fully applies or, on an internal
// invariant violation, is rejected with prior state retained untouched.
func (e *Engine) ApplyBatch(ctx context.Context, deltas []models.DeltaEvent) (models.AssignmentDiff, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.ApplyBatch")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(deltas) == 0 {
		return models.AssignmentDiff{}, nil
	}

	b := &batchState{
		affected: map[models.Side]map[string]struct{}{
			models.SideLeft:  make(map[string]struct{}),
			models.SideRight: make(map[string]struct{}),
		},
		before: make(map[string]leftBefore),
	}

	// Undo journal for wholesale rejection. Entries are replayed in
	// reverse order to restore the pre-batch state.
	var journal []func()

	for i := range deltas {
		ev := deltas[i]
		log := e.logger.WithContext(ctx).WithFields(map[string]any{
			"side": ev.Side,
			"op":   ev.Op,
			"id":   ev.ID,
		})

		if !ev.Side.Valid() || ev.ID == "" {
			log.Warn("Malformed delta event, skipping")
			continue
		}

		switch ev.Op {
		case models.DeltaOpInsert:
			e.applyInsert(ctx, ev, b, &journal)
		case models.DeltaOpRemove:
			e.applyRemove(ctx, ev, b, &journal)
		default:
			log.Warn("Unknown delta op, skipping")
		}
	}

	diff, err := e.resolve(ctx, b)
	if err != nil {
		for i := len(journal) - 1; i >= 0; i-- {
			journal[i]()
		}
		e.logger.WithContext(ctx).WithError(err).Error("Batch rejected, prior state retained")
		return models.AssignmentDiff{}, err
	}

	e.batches++
	return diff, nil
}

// markLeft captures a left record's pre-batch output row, first write wins
func (e *Engine) markLeft(b *batchState, id string) {
	if _, ok := b.before[id]; ok {
		return
	}
	before := leftBefore{}
	if _, active := e.records[models.SideLeft][id]; active {
		before.present = true
		if m, matched := e.leftMatch[id]; matched {
			before.matched = true
			before.right = m.right
			before.conf = m.conf
		}
	}
	b.before[id] = before
}

func (e *Engine) applyInsert(ctx context.Context, ev models.DeltaEvent, b *batchState, journal *[]func()) {
	rec, warns := BuildRecord(ev, e.cfg)
	for _, warn := range warns {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"side": ev.Side,
			"id":   ev.ID,
		}).Warn(warn)
	}

	if ev.Side == models.SideLeft {
		e.markLeft(b, ev.ID)
	}

	if existing := e.records[ev.Side][ev.ID]; existing != nil {
		if existing.Fingerprint == rec.Fingerprint {
			e.logger.WithContext(ctx).WithFields(map[string]any{
				"side": ev.Side,
				"id":   ev.ID,
			}).Debug("Duplicate insert with identical fields, no-op")
			return
		}
		// Same ID with different fields: treated as remove followed by
		// insert, records being immutable.
		e.dropRecord(ev.Side, ev.ID, b, journal)
	}

	e.addRecord(rec, b, journal)
}

func (e *Engine) applyRemove(ctx context.Context, ev models.DeltaEvent, b *batchState, journal *[]func()) {
	if ev.Side == models.SideLeft {
		e.markLeft(b, ev.ID)
	}

	if _, ok := e.records[ev.Side][ev.ID]; !ok {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"side": ev.Side,
			"id":   ev.ID,
		}).Warn("Remove for unknown record, skipping")
		return
	}

	e.dropRecord(ev.Side, ev.ID, b, journal)
}

func (e *Engine) addRecord(rec *models.Record, b *batchState, journal *[]func()) {
	side := rec.Side
	e.records[side][rec.ID] = rec
	*journal = append(*journal, func() { delete(e.records[side], rec.ID) })

	keys := e.gen.IndexKeys(rec)
	refs := e.gen.Probe(side, rec)
	e.gen.Index(side, rec.ID, keys)
	*journal = append(*journal, func() { e.gen.Unindex(side, rec.ID) })

	for _, pair := range e.scorePairs(rec, refs) {
		if pair.Confidence <= 0 {
			continue
		}
		e.addCandidate(pair, b, journal)
	}

	b.touch(side, rec.ID)
}

func (e *Engine) dropRecord(side models.Side, id string, b *batchState, journal *[]func()) {
	rec := e.records[side][id]

	for _, pk := range e.incidentPairs(side, id) {
		e.removeCandidate(pk, b, journal)
	}

	keys := e.gen.Unindex(side, id)
	*journal = append(*journal, func() { e.gen.Index(side, id, keys) })

	delete(e.records[side], id)
	*journal = append(*journal, func() { e.records[side][id] = rec })

	b.touch(side, id)
}

func (e *Engine) incidentPairs(side models.Side, id string) []pairKey {
	var pairs []pairKey
	if side == models.SideLeft {
		for right := range e.byLeft[id] {
			pairs = append(pairs, pairKey{left: id, right: right})
		}
	} else {
		for left := range e.byRight[id] {
			pairs = append(pairs, pairKey{left: left, right: id})
		}
	}
	return pairs
}

func (e *Engine) addCandidate(pair models.CandidatePair, b *batchState, journal *[]func()) {
	pk := pairKey{left: pair.LeftID, right: pair.RightID}
	if _, exists := e.candidates[pk]; exists {
		return
	}

	e.candidates[pk] = pair.Confidence
	if e.byLeft[pk.left] == nil {
		e.byLeft[pk.left] = make(map[string]struct{})
	}
	e.byLeft[pk.left][pk.right] = struct{}{}
	if e.byRight[pk.right] == nil {
		e.byRight[pk.right] = make(map[string]struct{})
	}
	e.byRight[pk.right][pk.left] = struct{}{}

	*journal = append(*journal, func() { e.deleteCandidate(pk) })

	e.markLeft(b, pk.left)
	b.touch(models.SideLeft, pk.left)
	b.touch(models.SideRight, pk.right)
}

func (e *Engine) removeCandidate(pk pairKey, b *batchState, journal *[]func()) {
	conf, ok := e.candidates[pk]
	if !ok {
		return
	}

	e.deleteCandidate(pk)
	*journal = append(*journal, func() {
		e.candidates[pk] = conf
		if e.byLeft[pk.left] == nil {
			e.byLeft[pk.left] = make(map[string]struct{})
		}
		e.byLeft[pk.left][pk.right] = struct{}{}
		if e.byRight[pk.right] == nil {
			e.byRight[pk.right] = make(map[string]struct{})
		}
		e.byRight[pk.right][pk.left] = struct{}{}
	})

	e.markLeft(b, pk.left)
	b.touch(models.SideLeft, pk.left)
	b.touch(models.SideRight, pk.right)
}

func (e *Engine) deleteCandidate(pk pairKey) {
	delete(e.candidates, pk)
	delete(e.byLeft[pk.left], pk.right)
	if len(e.byLeft[pk.left]) == 0 {
		delete(e.byLeft, pk.left)
	}
	delete(e.byRight[pk.right], pk.left)
	if len(e.byRight[pk.right]) == 0 {
		delete(e.byRight, pk.right)
	}
}

// scorePairs scores candidate refs against the inserted record. Scoring is
// pure and read-only against engine state, so it fans out across a bounded
// worker pool. A panicking comparator drops that single pair, never the
// batch.
func (e *Engine) scorePairs(rec *models.Record, refs []CandidateRef) []models.CandidatePair {
	if len(refs) == 0 {
		return nil
	}

	workers := e.cfg.ScoreWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(refs) {
		workers = len(refs)
	}

	out := make([]models.CandidatePair, len(refs))
	indexes := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				other := e.records[rec.Side.Opposite()][refs[i].ID]
				out[i] = e.scorePair(rec, other)
			}
		}()
	}
	for i := range refs {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return out
}

func (e *Engine) scorePair(a, other *models.Record) (pair models.CandidatePair) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(map[string]any{
				"left":  pair.LeftID,
				"right": pair.RightID,
				"panic": r,
			}).Warn("Scorer failed for pair, dropping it")
			pair.Confidence = 0
		}
	}()

	left, right := a, other
	if a.Side == models.SideRight {
		left, right = other, a
	}
	pair.LeftID = left.ID
	pair.RightID = right.ID
	pair.Confidence = e.scorer.Score(left.Fields, right.Fields)
	return pair
}

// resolve re-solves the affected neighborhood and derives the output diff.
// Matches not touched by the batch stay pinned and cannot change.
func (e *Engine) resolve(ctx context.Context, b *batchState) (models.AssignmentDiff, error) {
	_, span := tracing.StartSpan(ctx, "matching.Engine.resolve")
	defer span.End()

	type work struct {
		side models.Side
		id   string
	}

	setL := make(map[string]struct{})
	setR := make(map[string]struct{})
	dissolved := make(map[string]matchInfo)

	var worklist []work
	for id := range b.affected[models.SideLeft] {
		worklist = append(worklist, work{models.SideLeft, id})
	}
	for id := range b.affected[models.SideRight] {
		worklist = append(worklist, work{models.SideRight, id})
	}

	// Expand the re-solve set along matched edges: a reconsidered record
	// frees its partner, which then participates in the greedy pass.
	for len(worklist) > 0 {
		w := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if w.side == models.SideLeft {
			if _, seen := setL[w.id]; seen {
				continue
			}
			if _, active := e.records[models.SideLeft][w.id]; active {
				setL[w.id] = struct{}{}
			}
			if m, matched := e.leftMatch[w.id]; matched {
				if _, done := dissolved[w.id]; !done {
					e.markLeft(b, w.id)
					dissolved[w.id] = m
					worklist = append(worklist, work{models.SideRight, m.right})
				}
			}
		} else {
			if _, seen := setR[w.id]; seen {
				continue
			}
			if _, active := e.records[models.SideRight][w.id]; active {
				setR[w.id] = struct{}{}
			}
			if left, matched := e.rightMatch[w.id]; matched {
				if _, done := dissolved[left]; !done {
					e.markLeft(b, left)
					dissolved[left] = e.leftMatch[left]
					worklist = append(worklist, work{models.SideLeft, left})
				}
			}
		}
	}

	// Candidate subgraph: every cached pair incident to the re-solve set
	subgraph := make(map[pairKey]struct{})
	for left := range setL {
		for right := range e.byLeft[left] {
			subgraph[pairKey{left: left, right: right}] = struct{}{}
		}
	}
	for right := range setR {
		for left := range e.byRight[right] {
			subgraph[pairKey{left: left, right: right}] = struct{}{}
		}
	}

	pairs := make([]models.CandidatePair, 0, len(subgraph))
	freeLeft := make(map[string]bool)
	freeRight := make(map[string]bool)
	for pk := range subgraph {
		pairs = append(pairs, models.CandidatePair{
			LeftID:     pk.left,
			RightID:    pk.right,
			Confidence: e.candidates[pk],
		})

		if _, matched := e.leftMatch[pk.left]; !matched {
			freeLeft[pk.left] = true
		} else if _, freed := dissolved[pk.left]; freed {
			freeLeft[pk.left] = true
		}

		if left, matched := e.rightMatch[pk.right]; !matched {
			freeRight[pk.right] = true
		} else if _, freed := dissolved[left]; freed {
			freeRight[pk.right] = true
		}
	}

	accepted := e.solver.Solve(pairs, freeLeft, freeRight)

	if err := e.checkAssignment(accepted, dissolved); err != nil {
		return models.AssignmentDiff{}, err
	}

	// Commit: dissolve reconsidered matches, then install accepted ones
	for left, m := range dissolved {
		delete(e.leftMatch, left)
		delete(e.rightMatch, m.right)
	}
	for _, pair := range accepted {
		e.leftMatch[pair.LeftID] = matchInfo{right: pair.RightID, conf: pair.Confidence}
		e.rightMatch[pair.RightID] = pair.LeftID
	}

	return e.buildDiff(b), nil
}

// checkAssignment validates that installing the accepted pairs keeps the
// assignment a one-to-one partial matching. Failure means an internal bug
// and rejects the batch.
func (e *Engine) checkAssignment(accepted []models.CandidatePair, dissolved map[string]matchInfo) error {
	// Dissolved matches must have been bidirectionally consistent
	for left, m := range dissolved {
		cur, ok := e.leftMatch[left]
		if !ok || cur != m {
			return ErrStateCorruption
		}
		if e.rightMatch[m.right] != left {
			return ErrStateCorruption
		}
	}

	seenLeft := make(map[string]struct{}, len(accepted))
	seenRight := make(map[string]struct{}, len(accepted))
	for _, pair := range accepted {
		if pair.Confidence < 0 || pair.Confidence > 1 {
			return ErrStateCorruption
		}
		if _, dup := seenLeft[pair.LeftID]; dup {
			return ErrStateCorruption
		}
		if _, dup := seenRight[pair.RightID]; dup {
			return ErrStateCorruption
		}
		seenLeft[pair.LeftID] = struct{}{}
		seenRight[pair.RightID] = struct{}{}

		// Endpoints must be free after the dissolve step
		if _, matched := e.leftMatch[pair.LeftID]; matched {
			if _, freed := dissolved[pair.LeftID]; !freed {
				return ErrStateCorruption
			}
		}
		if left, matched := e.rightMatch[pair.RightID]; matched {
			if _, freed := dissolved[left]; !freed {
				return ErrStateCorruption
			}
		}
	}
	return nil
}

// buildDiff derives the materialized output changes for every left record
// the batch touched, ordered by left ID for reproducibility
func (e *Engine) buildDiff(b *batchState) models.AssignmentDiff {
	ids := make([]string, 0, len(b.before))
	for id := range b.before {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var entries []models.DiffEntry
	for _, id := range ids {
		old := b.before[id]
		_, present := e.records[models.SideLeft][id]

		var newRight *string
		var newConf float64
		if m, matched := e.leftMatch[id]; matched {
			right := m.right
			newRight = &right
			newConf = m.conf
		}

		var oldRight *string
		var oldConf float64
		if old.matched {
			right := old.right
			oldRight = &right
			oldConf = old.conf
		}

		switch {
		case !old.present && present:
			entries = append(entries, models.DiffEntry{
				Kind:          models.DiffAdded,
				LeftID:        id,
				NewRightID:    newRight,
				NewConfidence: newConf,
			})
		case old.present && !present:
			entries = append(entries, models.DiffEntry{
				Kind:          models.DiffRemoved,
				LeftID:        id,
				OldRightID:    oldRight,
				OldConfidence: oldConf,
			})
		case old.present && present:
			if !sameRight(oldRight, newRight) || oldConf != newConf {
				entries = append(entries, models.DiffEntry{
					Kind:          models.DiffChanged,
					LeftID:        id,
					OldRightID:    oldRight,
					OldConfidence: oldConf,
					NewRightID:    newRight,
					NewConfidence: newConf,
				})
			}
		}
	}

	return models.AssignmentDiff{Entries: entries}
}

func sameRight(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Snapshot materializes the full current output: one row per active left
// record, unmatched rows carrying a nil partner and confidence 0
func (e *Engine) Snapshot() []models.ResultRow {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows := make([]models.ResultRow, 0, len(e.records[models.SideLeft]))
	for id := range e.records[models.SideLeft] {
		rows = append(rows, e.rowLocked(id))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].LeftID < rows[j].LeftID })
	return rows
}

// MatchedLeft returns the left record a right record is currently assigned
// to, if any
func (e *Engine) MatchedLeft(rightID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	left, ok := e.rightMatch[rightID]
	return left, ok
}

// Row returns the output row for one left record
func (e *Engine) Row(leftID string) (models.ResultRow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, active := e.records[models.SideLeft][leftID]; !active {
		return models.ResultRow{}, false
	}
	return e.rowLocked(leftID), true
}

func (e *Engine) rowLocked(leftID string) models.ResultRow {
	row := models.ResultRow{LeftID: leftID}
	if m, matched := e.leftMatch[leftID]; matched {
		right := m.right
		row.RightID = &right
		row.Confidence = m.conf
	}
	return row
}

// Stats returns point-in-time engine counters
func (e *Engine) Stats() models.EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return models.EngineStats{
		LeftRecords:    len(e.records[models.SideLeft]),
		RightRecords:   len(e.records[models.SideRight]),
		CandidatePairs: len(e.candidates),
		MatchedPairs:   len(e.leftMatch),
		DegradedCount:  e.gen.DegradedCount(),
		BatchesApplied: e.batches,
	}
}
