package matching

import (
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tansy/pkg/models"
)

// CandidateRef is an opposite-side record co-located with an inserted record
// under at least one blocking key. SharedKeys is the cheap pre-score used for
// fan-out truncation.
type CandidateRef struct {
	ID         string
	SharedKeys int
}

// Generator maintains the two blocking indexes and produces candidate pair
// deltas for record insertions and removals.
type Generator struct {
	logger     ectologger.Logger
	extractors []*KeyExtractor
	indexes    map[models.Side]*BlockingIndex
	maxFanOut  int

	degraded int64
}

// NewGenerator creates a candidate generator from the blocking configuration
func NewGenerator(logger ectologger.Logger, cfg models.MatchConfig) *Generator {
	extractors := make([]*KeyExtractor, 0, len(cfg.Blocking))
	for _, spec := range cfg.Blocking {
		extractors = append(extractors, NewKeyExtractor(spec))
	}

	return &Generator{
		logger:     logger,
		extractors: extractors,
		indexes: map[models.Side]*BlockingIndex{
			models.SideLeft:  NewBlockingIndex(),
			models.SideRight: NewBlockingIndex(),
		},
		maxFanOut: cfg.MaxCandidates,
	}
}

// IndexKeys derives all blocking keys for a record
func (g *Generator) IndexKeys(rec *models.Record) []string {
	var keys []string
	for _, ex := range g.extractors {
		keys = append(keys, ex.IndexKeys(rec.Fields)...)
	}
	return keys
}

// Index adds a record to its side's blocking index
func (g *Generator) Index(side models.Side, id string, keys []string) {
	g.indexes[side].Add(id, keys)
}

// Unindex purges a record from its side's blocking index and returns the
// keys it held
func (g *Generator) Unindex(side models.Side, id string) []string {
	return g.indexes[side].Remove(id)
}

// Probe looks up the opposite side for records sharing at least one blocking
// key with the given record, ranked by shared-key count and truncated to the
// fan-out cap. Truncation is a degraded-match condition, never a failure.
func (g *Generator) Probe(side models.Side, rec *models.Record) []CandidateRef {
	opposite := g.indexes[side.Opposite()]

	shared := make(map[string]int)
	for _, ex := range g.extractors {
		for _, key := range ex.ProbeKeys(rec.Fields) {
			for id := range opposite.Lookup(key) {
				shared[id]++
			}
		}
	}

	refs := make([]CandidateRef, 0, len(shared))
	for id, count := range shared {
		refs = append(refs, CandidateRef{ID: id, SharedKeys: count})
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].SharedKeys != refs[j].SharedKeys {
			return refs[i].SharedKeys > refs[j].SharedKeys
		}
		return refs[i].ID < refs[j].ID
	})

	if g.maxFanOut > 0 && len(refs) > g.maxFanOut {
		g.degraded++
		g.logger.WithFields(map[string]any{
			"side":       side,
			"record_id":  rec.ID,
			"candidates": len(refs),
			"cap":        g.maxFanOut,
		}).Warn("Candidate fan-out exceeded cap, truncating to top-K")
		refs = refs[:g.maxFanOut]
	}

	return refs
}

// DegradedCount returns how many insertions hit the fan-out cap
func (g *Generator) DegradedCount() int64 {
	return g.degraded
}

// IndexLen returns the number of records indexed on a side
func (g *Generator) IndexLen(side models.Side) int {
	return g.indexes[side].Len()
}
