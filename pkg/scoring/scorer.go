// Package scoring implements the similarity scorer: a pure function mapping
// a pair of normalized field bags to a confidence in [0,1]
package scoring

import (
	"github.com/Ramsey-B/tansy/pkg/models"
)

// Scorer computes weighted field-by-field similarity between two records.
// Scoring is pure and deterministic: the same pair of field bags always
// produces the same confidence, and strictly closer field agreement never
// lowers it.
type Scorer struct {
	specs   []models.ComparatorSpec
	penalty float64
}

// NewScorer creates a scorer from the configured comparator table
func NewScorer(cfg models.MatchConfig) *Scorer {
	return &Scorer{
		specs:   cfg.Comparators,
		penalty: cfg.MissingFieldPenalty,
	}
}

// Score returns the aggregate confidence for a candidate pair. A field
// missing on either side contributes the configured penalty instead of
// failing; a malformed value scores 0 for that field only.
func (s *Scorer) Score(left, right models.FieldBag) float64 {
	var totalWeight float64
	var weightedSum float64

	for _, spec := range s.specs {
		lv, lok := left.Get(spec.Field)
		rv, rok := right.Get(spec.Field)

		weight := spec.Weight
		totalWeight += weight

		if !lok || !rok {
			weightedSum += s.penalty * weight
			continue
		}

		weightedSum += s.compareField(spec, lv, rv) * weight
	}

	if totalWeight == 0 {
		return 0.0
	}

	return clamp(weightedSum / totalWeight)
}

func (s *Scorer) compareField(spec models.ComparatorSpec, lv, rv models.FieldValue) float64 {
	switch spec.Comparator {
	case models.ComparatorExact:
		return ExactMatch(lv.Str, rv.Str, spec.CaseSensitive)
	case models.ComparatorLevenshtein:
		return Levenshtein(lv.Str, rv.Str)
	case models.ComparatorJaroWinkler:
		return JaroWinkler(lv.Str, rv.Str)
	case models.ComparatorNumericTolerance:
		if lv.Kind != models.FieldKindNumber || rv.Kind != models.FieldKindNumber {
			return 0.0
		}
		return NumericProximity(lv.Num, rv.Num, spec.Tolerance)
	case models.ComparatorDateTolerance:
		if lv.Kind != models.FieldKindDate || rv.Kind != models.FieldKindDate {
			return 0.0
		}
		return DateProximity(lv.Date, rv.Date, spec.MaxDaysDiff)
	case models.ComparatorPhonetic:
		return SoundexMatch(lv.Str, rv.Str)
	default:
		return 0.0
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
