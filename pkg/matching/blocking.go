// Package matching implements the incremental fuzzy-match reconciliation
// engine: blocking-index candidate generation, deterministic greedy
// assignment and incremental maintenance of the matched state.
package matching

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/normalizers"
)

// KeyExtractor derives blocking keys from a record's normalized fields.
// IndexKeys are the keys a record is stored under; ProbeKeys are the keys
// looked up on the opposite side and may include near-match neighbors
// (adjacent numeric buckets).
type KeyExtractor struct {
	spec models.BlockingSpec
}

// NewKeyExtractor creates an extractor for a single blocking spec
func NewKeyExtractor(spec models.BlockingSpec) *KeyExtractor {
	return &KeyExtractor{spec: spec}
}

// IndexKeys returns the blocking keys the record is indexed under
func (k *KeyExtractor) IndexKeys(fields models.FieldBag) []string {
	return k.derive(fields, false)
}

// ProbeKeys returns the blocking keys looked up on the opposite side
func (k *KeyExtractor) ProbeKeys(fields models.FieldBag) []string {
	return k.derive(fields, true)
}

func (k *KeyExtractor) derive(fields models.FieldBag, probe bool) []string {
	value, ok := fields.Get(k.spec.Field)
	if !ok {
		return nil
	}

	raw := normalizers.ApplyChain(value.Str, k.spec.Normalizers...)
	if raw == "" {
		return nil
	}

	switch k.spec.Kind {
	case models.BlockingExact:
		return []string{k.key(raw)}

	case models.BlockingNumericBucket:
		width := k.spec.BucketWidth
		if width <= 0 {
			width = 1
		}
		var num float64
		if value.Kind == models.FieldKindNumber {
			num = value.Num
		} else {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil
			}
			num = parsed
		}
		bucket := int64(math.Floor(num / width))
		if !probe {
			return []string{k.key(fmt.Sprintf("%d", bucket))}
		}
		// Probe adjacent buckets so near-matches across a bucket
		// boundary are still candidates.
		return []string{
			k.key(fmt.Sprintf("%d", bucket-1)),
			k.key(fmt.Sprintf("%d", bucket)),
			k.key(fmt.Sprintf("%d", bucket+1)),
		}

	case models.BlockingDateTruncate:
		if value.Kind != models.FieldKindDate || value.Date.IsZero() {
			return nil
		}
		return []string{k.key(value.Date.Format("2006-01"))}

	case models.BlockingSuffix:
		n := k.spec.SuffixLen
		if n <= 0 || n > len(raw) {
			n = len(raw)
		}
		return []string{k.key(raw[len(raw)-n:])}

	case models.BlockingTokens:
		tokens := strings.Fields(raw)
		keys := make([]string, 0, len(tokens))
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			keys = append(keys, k.key(tok))
		}
		return keys

	default:
		return nil
	}
}

// key namespaces a derived value by the extractor name so keys from
// different extractors never collide
func (k *KeyExtractor) key(v string) string {
	return k.spec.Name + ":" + v
}

// BlockingIndex maps blocking keys to the record IDs of one side that derive
// them. Every live record appears under exactly the keys its fields derive;
// removal purges all of them.
type BlockingIndex struct {
	byKey map[string]map[string]struct{}
	byID  map[string][]string
}

// NewBlockingIndex creates an empty index
func NewBlockingIndex() *BlockingIndex {
	return &BlockingIndex{
		byKey: make(map[string]map[string]struct{}),
		byID:  make(map[string][]string),
	}
}

// Add indexes a record under its derived keys
func (ix *BlockingIndex) Add(id string, keys []string) {
	for _, key := range keys {
		set, ok := ix.byKey[key]
		if !ok {
			set = make(map[string]struct{})
			ix.byKey[key] = set
		}
		set[id] = struct{}{}
	}
	ix.byID[id] = keys
}

// Remove purges a record from the index and returns the keys it was stored
// under, so a rejected batch can restore them.
func (ix *BlockingIndex) Remove(id string) []string {
	keys := ix.byID[id]
	for _, key := range keys {
		set := ix.byKey[key]
		delete(set, id)
		if len(set) == 0 {
			delete(ix.byKey, key)
		}
	}
	delete(ix.byID, id)
	return keys
}

// Lookup returns the IDs indexed under a key
func (ix *BlockingIndex) Lookup(key string) map[string]struct{} {
	return ix.byKey[key]
}

// Contains reports whether a record is present
func (ix *BlockingIndex) Contains(id string) bool {
	_, ok := ix.byID[id]
	return ok
}

// Len returns the number of indexed records
func (ix *BlockingIndex) Len() int {
	return len(ix.byID)
}
