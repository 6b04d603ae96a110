package models

// ComparatorType selects the per-field comparison algorithm
type ComparatorType string

const (
	ComparatorExact            ComparatorType = "exact"
	ComparatorLevenshtein      ComparatorType = "levenshtein"
	ComparatorJaroWinkler      ComparatorType = "jaro_winkler"
	ComparatorNumericTolerance ComparatorType = "numeric_tolerance"
	ComparatorDateTolerance    ComparatorType = "date_tolerance"
	ComparatorPhonetic         ComparatorType = "phonetic"
)

// ComparatorSpec configures how one field pair contributes to the confidence
type ComparatorSpec struct {
	Field      string         `json:"field" validate:"required"`
	Comparator ComparatorType `json:"comparator" validate:"required,oneof=exact levenshtein jaro_winkler numeric_tolerance date_tolerance phonetic"`
	Weight     float64        `json:"weight" validate:"gt=0"`

	// Tolerance is the maximum absolute difference for numeric_tolerance
	Tolerance float64 `json:"tolerance,omitempty"`
	// MaxDaysDiff is the decay window for date_tolerance
	MaxDaysDiff int `json:"max_days_diff,omitempty"`
	// CaseSensitive applies to exact comparison of strings
	CaseSensitive bool `json:"case_sensitive,omitempty"`
}

// BlockingKind selects how a blocking key is derived from a field
type BlockingKind string

const (
	// BlockingExact indexes the normalized field value as-is
	BlockingExact BlockingKind = "exact"
	// BlockingNumericBucket indexes the value's numeric-range bucket and
	// probes adjacent buckets on lookup
	BlockingNumericBucket BlockingKind = "numeric_bucket"
	// BlockingDateTruncate indexes the date truncated to a month
	BlockingDateTruncate BlockingKind = "date_truncate"
	// BlockingSuffix indexes the last SuffixLen characters of the value
	BlockingSuffix BlockingKind = "suffix"
	// BlockingTokens indexes each whitespace-separated token of the value
	BlockingTokens BlockingKind = "tokens"
)

// BlockingSpec configures one blocking key extractor
type BlockingSpec struct {
	Name  string       `json:"name" validate:"required"`
	Field string       `json:"field" validate:"required"`
	Kind  BlockingKind `json:"kind" validate:"required,oneof=exact numeric_bucket date_truncate suffix tokens"`

	// Normalizers applied to the raw field string before key derivation
	Normalizers []string `json:"normalizers,omitempty"`
	// BucketWidth for numeric_bucket keys
	BucketWidth float64 `json:"bucket_width,omitempty"`
	// SuffixLen for suffix keys
	SuffixLen int `json:"suffix_len,omitempty"`
}

// FieldSpec declares how a raw input field is normalized and typed at the
// ingestion boundary
type FieldSpec struct {
	Name        string    `json:"name" validate:"required"`
	Kind        FieldKind `json:"kind" validate:"required,oneof=string number date"`
	Normalizers []string  `json:"normalizers,omitempty"`
	Required    bool      `json:"required,omitempty"`
}

// MatchConfig is the full matching configuration surface
type MatchConfig struct {
	Fields      []FieldSpec      `json:"fields" validate:"required,min=1,dive"`
	Comparators []ComparatorSpec `json:"comparators" validate:"required,min=1,dive"`
	Blocking    []BlockingSpec   `json:"blocking" validate:"required,min=1,dive"`

	// MinConfidence is the acceptance threshold for the assignment solver
	MinConfidence float64 `json:"min_confidence" validate:"gte=0,lte=1"`
	// MaxCandidates caps candidate fan-out per record
	MaxCandidates int `json:"max_candidates" validate:"gt=0"`
	// MissingFieldPenalty is the score contributed by a field absent on
	// either side
	MissingFieldPenalty float64 `json:"missing_field_penalty" validate:"gte=0,lte=1"`
	// ScoreWorkers bounds parallel similarity scoring within a batch
	ScoreWorkers int `json:"score_workers,omitempty"`
}

// DefaultMatchConfig returns the reconciliation defaults for banking
// transaction logs: amount, date, recipient and account suffix.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		Fields: []FieldSpec{
			{Name: "amount", Kind: FieldKindNumber, Normalizers: []string{"namount"}},
			{Name: "date", Kind: FieldKindDate, Normalizers: []string{"trim"}},
			{Name: "recipient", Kind: FieldKindString, Normalizers: []string{"nname"}},
			{Name: "acc_suffix", Kind: FieldKindString, Normalizers: []string{"digits_only"}},
		},
		Comparators: []ComparatorSpec{
			{Field: "amount", Comparator: ComparatorNumericTolerance, Weight: 0.35, Tolerance: 10},
			{Field: "date", Comparator: ComparatorDateTolerance, Weight: 0.15, MaxDaysDiff: 7},
			{Field: "recipient", Comparator: ComparatorJaroWinkler, Weight: 0.25},
			{Field: "acc_suffix", Comparator: ComparatorExact, Weight: 0.25},
		},
		Blocking: []BlockingSpec{
			{Name: "amount_bucket", Field: "amount", Kind: BlockingNumericBucket, Normalizers: []string{"namount"}, BucketWidth: 100},
			{Name: "acc_suffix", Field: "acc_suffix", Kind: BlockingSuffix, Normalizers: []string{"digits_only"}, SuffixLen: 7},
			{Name: "recipient_tokens", Field: "recipient", Kind: BlockingTokens, Normalizers: []string{"nname"}},
		},
		MinConfidence:       0.5,
		MaxCandidates:       100,
		MissingFieldPenalty: 0,
		ScoreWorkers:        4,
	}
}
