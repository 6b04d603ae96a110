package matching

import (
	"fmt"

	"github.com/Ramsey-B/tansy/pkg/fingerprint"
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/normalizers"
)

// BuildRecord converts a delta event into an immutable engine record. Fields
// are normalized per the configured chain, parsed by declared kind and
// fingerprinted. A field that fails to parse is dropped from the record with
// a warning so the missing-field penalty applies at scoring time; the record
// itself stays active.
func BuildRecord(ev models.DeltaEvent, cfg models.MatchConfig) (*models.Record, []string) {
	bag := make(models.FieldBag, len(cfg.Fields))
	canonical := make(map[string]string, len(cfg.Fields))
	var warns []string

	for _, spec := range cfg.Fields {
		raw, ok := ev.Fields[spec.Name]
		if !ok {
			if spec.Required {
				warns = append(warns, fmt.Sprintf("Record is missing required field %q", spec.Name))
			}
			continue
		}

		normalized := normalizers.ApplyChain(raw, spec.Normalizers...)
		value, err := models.ParseFieldValue(spec.Kind, normalized)
		if err != nil {
			warns = append(warns, fmt.Sprintf("Field %q has malformed value %q, dropping field", spec.Name, raw))
			continue
		}

		bag[spec.Name] = value
		canonical[spec.Name] = normalized
	}

	rec := &models.Record{
		Side:        ev.Side,
		ID:          ev.ID,
		Fields:      bag,
		Fingerprint: fingerprint.Generate(canonical),
	}
	return rec, warns
}
