package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tansy/pkg/models"
)

func recordConfig() models.MatchConfig {
	return models.MatchConfig{
		Fields: []models.FieldSpec{
			{Name: "amount", Kind: models.FieldKindNumber, Required: true},
			{Name: "date", Kind: models.FieldKindDate},
			{Name: "recipient", Kind: models.FieldKindString, Normalizers: []string{"nname"}},
		},
	}
}

func TestBuildRecord(t *testing.T) {
	t.Run("normalizes and parses declared fields", func(t *testing.T) {
		rec, warns := BuildRecord(models.DeltaEvent{
			Side: models.SideLeft,
			Op:   models.DeltaOpInsert,
			ID:   "l1",
			Fields: map[string]string{
				"amount":    "1250.50",
				"date":      "2024-03-15",
				"recipient": "Mr. John Smith",
			},
		}, recordConfig())

		assert.Empty(t, warns)
		assert.Equal(t, models.SideLeft, rec.Side)
		assert.Equal(t, "l1", rec.ID)

		amount, ok := rec.Fields.Get("amount")
		require.True(t, ok)
		assert.Equal(t, 1250.50, amount.Num)

		recipient, ok := rec.Fields.Get("recipient")
		require.True(t, ok)
		assert.Equal(t, "john smith", recipient.Str)

		assert.NotEmpty(t, rec.Fingerprint)
	})

	t.Run("undeclared input fields are ignored", func(t *testing.T) {
		rec, warns := BuildRecord(models.DeltaEvent{
			Side:   models.SideLeft,
			ID:     "l1",
			Fields: map[string]string{"amount": "10", "color": "green"},
		}, recordConfig())

		assert.Empty(t, warns)
		_, ok := rec.Fields.Get("color")
		assert.False(t, ok)
	})

	t.Run("missing required field warns but keeps the record", func(t *testing.T) {
		rec, warns := BuildRecord(models.DeltaEvent{
			Side:   models.SideLeft,
			ID:     "l1",
			Fields: map[string]string{"recipient": "alice"},
		}, recordConfig())

		require.Len(t, warns, 1)
		assert.Contains(t, warns[0], "amount")
		_, ok := rec.Fields.Get("amount")
		assert.False(t, ok)
		_, ok = rec.Fields.Get("recipient")
		assert.True(t, ok)
	})

	t.Run("malformed field is dropped with a warning", func(t *testing.T) {
		rec, warns := BuildRecord(models.DeltaEvent{
			Side: models.SideLeft,
			ID:   "l1",
			Fields: map[string]string{
				"amount": "ten dollars",
				"date":   "not-a-date",
			},
		}, recordConfig())

		require.Len(t, warns, 2)
		_, ok := rec.Fields.Get("amount")
		assert.False(t, ok)
		_, ok = rec.Fields.Get("date")
		assert.False(t, ok)
	})

	t.Run("fingerprint is stable across raw spellings that normalize alike", func(t *testing.T) {
		a, _ := BuildRecord(models.DeltaEvent{
			Side:   models.SideLeft,
			ID:     "l1",
			Fields: map[string]string{"amount": "10", "recipient": "Mr. John Smith"},
		}, recordConfig())
		b, _ := BuildRecord(models.DeltaEvent{
			Side:   models.SideLeft,
			ID:     "l1",
			Fields: map[string]string{"amount": "10", "recipient": "john  SMITH"},
		}, recordConfig())

		assert.Equal(t, a.Fingerprint, b.Fingerprint)
	})

	t.Run("fingerprint changes with field values", func(t *testing.T) {
		a, _ := BuildRecord(models.DeltaEvent{
			Side:   models.SideLeft,
			ID:     "l1",
			Fields: map[string]string{"amount": "10"},
		}, recordConfig())
		b, _ := BuildRecord(models.DeltaEvent{
			Side:   models.SideLeft,
			ID:     "l1",
			Fields: map[string]string{"amount": "11"},
		}, recordConfig())

		assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
	})
}
