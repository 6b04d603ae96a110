// Package models defines the core data model for the reconciliation engine
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Side identifies which record collection a record belongs to
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
)

// Valid reports whether the side is one of the two known collections.
func (s Side) Valid() bool {
	return s == SideLeft || s == SideRight
}

// Opposite returns the other collection.
func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// FieldKind is the normalized value kind of a field
type FieldKind string

const (
	FieldKindString FieldKind = "string"
	FieldKindNumber FieldKind = "number"
	FieldKindDate   FieldKind = "date"
)

// DateLayout is the canonical date format accepted at the ingestion boundary
const DateLayout = "2006-01-02"

// FieldValue is a single normalized field value. Exactly one of the typed
// members is meaningful, selected by Kind. Str always carries the normalized
// string form so comparators and blocking keys can fall back to it.
type FieldValue struct {
	Kind FieldKind `json:"kind"`
	Str  string    `json:"str"`
	Num  float64   `json:"num,omitempty"`
	Date time.Time `json:"date,omitempty"`
}

// FieldBag maps field names to normalized values. It is built once at the
// ingestion boundary and never re-validated during scoring.
type FieldBag map[string]FieldValue

// Get returns the value for a field and whether it is present.
func (b FieldBag) Get(name string) (FieldValue, bool) {
	v, ok := b[name]
	return v, ok
}

// Equal reports whether two bags hold identical normalized values.
func (b FieldBag) Equal(other FieldBag) bool {
	if len(b) != len(other) {
		return false
	}
	for name, v := range b {
		ov, ok := other[name]
		if !ok || ov.Kind != v.Kind || ov.Str != v.Str {
			return false
		}
	}
	return true
}

// ParseFieldValue converts a normalized raw string into a typed field value.
// The raw string must already have had its normalizer chain applied.
func ParseFieldValue(kind FieldKind, raw string) (FieldValue, error) {
	switch kind {
	case FieldKindString:
		return FieldValue{Kind: kind, Str: raw}, nil
	case FieldKindNumber:
		num, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return FieldValue{}, fmt.Errorf("invalid numeric field value %q: %w", raw, err)
		}
		return FieldValue{Kind: kind, Str: raw, Num: num}, nil
	case FieldKindDate:
		date, err := time.Parse(DateLayout, strings.TrimSpace(raw))
		if err != nil {
			return FieldValue{}, fmt.Errorf("invalid date field value %q: %w", raw, err)
		}
		return FieldValue{Kind: kind, Str: raw, Date: date}, nil
	default:
		return FieldValue{}, fmt.Errorf("unknown field kind %q", kind)
	}
}

// Record is a single reconciliation record. Records are immutable once
// created; an update arrives as a remove followed by an insert.
type Record struct {
	Side   Side     `json:"side"`
	ID     string   `json:"id"`
	Fields FieldBag `json:"fields"`

	// Fingerprint of the normalized field bag, used for idempotent re-inserts
	Fingerprint string `json:"fingerprint"`
}
