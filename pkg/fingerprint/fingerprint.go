// Package fingerprint derives deterministic fingerprints for normalized
// field bags, used to detect idempotent re-inserts
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Generate creates a deterministic fingerprint for a set of normalized
// fields. The fingerprint is a SHA256 hash of the canonicalized form.
func Generate(fields map[string]string) string {
	hash := sha256.Sum256([]byte(canonicalize(fields)))
	return hex.EncodeToString(hash[:])
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}

// canonicalize creates a deterministic string representation of the field
// map by sorting keys
func canonicalize(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	b.WriteByte('}')
	return b.String()
}
