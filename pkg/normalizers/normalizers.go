// Package normalizers provides field normalization functions applied at the
// ingestion boundary before scoring and blocking-key derivation
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("remove_whitespace", RemoveWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
	Register("nname", NormalizeName)
	Register("namount", NormalizeAmount)
	Register("naccount", NormalizeAccount)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. An unknown name leaves the
// value untouched.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// honorifics commonly found in hand-entered transaction logs
var honorifics = []string{"mr ", "mrs ", "ms ", "dr ", "prof "}

// NormalizeName normalizes a person's name for matching
// - Lowercase
// - Remove honorific prefixes and punctuation
// - Collapse whitespace
func NormalizeName(s string) string {
	s = strings.ToLower(s)

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) || r == '.' {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	s = strings.TrimSpace(result.String())

	for _, h := range honorifics {
		if strings.HasPrefix(s, h) {
			s = strings.TrimSpace(s[len(h):])
			break
		}
	}

	return s
}

// NormalizeAmount normalizes a monetary amount string: strips currency
// symbols, grouping separators and underscores, keeping digits, a sign and a
// decimal point.
func NormalizeAmount(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			result.WriteRune(r)
		case r == '.':
			result.WriteRune(r)
		case r == '-' && result.Len() == 0:
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeAccount normalizes an account number: digits only, leading zeros
// stripped so differently padded forms of the same account compare equal.
func NormalizeAccount(s string) string {
	digits := DigitsOnly(s)
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" && digits != "" {
		return "0"
	}
	return trimmed
}
