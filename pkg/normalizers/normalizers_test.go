package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	t.Run("known normalizer", func(t *testing.T) {
		fn, ok := Get("lowercase")
		assert.True(t, ok)
		assert.Equal(t, "abc", fn("ABC"))
	})

	t.Run("unknown normalizer leaves value untouched", func(t *testing.T) {
		_, ok := Get("nope")
		assert.False(t, ok)
		assert.Equal(t, "ABC", Apply("ABC", "nope"))
	})

	t.Run("chain applies in order", func(t *testing.T) {
		assert.Equal(t, "abc", ApplyChain("  A B C. ", "lowercase", "remove_punctuation", "remove_whitespace"))
	})
}

func TestBuiltins(t *testing.T) {
	assert.Equal(t, "hello", Lowercase("HeLLo"))
	assert.Equal(t, "HELLO", Uppercase("HeLLo"))
	assert.Equal(t, "hi", Trim("  hi  "))
	assert.Equal(t, "ab", RemoveWhitespace("a b\t"))
	assert.Equal(t, "ab c", RemovePunctuation("a.b, c!"))
	assert.Equal(t, "123", DigitsOnly("a1b2c3"))
	assert.Equal(t, "a1b2", Alphanumeric("a-1 b:2"))
}

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Mr. John Smith", "john smith"},
		{"DR  Jane   Doe", "jane doe"},
		{"alice", "alice"},
		{"O'Brien, Conor", "obrien conor"},
		{"  Mrs Ada Lovelace  ", "ada lovelace"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeName(c.in), "input %q", c.in)
	}
}

func TestNormalizeAmount(t *testing.T) {
	assert.Equal(t, "1234.50", NormalizeAmount("$1,234.50"))
	assert.Equal(t, "-42", NormalizeAmount("-42 EUR"))
	assert.Equal(t, "100", NormalizeAmount("100"))
	assert.Equal(t, "", NormalizeAmount("n/a"))
}

func TestNormalizeAccount(t *testing.T) {
	assert.Equal(t, "12345", NormalizeAccount("0012345"))
	assert.Equal(t, "12345", NormalizeAccount("GB-00-12345"))
	assert.Equal(t, "0", NormalizeAccount("000"))
	assert.Equal(t, "", NormalizeAccount("xyz"))
}
