package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// SplitIdentifiers splits source text into lowercase identifier and number tokens.
// Punctuation and whitespace separate tokens; camelCase is not split.
func SplitIdentifiers(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$'
	})
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32())
}
