package indexer

import (
	"strings"
	"unicode"
)

// Preprocess prepares chunk text for embedding: trims it and collapses every run of
// whitespace to one space, so re-indentation alone does not move a chunk's vector.
// Content hashes are always taken over the exact source text, never this form.
func Preprocess(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteByte(' ')
				wasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		wasSpace = false
	}
	return b.String()
}
