package extract

import (
	"strings"
	"unicode/utf8"
)

const bom = "\ufeff"

// extractPlain returns content as string without a leading byte order mark.
// Invalid UTF-8 sequences are replaced with the replacement character.
func extractPlain(content []byte) string {
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "\uFFFD"))
	}
	return strings.TrimPrefix(string(content), bom)
}

// extractScript is extractPlain plus blanking a leading "#!" line, which would
// otherwise be taken as the start of the first chunk.
func extractScript(content []byte) string {
	text := extractPlain(content)
	if !strings.HasPrefix(text, "#!") {
		return text
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[i:]
	}
	return ""
}
