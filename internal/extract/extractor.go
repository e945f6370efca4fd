// Package extract turns source files into text ready for chunking.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotSource marks files that are readable but should not be chunked. A file
// rejected this way is tracked with no chunks rather than retried.
var ErrNotSource = errors.New("not source text")

var (
	// ErrBinary is returned for content containing NUL bytes.
	ErrBinary = fmt.Errorf("%w: binary content", ErrNotSource)
	// ErrMinified is returned for generated or minified sources with very long lines.
	ErrMinified = fmt.Errorf("%w: minified source", ErrNotSource)
)

// DefaultMaxLineLength is the longest line accepted in a source file.
const DefaultMaxLineLength = 1000

// binarySniffLen bounds how much of a file is searched for NUL bytes.
const binarySniffLen = 8000

// Extractor extracts chunkable text from source files.
type Extractor struct {
	maxLineLen int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxLineLength rejects sources with a line longer than n bytes. 0 disables the check.
func WithMaxLineLength(n int) Option {
	return func(e *Extractor) { e.maxLineLen = n }
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{maxLineLen: DefaultMaxLineLength}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".tsx"). Line numbering of the result
// always matches the input.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	sniff := content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return "", ErrBinary
	}
	var text string
	switch ext {
	case ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".mts", ".cts":
		text = extractScript(content)
	default:
		text = extractPlain(content)
	}
	if e.maxLineLen > 0 && longestLine(text) > e.maxLineLen {
		return "", ErrMinified
	}
	return text, nil
}

func longestLine(text string) int {
	longest := 0
	for len(text) > 0 {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			i = len(text)
		}
		longest = max(longest, i)
		if i == len(text) {
			break
		}
		text = text[i+1:]
	}
	return longest
}
