// Package chunker defines how source files are split into chunks and provides a
// language-agnostic fallback that splits on blank lines.
package chunker

import (
	"strings"

	"github.com/hyperjump/semdup/internal/models"
)

// Chunk is one code region extracted from a file. Lines are 1-based and inclusive.
type Chunk struct {
	StartLine int
	EndLine   int
	Kind      models.ChunkKind
	Name      string
	Content   string
}

// Chunker extracts chunks from a file's content. Implementations backed by a real
// parser live outside this module and plug in through this interface.
type Chunker interface {
	Chunk(path, content string) ([]Chunk, error)
}

// BlockChunker splits text into blocks of consecutive non-blank lines. Blocks longer
// than maxLines are cut into windows of maxLines; blocks shorter than minLines are skipped.
// A window starting with a function, component, hook, or class declaration takes its
// kind and name from it; any other window is kind "other", named after its first line.
type BlockChunker struct {
	minLines int
	maxLines int
}

// NewBlockChunker creates a chunker with the given bounds. Non-positive values fall back
// to 3 and 80 lines.
func NewBlockChunker(minLines, maxLines int) *BlockChunker {
	if minLines <= 0 {
		minLines = 3
	}
	if maxLines <= 0 {
		maxLines = 80
	}
	if maxLines < minLines {
		maxLines = minLines
	}
	return &BlockChunker{minLines: minLines, maxLines: maxLines}
}

// Chunk implements Chunker.
func (c *BlockChunker) Chunk(path, content string) ([]Chunk, error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	var chunks []Chunk
	start := -1
	flush := func(end int) {
		for s := start; s < end; s += c.maxLines {
			e := min(s+c.maxLines, end)
			if e-s < c.minLines {
				continue
			}
			kind, name := describe(lines[s:e])
			chunks = append(chunks, Chunk{
				StartLine: s + 1,
				EndLine:   e,
				Kind:      kind,
				Name:      name,
				Content:   strings.Join(lines[s:e], "\n"),
			})
		}
	}
	for i, line := range lines {
		blank := strings.TrimSpace(line) == ""
		switch {
		case !blank && start < 0:
			start = i
		case blank && start >= 0:
			flush(i)
			start = -1
		}
	}
	if start >= 0 {
		flush(len(lines))
	}
	return chunks, nil
}

const maxNameLen = 60

func blockName(line string) string {
	name := strings.Join(strings.Fields(line), " ")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}
