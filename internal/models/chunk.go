// Package models defines core data structures for chunks, tracked files, and similarity results.
package models

import "strings"

// ChunkKind tags what kind of code region a chunk covers.
type ChunkKind string

const (
	KindComponent ChunkKind = "component"
	KindHook      ChunkKind = "hook"
	KindFunction  ChunkKind = "function"
	KindClass     ChunkKind = "class"
	KindOther     ChunkKind = "other"
)

// ParseChunkKind maps s onto the kind vocabulary. Unknown values become KindOther.
func ParseChunkKind(s string) ChunkKind {
	switch k := ChunkKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindComponent, KindHook, KindFunction, KindClass:
		return k
	default:
		return KindOther
	}
}

// ChunkMetadata describes where a chunk lives and what it contains.
// Lines are 1-based and inclusive.
type ChunkMetadata struct {
	FilePath    string    `json:"file_path"`
	StartLine   int       `json:"start_line"`
	EndLine     int       `json:"end_line"`
	Kind        ChunkKind `json:"kind"`
	Name        string    `json:"name"`
	ContentHash string    `json:"content_hash"`
}

// Contains reports whether line falls inside the chunk's line range.
func (m ChunkMetadata) Contains(line int) bool {
	return m.StartLine <= line && line <= m.EndLine
}

// ChunkRecord pairs a chunk id with its metadata.
type ChunkRecord struct {
	ID       string        `json:"id"`
	Metadata ChunkMetadata `json:"metadata"`
}
