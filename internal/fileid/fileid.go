// Package fileid provides deterministic chunk ids derived from a chunk's location.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

const prefix = "chunk:"

// ChunkID returns a stable id for the chunk spanning startLine..endLine of path.
// The same location always yields the same id, so re-indexing a modified file
// overwrites rather than duplicates chunks that kept their position.
func ChunkID(path string, startLine, endLine int) string {
	key := fmt.Sprintf("%s:%d:%d", filepath.Clean(path), startLine, endLine)
	hash := sha256.Sum256([]byte(key))
	return prefix + hex.EncodeToString(hash[:16])
}

// IsChunkID reports whether s has the shape of an id returned by ChunkID.
func IsChunkID(s string) bool {
	if len(s) != len(prefix)+32 || s[:len(prefix)] != prefix {
		return false
	}
	_, err := hex.DecodeString(s[len(prefix):])
	return err == nil
}
