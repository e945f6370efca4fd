package models

// FileEntry is the tracker's record for one source file.
type FileEntry struct {
	ContentHash string   `json:"content_hash"`
	MtimeMs     int64    `json:"mtime_ms"`
	ChunkIDs    []string `json:"chunk_ids"`
}

// Clone returns a copy that shares no memory with e.
func (e FileEntry) Clone() FileEntry {
	out := e
	if e.ChunkIDs != nil {
		out.ChunkIDs = append([]string(nil), e.ChunkIDs...)
	}
	return out
}

// ChangeType classifies a file relative to the last indexing run.
type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeModified  ChangeType = "modified"
	ChangeDeleted   ChangeType = "deleted"
	ChangeUnchanged ChangeType = "unchanged"
)

// FileChange is one path that needs action from the indexing driver.
type FileChange struct {
	Path string     `json:"path"`
	Type ChangeType `json:"type"`
}
