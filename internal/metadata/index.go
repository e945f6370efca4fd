// Package metadata provides multi-key lookup over chunk metadata.
package metadata

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/hyperjump/semdup/internal/models"
	"go.uber.org/zap"
)

// ErrInvalidRange is returned by Set when a chunk's line range is not 1-based and ordered.
var ErrInvalidRange = errors.New("invalid line range")

// Index stores one ChunkMetadata per chunk id, with secondary indexes by file path
// and content hash. It does no locking; writers must be serialized by the caller.
type Index struct {
	chunks map[string]models.ChunkMetadata
	byPath map[string]map[string]struct{}
	byHash map[string]map[string]struct{}
	logger *zap.Logger // optional; when set, logs debug events
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a logger for debug output (save, load).
func WithLogger(l *zap.Logger) Option {
	return func(idx *Index) { idx.logger = l }
}

// NewIndex creates an empty metadata index.
func NewIndex(opts ...Option) *Index {
	idx := &Index{}
	idx.reset(nil)
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (idx *Index) reset(chunks map[string]models.ChunkMetadata) {
	idx.chunks = make(map[string]models.ChunkMetadata, len(chunks))
	idx.byPath = make(map[string]map[string]struct{})
	idx.byHash = make(map[string]map[string]struct{})
	for id, m := range chunks {
		idx.put(id, m)
	}
}

// Set stores meta under id, replacing any previous record.
func (idx *Index) Set(id string, meta models.ChunkMetadata) error {
	if meta.StartLine < 1 || meta.EndLine < meta.StartLine {
		return fmt.Errorf("%w: %s lines %d-%d", ErrInvalidRange, id, meta.StartLine, meta.EndLine)
	}
	idx.Remove(id)
	idx.put(id, meta)
	return nil
}

func (idx *Index) put(id string, meta models.ChunkMetadata) {
	idx.chunks[id] = meta
	addKey(idx.byPath, meta.FilePath, id)
	addKey(idx.byHash, meta.ContentHash, id)
}

// Get returns the record for id.
func (idx *Index) Get(id string) (models.ChunkMetadata, bool) {
	m, ok := idx.chunks[id]
	return m, ok
}

// Remove deletes the record for id and reports whether it existed.
func (idx *Index) Remove(id string) bool {
	old, ok := idx.chunks[id]
	if !ok {
		return false
	}
	delete(idx.chunks, id)
	removeKey(idx.byPath, old.FilePath, id)
	removeKey(idx.byHash, old.ContentHash, id)
	return true
}

// GetByFilePath returns every record whose FilePath equals path, ordered by start line.
func (idx *Index) GetByFilePath(path string) []models.ChunkRecord {
	return idx.records(idx.byPath[path])
}

// RemoveByFilePath deletes every record for path and returns what was removed.
func (idx *Index) RemoveByFilePath(path string) []models.ChunkRecord {
	removed := idx.records(idx.byPath[path])
	for _, r := range removed {
		idx.Remove(r.ID)
	}
	return removed
}

// GetByContentHash returns one record with the given content hash. When several
// chunks share the hash, the one with the smallest id is returned.
func (idx *Index) GetByContentHash(hash string) (models.ChunkRecord, bool) {
	ids := idx.byHash[hash]
	if len(ids) == 0 {
		return models.ChunkRecord{}, false
	}
	first := ""
	for id := range ids {
		if first == "" || id < first {
			first = id
		}
	}
	return models.ChunkRecord{ID: first, Metadata: idx.chunks[first]}, true
}

// GetAtLocation returns the record in path whose line range contains line.
// If ranges overlap, the one starting latest (innermost) wins.
func (idx *Index) GetAtLocation(path string, line int) (models.ChunkRecord, bool) {
	var (
		best  models.ChunkRecord
		found bool
	)
	for _, r := range idx.GetByFilePath(path) {
		if r.Metadata.Contains(line) {
			best, found = r, true
		}
	}
	return best, found
}

// FilterByKind returns every record of the given kind, ordered by path then start line.
func (idx *Index) FilterByKind(kind models.ChunkKind) []models.ChunkRecord {
	return idx.filter(func(m models.ChunkMetadata) bool { return m.Kind == kind })
}

// SearchByName returns every record whose name contains substr, ignoring case.
// An empty substr matches everything.
func (idx *Index) SearchByName(substr string) []models.ChunkRecord {
	needle := strings.ToLower(substr)
	return idx.filter(func(m models.ChunkMetadata) bool {
		return strings.Contains(strings.ToLower(m.Name), needle)
	})
}

// Size returns the number of records.
func (idx *Index) Size() int {
	return len(idx.chunks)
}

// Entries returns a restartable sequence over all records in id order.
func (idx *Index) Entries() iter.Seq2[string, models.ChunkMetadata] {
	return func(yield func(string, models.ChunkMetadata) bool) {
		ids := make([]string, 0, len(idx.chunks))
		for id := range idx.chunks {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			m, ok := idx.chunks[id]
			if !ok {
				continue
			}
			if !yield(id, m) {
				return
			}
		}
	}
}

func (idx *Index) filter(keep func(models.ChunkMetadata) bool) []models.ChunkRecord {
	out := make([]models.ChunkRecord, 0)
	for id, m := range idx.chunks {
		if keep(m) {
			out = append(out, models.ChunkRecord{ID: id, Metadata: m})
		}
	}
	sortRecords(out)
	return out
}

func (idx *Index) records(ids map[string]struct{}) []models.ChunkRecord {
	out := make([]models.ChunkRecord, 0, len(ids))
	for id := range ids {
		out = append(out, models.ChunkRecord{ID: id, Metadata: idx.chunks[id]})
	}
	sortRecords(out)
	return out
}

func sortRecords(rs []models.ChunkRecord) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i].Metadata, rs[j].Metadata
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return rs[i].ID < rs[j].ID
	})
}

func addKey(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeKey(m map[string]map[string]struct{}, key, id string) {
	set := m[key]
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}
