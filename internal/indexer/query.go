package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hyperjump/semdup/internal/models"
	"github.com/hyperjump/semdup/internal/vector"
)

// ErrUnknownChunk is returned when a query names a chunk the index does not hold.
var ErrUnknownChunk = errors.New("unknown chunk")

// NoThreshold disables score filtering in similarity queries.
const NoThreshold = -2.0

// SimilarTo returns up to k chunks most similar to chunkID, excluding the chunk itself.
// Only results scoring at least threshold are kept.
func (idx *Indexer) SimilarTo(ctx context.Context, chunkID string, k int, threshold float64) ([]models.SimilarMatch, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	vec, ok := idx.vectors.Get(chunkID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChunk, chunkID)
	}
	return idx.findLocked(ctx, vec, k, threshold, chunkID)
}

// SimilarAt resolves the innermost chunk covering path:line and returns its neighbors.
func (idx *Indexer) SimilarAt(ctx context.Context, path string, line, k int, threshold float64) (models.ChunkRecord, []models.SimilarMatch, error) {
	idx.mu.RLock()
	rec, ok := idx.metadata.GetAtLocation(path, line)
	idx.mu.RUnlock()
	if !ok {
		return models.ChunkRecord{}, nil, fmt.Errorf("%w at %s:%d", ErrUnknownChunk, path, line)
	}
	matches, err := idx.SimilarTo(ctx, rec.ID, k, threshold)
	return rec, matches, err
}

// SimilarText embeds text and returns up to k chunks most similar to it.
func (idx *Indexer) SimilarText(ctx context.Context, text string, k int, threshold float64) ([]models.SimilarMatch, error) {
	emb, err := idx.embedder.Embed(ctx, Preprocess(text))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.findLocked(ctx, vector.Float32To64(emb), k, threshold)
}

func (idx *Indexer) findLocked(ctx context.Context, query []float64, k int, threshold float64, exclude ...string) ([]models.SimilarMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := []vector.FindOption{vector.WithExclude(exclude...)}
	if threshold > NoThreshold {
		opts = append(opts, vector.WithThreshold(threshold))
	}
	results, err := idx.vectors.FindSimilar(query, k, opts...)
	if err != nil {
		return nil, err
	}
	matches := make([]models.SimilarMatch, len(results))
	for i, r := range results {
		matches[i] = models.SimilarMatch{SimilarResult: r, Rank: i + 1}
		if m, ok := idx.metadata.Get(r.ID); ok {
			matches[i].Metadata = &m
		}
	}
	return matches, nil
}

// ExactDuplicates groups chunks whose source text is byte-for-byte identical.
// Groups are ordered largest first, then by hash.
func (idx *Indexer) ExactDuplicates() []models.DuplicateGroup {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	byHash := make(map[string][]models.ChunkRecord)
	for id, m := range idx.metadata.Entries() {
		byHash[m.ContentHash] = append(byHash[m.ContentHash], models.ChunkRecord{ID: id, Metadata: m})
	}
	groups := make([]models.DuplicateGroup, 0)
	for hash, recs := range byHash {
		if len(recs) < 2 {
			continue
		}
		sort.Slice(recs, func(i, j int) bool {
			a, b := recs[i].Metadata, recs[j].Metadata
			if a.FilePath != b.FilePath {
				return a.FilePath < b.FilePath
			}
			return a.StartLine < b.StartLine
		})
		groups = append(groups, models.DuplicateGroup{ContentHash: hash, Chunks: recs})
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].Chunks) != len(groups[j].Chunks) {
			return len(groups[i].Chunks) > len(groups[j].Chunks)
		}
		return groups[i].ContentHash < groups[j].ContentHash
	})
	return groups
}

// FindByName returns chunks whose name matches query. Without fuzzy this is a
// case-insensitive substring match; with fuzzy, word-level typo-tolerant search.
// limit <= 0 means no limit for substring search and 50 for fuzzy search.
func (idx *Indexer) FindByName(query string, fuzzy bool, limit int) ([]models.ChunkRecord, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if !fuzzy {
		recs := idx.metadata.SearchByName(query)
		if limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}
		return recs, nil
	}
	if limit <= 0 {
		limit = 50
	}
	hits, err := idx.names.Search(query, limit, true)
	if err != nil {
		return nil, err
	}
	recs := make([]models.ChunkRecord, 0, len(hits))
	for _, h := range hits {
		if m, ok := idx.metadata.Get(h.ID); ok {
			recs = append(recs, models.ChunkRecord{ID: h.ID, Metadata: m})
		}
	}
	return recs, nil
}

// ChunksByKind returns every chunk of kind.
func (idx *Indexer) ChunksByKind(kind models.ChunkKind) []models.ChunkRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.metadata.FilterByKind(kind)
}

// ChunksInFile returns the chunks of path ordered by start line.
func (idx *Indexer) ChunksInFile(path string) []models.ChunkRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.metadata.GetByFilePath(path)
}

// Chunk returns the metadata of one chunk.
func (idx *Indexer) Chunk(id string) (models.ChunkMetadata, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.metadata.Get(id)
}

// Status reports store sizes and disk usage.
func (idx *Indexer) Status() (Status, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	bytes, err := idx.layout.DiskUsage()
	if err != nil {
		return Status{}, fmt.Errorf("disk usage: %w", err)
	}
	return Status{
		StorageDir:   idx.layout.Root,
		TrackedFiles: idx.tracker.Size(),
		Chunks:       idx.metadata.Size(),
		Vectors:      idx.vectors.Size(),
		Dimension:    idx.vectors.Dimension(),
		DiskBytes:    bytes,
	}, nil
}
