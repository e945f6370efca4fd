// Package indexer is the indexing driver: it scans a source tree, asks the file tracker
// what changed, re-chunks and re-embeds only changed files, and writes the results into
// the vector, metadata, and name indexes before updating the tracker.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/semdup/internal/chunker"
	"github.com/hyperjump/semdup/internal/embedding"
	"github.com/hyperjump/semdup/internal/extract"
	"github.com/hyperjump/semdup/internal/fileid"
	"github.com/hyperjump/semdup/internal/keyword"
	"github.com/hyperjump/semdup/internal/metadata"
	"github.com/hyperjump/semdup/internal/models"
	"github.com/hyperjump/semdup/internal/scan"
	"github.com/hyperjump/semdup/internal/storage"
	"github.com/hyperjump/semdup/internal/tracker"
	"github.com/hyperjump/semdup/internal/vector"
)

// Indexer owns the three stores plus the name index and serializes every mutation.
// Queries may run concurrently with each other but not with a pass.
type Indexer struct {
	layout    storage.Layout
	embedder  embedding.Embedder
	chunker   chunker.Chunker
	extractor *extract.Extractor
	scanOpts  scan.Options

	vectors  vector.VectorIndex
	metadata *metadata.Index
	tracker  *tracker.Tracker
	names    *keyword.NameIndex

	mu     sync.RWMutex
	logger *zap.Logger // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for the indexer and the stores it creates.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithChunker replaces the default block chunker.
func WithChunker(c chunker.Chunker) IndexerOption {
	return func(idx *Indexer) { idx.chunker = c }
}

// WithExtractor replaces the default source extractor.
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// WithScanOptions sets which files a pass considers.
func WithScanOptions(opts scan.Options) IndexerOption {
	return func(idx *Indexer) { idx.scanOpts = opts }
}

// NewIndexer creates an indexer with empty stores persisted under layout.
// Call Load to restore a previous session.
func NewIndexer(layout storage.Layout, embedder embedding.Embedder, opts ...IndexerOption) (*Indexer, error) {
	idx := &Indexer{
		layout:    layout,
		embedder:  embedder,
		chunker:   chunker.NewBlockChunker(0, 0),
		extractor: extract.NewExtractor(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	names, err := keyword.NewNameIndex(keyword.WithLogger(idx.logger))
	if err != nil {
		return nil, err
	}
	idx.names = names
	idx.vectors = vector.NewMemoryIndex(vector.WithLogger(idx.logger))
	idx.metadata = metadata.NewIndex(metadata.WithLogger(idx.logger))
	idx.tracker = tracker.New(tracker.WithLogger(idx.logger))
	if idx.scanOpts.Logger == nil {
		idx.scanOpts.Logger = idx.logger
	}
	return idx, nil
}

// Load restores all three stores from the layout and rebuilds the name index.
// Missing directories yield empty stores.
func (idx *Indexer) Load() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.vectors.Load(idx.layout.VectorDir()); err != nil {
		return fmt.Errorf("load vectors: %w", err)
	}
	if err := idx.metadata.Load(idx.layout.MetadataDir()); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}
	if err := idx.tracker.Load(idx.layout.TrackerDir()); err != nil {
		return fmt.Errorf("load tracker: %w", err)
	}
	return idx.rebuildNamesLocked()
}

func (idx *Indexer) rebuildNamesLocked() error {
	names, err := keyword.NewNameIndex(keyword.WithLogger(idx.logger))
	if err != nil {
		return err
	}
	records := make([]models.ChunkRecord, 0, idx.metadata.Size())
	for id, m := range idx.metadata.Entries() {
		records = append(records, models.ChunkRecord{ID: id, Metadata: m})
	}
	if err := names.IndexBatch(records); err != nil {
		_ = names.Close()
		return err
	}
	_ = idx.names.Close()
	idx.names = names
	return nil
}

// Save writes all three stores to the layout.
func (idx *Indexer) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.saveLocked()
}

func (idx *Indexer) saveLocked() error {
	if err := idx.vectors.Save(idx.layout.VectorDir()); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	if err := idx.metadata.Save(idx.layout.MetadataDir()); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	if err := idx.tracker.Save(idx.layout.TrackerDir()); err != nil {
		return fmt.Errorf("save tracker: %w", err)
	}
	return nil
}

// Close releases the name index and the embedder.
func (idx *Indexer) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return errors.Join(idx.names.Close(), idx.embedder.Close())
}

// Run performs one incremental pass over root and saves the stores when anything
// changed. Files that cannot be read or chunked are reported in Report.Failures and
// retried on the next pass; embedding failures and dimension conflicts abort the pass.
func (idx *Indexer) Run(ctx context.Context, root string) (*Report, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	start := time.Now()
	report := &Report{RunID: uuid.New().String(), Root: root}
	log := idx.logger
	if log != nil {
		log = log.With(zap.String("run_id", report.RunID))
		log.Debug("indexing pass starting", zap.String("root", root))
	}

	files, err := scan.Files(ctx, root, idx.scanOpts)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	changes, err := idx.tracker.DetectChanges(ctx, files)
	if err != nil {
		return nil, err
	}

	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch change.Type {
		case models.ChangeDeleted:
			report.ChunksRemoved += idx.removeFileLocked(change.Path)
			idx.tracker.RemoveEntry(change.Path)
			report.Deleted++
		case models.ChangeAdded, models.ChangeModified:
			written, removed, err := idx.indexFileLocked(ctx, change.Path)
			if err != nil {
				var ff *fileError
				if !errors.As(err, &ff) {
					return nil, fmt.Errorf("index %s: %w", change.Path, err)
				}
				report.Failures = append(report.Failures, FileFailure{Path: change.Path, Error: ff.err.Error()})
				if log != nil {
					log.Warn("skipping file", zap.String("path", change.Path), zap.Error(ff.err))
				}
				continue
			}
			report.ChunksWritten += written
			report.ChunksRemoved += removed
			if change.Type == models.ChangeAdded {
				report.Added++
			} else {
				report.Modified++
			}
		}
	}
	report.Unchanged = len(files) - report.Added - report.Modified - len(report.Failures)

	if report.Changed() || !idx.layout.Exists() {
		if err := idx.saveLocked(); err != nil {
			return nil, err
		}
	}
	report.Duration = time.Since(start)
	if log != nil {
		log.Debug("indexing pass complete",
			zap.Int("added", report.Added),
			zap.Int("modified", report.Modified),
			zap.Int("deleted", report.Deleted),
			zap.Int("unchanged", report.Unchanged),
			zap.Int("chunks_written", report.ChunksWritten),
			zap.Int("failures", len(report.Failures)),
			zap.Duration("duration", report.Duration),
		)
	}
	return report, nil
}

// fileError marks a failure confined to one file; the pass continues without it.
type fileError struct{ err error }

func (e *fileError) Error() string { return e.err.Error() }
func (e *fileError) Unwrap() error { return e.err }

// removeFileLocked drops every chunk attributed to path from the vector, metadata,
// and name indexes. Ids come from both the metadata index and the tracker entry so a
// disagreement between the two never leaves orphans. Returns the number removed.
func (idx *Indexer) removeFileLocked(path string) int {
	ids := make(map[string]struct{})
	for _, r := range idx.metadata.RemoveByFilePath(path) {
		ids[r.ID] = struct{}{}
	}
	if e, ok := idx.tracker.GetEntry(path); ok {
		for _, id := range e.ChunkIDs {
			ids[id] = struct{}{}
		}
	}
	list := make([]string, 0, len(ids))
	removed := 0
	for id := range ids {
		if idx.vectors.Remove(id) {
			removed++
		}
		idx.metadata.Remove(id)
		list = append(list, id)
	}
	if err := idx.names.DeleteBatch(list); err != nil && idx.logger != nil {
		idx.logger.Debug("name index delete failed", zap.String("path", path), zap.Error(err))
	}
	return removed
}

// indexFileLocked re-chunks and re-embeds path and replaces its chunks in every store.
// Everything that can fail runs before the first mutation.
func (idx *Indexer) indexFileLocked(ctx context.Context, path string) (written, removed int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, &fileError{fmt.Errorf("read: %w", err)}
	}
	content := string(data)
	var chunks []chunker.Chunk
	text, err := idx.extractor.ExtractBytes(data, strings.ToLower(filepath.Ext(path)))
	switch {
	case errors.Is(err, extract.ErrNotSource):
		// tracked with no chunks so it is not retried until it changes
		if idx.logger != nil {
			idx.logger.Debug("not indexing file", zap.String("path", path), zap.Error(err))
		}
	case err != nil:
		return 0, 0, &fileError{fmt.Errorf("extract: %w", err)}
	default:
		chunks, err = idx.chunker.Chunk(path, text)
		if err != nil {
			return 0, 0, &fileError{fmt.Errorf("chunk: %w", err)}
		}
	}

	seen := make(map[string]struct{}, len(chunks))
	records := make([]models.ChunkRecord, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		id := fileid.ChunkID(path, c.StartLine, c.EndLine)
		if _, dup := seen[id]; dup {
			continue
		}
		if c.StartLine < 1 || c.EndLine < c.StartLine {
			return 0, 0, &fileError{fmt.Errorf("%w: lines %d-%d", metadata.ErrInvalidRange, c.StartLine, c.EndLine)}
		}
		seen[id] = struct{}{}
		records = append(records, models.ChunkRecord{ID: id, Metadata: models.ChunkMetadata{
			FilePath:    path,
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
			Kind:        c.Kind,
			Name:        c.Name,
			ContentHash: tracker.HashContentSync(c.Content),
		}})
		texts = append(texts, Preprocess(c.Content))
	}

	entries := make([]vector.Entry, 0, len(records))
	if len(texts) > 0 {
		embs, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, 0, fmt.Errorf("embed: %w", err)
		}
		if len(embs) != len(records) {
			return 0, 0, fmt.Errorf("embed: got %d embeddings for %d chunks", len(embs), len(records))
		}
		for i, r := range records {
			entries = append(entries, vector.Entry{ID: r.ID, Vector: vector.Float32To64(embs[i])})
		}
		if err := idx.checkDimensionsLocked(path, entries); err != nil {
			return 0, 0, err
		}
	}

	removed = idx.removeFileLocked(path)
	if err := idx.vectors.InsertBatch(entries); err != nil {
		return 0, removed, err
	}
	ids := make([]string, len(records))
	for i, r := range records {
		if err := idx.metadata.Set(r.ID, r.Metadata); err != nil {
			return 0, removed, err
		}
		ids[i] = r.ID
	}
	if err := idx.names.IndexBatch(records); err != nil {
		return 0, removed, err
	}
	if err := idx.tracker.UpdateFile(path, content, ids); err != nil {
		return 0, removed, &fileError{err}
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer file indexed", zap.String("path", path), zap.Int("chunks", len(records)))
	}
	return len(records), removed, nil
}

// checkDimensionsLocked verifies entries fit the vector index once path's own chunks
// are gone. A mismatch means the embedding model changed and the index needs a rebuild.
func (idx *Indexer) checkDimensionsLocked(path string, entries []vector.Entry) error {
	want := idx.vectors.Dimension()
	if want != 0 {
		own := len(idx.metadata.GetByFilePath(path))
		if e, ok := idx.tracker.GetEntry(path); ok {
			own = max(own, len(e.ChunkIDs))
		}
		if idx.vectors.Size() <= own {
			want = 0
		}
	}
	if want == 0 {
		want = len(entries[0].Vector)
	}
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("chunk %s: %w", e.ID, vector.ErrEmptyVector)
		}
		if len(e.Vector) != want {
			return fmt.Errorf("%w: chunk %s has %d dimensions, index has %d (rebuild the index after changing embedding models)",
				vector.ErrDimensionMismatch, e.ID, len(e.Vector), want)
		}
		if slices.ContainsFunc(e.Vector, func(x float64) bool { return math.IsNaN(x) || math.IsInf(x, 0) }) {
			return fmt.Errorf("chunk %s: %w", e.ID, vector.ErrNonFinite)
		}
	}
	return nil
}
