// Package tracker records which files produced which chunks and detects what changed
// between indexing runs.
package tracker

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"

	"github.com/hyperjump/semdup/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Tracker maps file path to its last indexed content hash, mtime, and chunk ids.
// It does no locking; updates must be serialized by the caller.
type Tracker struct {
	files       map[string]models.FileEntry
	concurrency int
	logger      *zap.Logger // optional; when set, logs debug events
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets a logger for debug output (change detection, load problems).
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithConcurrency bounds how many files DetectChanges hashes at once.
func WithConcurrency(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		files:       make(map[string]models.FileEntry),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetEntry stores entry for path, replacing any previous one.
func (t *Tracker) SetEntry(path string, entry models.FileEntry) {
	t.files[path] = entry.Clone()
}

// GetEntry returns the entry for path.
func (t *Tracker) GetEntry(path string) (models.FileEntry, bool) {
	e, ok := t.files[path]
	if !ok {
		return models.FileEntry{}, false
	}
	return e.Clone(), true
}

// RemoveEntry stops tracking path and reports whether it was tracked.
func (t *Tracker) RemoveEntry(path string) bool {
	if _, ok := t.files[path]; !ok {
		return false
	}
	delete(t.files, path)
	return true
}

// UpdateFile records that path now holds content and produced chunkIDs.
// The modification time is read from the filesystem.
func (t *Tracker) UpdateFile(path, content string, chunkIDs []string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	t.files[path] = models.FileEntry{
		ContentHash: HashContentSync(content),
		MtimeMs:     info.ModTime().UnixMilli(),
		ChunkIDs:    append([]string{}, chunkIDs...),
	}
	return nil
}

// GetTrackedFiles returns every tracked path in sorted order.
func (t *Tracker) GetTrackedFiles() []string {
	paths := make([]string, 0, len(t.files))
	for p := range t.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Size returns the number of tracked files.
func (t *Tracker) Size() int {
	return len(t.files)
}

// DetectChanges classifies currentPaths against the tracking table. Added and modified
// paths are returned in the order they appear in currentPaths, followed by deleted
// paths in sorted order. Unchanged paths are omitted. Tracked paths are re-hashed from
// disk; hashing runs concurrently but nothing in the tracker is mutated.
func (t *Tracker) DetectChanges(ctx context.Context, currentPaths []string) ([]models.FileChange, error) {
	seen := make(map[string]struct{}, len(currentPaths))
	paths := make([]string, 0, len(currentPaths))
	for _, p := range currentPaths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}

	types := make([]models.ChangeType, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, p := range paths {
		prev, tracked := t.files[p]
		if !tracked {
			types[i] = models.ChangeAdded
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := hashFile(p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			if h == prev.ContentHash {
				types[i] = models.ChangeUnchanged
			} else {
				types[i] = models.ChangeModified
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("detect changes: %w", err)
	}

	changes := make([]models.FileChange, 0)
	counts := make(map[models.ChangeType]int, 4)
	for i, p := range paths {
		counts[types[i]]++
		if types[i] != models.ChangeUnchanged {
			changes = append(changes, models.FileChange{Path: p, Type: types[i]})
		}
	}
	for _, p := range t.GetTrackedFiles() {
		if _, ok := seen[p]; !ok {
			counts[models.ChangeDeleted]++
			changes = append(changes, models.FileChange{Path: p, Type: models.ChangeDeleted})
		}
	}
	if t.logger != nil {
		t.logger.Debug("tracker detected changes",
			zap.Int("added", counts[models.ChangeAdded]),
			zap.Int("modified", counts[models.ChangeModified]),
			zap.Int("deleted", counts[models.ChangeDeleted]),
			zap.Int("unchanged", counts[models.ChangeUnchanged]),
		)
	}
	return changes, nil
}
