// Package watcher watches a source tree with fsnotify and batches changes into
// debounced callbacks, each of which should trigger one incremental indexing pass.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/semdup/internal/scan"
)

const defaultDebounce = 400 * time.Millisecond

// ChangeFunc receives the sorted set of paths touched since the previous call.
// Calls never overlap.
type ChangeFunc func(ctx context.Context, paths []string)

// Watcher watches one root recursively and invokes a ChangeFunc once events settle.
type Watcher struct {
	root       string
	extensions []string
	matcher    *scan.Matcher
	onChange   ChangeFunc
	debounce   time.Duration

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	pending  map[string]struct{}
	timer    *time.Timer
	ctx      context.Context
	started  bool
	done     chan struct{}
	stopOnce sync.Once

	flushMu sync.Mutex
	logger  *zap.Logger // optional; when set, logs debug events
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (directory changes, file events, etc.).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the tree must be quiet before onChange runs.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnorePatterns adds gitignore-style patterns on top of scan.DefaultIgnorePatterns
// and the root's .gitignore files.
func WithIgnorePatterns(patterns []string) WatcherOption {
	return func(w *Watcher) { w.matcher = scan.NewMatcher(w.root, patterns) }
}

// NewWatcher creates a watcher for root. extensions filter which files count as
// changes (empty = all).
func NewWatcher(root string, extensions []string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:       abs,
		extensions: extensions,
		onChange:   onChange,
		debounce:   defaultDebounce,
		pending:    make(map[string]struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.matcher == nil {
		w.matcher = scan.NewMatcher(w.root, nil)
	}
	return w, nil
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
// ctx is also passed to onChange.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw
	w.ctx = ctx
	if err := w.addTreeLocked(w.root); err != nil {
		_ = fw.Close()
		w.watcher = nil
		return err
	}
	w.started = true
	if w.logger != nil {
		w.logger.Debug("watcher starting", zap.String("root", w.root), zap.Strings("extensions", w.extensions), zap.Duration("debounce", w.debounce))
	}
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !inDir(w.root, path) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if !w.matcher.Ignored(path, true) {
				w.handleNewDirectory(path)
			}
			return
		}
		w.touch(path, false)
	case ev.Has(fsnotify.Write):
		w.touch(path, false)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// the path is gone, so it may have been a directory
		w.touch(path, filepath.Ext(path) == "")
	}
}

// handleNewDirectory watches a directory that appeared under the root and records the
// files already inside it, which were created before the watch was in place.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	if w.watcher != nil {
		if err := w.addTreeLocked(dir); err != nil && w.logger != nil {
			w.logger.Debug("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
		}
	}
	w.mu.Unlock()

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && w.matcher.Ignored(path, true) {
				return filepath.SkipDir
			}
			return nil
		}
		w.touch(path, false)
		return nil
	})
}

// addTreeLocked adds dir and every non-ignored directory below it to the fsnotify watch list.
func (w *Watcher) addTreeLocked(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.matcher.Ignored(path, true) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// touch records path as changed and restarts the debounce timer. Paths that are
// ignored or have a non-matching extension are dropped unless force is set.
func (w *Watcher) touch(path string, force bool) {
	if w.matcher.Ignored(path, false) {
		return
	}
	if !force && !scan.MatchExtension(path, w.extensions) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if !w.started || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	ctx := w.ctx
	w.mu.Unlock()

	sort.Strings(paths)
	if w.logger != nil {
		w.logger.Debug("watcher flushing changes", zap.Int("paths", len(paths)))
	}
	if w.onChange != nil {
		w.onChange(ctx, paths)
	}
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Stop stops the watcher and releases resources. Pending changes are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pending = make(map[string]struct{})
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
