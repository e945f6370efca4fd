// Package scan discovers the source files an indexing pass should consider.
package scan

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"
)

// DefaultIgnorePatterns are directories and files skipped in every scan.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"dist",
	"build",
	"coverage",
	".next",
	".cache",
	"vendor",
	".semdup",
}

// Options controls which files a scan returns.
type Options struct {
	// Extensions filters files by extension (case-insensitive, dot optional). Empty = all.
	Extensions []string
	// IgnorePatterns are extra gitignore-style patterns on top of the defaults and .gitignore files.
	IgnorePatterns []string
	// MaxFileSize skips files larger than this many bytes. 0 = no limit.
	MaxFileSize int64
	Logger      *zap.Logger
}

// Files walks root and returns the absolute paths of matching regular files, sorted.
// Symlinks are not followed.
func Files(ctx context.Context, root string, opts Options) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absRoot)
	}

	matcher := NewMatcher(absRoot, opts.IgnorePatterns)

	var files []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if opts.Logger != nil {
				opts.Logger.Debug("scan skipping unreadable path", zap.String("path", path), zap.Error(err))
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == absRoot {
			return nil
		}
		if matcher.Ignored(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !MatchExtension(path, opts.Extensions) {
			return nil
		}
		if opts.MaxFileSize > 0 {
			fi, err := d.Info()
			if err != nil || fi.Size() > opts.MaxFileSize {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	if opts.Logger != nil {
		opts.Logger.Debug("scan complete", zap.String("root", absRoot), zap.Int("files", len(files)))
	}
	return files, nil
}

// Matcher applies the default, configured, and .gitignore patterns of one root.
type Matcher struct {
	root   string
	ignore *gitignore.GitIgnore
}

// NewMatcher compiles the ignore patterns for root: DefaultIgnorePatterns, then extra,
// then every .gitignore found under root.
func NewMatcher(root string, extra []string) *Matcher {
	patterns := append([]string{}, DefaultIgnorePatterns...)
	patterns = append(patterns, extra...)
	patterns = append(patterns, gitignorePatterns(root)...)
	return &Matcher{root: root, ignore: gitignore.CompileIgnoreLines(patterns...)}
}

// Ignored reports whether path, which must be under the matcher's root, is excluded.
// Directory patterns written with a trailing slash only match when isDir is set.
func (m *Matcher) Ignored(path string, isDir bool) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	slashed := filepath.ToSlash(rel)
	return m.ignore.MatchesPath(slashed) || (isDir && m.ignore.MatchesPath(slashed+"/"))
}

// MatchExtension reports whether path has one of extensions. Empty extensions match everything.
func MatchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// gitignorePatterns collects patterns from every .gitignore under root.
// Nested files are applied repo-wide, without directory scoping.
func gitignorePatterns(root string) []string {
	var patterns []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && (d.Name() == ".git" || d.Name() == "node_modules") {
			return filepath.SkipDir
		}
		if d.IsDir() || d.Name() != ".gitignore" {
			return nil
		}
		if lines, err := readIgnoreLines(path); err == nil {
			patterns = append(patterns, lines...)
		}
		return nil
	})
	return patterns
}

func readIgnoreLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, s.Err()
}
