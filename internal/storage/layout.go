// Package storage describes where the stores live on disk and reports their size.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store directory names under the layout root.
const (
	VectorsDir  = "vectors"
	MetadataDir = "metadata"
	FilesDir    = "files"
)

// Layout is the on-disk arrangement of one index: a root holding one directory per store.
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at root, made absolute.
func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("absolute path: %w", err)
	}
	return Layout{Root: abs}, nil
}

// VectorDir is where the vector index snapshot is written.
func (l Layout) VectorDir() string { return filepath.Join(l.Root, VectorsDir) }

// MetadataDir is where the metadata index snapshot is written.
func (l Layout) MetadataDir() string { return filepath.Join(l.Root, MetadataDir) }

// TrackerDir is where the file tracker snapshot is written.
func (l Layout) TrackerDir() string { return filepath.Join(l.Root, FilesDir) }

// Dirs returns the three store directories.
func (l Layout) Dirs() []string {
	return []string{l.VectorDir(), l.MetadataDir(), l.TrackerDir()}
}

// Exists reports whether any store directory has been written.
func (l Layout) Exists() bool {
	for _, d := range l.Dirs() {
		if _, err := os.Stat(d); err == nil {
			return true
		}
	}
	return false
}

// DiskUsage returns the bytes used by the three store directories.
func (l Layout) DiskUsage() (int64, error) {
	return DiskUsageBytes(l.Dirs()...)
}

// Reset removes the store directories, leaving anything else under Root untouched.
func (l Layout) Reset() error {
	for _, d := range l.Dirs() {
		if err := os.RemoveAll(d); err != nil {
			return fmt.Errorf("remove %s: %w", d, err)
		}
	}
	return nil
}
