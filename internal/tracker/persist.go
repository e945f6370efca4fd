package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/semdup/internal/models"
	"go.uber.org/zap"
)

// FileName is the snapshot written inside the tracker directory.
const FileName = "files.json"

type snapshot struct {
	Version int                         `json:"version"`
	Files   map[string]models.FileEntry `json:"files"`
}

const snapshotVersion = 1

// Save writes the tracking table to dir/files.json, creating dir if needed.
func (t *Tracker) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create tracker dir: %w", err)
	}
	data, err := json.MarshalIndent(snapshot{Version: snapshotVersion, Files: t.files}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracker: %w", err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create tracker file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write tracker file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close tracker file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, FileName)); err != nil {
		return fmt.Errorf("rename tracker file: %w", err)
	}
	if t.logger != nil {
		t.logger.Debug("tracker saved", zap.String("dir", dir), zap.Int("files", len(t.files)))
	}
	return nil
}

// Load replaces the tracking table with the snapshot in dir. Missing or malformed
// data yields an empty tracker, which makes the next DetectChanges report every file
// as added. Only real I/O failures are returned, and they leave the tracker unchanged.
func (t *Tracker) Load(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			t.files = make(map[string]models.FileEntry)
			return nil
		}
		return fmt.Errorf("read tracker file: %w", err)
	}
	files := make(map[string]models.FileEntry)
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Version != snapshotVersion {
		if t.logger != nil {
			t.logger.Warn("tracker snapshot unreadable, starting empty",
				zap.String("dir", dir), zap.Int("version", snap.Version), zap.Error(err))
		}
		t.files = files
		return nil
	}
	for p, e := range snap.Files {
		files[p] = e
	}
	t.files = files
	if t.logger != nil {
		t.logger.Debug("tracker loaded", zap.String("dir", dir), zap.Int("files", len(t.files)))
	}
	return nil
}
