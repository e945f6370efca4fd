package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/semdup/internal/models"
)

// FileName is the SQLite snapshot written inside the metadata directory.
const FileName = "metadata.db"

const schemaVersion = 1

const schema = `
CREATE TABLE chunks (
	id           TEXT PRIMARY KEY,
	file_path    TEXT NOT NULL,
	start_line   INTEGER NOT NULL,
	end_line     INTEGER NOT NULL,
	kind         TEXT NOT NULL,
	name         TEXT NOT NULL,
	content_hash TEXT NOT NULL
);
CREATE INDEX idx_chunks_file_path ON chunks(file_path);
CREATE INDEX idx_chunks_content_hash ON chunks(content_hash);
`

// Save writes a full snapshot to dir/metadata.db, creating dir if needed.
// The database is built under a temporary name and renamed into place.
func (idx *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpName)

	if err := idx.writeSnapshot(tmpName); err != nil {
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, FileName)); err != nil {
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Debug("metadata index saved", zap.String("dir", dir), zap.Int("size", len(idx.chunks)))
	}
	return nil
}

func (idx *Index) writeSnapshot(path string) error {
	ctx := context.Background()
	dsn, err := snapshotDSN(path, "rwc")
	if err != nil {
		return err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, file_path, start_line, end_line, kind, name, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, m := range idx.chunks {
		if _, err := stmt.ExecContext(ctx, id, m.FilePath, m.StartLine, m.EndLine, string(m.Kind), m.Name, m.ContentHash); err != nil {
			return fmt.Errorf("failed to write chunk %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return db.Close()
}

// Load replaces the index contents with the snapshot in dir. A missing directory or
// snapshot leaves the index empty. An unreadable or malformed snapshot returns an
// error and leaves the index unchanged.
func (idx *Index) Load(dir string) error {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			idx.reset(nil)
			return nil
		}
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}
	chunks, err := readSnapshot(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	idx.reset(chunks)
	if idx.logger != nil {
		idx.logger.Debug("metadata index loaded", zap.String("dir", dir), zap.Int("size", len(chunks)))
	}
	return nil
}

// snapshotDSN returns a file: URI for path. The path is escaped so '#', '%' and '?'
// in directory names reach SQLite as part of the file name.
func snapshotDSN(path, mode string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve snapshot path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=" + mode}
	return u.String(), nil
}

func readSnapshot(path string) (map[string]models.ChunkMetadata, error) {
	ctx := context.Background()
	dsn, err := snapshotDSN(path, "ro")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != schemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", version)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, file_path, start_line, end_line, kind, name, content_hash FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := make(map[string]models.ChunkMetadata)
	for rows.Next() {
		var (
			id   string
			kind string
			m    models.ChunkMetadata
		)
		if err := rows.Scan(&id, &m.FilePath, &m.StartLine, &m.EndLine, &kind, &m.Name, &m.ContentHash); err != nil {
			return nil, err
		}
		if m.StartLine < 1 || m.EndLine < m.StartLine {
			return nil, fmt.Errorf("%w: %s lines %d-%d", ErrInvalidRange, id, m.StartLine, m.EndLine)
		}
		m.Kind = models.ChunkKind(kind)
		chunks[id] = m
	}
	return chunks, rows.Err()
}
