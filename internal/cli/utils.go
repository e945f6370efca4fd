// Package cli provides output helpers for the semdup command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/semdup/internal/indexer"
	"github.com/hyperjump/semdup/internal/models"
	"github.com/hyperjump/semdup/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a -format flag value onto an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// Writer renders index results. Paths are shown relative to Root in text output.
type Writer struct {
	Out    io.Writer
	Format OutputFormat
	Root   string
}

func (w Writer) json(v any) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (w Writer) location(m models.ChunkMetadata) string {
	return fmt.Sprintf("%s:%d-%d", utils.RelPath(w.Root, m.FilePath), m.StartLine, m.EndLine)
}

func (w Writer) chunkLine(id string, m models.ChunkMetadata) string {
	name := m.Name
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("%-48s %-9s %s  [%s]", w.location(m), m.Kind, utils.Truncate(name, 40), id)
}

// WriteSimilar writes nearest-neighbor matches. query, when non-nil, is the chunk the
// matches were found for.
func (w Writer) WriteSimilar(query *models.ChunkRecord, matches []models.SimilarMatch) error {
	if matches == nil {
		matches = []models.SimilarMatch{}
	}
	if w.Format == OutputJSON {
		return w.json(struct {
			Query   *models.ChunkRecord   `json:"query,omitempty"`
			Matches []models.SimilarMatch `json:"matches"`
		}{query, matches})
	}
	if query != nil {
		fmt.Fprintf(w.Out, "Similar to %s\n", w.chunkLine(query.ID, query.Metadata))
	}
	fmt.Fprintf(w.Out, "%d matches\n", len(matches))
	for _, m := range matches {
		if m.Metadata == nil {
			fmt.Fprintf(w.Out, "%3d. %.4f  %s (no metadata)\n", m.Rank, m.Score, m.ID)
			continue
		}
		fmt.Fprintf(w.Out, "%3d. %.4f  %s\n", m.Rank, m.Score, w.chunkLine(m.ID, *m.Metadata))
	}
	return nil
}

// WriteRecords writes a chunk listing.
func (w Writer) WriteRecords(records []models.ChunkRecord) error {
	if records == nil {
		records = []models.ChunkRecord{}
	}
	if w.Format == OutputJSON {
		return w.json(records)
	}
	fmt.Fprintf(w.Out, "%d chunks\n", len(records))
	for _, r := range records {
		fmt.Fprintln(w.Out, w.chunkLine(r.ID, r.Metadata))
	}
	return nil
}

// WriteDuplicates writes groups of byte-identical chunks.
func (w Writer) WriteDuplicates(groups []models.DuplicateGroup) error {
	if groups == nil {
		groups = []models.DuplicateGroup{}
	}
	if w.Format == OutputJSON {
		return w.json(groups)
	}
	fmt.Fprintf(w.Out, "%d duplicate groups\n", len(groups))
	for _, g := range groups {
		fmt.Fprintf(w.Out, "\n%s (%d copies)\n", utils.Truncate(g.ContentHash, 12), len(g.Chunks))
		for _, c := range g.Chunks {
			fmt.Fprintf(w.Out, "  %s\n", w.chunkLine(c.ID, c.Metadata))
		}
	}
	return nil
}

// WriteReport writes the summary of an indexing pass.
func (w Writer) WriteReport(r *indexer.Report) error {
	if w.Format == OutputJSON {
		return w.json(r)
	}
	fmt.Fprintf(w.Out, "Indexed %s in %s (run %s)\n", r.Root, r.Duration.Round(time.Millisecond), r.RunID)
	fmt.Fprintf(w.Out, "  files: %d added, %d modified, %d deleted, %d unchanged\n",
		r.Added, r.Modified, r.Deleted, r.Unchanged)
	fmt.Fprintf(w.Out, "  chunks: %d written, %d removed\n", r.ChunksWritten, r.ChunksRemoved)
	if len(r.Failures) > 0 {
		fmt.Fprintf(w.Out, "  %d files failed and will be retried:\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(w.Out, "    %s: %s\n", utils.RelPath(w.Root, f.Path), f.Error)
		}
	}
	return nil
}

// WriteStatus writes index statistics.
func (w Writer) WriteStatus(s indexer.Status) error {
	if w.Format == OutputJSON {
		return w.json(s)
	}
	fmt.Fprintf(w.Out, "Storage:   %s\n", s.StorageDir)
	fmt.Fprintf(w.Out, "Files:     %d\n", s.TrackedFiles)
	fmt.Fprintf(w.Out, "Chunks:    %d\n", s.Chunks)
	fmt.Fprintf(w.Out, "Vectors:   %d (dimension %d)\n", s.Vectors, s.Dimension)
	fmt.Fprintf(w.Out, "Disk:      %s\n", utils.HumanBytes(s.DiskBytes))
	return nil
}
