package indexer

import "time"

// Report summarizes one indexing pass.
type Report struct {
	RunID         string        `json:"run_id"`
	Root          string        `json:"root"`
	Added         int           `json:"added"`
	Modified      int           `json:"modified"`
	Deleted       int           `json:"deleted"`
	Unchanged     int           `json:"unchanged"`
	ChunksWritten int           `json:"chunks_written"`
	ChunksRemoved int           `json:"chunks_removed"`
	Failures      []FileFailure `json:"failures,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}

// FileFailure is a file the pass skipped; it is retried on the next pass.
type FileFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Changed reports whether the pass mutated any store.
func (r *Report) Changed() bool {
	return r.Added+r.Modified+r.Deleted > 0
}

// Status describes the current contents of the index.
type Status struct {
	StorageDir   string `json:"storage_dir"`
	TrackedFiles int    `json:"tracked_files"`
	Chunks       int    `json:"chunks"`
	Vectors      int    `json:"vectors"`
	Dimension    int    `json:"dimension"`
	DiskBytes    int64  `json:"disk_bytes"`
}
