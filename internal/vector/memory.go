package vector

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"sort"

	"github.com/hyperjump/semdup/internal/models"
	"go.uber.org/zap"
)

// MemoryIndex is an exact vector index using brute-force cosine similarity.
// The first insert fixes the dimension; removing the last entry clears it.
//
// MemoryIndex does no locking. Concurrent readers of a non-mutating index are safe;
// writers must be serialized by the caller. Mutating the index while ranging over
// Entries is unsupported.
type MemoryIndex struct {
	dimension int
	vectors   map[string][]float64
	logger    *zap.Logger // optional; when set, logs debug events
}

var _ VectorIndex = (*MemoryIndex)(nil)

// Option configures a MemoryIndex.
type Option func(*MemoryIndex)

// WithLogger sets a logger for debug output (save, load).
func WithLogger(l *zap.Logger) Option {
	return func(m *MemoryIndex) { m.logger = l }
}

// NewMemoryIndex creates an empty index with no dimension set.
func NewMemoryIndex(opts ...Option) *MemoryIndex {
	m := &MemoryIndex{vectors: make(map[string][]float64)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Insert stores vector under id, overwriting any previous vector.
// The vector is copied.
func (m *MemoryIndex) Insert(id string, vector []float64) error {
	if err := m.check(vector, m.dimension); err != nil {
		return err
	}
	if m.dimension == 0 {
		m.dimension = len(vector)
	}
	m.vectors[id] = slices.Clone(vector)
	return nil
}

// InsertBatch inserts entries in order. The batch is all-or-nothing: every entry is
// validated first, and if any has the wrong length nothing is written.
func (m *MemoryIndex) InsertBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dim := m.dimension
	for i, e := range entries {
		if err := m.check(e.Vector, dim); err != nil {
			return fmt.Errorf("batch entry %d (%s): %w", i, e.ID, err)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
	}
	m.dimension = dim
	for _, e := range entries {
		m.vectors[e.ID] = slices.Clone(e.Vector)
	}
	return nil
}

func (m *MemoryIndex) check(vector []float64, want int) error {
	got := len(vector)
	if got == 0 {
		return ErrEmptyVector
	}
	if want != 0 && got != want {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, got, want)
	}
	// components must fit a finite float32 for the snapshot
	for i, x := range vector {
		if math.IsNaN(x) || math.Abs(x) > math.MaxFloat32 {
			return fmt.Errorf("%w: component %d is %v", ErrNonFinite, i, x)
		}
	}
	return nil
}

// Get returns a copy of the vector stored under id.
func (m *MemoryIndex) Get(id string) ([]float64, bool) {
	v, ok := m.vectors[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

// Remove deletes id and reports whether it was present.
func (m *MemoryIndex) Remove(id string) bool {
	if _, ok := m.vectors[id]; !ok {
		return false
	}
	delete(m.vectors, id)
	if len(m.vectors) == 0 {
		m.dimension = 0
	}
	return true
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	return len(m.vectors)
}

// Dimension returns the established dimension, or 0 when the index is empty.
func (m *MemoryIndex) Dimension() int {
	return m.dimension
}

// FindSimilar returns up to k entries ranked by cosine similarity to query, highest first.
// Ties are ordered by id. An empty index returns an empty slice.
func (m *MemoryIndex) FindSimilar(query []float64, k int, opts ...FindOption) ([]models.SimilarResult, error) {
	if len(m.vectors) == 0 {
		return []models.SimilarResult{}, nil
	}
	if len(query) != m.dimension {
		return nil, fmt.Errorf("query: %w: got %d, expected %d", ErrDimensionMismatch, len(query), m.dimension)
	}
	for i, x := range query {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("query: %w: component %d is %v", ErrNonFinite, i, x)
		}
	}
	if k <= 0 {
		return []models.SimilarResult{}, nil
	}
	var o findOptions
	for _, opt := range opts {
		opt(&o)
	}

	qn := L2Norm(query)
	scores := make([]models.SimilarResult, 0, len(m.vectors))
	for id, vec := range m.vectors {
		if _, skip := o.exclude[id]; skip {
			continue
		}
		var score float64
		if vn := L2Norm(vec); qn != 0 && vn != 0 {
			score = cosineWithNorms(query, vec, qn, vn)
		}
		if o.hasThreshold && score < o.threshold {
			continue
		}
		scores = append(scores, models.SimilarResult{ID: id, Score: score, Distance: 1 - score})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ID < scores[j].ID
	})
	if k < len(scores) {
		scores = scores[:k]
	}
	return scores, nil
}

// Entries returns a finite, restartable sequence over the index. Each iteration walks
// the ids present when it starts, in sorted order, yielding copies of the vectors.
func (m *MemoryIndex) Entries() iter.Seq2[string, []float64] {
	return func(yield func(string, []float64) bool) {
		ids := m.sortedIDs()
		for _, id := range ids {
			vec, ok := m.vectors[id]
			if !ok {
				continue
			}
			if !yield(id, slices.Clone(vec)) {
				return
			}
		}
	}
}

func (m *MemoryIndex) sortedIDs() []string {
	ids := make([]string, 0, len(m.vectors))
	for id := range m.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
