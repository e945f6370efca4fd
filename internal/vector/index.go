// Package vector provides exact in-memory nearest-neighbor search over fixed-dimension vectors.
package vector

import (
	"errors"
	"iter"

	"github.com/hyperjump/semdup/internal/models"
)

// ErrDimensionMismatch is returned when a vector's length disagrees with the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrEmptyVector is returned when inserting a zero-length vector.
var ErrEmptyVector = errors.New("vector must not be empty")

// ErrNonFinite is returned for a vector with a NaN, infinite or out-of-float32-range component.
var ErrNonFinite = errors.New("vector component is not a finite float32 value")

// VectorIndex stores one vector per chunk id and answers cosine-similarity queries.
type VectorIndex interface {
	Insert(id string, vector []float64) error
	InsertBatch(entries []Entry) error
	Get(id string) ([]float64, bool)
	Remove(id string) bool
	Size() int
	Dimension() int
	FindSimilar(query []float64, k int, opts ...FindOption) ([]models.SimilarResult, error)
	Entries() iter.Seq2[string, []float64]
	Save(dir string) error
	Load(dir string) error
}

// Entry is one (id, vector) pair for batch inserts.
type Entry struct {
	ID     string
	Vector []float64
}

// FindOption configures a FindSimilar call.
type FindOption func(*findOptions)

type findOptions struct {
	threshold    float64
	hasThreshold bool
	exclude      map[string]struct{}
}

// WithThreshold keeps only results whose score is >= min.
func WithThreshold(min float64) FindOption {
	return func(o *findOptions) {
		o.threshold = min
		o.hasThreshold = true
	}
}

// WithExclude drops the given ids from the results before k is applied.
func WithExclude(ids ...string) FindOption {
	return func(o *findOptions) {
		if o.exclude == nil {
			o.exclude = make(map[string]struct{}, len(ids))
		}
		for _, id := range ids {
			o.exclude[id] = struct{}{}
		}
	}
}
