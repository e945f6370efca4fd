// Package embedding provides the embedder interface the indexing driver calls, an
// OpenAI-compatible client, a content-hash cache, and a deterministic mock.
package embedding

import "context"

// Embedder produces vector embeddings for chunk text. Computing embeddings happens
// outside the index; implementations here only adapt external services.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
