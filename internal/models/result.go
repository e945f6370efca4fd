package models

// SimilarResult is a single nearest-neighbor hit from the vector index.
// Distance is always 1 - Score.
type SimilarResult struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Distance float64 `json:"distance"`
}

// SimilarMatch is a SimilarResult resolved to its chunk metadata.
// Metadata is nil when the metadata index has no record for the id.
type SimilarMatch struct {
	SimilarResult
	Metadata *ChunkMetadata `json:"metadata,omitempty"`
	Rank     int            `json:"rank"`
}

// DuplicateGroup lists chunk ids that share an identical content hash.
type DuplicateGroup struct {
	ContentHash string        `json:"content_hash"`
	Chunks      []ChunkRecord `json:"chunks"`
}
