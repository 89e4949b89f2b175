package semantic

// VectorRecord is a single embedding record to store in Qdrant.
// ChunkID is the human-readable chunk identifier; the Qdrant point ID is
// derived from it deterministically so re-upserting the same chunk
// overwrites rather than duplicates.
type VectorRecord struct {
	ChunkID   string
	FileID    string
	Embedding []float32
	Payload   map[string]any // content, kind, chunk_index, truncated
}

// SearchResult is a single vector search hit.
type SearchResult struct {
	ChunkID   string            `json:"chunk_id"`
	FileID    string            `json:"file_id"`
	Score     float32           `json:"score"`
	Content   string            `json:"content"`
	Kind      string            `json:"kind"`
	Truncated bool              `json:"truncated,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}
