// Package domain defines core domain types, constants, and validation for the
// Asclepia engine pipeline. It acts as the validation gate at pipeline entry points.
package domain

// MediaType identifies the declared format of an uploaded file.
type MediaType string

const (
	MediaPDF MediaType = "pdf"
	MediaCSV MediaType = "csv"
)

// ValidMediaTypes is the set of ingestible formats.
var ValidMediaTypes = map[MediaType]bool{
	MediaPDF: true,
	MediaCSV: true,
}

// Document represents an uploaded file tracked by its stable file ID.
// The file ID is generated at ingestion and survives updates: a new
// upload under the same ID replaces the previous chunk set.
type Document struct {
	FileID   string    `json:"file_id"`
	Filename string    `json:"filename"`
	Media    MediaType `json:"media_type"`
	ByteLen  int       `json:"byte_len"`
}

// ChunkKind classifies how a chunk was derived from its document.
type ChunkKind string

const (
	KindWindow  ChunkKind = "window"  // fixed-size text window (PDF)
	KindRow     ChunkKind = "row"     // single CSV row
	KindBatch   ChunkKind = "batch"   // batched CSV rows
	KindColumn  ChunkKind = "column"  // per-column sample (CSV)
	KindSummary ChunkKind = "summary" // dataset summary (CSV)
)

// Chunk is a bounded text unit derived from a Document, the atomic unit
// of embedding and retrieval. Chunks are owned by their document:
// deleting the document deletes all of its chunks from the vector store.
type Chunk struct {
	ID      string    `json:"id"`
	FileID  string    `json:"file_id"`
	Text    string    `json:"text"`
	CharLen int       `json:"char_len"`
	Kind    ChunkKind `json:"kind"`
	Index   int       `json:"index"`
}

// ColumnRole classifies a CSV column for anonymization and document
// building. Detection is deterministic: same header and sample values
// always yield the same role.
type ColumnRole int

const (
	RoleFreeText ColumnRole = iota
	RoleSensitive
	RoleCategorical
	RoleNumeric
)

func (r ColumnRole) String() string {
	switch r {
	case RoleSensitive:
		return "sensitive"
	case RoleCategorical:
		return "categorical"
	case RoleNumeric:
		return "numeric"
	default:
		return "free_text"
	}
}

// SkippedChunk records a chunk that failed embedding and was excluded
// from the stored set.
type SkippedChunk struct {
	ChunkID string `json:"chunk_id"`
	Reason  string `json:"reason"`
}

// IngestResult aggregates the outcome of one document ingestion.
// Per-chunk failures are recovered locally and counted here rather than
// aborting the batch.
type IngestResult struct {
	FileID     string         `json:"file_id"`
	Attempted  int            `json:"chunks_attempted"`
	Stored     int            `json:"chunks_stored"`
	Skipped    []SkippedChunk `json:"skipped_chunks,omitempty"`
	TextLength int            `json:"text_length"`
}

// Partial reports whether some chunks were stored and some skipped.
func (r *IngestResult) Partial() bool {
	return r.Stored > 0 && len(r.Skipped) > 0
}
