// Package chunker splits uploaded documents into bounded, embeddable
// text units. PDF text is cut into fixed-size character windows with
// overlap; CSV tables are scanned for medical content, redacted for
// protected fields, and turned into per-row, batched, or per-column
// documents plus a dataset summary. Chunking has no side effects and
// makes no network calls.
package chunker

import (
	"fmt"

	"github.com/AsclepiaAI/asclepia-mvp/engine/domain"
)

// Options holds all chunking thresholds. The CSV batching thresholds
// are workload-dependent; they are deliberately configuration, not
// constants buried in the code.
type Options struct {
	// ChunkSize is the target chunk length in characters (PDF windows).
	ChunkSize int
	// ChunkOverlap is the number of characters repeated between adjacent
	// windows to preserve cross-boundary context.
	ChunkOverlap int
	// RowDocLimit is the row count above which CSV rows are batched
	// instead of emitted one document per row.
	RowDocLimit int
	// BatchSize is the number of rows per batched CSV document.
	BatchSize int
	// ColumnSampleLimit caps the entries sampled into a per-column
	// document for non-medical tables.
	ColumnSampleLimit int
	// DetectSampleRows is how many rows are sampled for medical-content
	// detection.
	DetectSampleRows int
}

// DefaultOptions mirrors the thresholds the pipeline was tuned with.
func DefaultOptions() Options {
	return Options{
		ChunkSize:         1000,
		ChunkOverlap:      200,
		RowDocLimit:       1000,
		BatchSize:         10,
		ColumnSampleLimit: 50,
		DetectSampleRows:  100,
	}
}

// Chunker converts raw document bytes into ordered chunk sequences.
type Chunker struct {
	opts Options
}

// New creates a Chunker. Zero or negative options fall back to defaults.
func New(opts Options) *Chunker {
	def := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = def.ChunkOverlap
		if opts.ChunkOverlap >= opts.ChunkSize {
			opts.ChunkOverlap = opts.ChunkSize / 5
		}
	}
	if opts.RowDocLimit <= 0 {
		opts.RowDocLimit = def.RowDocLimit
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.ColumnSampleLimit <= 0 {
		opts.ColumnSampleLimit = def.ColumnSampleLimit
	}
	if opts.DetectSampleRows <= 0 {
		opts.DetectSampleRows = def.DetectSampleRows
	}
	return &Chunker{opts: opts}
}

// Chunk splits a document's raw bytes into an ordered chunk sequence.
// Order matters only for traceability, not retrieval ranking.
// Returns ErrUnsupportedFormat when the bytes are not parseable as the
// declared media type, ErrEmptyContent when no text can be extracted.
func (c *Chunker) Chunk(doc domain.Document, data []byte) ([]domain.Chunk, error) {
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}
	switch doc.Media {
	case domain.MediaPDF:
		return c.chunkPDF(doc, data)
	case domain.MediaCSV:
		return c.chunkCSV(doc, data)
	default:
		return nil, domain.NewValidationError("media_type", string(doc.Media), domain.ErrUnsupportedFormat)
	}
}

func chunkID(fileID string, parts ...any) string {
	id := fileID
	for _, p := range parts {
		id += fmt.Sprintf("_%v", p)
	}
	return id
}
