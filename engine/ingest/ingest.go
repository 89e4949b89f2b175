// Package ingest drives the document pipeline: chunk an uploaded file,
// embed every chunk, and store the vectors. A chunk whose embedding
// fails is skipped and recorded; the rest of the file still lands.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AsclepiaAI/asclepia-mvp/engine/domain"
	"github.com/AsclepiaAI/asclepia-mvp/engine/semantic"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/fn"
)

const (
	// EmbedWorkers bounds concurrent embedding calls per file.
	EmbedWorkers = 4
)

// Chunker splits a document's bytes into chunks.
type Chunker interface {
	Chunk(doc domain.Document, data []byte) ([]domain.Chunk, error)
}

// Embedder turns chunk text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Guarded(text string) (bounded string, truncated bool)
}

// Store persists and removes vector records.
type Store interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
	DeleteByFileID(ctx context.Context, fileID string) error
	UpdateByFileID(ctx context.Context, fileID string, records []semantic.VectorRecord) error
}

// Service runs the ingestion pipeline.
type Service struct {
	chunker  Chunker
	embedder Embedder
	store    Store
	logger   *slog.Logger
}

// New creates a Service.
func New(chunker Chunker, embedder Embedder, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{chunker: chunker, embedder: embedder, store: store, logger: logger}
}

// embedded pairs a chunk with its vector and guard outcome.
type embedded struct {
	chunk     domain.Chunk
	vector    []float32
	truncated bool
}

// Ingest chunks, embeds, and stores one document. Per-chunk embedding
// failures are skipped; the error return is reserved for failures that
// stop the whole file (bad input, store write).
func (s *Service) Ingest(ctx context.Context, doc domain.Document, data []byte) (*domain.IngestResult, error) {
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}

	start := time.Now()
	chunks, err := s.chunker.Chunk(doc, data)
	if err != nil {
		return nil, err
	}

	res := &domain.IngestResult{FileID: doc.FileID, Attempted: len(chunks)}
	for _, c := range chunks {
		res.TextLength += c.CharLen
	}

	records := s.embedChunks(ctx, chunks, res)
	if len(records) == 0 {
		return res, fmt.Errorf("ingest: %s: all %d chunks failed: %w", doc.FileID, len(chunks), domain.ErrEmbeddingFailure)
	}

	if err := s.store.Upsert(ctx, records); err != nil {
		return res, fmt.Errorf("ingest: %s: %w", doc.FileID, err)
	}
	res.Stored = len(records)

	s.logger.Info("ingest: done",
		"file_id", doc.FileID,
		"attempted", res.Attempted,
		"stored", res.Stored,
		"skipped", len(res.Skipped),
		"duration", time.Since(start),
	)
	if res.Partial() {
		return res, fmt.Errorf("ingest: %s: %d of %d chunks skipped: %w", doc.FileID, len(res.Skipped), res.Attempted, domain.ErrPartialIngestion)
	}
	return res, nil
}

// Update replaces a file's stored vectors with a freshly ingested set.
// The new vectors are embedded before the old ones are touched.
func (s *Service) Update(ctx context.Context, doc domain.Document, data []byte) (*domain.IngestResult, error) {
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}

	chunks, err := s.chunker.Chunk(doc, data)
	if err != nil {
		return nil, err
	}

	res := &domain.IngestResult{FileID: doc.FileID, Attempted: len(chunks)}
	for _, c := range chunks {
		res.TextLength += c.CharLen
	}

	records := s.embedChunks(ctx, chunks, res)
	if len(records) == 0 {
		return res, fmt.Errorf("ingest: update %s: all %d chunks failed: %w", doc.FileID, len(chunks), domain.ErrEmbeddingFailure)
	}

	if err := s.store.UpdateByFileID(ctx, doc.FileID, records); err != nil {
		return res, fmt.Errorf("ingest: update %s: %w", doc.FileID, err)
	}
	res.Stored = len(records)

	if res.Partial() {
		return res, fmt.Errorf("ingest: update %s: %d of %d chunks skipped: %w", doc.FileID, len(res.Skipped), res.Attempted, domain.ErrPartialIngestion)
	}
	return res, nil
}

// Delete removes every stored vector for a file.
func (s *Service) Delete(ctx context.Context, fileID string) error {
	if err := domain.ValidateFileID(fileID); err != nil {
		return err
	}
	if err := s.store.DeleteByFileID(ctx, fileID); err != nil {
		return fmt.Errorf("ingest: delete %s: %w", fileID, err)
	}
	s.logger.Info("ingest: deleted", "file_id", fileID)
	return nil
}

// embedChunks embeds all chunks with bounded concurrency, appending a
// SkippedChunk to res for every failure and returning records for the
// survivors.
func (s *Service) embedChunks(ctx context.Context, chunks []domain.Chunk, res *domain.IngestResult) []semantic.VectorRecord {
	results := fn.ParMapResult(chunks, EmbedWorkers, func(c domain.Chunk) fn.Result[embedded] {
		bounded, truncated := s.embedder.Guarded(c.Text)
		vec, err := s.embedder.Embed(ctx, bounded)
		if err != nil {
			return fn.Err[embedded](&domain.ChunkError{ChunkID: c.ID, Wrapped: err})
		}
		c.Text = bounded
		c.CharLen = len(bounded)
		return fn.Ok(embedded{chunk: c, vector: vec, truncated: truncated})
	})

	records := make([]semantic.VectorRecord, 0, len(results))
	for _, r := range results {
		e, err := r.Unwrap()
		if err != nil {
			var ce *domain.ChunkError
			chunkID := "unknown"
			if errors.As(err, &ce) {
				chunkID = ce.ChunkID
			}
			s.logger.Warn("ingest: chunk skipped", "file_id", res.FileID, "chunk_id", chunkID, "error", err)
			res.Skipped = append(res.Skipped, domain.SkippedChunk{ChunkID: chunkID, Reason: err.Error()})
			continue
		}
		records = append(records, vectorRecord(e))
	}
	return records
}

func vectorRecord(e embedded) semantic.VectorRecord {
	return semantic.VectorRecord{
		ChunkID:   e.chunk.ID,
		FileID:    e.chunk.FileID,
		Embedding: e.vector,
		Payload: map[string]any{
			"content":     e.chunk.Text,
			"kind":        string(e.chunk.Kind),
			"chunk_index": e.chunk.Index,
			"truncated":   e.truncated,
		},
	}
}
