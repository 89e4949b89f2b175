package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline failure taxonomy.
var (
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrEmptyContent       = errors.New("no extractable text")
	ErrTokenLimitExceeded = errors.New("token limit exceeded")
	ErrEmbeddingFailure   = errors.New("embedding failed")
	ErrVectorStoreFailure = errors.New("vector store operation failed")
	ErrGenerationFailure  = errors.New("answer generation failed")
	ErrPartialIngestion   = errors.New("some chunks were not stored")
	ErrPartialUpdate      = errors.New("update left file with incomplete context")
	ErrInvalidQuery       = errors.New("invalid query")
	ErrQueryTooShort      = errors.New("query too short")
	ErrInvalidFileID      = errors.New("invalid file id")
)

// ChunkError wraps a per-chunk failure with the offending chunk's
// identity so callers can skip and report it.
type ChunkError struct {
	ChunkID string
	Wrapped error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %s: %s", e.ChunkID, e.Wrapped)
}

func (e *ChunkError) Unwrap() error { return e.Wrapped }

// NewChunkError creates a ChunkError.
func NewChunkError(chunkID string, wrapped error) *ChunkError {
	return &ChunkError{ChunkID: chunkID, Wrapped: wrapped}
}

// GenerationError carries the failed query so the caller can retry it.
// It always wraps ErrGenerationFailure.
type GenerationError struct {
	Query   string
	Wrapped error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate answer for %q: %s", e.Query, e.Wrapped)
}

func (e *GenerationError) Unwrap() error { return ErrGenerationFailure }

// Cause returns the underlying language-model error.
func (e *GenerationError) Cause() error { return e.Wrapped }

// NewGenerationError creates a GenerationError preserving the query.
func NewGenerationError(query string, wrapped error) *GenerationError {
	return &GenerationError{Query: query, Wrapped: wrapped}
}

// ValidationError wraps a sentinel with the field and value that failed.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
