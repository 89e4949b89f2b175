package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	minQueryLength = 3
	maxQueryLength = 4096
	maxFileIDLen   = 128
)

// ValidateQuery checks a free-text query before it enters the pipeline.
func ValidateQuery(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return NewValidationError("query", text, ErrInvalidQuery)
	}
	if utf8.RuneCountInString(trimmed) < minQueryLength {
		return NewValidationError("query", trimmed, ErrQueryTooShort)
	}
	if len(trimmed) > maxQueryLength {
		return NewValidationError("query", trimmed[:32]+"...", ErrInvalidQuery)
	}
	return nil
}

// ValidateFileID checks a file identifier from an external caller.
func ValidateFileID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > maxFileIDLen {
		return NewValidationError("file_id", id, ErrInvalidFileID)
	}
	for _, r := range id {
		if !isFileIDRune(r) {
			return NewValidationError("file_id", id, ErrInvalidFileID)
		}
	}
	return nil
}

func isFileIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

// ValidateDocument checks a document descriptor before chunking.
func ValidateDocument(d Document) error {
	if err := ValidateFileID(d.FileID); err != nil {
		return err
	}
	if !ValidMediaTypes[d.Media] {
		return NewValidationError("media_type", string(d.Media), ErrUnsupportedFormat)
	}
	if d.ByteLen <= 0 {
		return NewValidationError("byte_len", "0", ErrEmptyContent)
	}
	return nil
}
