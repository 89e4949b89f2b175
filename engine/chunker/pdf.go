package chunker

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/AsclepiaAI/asclepia-mvp/engine/domain"
)

// chunkPDF extracts plain text from every page then windows it.
func (c *Chunker) chunkPDF(doc domain.Document, data []byte) ([]domain.Chunk, error) {
	text, err := extractPDFText(data)
	if err != nil {
		return nil, fmt.Errorf("chunker: pdf %s: %w: %v", doc.FileID, domain.ErrUnsupportedFormat, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("chunker: pdf %s: %w", doc.FileID, domain.ErrEmptyContent)
	}

	windows := windowText(text, c.opts.ChunkSize, c.opts.ChunkOverlap)
	chunks := make([]domain.Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = domain.Chunk{
			ID:      chunkID(doc.FileID, i),
			FileID:  doc.FileID,
			Text:    w,
			CharLen: len(w),
			Kind:    domain.KindWindow,
			Index:   i,
		}
	}
	return chunks, nil
}

// extractPDFText concatenates the plain text of all pages. Pages whose
// text extraction fails are skipped rather than failing the document.
func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// windowText cuts text into fixed-size rune windows with overlap.
// The final window may be shorter; every window except possibly the
// first starts (size-overlap) runes after its predecessor.
func windowText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var windows []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return windows
}
