package chunker

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/AsclepiaAI/asclepia-mvp/engine/domain"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/medlex"
)

// table is a parsed CSV with per-column analysis.
type table struct {
	columns []string
	rows    [][]string
	roles   []domain.ColumnRole
	det     medlex.Detection
}

// chunkCSV parses, analyses, redacts, and converts a CSV to chunks.
func (c *Chunker) chunkCSV(doc domain.Document, data []byte) ([]domain.Chunk, error) {
	t, err := c.parseTable(data)
	if err != nil {
		return nil, fmt.Errorf("chunker: csv %s: %w: %v", doc.FileID, domain.ErrUnsupportedFormat, err)
	}
	if len(t.rows) == 0 {
		return nil, fmt.Errorf("chunker: csv %s: %w", doc.FileID, domain.ErrEmptyContent)
	}

	c.redact(t)

	var chunks []domain.Chunk
	if t.det.IsMedical {
		chunks = c.medicalChunks(doc.FileID, t)
	} else {
		chunks = c.columnChunks(doc.FileID, t)
	}
	chunks = append(chunks, c.summaryChunk(doc.FileID, t, len(chunks)))
	return chunks, nil
}

// parseTable reads the CSV and classifies every column.
func (c *Chunker) parseTable(data []byte) (*table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &table{}, nil
	}

	t := &table{columns: records[0]}
	for _, rec := range records[1:] {
		if emptyRow(rec) {
			continue
		}
		// Pad/trim ragged rows to the header width.
		row := make([]string, len(t.columns))
		for i := range row {
			if i < len(rec) {
				row[i] = strings.TrimSpace(rec[i])
			}
		}
		t.rows = append(t.rows, row)
	}

	t.roles = c.classifyColumns(t)
	t.det = medlex.DetectMedicalContent(t.columns, c.sampleText(t))
	return t, nil
}

func emptyRow(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sampleText joins the first DetectSampleRows rows of each column for
// content-based medical detection.
func (c *Chunker) sampleText(t *table) []string {
	limit := c.opts.DetectSampleRows
	if limit > len(t.rows) {
		limit = len(t.rows)
	}
	samples := make([]string, len(t.columns))
	for col := range t.columns {
		var b strings.Builder
		for _, row := range t.rows[:limit] {
			b.WriteString(row[col])
			b.WriteByte(' ')
		}
		samples[col] = b.String()
	}
	return samples
}

// classifyColumns assigns a deterministic role to every column:
// sensitive beats numeric beats categorical beats free text.
func (c *Chunker) classifyColumns(t *table) []domain.ColumnRole {
	roles := make([]domain.ColumnRole, len(t.columns))
	limit := c.opts.DetectSampleRows
	if limit > len(t.rows) {
		limit = len(t.rows)
	}

	for col, name := range t.columns {
		if medlex.IsSensitiveField(name) {
			roles[col] = domain.RoleSensitive
			continue
		}

		numeric := true
		dobLike := false
		distinct := map[string]struct{}{}
		nonEmpty := 0
		for _, row := range t.rows[:limit] {
			v := row[col]
			if v == "" {
				continue
			}
			nonEmpty++
			distinct[v] = struct{}{}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
			}
			if medlex.LooksLikeDOB(v) {
				dobLike = true
			}
		}

		switch {
		case dobLike:
			roles[col] = domain.RoleSensitive
		case nonEmpty == 0:
			roles[col] = domain.RoleFreeText
		case numeric:
			roles[col] = domain.RoleNumeric
		case len(distinct) <= 10 && len(distinct) < nonEmpty:
			roles[col] = domain.RoleCategorical
		default:
			roles[col] = domain.RoleFreeText
		}
	}
	return roles
}

// redact replaces sensitive column values with the placeholder, in
// place, never dropping the column. Free-text cells of medical tables
// additionally get name-pattern redaction.
func (c *Chunker) redact(t *table) {
	for _, row := range t.rows {
		for col := range t.columns {
			if col >= len(row) {
				continue
			}
			switch {
			case t.roles[col] == domain.RoleSensitive:
				if row[col] != "" {
					row[col] = medlex.Placeholder
				}
			case t.det.IsMedical && t.roles[col] == domain.RoleFreeText:
				row[col] = medlex.RedactFreeText(row[col])
			}
		}
	}
}

// medicalChunks emits one chunk per row, or batches of BatchSize rows
// when the table exceeds RowDocLimit, bounding the number of embedding
// calls on large datasets.
func (c *Chunker) medicalChunks(fileID string, t *table) []domain.Chunk {
	if len(t.rows) <= c.opts.RowDocLimit {
		chunks := make([]domain.Chunk, 0, len(t.rows))
		for i, row := range t.rows {
			text := c.formatRecord(t, row)
			if strings.TrimSpace(text) == "" {
				continue
			}
			chunks = append(chunks, domain.Chunk{
				ID:      chunkID(fileID, "row", i),
				FileID:  fileID,
				Text:    text,
				CharLen: len(text),
				Kind:    domain.KindRow,
				Index:   i,
			})
		}
		return chunks
	}

	totalBatches := (len(t.rows) + c.opts.BatchSize - 1) / c.opts.BatchSize
	chunks := make([]domain.Chunk, 0, totalBatches)
	for b := 0; b < totalBatches; b++ {
		start := b * c.opts.BatchSize
		end := start + c.opts.BatchSize
		if end > len(t.rows) {
			end = len(t.rows)
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Medical Records Batch %d of %d:\n", b+1, totalBatches)
		fmt.Fprintf(&sb, "Records %d to %d:\n", start+1, end)
		for _, row := range t.rows[start:end] {
			text := c.formatRecord(t, row)
			if strings.TrimSpace(text) == "" {
				continue
			}
			sb.WriteString("\n")
			sb.WriteString(strings.Repeat("=", 50))
			sb.WriteString("\n")
			sb.WriteString(text)
		}

		chunks = append(chunks, domain.Chunk{
			ID:      chunkID(fileID, "batch", b),
			FileID:  fileID,
			Text:    sb.String(),
			CharLen: sb.Len(),
			Kind:    domain.KindBatch,
			Index:   b,
		})
	}
	return chunks
}

// formatRecord renders one row as record text, medical columns first.
func (c *Chunker) formatRecord(t *table, row []string) string {
	var b strings.Builder
	b.WriteString("Medical Record Entry:\n\n")

	isMedicalCol := make(map[int]bool)
	for col, name := range t.columns {
		for _, m := range t.det.MedicalColumns {
			if strings.ToLower(name) == m {
				isMedicalCol[col] = true
			}
		}
	}

	writeCol := func(col int) {
		v := row[col]
		if v == "" || strings.EqualFold(v, "nan") || strings.EqualFold(v, "null") {
			return
		}
		fmt.Fprintf(&b, "%s: %s\n", titleColumn(t.columns[col]), v)
	}
	for col := range t.columns {
		if isMedicalCol[col] {
			writeCol(col)
		}
	}
	for col := range t.columns {
		if !isMedicalCol[col] {
			writeCol(col)
		}
	}
	return b.String()
}

// columnChunks emits one chunk per column for non-medical tables,
// sampling large columns.
func (c *Chunker) columnChunks(fileID string, t *table) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(t.columns))
	idx := 0
	for col, name := range t.columns {
		var entries []string
		for _, row := range t.rows {
			if row[col] != "" {
				entries = append(entries, row[col])
			}
		}
		if len(entries) == 0 {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Data Column - %s:\n\n", titleColumn(name))
		if len(entries) > c.opts.ColumnSampleLimit {
			fmt.Fprintf(&b, "Sample entries from %d total records:\n", len(entries))
			entries = entries[:c.opts.ColumnSampleLimit]
		}
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s\n", e)
		}

		chunks = append(chunks, domain.Chunk{
			ID:      chunkID(fileID, "column", sanitizeColumn(name)),
			FileID:  fileID,
			Text:    b.String(),
			CharLen: b.Len(),
			Kind:    domain.KindColumn,
			Index:   idx,
		})
		idx++
	}
	return chunks
}

// summaryChunk describes the whole dataset: shape, detection outcome,
// and per-column roles.
func (c *Chunker) summaryChunk(fileID string, t *table, index int) domain.Chunk {
	var b strings.Builder
	b.WriteString("Dataset Summary:\n\n")
	fmt.Fprintf(&b, "Total Records: %d\n", len(t.rows))
	fmt.Fprintf(&b, "Total Columns: %d\n", len(t.columns))
	fmt.Fprintf(&b, "Content Type: %s\n", t.det.ContentType)
	fmt.Fprintf(&b, "Medical Content: %s\n\n", yesNo(t.det.IsMedical))

	b.WriteString("Column Information:\n")
	for col, name := range t.columns {
		fmt.Fprintf(&b, "- %s: %s\n", titleColumn(name), t.roles[col])
	}

	sample := 3
	if sample > len(t.rows) {
		sample = len(t.rows)
	}
	if sample > 0 {
		fmt.Fprintf(&b, "\nSample Data (first %d rows):\n", sample)
		for i, row := range t.rows[:sample] {
			fmt.Fprintf(&b, "\nRecord %d:\n", i+1)
			for col, name := range t.columns {
				if row[col] == "" {
					continue
				}
				v := row[col]
				if len(v) > 100 {
					v = v[:100] + "..."
				}
				fmt.Fprintf(&b, "  %s: %s\n", name, v)
			}
		}
	}

	text := b.String()
	return domain.Chunk{
		ID:      chunkID(fileID, "summary"),
		FileID:  fileID,
		Text:    text,
		CharLen: len(text),
		Kind:    domain.KindSummary,
		Index:   index,
	}
}

func titleColumn(name string) string {
	words := strings.Split(strings.ReplaceAll(name, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func sanitizeColumn(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
