package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/AsclepiaAI/asclepia-mvp/engine/domain"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/medlex"
)

func pdfDoc(id string, data []byte) domain.Document {
	return domain.Document{FileID: id, Filename: id + ".pdf", Media: domain.MediaPDF, ByteLen: len(data)}
}

func csvDoc(id string, data []byte) domain.Document {
	return domain.Document{FileID: id, Filename: id + ".csv", Media: domain.MediaCSV, ByteLen: len(data)}
}

func medicalCSV(rows int) []byte {
	var b strings.Builder
	b.WriteString("patient_name,diagnosis,medication,notes\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "Alice Smith,hypertension,lisinopril,stable at visit %d\n", i)
	}
	return []byte(b.String())
}

func TestWindowTextOverlap(t *testing.T) {
	text := strings.Repeat("a", 2500)
	windows := windowText(text, 1000, 200)

	if len(windows) != 3 {
		t.Fatalf("got %d windows, want 3", len(windows))
	}
	for i, w := range windows[:2] {
		if len(w) != 1000 {
			t.Errorf("window %d is %d chars, want 1000", i, len(w))
		}
	}
	// step is size-overlap, so the last window starts at 1600
	if len(windows[2]) != 900 {
		t.Fatalf("final window is %d chars, want 900", len(windows[2]))
	}
}

func TestWindowTextShortInput(t *testing.T) {
	windows := windowText("short", 1000, 200)
	if len(windows) != 1 || windows[0] != "short" {
		t.Fatalf("got %v", windows)
	}
}

func TestChunkPDFRejectsGarbage(t *testing.T) {
	c := New(Options{})
	_, err := c.Chunk(pdfDoc("f1", []byte("not a pdf")), []byte("not a pdf"))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestChunkCSVMedicalRows(t *testing.T) {
	c := New(Options{})
	data := medicalCSV(15)
	chunks, err := c.Chunk(csvDoc("f1", data), data)
	if err != nil {
		t.Fatal(err)
	}

	// 15 row chunks plus the dataset summary.
	if len(chunks) != 16 {
		t.Fatalf("got %d chunks, want 16", len(chunks))
	}
	for _, ch := range chunks[:15] {
		if ch.Kind != domain.KindRow {
			t.Fatalf("chunk %s kind %q, want row", ch.ID, ch.Kind)
		}
		if ch.FileID != "f1" {
			t.Fatalf("chunk %s has file ID %q", ch.ID, ch.FileID)
		}
	}
	last := chunks[15]
	if last.Kind != domain.KindSummary || last.ID != "f1_summary" {
		t.Fatalf("last chunk %s kind %q, want summary", last.ID, last.Kind)
	}
}

func TestChunkCSVRedactsSensitiveColumns(t *testing.T) {
	c := New(Options{})
	data := medicalCSV(3)
	chunks, err := c.Chunk(csvDoc("f1", data), data)
	if err != nil {
		t.Fatal(err)
	}

	for _, ch := range chunks {
		if strings.Contains(ch.Text, "Alice Smith") {
			t.Fatalf("chunk %s leaks a redacted name:\n%s", ch.ID, ch.Text)
		}
	}
	if !strings.Contains(chunks[0].Text, medlex.Placeholder) {
		t.Fatalf("expected placeholder in row chunk:\n%s", chunks[0].Text)
	}
	// Non-sensitive medical values survive.
	if !strings.Contains(chunks[0].Text, "hypertension") {
		t.Fatalf("diagnosis value missing from row chunk:\n%s", chunks[0].Text)
	}
}

func TestChunkCSVBatchesLargeTables(t *testing.T) {
	c := New(Options{RowDocLimit: 20, BatchSize: 10})
	data := medicalCSV(25)
	chunks, err := c.Chunk(csvDoc("f1", data), data)
	if err != nil {
		t.Fatal(err)
	}

	// ceil(25/10) batches plus summary.
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	if chunks[0].Kind != domain.KindBatch {
		t.Fatalf("kind %q, want batch", chunks[0].Kind)
	}
	if !strings.Contains(chunks[0].Text, "Batch 1 of 3") {
		t.Fatalf("missing batch header:\n%s", chunks[0].Text[:80])
	}
	if chunks[2].ID != "f1_batch_2" {
		t.Fatalf("batch chunk ID %q", chunks[2].ID)
	}
}

func TestChunkCSVNonMedicalColumns(t *testing.T) {
	c := New(Options{})
	data := []byte("city,population,notes\nLyon,500000,river city\nOslo,700000,fjord city\n")
	chunks, err := c.Chunk(csvDoc("f1", data), data)
	if err != nil {
		t.Fatal(err)
	}

	// One chunk per column plus summary.
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	for _, ch := range chunks[:3] {
		if ch.Kind != domain.KindColumn {
			t.Fatalf("chunk %s kind %q, want column", ch.ID, ch.Kind)
		}
	}
	if chunks[0].ID != "f1_column_city" {
		t.Fatalf("column chunk ID %q", chunks[0].ID)
	}
}

func TestChunkCSVEmptyTable(t *testing.T) {
	c := New(Options{})
	data := []byte("col_a,col_b\n")
	_, err := c.Chunk(csvDoc("f1", data), data)
	if !errors.Is(err, domain.ErrEmptyContent) {
		t.Fatalf("got %v, want ErrEmptyContent", err)
	}
}

func TestChunkUnknownMedia(t *testing.T) {
	c := New(Options{})
	doc := domain.Document{FileID: "f1", Media: "docx", ByteLen: 1}
	_, err := c.Chunk(doc, []byte("x"))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestChunkIDsDeterministic(t *testing.T) {
	c := New(Options{})
	data := medicalCSV(5)

	first, err := c.Chunk(csvDoc("f1", data), data)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Chunk(csvDoc("f1", data), data)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatal("chunk counts differ across runs")
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Text != second[i].Text {
			t.Fatalf("chunk %d differs across runs", i)
		}
	}
}

func TestPreviewMedicalRows(t *testing.T) {
	c := New(Options{})
	p, err := c.PreviewCSV(medicalCSV(15))
	if err != nil {
		t.Fatal(err)
	}

	if p.Rows != 15 {
		t.Fatalf("rows = %d, want 15", p.Rows)
	}
	if !p.Detection.IsMedical {
		t.Fatal("expected medical detection")
	}
	if p.EstimatedChunks != 16 {
		t.Fatalf("estimated chunks = %d, want 16", p.EstimatedChunks)
	}
	if p.EstimatedSeconds != 24 {
		t.Fatalf("estimated seconds = %.1f, want 24", p.EstimatedSeconds)
	}
	if p.IsLarge || p.IsVeryLarge || p.Warning != "" {
		t.Fatalf("small dataset flagged: %+v", p)
	}
}

func TestPreviewLargeWarnings(t *testing.T) {
	c := New(Options{RowDocLimit: 10000})

	p, err := c.PreviewCSV(medicalCSV(150))
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsLarge || p.IsVeryLarge {
		t.Fatalf("150 rows: large=%v veryLarge=%v", p.IsLarge, p.IsVeryLarge)
	}
	if p.Warning == "" {
		t.Fatal("expected a warning for large dataset")
	}

	p, err = c.PreviewCSV(medicalCSV(600))
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsVeryLarge {
		t.Fatal("600 rows should be very large")
	}
}

func TestPreviewBatchEstimate(t *testing.T) {
	c := New(Options{RowDocLimit: 20, BatchSize: 10})
	p, err := c.PreviewCSV(medicalCSV(25))
	if err != nil {
		t.Fatal(err)
	}
	if p.EstimatedChunks != 4 {
		t.Fatalf("estimated chunks = %d, want 4", p.EstimatedChunks)
	}
}
