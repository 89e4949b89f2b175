package chunker

import (
	"fmt"

	"github.com/AsclepiaAI/asclepia-mvp/engine/domain"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/medlex"
)

// Preview describes what ingesting a CSV would produce, without
// embedding anything.
type Preview struct {
	Rows             int              `json:"rows"`
	Columns          []string         `json:"columns"`
	Detection        medlex.Detection `json:"detection"`
	EstimatedChunks  int              `json:"estimated_chunks"`
	EstimatedSeconds float64          `json:"estimated_seconds"`
	IsLarge          bool             `json:"is_large"`
	IsVeryLarge      bool             `json:"is_very_large"`
	Warning          string           `json:"warning,omitempty"`
}

// PreviewCSV parses and analyses a CSV and estimates the ingestion
// cost. The data is not modified and nothing is embedded.
func (c *Chunker) PreviewCSV(data []byte) (*Preview, error) {
	t, err := c.parseTable(data)
	if err != nil {
		return nil, fmt.Errorf("chunker: preview: %w: %v", domain.ErrUnsupportedFormat, err)
	}
	if len(t.rows) == 0 {
		return nil, fmt.Errorf("chunker: preview: %w", domain.ErrEmptyContent)
	}

	var est int
	switch {
	case !t.det.IsMedical:
		est = len(t.columns) + 1
	case len(t.rows) <= c.opts.RowDocLimit:
		est = len(t.rows) + 1
	default:
		est = (len(t.rows)+c.opts.BatchSize-1)/c.opts.BatchSize + 1
	}

	p := &Preview{
		Rows:             len(t.rows),
		Columns:          t.columns,
		Detection:        t.det,
		EstimatedChunks:  est,
		EstimatedSeconds: float64(est) * 1.5,
		IsLarge:          est > 100,
		IsVeryLarge:      est > 500,
	}
	switch {
	case p.IsVeryLarge:
		p.Warning = fmt.Sprintf("Very large dataset: %d documents will be created. Processing may take several minutes.", est)
	case p.IsLarge:
		p.Warning = fmt.Sprintf("Large dataset: %d documents will be created. Processing may take a while.", est)
	}
	return p, nil
}
