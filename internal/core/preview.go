package core

// preview.go returns the first rows of a stored file as JSON-shaped
// records for client-side table rendering. Parsing is deliberately
// lenient: preview is a convenience view, so ragged rows are padded or
// truncated against the header instead of rejected.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/csvinspect/csvinspect/internal/analyze"
)

// Preview row limits.
const (
	DefaultPreviewLimit = 10
	MaxPreviewLimit     = 100
)

// PreviewResult holds the header and the first rows of a stored file.
// Cells matching the null sentinel set are nil so they render as JSON
// null. TotalRows comes from the stored analysis and is nil for files
// that were never analyzed.
type PreviewResult struct {
	FileID       int64            `json:"file_id"`
	Columns      []string         `json:"columns"`
	Records      []map[string]any `json:"records"`
	TotalRows    *int64           `json:"total_rows"`
	PreviewCount int              `json:"preview_count"`
}

// PreviewFile reads up to limit data rows from the stored file for id.
// It returns store.ErrNotFound for unknown ids and a wrapped IO or parse
// error when the stored file cannot be read.
func (s *Service) PreviewFile(ctx context.Context, id int64, limit int) (*PreviewResult, error) {
	rec, err := s.store.GetFileByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	if limit > MaxPreviewLimit {
		limit = MaxPreviewLimit
	}

	f, err := os.Open(rec.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(analyze.NewBOMSkippingReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read stored file header: %w", analyze.ErrEmptyFile)
		}
		return nil, fmt.Errorf("read stored file header: %w", err)
	}

	records := make([]map[string]any, 0, limit)
	for len(records) < limit {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stored file row: %w", err)
		}

		obj := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(row) || analyze.IsNullToken(row[i]) {
				obj[col] = nil
				continue
			}
			obj[col] = row[i]
		}
		records = append(records, obj)
	}

	return &PreviewResult{
		FileID:       rec.ID,
		Columns:      header,
		Records:      records,
		TotalRows:    rec.TotalRows,
		PreviewCount: len(records),
	}, nil
}
