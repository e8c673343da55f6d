package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup, update, or delete matches no
// file row.
var ErrNotFound = errors.New("file not found")

// FileRecord mirrors one row of the files table. The analysis fields
// are nil until UpdateFileAnalysis runs; they are serialized as null
// rather than omitted so clients can tell pending from zero.
type FileRecord struct {
	ID               int64            `json:"id"`
	OriginalFilename string           `json:"original_filename"`
	StoredFilename   string           `json:"stored_filename"`
	FilePath         string           `json:"file_path"`
	FileSize         int64            `json:"file_size"`
	ContentType      string           `json:"content_type"`
	FileReference    string           `json:"file_reference"`
	NullCount        *int64           `json:"null_count"`
	TotalRows        *int64           `json:"total_rows"`
	TotalColumns     *int64           `json:"total_columns"`
	DuplicateRecords map[string]int64 `json:"duplicate_records"`
	AnalysisTime     *string          `json:"analysis_time"`
	MemoryUsageMB    *string          `json:"memory_usage_mb"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Analyzed reports whether the record carries analysis results.
func (f FileRecord) Analyzed() bool {
	return f.NullCount != nil && f.TotalRows != nil && f.TotalColumns != nil
}

// NewFile carries the fields the caller supplies for an insert. The
// store assigns id, file_reference, and timestamps.
type NewFile struct {
	OriginalFilename string
	StoredFilename   string
	FilePath         string
	FileSize         int64
	ContentType      string
}

// AnalysisUpdate carries the analysis results written back after a
// completed run. MemoryUsageMB stays nil when sampling was
// unavailable.
type AnalysisUpdate struct {
	NullCount        int64
	TotalRows        int64
	TotalColumns     int64
	DuplicateRecords map[string]int64
	AnalysisTime     string
	MemoryUsageMB    *string
}

// ListParams selects a page of files. Search filters on
// original_filename, case-insensitive substring.
type ListParams struct {
	Page   int
	Limit  int
	Search string
}

// normalized clamps paging values so a bad caller never produces a
// negative OFFSET or an unbounded page.
func (p ListParams) normalized() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 10
	}
	return p
}
