package core

// validation.go rejects bad upload requests before any filesystem or
// database mutation. The stream endpoint runs these checks while the
// request body is still buffered, so failures map to plain HTTP 400
// responses and no SSE stream is opened.

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError describes a rejected upload request. Detail is written
// verbatim into the HTTP error body.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

// ValidateUpload checks an upload request against the service limits.
// The filename must be present and carry a .csv extension (matched
// case-insensitively) and size must not exceed the configured maximum.
func (s *Service) ValidateUpload(filename string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return &ValidationError{Detail: "Filename is required"}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".csv" {
		return &ValidationError{Detail: fmt.Sprintf("Only CSV files are allowed. Received: %s", ext)}
	}

	if size > s.cfg.MaxFileSize {
		return &ValidationError{Detail: "File too large"}
	}

	return nil
}
