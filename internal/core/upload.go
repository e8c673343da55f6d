package core

// upload.go implements the non-streaming upload path: validate, store the
// bytes, insert the metadata row. No analysis runs and no events are
// published; the streaming pipeline in pipeline.go builds on the same
// storage and rollback steps.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/csvinspect/csvinspect/internal/store"
)

// UploadInput is one upload request, body fully buffered.
type UploadInput struct {
	Filename    string
	ContentType string
	Content     []byte
}

// contentTypeOrDefault normalizes the client-declared content type.
// Browsers frequently send CSV as application/octet-stream or omit the
// type entirely.
func contentTypeOrDefault(ct string) string {
	if ct == "" {
		return "text/csv"
	}
	return ct
}

// Upload validates and stores a file without analyzing it. The file is
// written to disk first; if the metadata insert fails the stored file is
// removed so disk and database stay in sync.
func (s *Service) Upload(ctx context.Context, in UploadInput) (store.FileRecord, error) {
	if err := s.ValidateUpload(in.Filename, int64(len(in.Content))); err != nil {
		return store.FileRecord{}, err
	}

	name, absPath, err := s.files.Write(in.Content, ".csv")
	if err != nil {
		return store.FileRecord{}, fmt.Errorf("store upload: %w", err)
	}

	rec, err := s.store.InsertFile(ctx, store.NewFile{
		OriginalFilename: in.Filename,
		StoredFilename:   name,
		FilePath:         absPath,
		FileSize:         int64(len(in.Content)),
		ContentType:      contentTypeOrDefault(in.ContentType),
	})
	if err != nil {
		if delErr := s.files.Delete(absPath); delErr != nil {
			slog.Warn("failed to remove stored file after insert failure",
				"path", absPath,
				"error", delErr,
			)
		}
		return store.FileRecord{}, fmt.Errorf("insert upload metadata: %w", err)
	}

	slog.Info("file uploaded",
		"file_id", rec.ID,
		"original_filename", rec.OriginalFilename,
		"stored_filename", rec.StoredFilename,
		"file_size", rec.FileSize,
	)
	return rec, nil
}
