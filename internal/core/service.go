package core

// service.go wires the metadata store, the upload directory, and the
// concurrency limiter into the Service type that both the HTTP layer and
// the background sweeper drive.

import (
	"context"
	"log/slog"

	"github.com/csvinspect/csvinspect/internal/config"
	"github.com/csvinspect/csvinspect/internal/storage"
	"github.com/csvinspect/csvinspect/internal/store"
)

// FileStore is the persistence surface the service depends on. *store.DB
// implements it; tests substitute an in-memory fake.
type FileStore interface {
	InsertFile(ctx context.Context, nf store.NewFile) (store.FileRecord, error)
	UpdateFileAnalysis(ctx context.Context, id int64, u store.AnalysisUpdate) error
	GetFileByID(ctx context.Context, id int64) (store.FileRecord, error)
	GetFileByReference(ctx context.Context, ref string) (store.FileRecord, error)
	ListFiles(ctx context.Context, p store.ListParams) ([]store.FileRecord, int64, error)
	DeleteFile(ctx context.Context, id int64) (store.FileRecord, error)
	StoredFilenames(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// Service exposes all upload, analysis, and file management operations.
type Service struct {
	store   FileStore
	files   *storage.Dir
	limiter *UploadLimiter
	cfg     config.UploadConfig
}

// NewService creates a Service backed by the given store and upload
// directory. Limiter sizing comes from cfg.
func NewService(st FileStore, files *storage.Dir, cfg config.UploadConfig) *Service {
	return &Service{
		store:   st,
		files:   files,
		limiter: NewUploadLimiter(cfg.MaxConcurrent, DefaultMaxWaitTime),
		cfg:     cfg,
	}
}

// Ping reports whether the metadata store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// MaxFileSize returns the configured upload size cap in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// LimiterStatus reports current upload slot occupancy.
func (s *Service) LimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until all in-flight upload pipelines finish or
// the context is cancelled. Called during graceful shutdown.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// GetFileByID returns the file record with the given id.
func (s *Service) GetFileByID(ctx context.Context, id int64) (store.FileRecord, error) {
	return s.store.GetFileByID(ctx, id)
}

// GetFileByReference returns the file record with the given opaque
// reference.
func (s *Service) GetFileByReference(ctx context.Context, ref string) (store.FileRecord, error) {
	return s.store.GetFileByReference(ctx, ref)
}

// ListFiles returns one page of file records plus the total match count.
func (s *Service) ListFiles(ctx context.Context, p store.ListParams) ([]store.FileRecord, int64, error) {
	return s.store.ListFiles(ctx, p)
}

// DeleteFile removes the metadata row and then the stored file. The row
// is authoritative: once it is gone the delete has succeeded, and an
// unlink failure only leaves an orphan for the sweeper to collect.
func (s *Service) DeleteFile(ctx context.Context, id int64) (store.FileRecord, error) {
	rec, err := s.store.DeleteFile(ctx, id)
	if err != nil {
		return store.FileRecord{}, err
	}

	if err := s.files.Delete(rec.FilePath); err != nil {
		slog.Warn("failed to remove stored file after delete",
			"file_id", rec.ID,
			"path", rec.FilePath,
			"error", err,
		)
	}

	return rec, nil
}
