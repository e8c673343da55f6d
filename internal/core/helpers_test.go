package core

// ============================================================================
// SHARED TEST FIXTURES
// ============================================================================
//
// fakeStore is an in-memory FileStore used by the pipeline, service, and
// sweeper tests. It mirrors the real store's contract: sequential ids,
// UUID references, ErrNotFound on missing rows, and newest-first listing.

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/csvinspect/csvinspect/internal/config"
	"github.com/csvinspect/csvinspect/internal/eventbus"
	"github.com/csvinspect/csvinspect/internal/storage"
	"github.com/csvinspect/csvinspect/internal/store"
)

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	files  map[int64]store.FileRecord

	insertErr error
	updateErr error
	pingErr   error

	updateCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[int64]store.FileRecord)}
}

func (f *fakeStore) InsertFile(ctx context.Context, nf store.NewFile) (store.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return store.FileRecord{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return store.FileRecord{}, f.insertErr
	}

	f.nextID++
	now := time.Now().UTC()
	rec := store.FileRecord{
		ID:               f.nextID,
		OriginalFilename: nf.OriginalFilename,
		StoredFilename:   nf.StoredFilename,
		FilePath:         nf.FilePath,
		FileSize:         nf.FileSize,
		ContentType:      nf.ContentType,
		FileReference:    uuid.New().String(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	f.files[rec.ID] = rec
	return rec, nil
}

func (f *fakeStore) UpdateFileAnalysis(ctx context.Context, id int64, u store.AnalysisUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}

	rec, ok := f.files[id]
	if !ok {
		return store.ErrNotFound
	}

	nulls, rows, cols := u.NullCount, u.TotalRows, u.TotalColumns
	at := u.AnalysisTime
	rec.NullCount = &nulls
	rec.TotalRows = &rows
	rec.TotalColumns = &cols
	rec.DuplicateRecords = u.DuplicateRecords
	rec.AnalysisTime = &at
	rec.MemoryUsageMB = u.MemoryUsageMB
	rec.UpdatedAt = time.Now().UTC()
	f.files[id] = rec
	return nil
}

func (f *fakeStore) GetFileByID(ctx context.Context, id int64) (store.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.files[id]
	if !ok {
		return store.FileRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) GetFileByReference(ctx context.Context, ref string) (store.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range f.files {
		if rec.FileReference == ref {
			return rec, nil
		}
	}
	return store.FileRecord{}, store.ErrNotFound
}

func (f *fakeStore) ListFiles(ctx context.Context, p store.ListParams) ([]store.FileRecord, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 10
	}

	var matched []store.FileRecord
	for _, rec := range f.files {
		if p.Search != "" && !strings.Contains(strings.ToLower(rec.OriginalFilename), strings.ToLower(p.Search)) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	offset := (p.Page - 1) * p.Limit
	if offset >= len(matched) {
		return []store.FileRecord{}, total, nil
	}
	end := offset + p.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (f *fakeStore) DeleteFile(ctx context.Context, id int64) (store.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.files[id]
	if !ok {
		return store.FileRecord{}, store.ErrNotFound
	}
	delete(f.files, id)
	return rec, nil
}

func (f *fakeStore) StoredFilenames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.files))
	for _, rec := range f.files {
		names = append(names, rec.StoredFilename)
	}
	return names, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

func (f *fakeStore) updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls
}

func (f *fakeStore) record(id int64) (store.FileRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.files[id]
	return rec, ok
}

// ============================================================================
// SERVICE AND EVENT HELPERS
// ============================================================================

// newTestService builds a Service over a temp upload directory with a
// small chunk size so multi-chunk behavior shows up on tiny files.
func newTestService(t *testing.T, st FileStore) (*Service, string) {
	t.Helper()

	dir := t.TempDir()
	files, err := storage.New(dir)
	if err != nil {
		t.Fatalf("storage.New(%q) failed: %v", dir, err)
	}

	svc := NewService(st, files, config.UploadConfig{
		MaxFileSize:   1 << 20,
		Folder:        dir,
		ChunkSize:     3,
		MaxConcurrent: 4,
		DrainTimeout:  time.Second,
	})
	return svc, dir
}

// collectEvents drains the bus until it closes and returns every event.
func collectEvents(t *testing.T, bus *eventbus.Bus) []eventbus.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []eventbus.Event
	for {
		ev, ok, err := bus.Consume(ctx)
		if err != nil {
			t.Fatalf("Consume failed after %d events: %v", len(events), err)
		}
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

// waitForDrain fails the test if in-flight uploads do not finish quickly.
func waitForDrain(t *testing.T, svc *Service) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.WaitForUploads(ctx); err != nil {
		t.Fatalf("uploads did not drain: %v", err)
	}
}
