package web

// ============================================================================
// SHARED TEST FIXTURES
// ============================================================================
//
// fakeStore is a minimal in-memory core.FileStore for handler tests.
// newTestServer assembles a Server over it with rate limiting off and a
// temp upload directory, so tests drive the real router end to end.

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/csvinspect/csvinspect/internal/config"
	"github.com/csvinspect/csvinspect/internal/core"
	"github.com/csvinspect/csvinspect/internal/storage"
	"github.com/csvinspect/csvinspect/internal/store"
)

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	files  map[int64]store.FileRecord

	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[int64]store.FileRecord)}
}

// seed inserts a record directly, assigning id and reference when unset.
func (f *fakeStore) seed(rec store.FileRecord) store.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rec.ID == 0 {
		f.nextID++
		rec.ID = f.nextID
	} else if rec.ID > f.nextID {
		f.nextID = rec.ID
	}
	if rec.FileReference == "" {
		rec.FileReference = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	f.files[rec.ID] = rec
	return rec
}

func (f *fakeStore) InsertFile(ctx context.Context, nf store.NewFile) (store.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return store.FileRecord{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

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

func (f *fakeStore) record(id int64) (store.FileRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.files[id]
	return rec, ok
}

// ============================================================================
// SERVER AND REQUEST HELPERS
// ============================================================================

// testConfig returns a config with rate limiting disabled and a 1 MiB
// upload cap. Tests that exercise limits override the fields they need.
func testConfig(uploadDir string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			Folder:        uploadDir,
			ChunkSize:     3,
			MaxConcurrent: 4,
			DrainTimeout:  time.Second,
		},
		Security: config.SecurityConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

func newTestServer(t *testing.T, st core.FileStore, cfg *config.Config) (*Server, string) {
	t.Helper()

	dir := cfg.Upload.Folder
	if dir == "" {
		dir = t.TempDir()
		cfg.Upload.Folder = dir
	}

	files, err := storage.New(dir)
	if err != nil {
		t.Fatalf("storage.New(%q) failed: %v", dir, err)
	}

	svc := core.NewService(st, files, cfg.Upload)
	return NewServer(svc, cfg), dir
}

// doRequest runs one request through the full middleware stack.
func doRequest(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

// decodeBody unmarshals a JSON response body into a generic map.
func decodeBody(t *testing.T, body *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal response %q: %v", body.String(), err)
	}
	return m
}

// wantDetail asserts a `{"detail": ...}` error response.
func wantDetail(t *testing.T, rr *httptest.ResponseRecorder, status int, detail string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
	got := decodeBody(t, rr.Body)
	if got["detail"] != detail {
		t.Errorf("detail = %q, want %q", got["detail"], detail)
	}
}

// multipartBody builds a multipart form with a single file field.
func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mp := multipart.NewWriter(&buf)
	fw, err := mp.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write multipart content: %v", err)
	}
	if err := mp.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mp.FormDataContentType()
}

// analyzedRecord builds a FileRecord with populated analysis fields.
func analyzedRecord(id int64, name string) store.FileRecord {
	nulls, rows, cols := int64(2), int64(3), int64(2)
	at := "0.42"
	mem := "18.50"
	return store.FileRecord{
		ID:               id,
		OriginalFilename: name,
		StoredFilename:   strings.Repeat("a", 32) + ".csv",
		FilePath:         "/uploads/" + strings.Repeat("a", 32) + ".csv",
		FileSize:         64,
		ContentType:      "text/csv",
		NullCount:        &nulls,
		TotalRows:        &rows,
		TotalColumns:     &cols,
		DuplicateRecords: map[string]int64{"b": 1},
		AnalysisTime:     &at,
		MemoryUsageMB:    &mem,
	}
}
