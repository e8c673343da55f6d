package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/csvinspect/csvinspect/internal/core"
	"github.com/csvinspect/csvinspect/internal/store"
	"github.com/go-chi/chi/v5"
)

// handleRoot answers the root route, kept for parity with the original
// deployment's liveness probe.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"message": "Hello, World!"})
}

// handleHealth reports readiness: 200 once the store answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		respondDetail(w, r, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListFiles returns one page of file records, newest first,
// optionally filtered by a case-insensitive filename substring.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	page, err := parsePositiveInt(r, "page", 1)
	if err != nil {
		respondDetail(w, r, http.StatusBadRequest, "page must be a positive integer")
		return
	}

	limit, err := parsePositiveInt(r, "limit", 10)
	if err != nil || limit > 100 {
		respondDetail(w, r, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	files, total, err := s.service.ListFiles(r.Context(), store.ListParams{
		Page:   page,
		Limit:  limit,
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if files == nil {
		files = []store.FileRecord{}
	}

	var totalPages int64
	if total > 0 {
		totalPages = (total + int64(limit) - 1) / int64(limit)
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"files":       files,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": totalPages,
	})
}

// handleGetFile returns the full record for one file.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(w, r)
	if !ok {
		return
	}

	rec, err := s.service.GetFileByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondDetail(w, r, http.StatusNotFound, fmt.Sprintf("File with ID %d not found", id))
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, rec)
}

// handleFileReport returns the analysis report for a file addressed by
// its opaque reference. Files uploaded without analysis are a 400.
func (s *Server) handleFileReport(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	rec, err := s.service.GetFileByReference(r.Context(), ref)
	if errors.Is(err, store.ErrNotFound) {
		respondDetail(w, r, http.StatusNotFound, fmt.Sprintf("File with reference '%s' not found", ref))
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	if !rec.Analyzed() {
		respondDetail(w, r, http.StatusBadRequest,
			"File has not been analyzed yet. Please upload the file with analysis enabled.")
		return
	}

	duplicates := rec.DuplicateRecords
	if duplicates == nil {
		duplicates = map[string]int64{}
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"file_id":           rec.ID,
		"original_filename": rec.OriginalFilename,
		"file_size":         rec.FileSize,
		"total_records":     rec.TotalRows,
		"total_columns":     rec.TotalColumns,
		"null_records":      rec.NullCount,
		"duplicate_records": duplicates,
		"time_consumption":  rec.AnalysisTime,
		"memory_usage_mb":   rec.MemoryUsageMB,
		"created_at":        rec.CreatedAt,
	})
}

// handlePreviewFile returns the header and first rows of a stored file.
func (s *Server) handlePreviewFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(w, r)
	if !ok {
		return
	}

	limit, err := parsePositiveInt(r, "limit", core.DefaultPreviewLimit)
	if err != nil || limit > core.MaxPreviewLimit {
		respondDetail(w, r, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	preview, err := s.service.PreviewFile(r.Context(), id, limit)
	if errors.Is(err, store.ErrNotFound) {
		respondDetail(w, r, http.StatusNotFound, fmt.Sprintf("File with ID %d not found", id))
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, preview)
}

// handleDeleteFile removes the metadata row and the stored file.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(w, r)
	if !ok {
		return
	}

	rec, err := s.service.DeleteFile(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondDetail(w, r, http.StatusNotFound, fmt.Sprintf("File with ID %d not found", id))
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"message":           "File deleted successfully",
		"file_id":           rec.ID,
		"original_filename": rec.OriginalFilename,
		"stored_filename":   rec.StoredFilename,
	})
}

// parseFileID reads the {id} route parameter. On failure it writes the
// 400 response and returns ok=false.
func parseFileID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		respondDetail(w, r, http.StatusBadRequest, "File ID must be a positive integer")
		return 0, false
	}
	return id, true
}

// parsePositiveInt reads an integer query parameter, requiring it to
// be at least 1 when present.
func parsePositiveInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}
