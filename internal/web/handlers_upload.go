package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/csvinspect/csvinspect/internal/core"
)

// multipartSlack is how much multipart framing overhead the request
// body may carry past the file-size cap. The authoritative size check
// runs on the decoded file content.
const multipartSlack int64 = 1 << 20

// handleUploadSSE accepts a CSV upload and streams pipeline progress
// as Server-Sent Events. All validation happens before the stream
// opens; once the first byte is written, failures become error frames.
func (s *Server) handleUploadSSE(w http.ResponseWriter, r *http.Request) {
	interval, err := parseUpdateInterval(r)
	if err != nil {
		respondDetail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	in, ok := s.readUploadFile(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondDetail(w, r, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	bus, err := s.service.StreamUpload(r.Context(), in, interval)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		ev, ok, err := bus.Consume(r.Context())
		if err != nil {
			// Client gone. The pipeline sees the same cancellation
			// through its own context handle.
			return
		}
		if !ok {
			return
		}

		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

// handleUpload stores a CSV without running analysis.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readUploadFile(w, r)
	if !ok {
		return
	}

	rec, err := s.service.Upload(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"message":           "File uploaded successfully",
		"file_id":           rec.ID,
		"original_filename": rec.OriginalFilename,
		"stored_filename":   rec.StoredFilename,
		"file_size":         rec.FileSize,
		"file_path":         rec.FilePath,
	})
}

// readUploadFile extracts and validates the multipart `file` field.
// On failure it writes the error response and returns ok=false.
func (s *Server) readUploadFile(w http.ResponseWriter, r *http.Request) (core.UploadInput, bool) {
	maxSize := s.service.MaxFileSize()

	// Reject on the declared length before buffering anything.
	if r.ContentLength > maxSize+multipartSlack {
		respondDetail(w, r, http.StatusBadRequest, "File too large")
		return core.UploadInput{}, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartSlack)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		if isBodyTooLarge(err) {
			respondDetail(w, r, http.StatusBadRequest, "File too large")
		} else {
			respondDetail(w, r, http.StatusBadRequest, "Invalid multipart form")
		}
		return core.UploadInput{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondDetail(w, r, http.StatusBadRequest, "No file provided")
		return core.UploadInput{}, false
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		if isBodyTooLarge(err) {
			respondDetail(w, r, http.StatusBadRequest, "File too large")
			return core.UploadInput{}, false
		}
		respondDetail(w, r, http.StatusInternalServerError, "Failed to read uploaded file")
		return core.UploadInput{}, false
	}

	if err := s.service.ValidateUpload(header.Filename, int64(len(content))); err != nil {
		respondError(w, r, err)
		return core.UploadInput{}, false
	}

	return core.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, true
}

// isBodyTooLarge reports whether err came from the MaxBytesReader
// cap. multipart wraps the read error on some paths, so the string
// check backs up errors.As.
func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) ||
		strings.Contains(err.Error(), "request body too large")
}

// parseUpdateInterval reads the update_interval query parameter:
// seconds as a float, bounded to [0.1, 5.0], default 0.5.
func parseUpdateInterval(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("update_interval")
	if raw == "" {
		return core.DefaultUpdateInterval, nil
	}

	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("update_interval must be a number between 0.1 and 5.0")
	}

	d := time.Duration(secs * float64(time.Second))
	if d < core.MinUpdateInterval || d > core.MaxUpdateInterval {
		return 0, errors.New("update_interval must be between 0.1 and 5.0 seconds")
	}
	return d, nil
}
