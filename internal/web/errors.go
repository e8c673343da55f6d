package web

// errors.go provides unified error response handling for the API.
//
// Every error leaves the server as `{"detail": <message>}` with an
// appropriate status code. Technical detail is logged server-side with
// the request ID for correlation; clients only ever see the sanitized
// detail string.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/csvinspect/csvinspect/internal/core"
	"github.com/csvinspect/csvinspect/internal/store"
	"github.com/go-chi/chi/v5/middleware"
)

// detailResponse is the uniform error body.
type detailResponse struct {
	Detail string `json:"detail"`
}

// respondJSON encodes v as JSON with the given status. Encoding
// failures can only be logged since the header is already out.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
}

// respondDetail writes a `{"detail": ...}` error body and logs it with
// the request ID.
func respondDetail(w http.ResponseWriter, r *http.Request, status int, detail string) {
	slog.Warn("request rejected",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"detail", detail,
		"request_id", middleware.GetReqID(r.Context()),
	)
	respondJSON(w, r, status, detailResponse{Detail: detail})
}

// respondError maps service-layer errors onto HTTP statuses. Handlers
// that want resource-specific 404 wording check store.ErrNotFound
// themselves before falling through to this.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		respondDetail(w, r, http.StatusBadRequest, ve.Detail)
	case errors.Is(err, core.ErrTooManyUploads):
		respondDetail(w, r, http.StatusTooManyRequests,
			"Too many concurrent uploads. Please try again shortly.")
	case errors.Is(err, store.ErrNotFound):
		respondDetail(w, r, http.StatusNotFound, "File not found")
	default:
		slog.Error("request error",
			"path", r.URL.Path,
			"method", r.Method,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
		respondJSON(w, r, http.StatusInternalServerError,
			detailResponse{Detail: "Internal server error"})
	}
}
