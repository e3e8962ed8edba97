package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/storage"
)

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, messageResponse{Message: fmt.Sprintf(format, args...)})
}

// storeError maps a storage failure to a response. Internal details are
// logged, not returned.
func storeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "%s not found", what)
	case errors.Is(err, storage.ErrInvalidPath):
		httpError(w, http.StatusBadRequest, "%v", err)
	default:
		slog.Error("store operation failed", "path", r.URL.Path, "error", err)
		httpError(w, http.StatusInternalServerError, "store unavailable")
	}
}

// pathParam returns the percent-decoded URL parameter key. chi matches on the
// escaped path, so "alice%40example.com" arrives undecoded. A malformed
// escape is answered with 400.
func pathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, key))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid %s: %v", key, err)
		return "", false
	}
	return v, true
}

// decodeDocument reads a JSON object body.
func decodeDocument(w http.ResponseWriter, r *http.Request) (storage.Document, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var doc storage.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httpError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		httpError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return nil, false
	}
	if doc == nil {
		httpError(w, http.StatusBadRequest, "request body must be a JSON object")
		return nil, false
	}
	return doc, true
}
