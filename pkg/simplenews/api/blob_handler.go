package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/simple-news/pkg/simplenews"
)

// BlobHandler streams stored images for backends without their own public URL
type BlobHandler struct {
	service simplenews.Service
}

// NewBlobHandler creates a blob handler
func NewBlobHandler(service simplenews.Service) *BlobHandler {
	return &BlobHandler{service: service}
}

// Routes returns the routes for blobs
func (h *BlobHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/*", h.ServeBlob)
	return r
}

// ServeBlob writes the blob named by the wildcard path
func (h *BlobHandler) ServeBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" || strings.Contains(key, "..") {
		writeStatus(w, r, http.StatusNotFound, http.StatusText(http.StatusNotFound))
		return
	}

	rc, err := h.service.OpenBlob(r.Context(), key)
	if err != nil {
		if errors.Is(err, simplenews.ErrNotFound) {
			writeStatus(w, r, http.StatusNotFound, http.StatusText(http.StatusNotFound))
			return
		}
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	if contentType := mime.TypeByExtension(path.Ext(key)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := io.Copy(w, rc); err != nil {
		slog.WarnContext(r.Context(), "Failed to stream blob", "storage_key", key, "error", err)
	}
}
