package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/simple-news/pkg/simplenews"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// MessageResponse acknowledges a mutation without returning an entity
type MessageResponse struct {
	Message string `json:"message"`
}

// StatusFor maps a service error onto an HTTP status code
func StatusFor(err error) int {
	switch {
	case errors.Is(err, simplenews.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, simplenews.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, simplenews.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as JSON. Internal failures are logged and their
// details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Message: publicMessage(err)}

	var verr *simplenews.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp.Message = http.StatusText(status)
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func publicMessage(err error) string {
	var verr *simplenews.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	for _, known := range []error{
		simplenews.ErrArticleNotFound,
		simplenews.ErrImageNotFound,
		simplenews.ErrAssociationNotFound,
		simplenews.ErrImageInUse,
		simplenews.ErrAssociationExists,
		simplenews.ErrStorageKeyExists,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

func badRequest(w http.ResponseWriter, r *http.Request, field, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Message: message, Field: field})
}

func writeStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Message: message})
}
