package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tendant/simple-news/pkg/simplenews"
)

// UploadLimits bounds multipart image uploads
type UploadLimits struct {
	MaxFileBytes int64
	MaxFiles     int
}

// DefaultUploadLimits allows ten files of at most 10MB each
var DefaultUploadLimits = UploadLimits{MaxFileBytes: 10 << 20, MaxFiles: 10}

// multipart parts larger than this spill to temporary files
const maxMemory = 32 << 20

var allowedImageTypes = []string{"jpeg", "jpg", "png", "gif", "webp"}

// uploadError is a rejected upload with its own status code
type uploadError struct {
	status  int
	field   string
	message string
}

func (e *uploadError) Error() string { return e.message }

func writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var uerr *uploadError
	if errors.As(err, &uerr) {
		writeStatusField(w, r, uerr.status, uerr.field, uerr.message)
		return
	}
	writeError(w, r, err)
}

func writeStatusField(w http.ResponseWriter, r *http.Request, status int, field, message string) {
	if status == http.StatusBadRequest {
		badRequest(w, r, field, message)
		return
	}
	writeStatus(w, r, status, message)
}

// parseForm reads a multipart body within the upload limits. Urlencoded
// bodies are accepted for requests that carry no files.
func parseForm(w http.ResponseWriter, r *http.Request, limits UploadLimits) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxFiles)*limits.MaxFileBytes+maxMemory)

	err := r.ParseMultipartForm(maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &uploadError{status: http.StatusRequestEntityTooLarge, message: "Request body too large"}
		}
		return &uploadError{status: http.StatusBadRequest, message: fmt.Sprintf("Invalid form: %v", err)}
	}
	return nil
}

// formFiles returns the files sent under field after checking count, size
// and type.
func formFiles(r *http.Request, field string, limits UploadLimits) ([]*multipart.FileHeader, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	files := r.MultipartForm.File[field]
	if len(files) > limits.MaxFiles {
		return nil, &uploadError{
			status:  http.StatusBadRequest,
			field:   field,
			message: fmt.Sprintf("At most %d files are allowed", limits.MaxFiles),
		}
	}
	for _, fh := range files {
		if fh.Size > limits.MaxFileBytes {
			return nil, &uploadError{
				status:  http.StatusRequestEntityTooLarge,
				field:   field,
				message: fmt.Sprintf("File %s exceeds %d bytes", fh.Filename, limits.MaxFileBytes),
			}
		}
		if !isAllowedImage(fh) {
			return nil, &uploadError{status: http.StatusBadRequest, field: field, message: "Only image files are allowed!"}
		}
	}
	return files, nil
}

// isAllowedImage requires both the extension and the declared MIME type to
// name one of the accepted image formats.
func isAllowedImage(fh *multipart.FileHeader) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
	mimeType := strings.ToLower(fh.Header.Get("Content-Type"))

	extOK, mimeOK := false, false
	for _, t := range allowedImageTypes {
		if ext == t {
			extOK = true
		}
		if strings.HasPrefix(mimeType, "image/") && strings.Contains(mimeType, t) {
			mimeOK = true
		}
	}
	return extOK && mimeOK
}

// storeFiles uploads each file and returns the storage keys in order. Blobs
// already stored are discarded when a later one fails.
func storeFiles(ctx context.Context, svc simplenews.Service, files []*multipart.FileHeader) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, fh := range files {
		key, err := storeFile(ctx, svc, fh)
		if err != nil {
			svc.DiscardBlobs(ctx, keys)
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func storeFile(ctx context.Context, svc simplenews.Service, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	return svc.UploadBlob(ctx, f, simplenews.UploadImageRequest{
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
	})
}

// formValue distinguishes an absent field from an empty one
func formValue(r *http.Request, name string) (string, bool) {
	values, ok := r.Form[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// optionalString maps an absent or empty field to nil
func optionalString(r *http.Request, name string) *string {
	v, ok := formValue(r, name)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func optionalUUID(r *http.Request, name string) (*uuid.UUID, error) {
	v, ok := formValue(r, name)
	if !ok || strings.TrimSpace(v) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(v))
	if err != nil {
		return nil, &uploadError{status: http.StatusBadRequest, field: name, message: fmt.Sprintf("Invalid %s", name)}
	}
	return &id, nil
}

// idList accepts repeated fields, comma separated values and JSON arrays
func idList(r *http.Request, name string) ([]uuid.UUID, error) {
	var raw []string
	for _, v := range r.Form[name] {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.HasPrefix(v, "[") {
			var items []string
			if err := json.Unmarshal([]byte(v), &items); err != nil {
				return nil, &uploadError{status: http.StatusBadRequest, field: name, message: fmt.Sprintf("Invalid %s", name)}
			}
			raw = append(raw, items...)
			continue
		}
		raw = append(raw, strings.Split(v, ",")...)
	}

	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, &uploadError{status: http.StatusBadRequest, field: name, message: fmt.Sprintf("Invalid image id %q", s)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
