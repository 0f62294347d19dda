package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/tendant/simple-news/pkg/simplenews"
)

// ErrObjectNotFound is returned by Download for unknown keys
var ErrObjectNotFound = simplenews.ErrBlobNotFound

// Backend is an in-memory implementation of the simplenews.BlobStore interface
type Backend struct {
	mu        sync.RWMutex
	objects   map[string][]byte
	mimeTypes map[string]string
	urlPrefix string
}

var _ simplenews.BlobStore = (*Backend)(nil)

// New creates a new in-memory storage backend. urlPrefix is used to build
// preview URLs and may be empty.
func New(urlPrefix string) *Backend {
	return &Backend{
		objects:   make(map[string][]byte),
		mimeTypes: make(map[string]string),
		urlPrefix: urlPrefix,
	}
}

// Upload stores the content under params.ObjectKey
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params simplenews.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.ObjectKey] = data
	b.mimeTypes[params.ObjectKey] = mimeType
	return nil
}

// GetPreviewURL returns {urlPrefix}/{key}
func (b *Backend) GetPreviewURL(ctx context.Context, objectKey string) (string, error) {
	if b.urlPrefix == "" {
		return "", errors.New("direct preview required for memory backend")
	}
	return b.urlPrefix + "/" + objectKey, nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the object; unknown keys are ignored
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, objectKey)
	delete(b.mimeTypes, objectKey)
	return nil
}

// Has reports whether objectKey is stored
func (b *Backend) Has(objectKey string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.objects[objectKey]
	return ok
}

// Keys returns all stored keys in lexical order
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MimeType returns the MIME type recorded at upload
func (b *Backend) MimeType(objectKey string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.mimeTypes[objectKey]
}
