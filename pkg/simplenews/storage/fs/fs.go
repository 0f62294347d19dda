package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-news/pkg/simplenews"
)

var (
	// ErrObjectNotFound is returned by Download for unknown keys
	ErrObjectNotFound = simplenews.ErrBlobNotFound

	// ErrInvalidKey is returned for keys that would escape the base directory
	ErrInvalidKey = errors.New("invalid object key")
)

// Backend is a filesystem implementation of the simplenews.BlobStore interface
type Backend struct {
	baseDir   string
	urlPrefix string
}

var _ simplenews.BlobStore = (*Backend)(nil)

// Config options for the filesystem backend
type Config struct {
	BaseDir   string // Base directory for storing files
	URLPrefix string // URL prefix the files are served under, e.g. /uploads
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir:   filepath.Clean(config.BaseDir),
		urlPrefix: strings.TrimSuffix(config.URLPrefix, "/"),
	}, nil
}

func (b *Backend) path(objectKey string) (string, error) {
	if objectKey == "" {
		return "", ErrInvalidKey
	}
	p := filepath.Join(b.baseDir, filepath.FromSlash(objectKey))
	if p == b.baseDir || !strings.HasPrefix(p, b.baseDir+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return p, nil
}

// Upload writes the content to {baseDir}/{key}. The bytes land in a
// temporary file first so readers never see a partial image.
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params simplenews.UploadParams) error {
	target, err := b.path(params.ObjectKey)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write image %s: %w", params.ObjectKey, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write image %s: %w", params.ObjectKey, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// GetPreviewURL returns {urlPrefix}/{key}
func (b *Backend) GetPreviewURL(ctx context.Context, objectKey string) (string, error) {
	if b.urlPrefix == "" {
		return "", errors.New("direct preview required for filesystem backend")
	}
	return fmt.Sprintf("%s/%s", b.urlPrefix, objectKey), nil
}

// Download opens the file for reading
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	filePath, err := b.path(objectKey)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", objectKey, err)
	}
	return file, nil
}

// Delete removes the file; a missing file is not an error
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	filePath, err := b.path(objectKey)
	if err != nil {
		return err
	}

	err = os.Remove(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", objectKey, err)
	}

	b.pruneDirs(filepath.Dir(filePath))
	return nil
}

// pruneDirs removes shard directories left empty, stopping at baseDir
func (b *Backend) pruneDirs(dir string) {
	for dir != b.baseDir && strings.HasPrefix(dir, b.baseDir+string(filepath.Separator)) {
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
