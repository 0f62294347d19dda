package fs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-news/pkg/simplenews"
	"github.com/tendant/simple-news/pkg/simplenews/storage/fs"
)

func newBackend(t *testing.T) (*fs.Backend, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: dir, URLPrefix: "/uploads/"})
	require.NoError(t, err)
	return backend, dir
}

func TestFSBackend_New(t *testing.T) {
	_, err := fs.New(fs.Config{})
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	_, err = fs.New(fs.Config{BaseDir: dir})
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFSBackend_UploadDownloadDelete(t *testing.T) {
	ctx := context.Background()
	backend, dir := newBackend(t)

	key := "images/ab/cdef_photo.jpg"
	err := backend.Upload(ctx, strings.NewReader("jpeg-bytes"), simplenews.UploadParams{ObjectKey: key, MimeType: "image/jpeg"})
	require.NoError(t, err)

	rc, err := backend.Download(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "jpeg-bytes", string(data))

	url, err := backend.GetPreviewURL(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/images/ab/cdef_photo.jpg", url)

	require.NoError(t, backend.Delete(ctx, key))
	_, err = backend.Download(ctx, key)
	assert.ErrorIs(t, err, fs.ErrObjectNotFound)

	// empty shard directories are removed, the base directory is kept
	_, err = os.Stat(filepath.Join(dir, "images"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestFSBackend_DeleteMissingIsNoop(t *testing.T) {
	backend, _ := newBackend(t)
	assert.NoError(t, backend.Delete(context.Background(), "never-uploaded.png"))
}

func TestFSBackend_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	backend, _ := newBackend(t)

	for _, key := range []string{"", "../outside.png", "a/../../outside.png"} {
		t.Run(key, func(t *testing.T) {
			err := backend.Upload(ctx, strings.NewReader("x"), simplenews.UploadParams{ObjectKey: key})
			assert.ErrorIs(t, err, fs.ErrInvalidKey)
			assert.ErrorIs(t, backend.Delete(ctx, key), fs.ErrInvalidKey)
		})
	}
}

func TestFSBackend_UploadLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	backend, dir := newBackend(t)

	require.NoError(t, backend.Upload(ctx, strings.NewReader("first"), simplenews.UploadParams{ObjectKey: "a.png"}))
	require.NoError(t, backend.Upload(ctx, strings.NewReader("second"), simplenews.UploadParams{ObjectKey: "a.png"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.png", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(dir, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, backend.Upload(cancelled, strings.NewReader("x"), simplenews.UploadParams{ObjectKey: "b.png"}), context.Canceled)
}
