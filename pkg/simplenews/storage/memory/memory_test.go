package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-news/pkg/simplenews"
	"github.com/tendant/simple-news/pkg/simplenews/storage/memory"
)

func TestMemoryBackend(t *testing.T) {
	ctx := context.Background()
	backend := memory.New("/uploads")

	t.Run("UploadAndDownload", func(t *testing.T) {
		err := backend.Upload(ctx, strings.NewReader("png-bytes"), simplenews.UploadParams{
			ObjectKey: "a.png",
			MimeType:  "image/png",
		})
		require.NoError(t, err)
		assert.True(t, backend.Has("a.png"))
		assert.Equal(t, "image/png", backend.MimeType("a.png"))

		rc, err := backend.Download(ctx, "a.png")
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))
	})

	t.Run("DefaultMimeType", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, strings.NewReader("x"), simplenews.UploadParams{ObjectKey: "b"}))
		assert.Equal(t, "application/octet-stream", backend.MimeType("b"))
	})

	t.Run("PreviewURL", func(t *testing.T) {
		url, err := backend.GetPreviewURL(ctx, "a.png")
		require.NoError(t, err)
		assert.Equal(t, "/uploads/a.png", url)

		_, err = memory.New("").GetPreviewURL(ctx, "a.png")
		assert.Error(t, err)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, "a.png"))
		require.NoError(t, backend.Delete(ctx, "a.png"))
		assert.False(t, backend.Has("a.png"))

		_, err := backend.Download(ctx, "a.png")
		assert.ErrorIs(t, err, memory.ErrObjectNotFound)
	})

	t.Run("Keys", func(t *testing.T) {
		assert.Equal(t, []string{"b"}, backend.Keys())
	})
}
