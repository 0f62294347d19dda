package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T, cfg Config) *Backend {
	t.Helper()
	cfg.Bucket = "news-images"
	cfg.AccessKeyID = "test-key"
	cfg.SecretAccessKey = "test-secret"
	backend, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return backend
}

func TestS3Backend_Configuration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(context.Background(), Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("Defaults", func(t *testing.T) {
		b := newTestBackend(t, Config{})
		assert.Equal(t, "us-east-1", b.cfg.Region)
		assert.Equal(t, time.Hour, b.cfg.PresignTTL)
		assert.Equal(t, "public, max-age=86400", b.cfg.CacheControl)
	})

	t.Run("CustomPresignTTL", func(t *testing.T) {
		b := newTestBackend(t, Config{PresignTTL: 2 * time.Hour})
		assert.Equal(t, 2*time.Hour, b.cfg.PresignTTL)
	})

	t.Run("KeyPrefix", func(t *testing.T) {
		b := newTestBackend(t, Config{KeyPrefix: "/news/"})
		assert.Equal(t, "news/a.png", b.objectKey("a.png"))
		assert.Equal(t, "a.png", newTestBackend(t, Config{}).objectKey("a.png"))
	})
}

func TestS3Backend_PreviewURL(t *testing.T) {
	ctx := context.Background()

	t.Run("Presigned", func(t *testing.T) {
		b := newTestBackend(t, Config{Endpoint: "http://localhost:9000", UsePathStyle: true})
		raw, err := b.GetPreviewURL(ctx, "1718000000000-42.jpg")
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "localhost:9000", u.Host)
		assert.Equal(t, "/news-images/1718000000000-42.jpg", u.Path)
		assert.Equal(t, "inline", u.Query().Get("response-content-disposition"))
		assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	})

	t.Run("PublicBaseURL", func(t *testing.T) {
		b := newTestBackend(t, Config{PublicBaseURL: "https://cdn.example.com/news/"})
		raw, err := b.GetPreviewURL(ctx, "a.png")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/news/a.png", raw)
	})

	t.Run("PublicBaseURLWithPrefix", func(t *testing.T) {
		b := newTestBackend(t, Config{PublicBaseURL: "https://cdn.example.com", KeyPrefix: "news"})
		raw, err := b.GetPreviewURL(ctx, "a.png")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/news/a.png", raw)
	})
}

func TestHasErrorCode(t *testing.T) {
	notFound := &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}

	assert.True(t, hasErrorCode(notFound, "NoSuchKey"))
	assert.True(t, hasErrorCode(fmt.Errorf("wrapped: %w", notFound), "NotFound", "NoSuchKey"))
	assert.False(t, hasErrorCode(notFound, "AccessDenied"))
	assert.False(t, hasErrorCode(errors.New("plain"), "NoSuchKey"))
}

func TestIsMissing(t *testing.T) {
	assert.False(t, isMissing(nil))
	assert.True(t, isMissing(&types.NoSuchKey{}))
	assert.True(t, isMissing(fmt.Errorf("get: %w", &smithy.GenericAPIError{Code: "NotFound"})))
	assert.False(t, isMissing(&smithy.GenericAPIError{Code: "AccessDenied"}))
}
