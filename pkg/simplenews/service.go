package simplenews

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-news library
type Service interface {
	// Article operations
	CreateArticle(ctx context.Context, req CreateArticleRequest) (*CreateArticleResult, error)
	GetArticle(ctx context.Context, id uuid.UUID) (*ArticleDetails, error)
	ListArticles(ctx context.Context) ([]*ArticleDetails, error)
	UpdateArticle(ctx context.Context, req UpdateArticleRequest) (*UpdateArticleResult, error)
	ReorderImages(ctx context.Context, articleID uuid.UUID, items []ReorderItem) error
	RemoveImage(ctx context.Context, articleID, imageID uuid.UUID) error
	DeleteArticle(ctx context.Context, id uuid.UUID) error

	// Image operations
	UploadImage(ctx context.Context, reader io.Reader, req UploadImageRequest) (*Image, error)
	GetImage(ctx context.Context, id uuid.UUID) (*Image, error)
	ListImages(ctx context.Context) ([]*Image, error)
	DeleteImage(ctx context.Context, id uuid.UUID) error

	// SweepOrphans reclaims images that no article references and that were
	// created before cutoff. Returns the number of images reclaimed.
	SweepOrphans(ctx context.Context, cutoff time.Time) (int, error)

	// Blob helpers for transports that upload before calling the service
	UploadBlob(ctx context.Context, reader io.Reader, req UploadImageRequest) (string, error)
	DiscardBlobs(ctx context.Context, keys []string)
	OpenBlob(ctx context.Context, key string) (io.ReadCloser, error)
	ImageURL(ctx context.Context, key string) (string, error)
}
