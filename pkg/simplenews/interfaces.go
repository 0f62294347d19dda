package simplenews

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for image storage backends
type BlobStore interface {
	// Upload stores the bytes read from reader under params.ObjectKey
	Upload(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download opens a stored blob for reading
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// GetPreviewURL returns a URL a browser can render the image from
	GetPreviewURL(ctx context.Context, objectKey string) (string, error)

	// Delete removes a blob. Deleting a missing key is not an error.
	Delete(ctx context.Context, objectKey string) error
}

// UploadParams contains parameters for uploading a blob
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

// Repository is the persistence entry point. Mutations only happen through
// WithTx; the read methods observe committed state.
type Repository interface {
	// WithTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back when fn returns an error or ctx is done.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetArticle(ctx context.Context, id uuid.UUID) (*Article, error)
	ListArticles(ctx context.Context) ([]*Article, error)
	ListArticleImages(ctx context.Context, articleID uuid.UUID) ([]*ArticleImage, error)
	GetImage(ctx context.Context, id uuid.UUID) (*Image, error)
	ListImages(ctx context.Context) ([]*Image, error)

	// ListUnreferencedImages returns images with no associations created before cutoff
	ListUnreferencedImages(ctx context.Context, createdBefore time.Time) ([]*Image, error)
}

// Tx groups the stores available inside a transaction.
type Tx interface {
	ArticleStore
	RelationStore
	ImageCatalog
}

// ArticleStore persists article rows.
type ArticleStore interface {
	CreateArticle(ctx context.Context, article *Article) error

	// LockArticle loads the article and holds a row lock until the
	// transaction ends. Returns ErrArticleNotFound when absent.
	LockArticle(ctx context.Context, id uuid.UUID) (*Article, error)

	// UpdateArticle writes the editable fields (title, content, category, author).
	UpdateArticle(ctx context.Context, article *Article) error

	SetFeaturedImage(ctx context.Context, articleID uuid.UUID, imageID *uuid.UUID) error
	DeleteArticle(ctx context.Context, id uuid.UUID) error
}

// RelationStore persists article-image associations.
type RelationStore interface {
	// Attach fails with ErrAssociationExists when the pair is already linked.
	Attach(ctx context.Context, articleID, imageID uuid.UUID, isFeatured bool, sortOrder int) error

	// Detach removes the pair and reports whether it existed.
	Detach(ctx context.Context, articleID, imageID uuid.UUID) (bool, error)

	DetachAll(ctx context.Context, articleID uuid.UUID) error

	// ListByArticle returns associations ordered by sort order, then image ID.
	ListByArticle(ctx context.Context, articleID uuid.UUID) ([]*Association, error)

	GetAssociation(ctx context.Context, articleID, imageID uuid.UUID) (*Association, error)
	SetFeatured(ctx context.Context, articleID, imageID uuid.UUID, featured bool) error
	SetOrder(ctx context.Context, articleID, imageID uuid.UUID, sortOrder int) error
	ClearFeatured(ctx context.Context, articleID uuid.UUID) error

	// CountReferences counts associations of the image across all articles.
	CountReferences(ctx context.Context, imageID uuid.UUID) (int, error)
}

// ImageCatalog persists image rows.
type ImageCatalog interface {
	CreateImage(ctx context.Context, image *Image) error

	// LockImage loads the image and holds a row lock until the transaction
	// ends. Returns ErrImageNotFound when absent.
	LockImage(ctx context.Context, id uuid.UUID) (*Image, error)

	DeleteImage(ctx context.Context, id uuid.UUID) error
}

// EventSink defines the interface for event handling
type EventSink interface {
	ArticleCreated(ctx context.Context, article *Article) error
	ArticleUpdated(ctx context.Context, article *Article) error
	ArticleDeleted(ctx context.Context, articleID uuid.UUID) error
	ImageCreated(ctx context.Context, image *Image) error
	ImageReclaimed(ctx context.Context, imageID uuid.UUID, storageKey string) error

	// CleanupFailed is fired for every blob that could not be deleted after commit
	CleanupFailed(ctx context.Context, warning *CleanupWarning) error
}

// Metrics receives operational measurements from the service.
type Metrics interface {
	ObserveOperation(op string, duration time.Duration, err error)
	ImagesReclaimed(n int)
	CleanupFailed(key string)
}
