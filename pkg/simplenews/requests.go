package simplenews

import "github.com/google/uuid"

// Request DTOs

// CreateArticleRequest contains parameters for creating an article.
//
// ImageKeys are storage keys of blobs uploaded for this request; a catalog row
// is created for each. ImageIDs reference images registered earlier. Keys are
// attached first, in order, followed by ImageIDs.
type CreateArticleRequest struct {
	Title      string     `validate:"required,max=255"`
	Content    string     `validate:"required"`
	CategoryID *uuid.UUID
	Author     *string `validate:"omitempty,max=255"`
	ImageKeys  []string    `validate:"dive,required"`
	ImageIDs   []uuid.UUID
}

// UpdateArticleRequest contains parameters for updating an article. Nil
// fields are left unchanged.
type UpdateArticleRequest struct {
	ArticleID  uuid.UUID `validate:"required"`
	Title      *string   `validate:"omitempty,min=1,max=255"`
	Content    *string   `validate:"omitempty,min=1"`
	CategoryID *uuid.UUID
	Author     *string `validate:"omitempty,max=255"`

	// AddImageKeys are storage keys of freshly uploaded blobs to register and attach
	AddImageKeys   []string `validate:"dive,required"`
	AddImageIDs    []uuid.UUID
	RemoveImageIDs []uuid.UUID
}

// UploadImageRequest contains parameters for storing a standalone image.
type UploadImageRequest struct {
	FileName string `validate:"required"`
	MimeType string
}
