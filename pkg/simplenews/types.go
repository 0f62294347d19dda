package simplenews

import (
	"time"

	"github.com/google/uuid"
)

// Article is a news article. FeaturedImageID is derived from the article's
// associations and is only ever written by the featured-image maintainer.
type Article struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	CategoryID      *uuid.UUID `json:"category_id,omitempty"`
	Author          *string    `json:"author,omitempty"`
	FeaturedImageID *uuid.UUID `json:"featured_image_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Image is a catalog entry for a stored blob.
type Image struct {
	ID         uuid.UUID `json:"id"`
	StorageKey string    `json:"storage_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// Association links an image to an article.
type Association struct {
	ArticleID  uuid.UUID `json:"article_id"`
	ImageID    uuid.UUID `json:"image_id"`
	IsFeatured bool      `json:"is_featured"`
	SortOrder  int       `json:"sort_order"`
}

// ArticleImage is an association joined with the image it points to.
type ArticleImage struct {
	ImageID    uuid.UUID `json:"image_id"`
	StorageKey string    `json:"storage_key"`
	IsFeatured bool      `json:"is_featured"`
	SortOrder  int       `json:"sort_order"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArticleDetails is an article with its images ordered by sort order.
type ArticleDetails struct {
	Article
	Images []*ArticleImage `json:"images"`
}

// CreateArticleResult is returned by CreateArticle.
type CreateArticleResult struct {
	ArticleID       uuid.UUID  `json:"article_id"`
	ImageCount      int        `json:"image_count"`
	FeaturedImageID *uuid.UUID `json:"featured_image_id,omitempty"`
}

// UpdateArticleResult is returned by UpdateArticle.
type UpdateArticleResult struct {
	AddedCount   int `json:"added_count"`
	RemovedCount int `json:"removed_count"`
}

// ReorderItem sets the position and featured flag of one attached image.
type ReorderItem struct {
	ImageID    uuid.UUID `json:"image_id" validate:"required"`
	SortOrder  int       `json:"sort_order" validate:"gte=0"`
	IsFeatured bool      `json:"is_featured"`
}
