package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/tendant/simple-news/pkg/simplenews"
)

// tx implements simplenews.Tx over a working copy of the state. Every
// operation checks ctx so a cancelled caller aborts the transaction.
type tx struct {
	state *state
}

// Article operations

func (t *tx) CreateArticle(ctx context.Context, article *simplenews.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.state.articles[article.ID] = copyArticle(article)
	return nil
}

func (t *tx) LockArticle(ctx context.Context, id uuid.UUID) (*simplenews.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := t.state.articles[id]
	if !ok {
		return nil, simplenews.ErrArticleNotFound
	}
	return copyArticle(a), nil
}

func (t *tx) UpdateArticle(ctx context.Context, article *simplenews.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, ok := t.state.articles[article.ID]
	if !ok {
		return simplenews.ErrArticleNotFound
	}
	updated := copyArticle(article)
	updated.FeaturedImageID = a.FeaturedImageID
	updated.CreatedAt = a.CreatedAt
	t.state.articles[article.ID] = updated
	return nil
}

func (t *tx) SetFeaturedImage(ctx context.Context, articleID uuid.UUID, imageID *uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, ok := t.state.articles[articleID]
	if !ok {
		return simplenews.ErrArticleNotFound
	}
	if imageID == nil {
		a.FeaturedImageID = nil
		return nil
	}
	v := *imageID
	a.FeaturedImageID = &v
	return nil
}

func (t *tx) DeleteArticle(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.state.articles[id]; !ok {
		return simplenews.ErrArticleNotFound
	}
	delete(t.state.articles, id)
	delete(t.state.links, id)
	return nil
}

// Relation operations

func (t *tx) Attach(ctx context.Context, articleID, imageID uuid.UUID, isFeatured bool, sortOrder int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.state.articles[articleID]; !ok {
		return simplenews.ErrArticleNotFound
	}
	if _, ok := t.state.images[imageID]; !ok {
		return simplenews.ErrImageNotFound
	}

	byImage := t.state.links[articleID]
	if byImage == nil {
		byImage = make(map[uuid.UUID]*simplenews.Association)
		t.state.links[articleID] = byImage
	}
	if _, exists := byImage[imageID]; exists {
		return simplenews.ErrAssociationExists
	}
	byImage[imageID] = &simplenews.Association{
		ArticleID:  articleID,
		ImageID:    imageID,
		IsFeatured: isFeatured,
		SortOrder:  sortOrder,
	}
	return nil
}

func (t *tx) Detach(ctx context.Context, articleID, imageID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	byImage := t.state.links[articleID]
	if _, ok := byImage[imageID]; !ok {
		return false, nil
	}
	delete(byImage, imageID)
	return true, nil
}

func (t *tx) DetachAll(ctx context.Context, articleID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(t.state.links, articleID)
	return nil
}

func (t *tx) ListByArticle(ctx context.Context, articleID uuid.UUID) ([]*simplenews.Association, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.state.sortedLinks(articleID), nil
}

func (t *tx) GetAssociation(ctx context.Context, articleID, imageID uuid.UUID) (*simplenews.Association, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := t.state.links[articleID][imageID]
	if !ok {
		return nil, simplenews.ErrAssociationNotFound
	}
	assocCopy := *a
	return &assocCopy, nil
}

func (t *tx) SetFeatured(ctx context.Context, articleID, imageID uuid.UUID, featured bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, ok := t.state.links[articleID][imageID]
	if !ok {
		return simplenews.ErrAssociationNotFound
	}
	a.IsFeatured = featured
	return nil
}

func (t *tx) SetOrder(ctx context.Context, articleID, imageID uuid.UUID, sortOrder int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, ok := t.state.links[articleID][imageID]
	if !ok {
		return simplenews.ErrAssociationNotFound
	}
	a.SortOrder = sortOrder
	return nil
}

func (t *tx) ClearFeatured(ctx context.Context, articleID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, a := range t.state.links[articleID] {
		a.IsFeatured = false
	}
	return nil
}

func (t *tx) CountReferences(ctx context.Context, imageID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return t.state.countReferences(imageID), nil
}

// Image operations

func (t *tx) CreateImage(ctx context.Context, image *simplenews.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := t.state.keys[image.StorageKey]; exists {
		return simplenews.ErrStorageKeyExists
	}
	imgCopy := *image
	t.state.images[image.ID] = &imgCopy
	t.state.keys[image.StorageKey] = image.ID
	return nil
}

func (t *tx) LockImage(ctx context.Context, id uuid.UUID) (*simplenews.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, ok := t.state.images[id]
	if !ok {
		return nil, simplenews.ErrImageNotFound
	}
	imgCopy := *img
	return &imgCopy, nil
}

func (t *tx) DeleteImage(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, ok := t.state.images[id]
	if !ok {
		return simplenews.ErrImageNotFound
	}
	delete(t.state.keys, img.StorageKey)
	delete(t.state.images, id)
	return nil
}
