package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"

	"github.com/tendant/simple-news/pkg/simplenews"
)

// Repository implements simplenews.Repository using in-memory storage.
//
// Transactions run against a private copy of the state and are swapped in on
// commit. Writers are serialized, which gives every transaction the effect of
// holding all row locks.
type Repository struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *state
}

type state struct {
	articles map[uuid.UUID]*simplenews.Article
	images   map[uuid.UUID]*simplenews.Image
	keys     map[string]uuid.UUID                                  // storage_key -> image_id
	links    map[uuid.UUID]map[uuid.UUID]*simplenews.Association // article_id -> image_id -> association
}

var _ simplenews.Repository = (*Repository)(nil)

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		state: &state{
			articles: make(map[uuid.UUID]*simplenews.Article),
			images:   make(map[uuid.UUID]*simplenews.Image),
			keys:     make(map[string]uuid.UUID),
			links:    make(map[uuid.UUID]map[uuid.UUID]*simplenews.Association),
		},
	}
}

func (s *state) clone() *state {
	c := &state{
		articles: make(map[uuid.UUID]*simplenews.Article, len(s.articles)),
		images:   make(map[uuid.UUID]*simplenews.Image, len(s.images)),
		keys:     maps.Clone(s.keys),
		links:    make(map[uuid.UUID]map[uuid.UUID]*simplenews.Association, len(s.links)),
	}
	for id, a := range s.articles {
		c.articles[id] = copyArticle(a)
	}
	for id, img := range s.images {
		imgCopy := *img
		c.images[id] = &imgCopy
	}
	for articleID, byImage := range s.links {
		m := make(map[uuid.UUID]*simplenews.Association, len(byImage))
		for imageID, assoc := range byImage {
			assocCopy := *assoc
			m[imageID] = &assocCopy
		}
		c.links[articleID] = m
	}
	return c
}

// WithTx runs fn against a copy of the committed state.
func (r *Repository) WithTx(ctx context.Context, fn func(tx simplenews.Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	work := r.state.clone()
	r.mu.RUnlock()

	if err := fn(&tx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.state = work
	r.mu.Unlock()
	return nil
}

// Read operations

func (r *Repository) GetArticle(ctx context.Context, id uuid.UUID) (*simplenews.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.state.articles[id]
	if !ok {
		return nil, simplenews.ErrArticleNotFound
	}
	return copyArticle(a), nil
}

func (r *Repository) ListArticles(ctx context.Context) ([]*simplenews.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simplenews.Article, 0, len(r.state.articles))
	for _, a := range r.state.articles {
		result = append(result, copyArticle(a))
	}

	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return bytes.Compare(result[i].ID[:], result[j].ID[:]) < 0
	})
	return result, nil
}

func (r *Repository) ListArticleImages(ctx context.Context, articleID uuid.UUID) ([]*simplenews.ArticleImage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	assocs := r.state.sortedLinks(articleID)
	result := make([]*simplenews.ArticleImage, 0, len(assocs))
	for _, a := range assocs {
		img, ok := r.state.images[a.ImageID]
		if !ok {
			continue
		}
		result = append(result, &simplenews.ArticleImage{
			ImageID:    a.ImageID,
			StorageKey: img.StorageKey,
			IsFeatured: a.IsFeatured,
			SortOrder:  a.SortOrder,
			CreatedAt:  img.CreatedAt,
		})
	}
	return result, nil
}

func (r *Repository) GetImage(ctx context.Context, id uuid.UUID) (*simplenews.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	img, ok := r.state.images[id]
	if !ok {
		return nil, simplenews.ErrImageNotFound
	}
	imgCopy := *img
	return &imgCopy, nil
}

func (r *Repository) ListImages(ctx context.Context) ([]*simplenews.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortImages(r.state.images, func(*simplenews.Image) bool { return true }), nil
}

func (r *Repository) ListUnreferencedImages(ctx context.Context, createdBefore time.Time) ([]*simplenews.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortImages(r.state.images, func(img *simplenews.Image) bool {
		return img.CreatedAt.Before(createdBefore) && r.state.countReferences(img.ID) == 0
	}), nil
}

func sortImages(images map[uuid.UUID]*simplenews.Image, keep func(*simplenews.Image) bool) []*simplenews.Image {
	result := make([]*simplenews.Image, 0, len(images))
	for _, img := range images {
		if keep(img) {
			imgCopy := *img
			result = append(result, &imgCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return bytes.Compare(result[i].ID[:], result[j].ID[:]) < 0
	})
	return result
}

func (s *state) sortedLinks(articleID uuid.UUID) []*simplenews.Association {
	byImage := s.links[articleID]
	result := make([]*simplenews.Association, 0, len(byImage))
	for _, a := range byImage {
		assocCopy := *a
		result = append(result, &assocCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SortOrder != result[j].SortOrder {
			return result[i].SortOrder < result[j].SortOrder
		}
		return bytes.Compare(result[i].ImageID[:], result[j].ImageID[:]) < 0
	})
	return result
}

func (s *state) countReferences(imageID uuid.UUID) int {
	n := 0
	for _, byImage := range s.links {
		if _, ok := byImage[imageID]; ok {
			n++
		}
	}
	return n
}

func copyArticle(a *simplenews.Article) *simplenews.Article {
	c := *a
	if a.CategoryID != nil {
		v := *a.CategoryID
		c.CategoryID = &v
	}
	if a.Author != nil {
		v := *a.Author
		c.Author = &v
	}
	if a.FeaturedImageID != nil {
		v := *a.FeaturedImageID
		c.FeaturedImageID = &v
	}
	return &c
}
