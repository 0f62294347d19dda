package simplenews

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tendant/simple-news/pkg/simplenews/storagekey"
)

const defaultCleanupConcurrency = 4

// service implements the Service interface
type service struct {
	repository         Repository
	blobStore          BlobStore
	backendName        string
	keyGenerator       storagekey.Generator
	eventSink          EventSink
	metrics            Metrics
	logger             *slog.Logger
	validate           *validator.Validate
	cleanupConcurrency int
	now                func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend and the name used in errors and logs
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		s.backendName = name
		s.blobStore = store
	}
}

// WithKeyGenerator sets the generator used to derive storage keys from file names
func WithKeyGenerator(g storagekey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = g
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithMetrics sets the metrics recorder for the service
func WithMetrics(m Metrics) Option {
	return func(s *service) {
		s.metrics = m
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithCleanupConcurrency bounds the number of parallel blob deletions after commit
func WithCleanupConcurrency(n int) Option {
	return func(s *service) {
		s.cleanupConcurrency = n
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		keyGenerator:       storagekey.NewTimestampGenerator(),
		eventSink:          NewNoopEventSink(),
		metrics:            NoopMetrics{},
		logger:             slog.Default(),
		validate:           validator.New(),
		cleanupConcurrency: defaultCleanupConcurrency,
		now:                func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.cleanupConcurrency < 1 {
		s.cleanupConcurrency = 1
	}

	return s, nil
}

// inTx runs fn in a repository transaction. Store failures that are not one
// of the caller-facing kinds are reported as ErrTransaction.
func (s *service) inTx(ctx context.Context, op string, fn func(tx Tx) error) error {
	err := s.repository.WithTx(ctx, fn)
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTransaction, op, err)
}

func (s *service) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, time.Since(start), *err)
}

// Article operations

func (s *service) CreateArticle(ctx context.Context, req CreateArticleRequest) (result *CreateArticleResult, err error) {
	defer s.observe("create_article", time.Now(), &err)

	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	now := s.now()
	article := &Article{
		ID:         uuid.New(),
		Title:      req.Title,
		Content:    req.Content,
		CategoryID: req.CategoryID,
		Author:     req.Author,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var created []*Image
	err = s.inTx(ctx, "create_article", func(tx Tx) error {
		created = created[:0]
		if err := tx.CreateArticle(ctx, article); err != nil {
			return err
		}

		attached := make(map[uuid.UUID]bool)
		order := 0
		attach := func(imageID uuid.UUID) error {
			if err := tx.Attach(ctx, article.ID, imageID, order == 0, order); err != nil {
				return err
			}
			attached[imageID] = true
			order++
			return nil
		}

		for _, key := range req.ImageKeys {
			image := &Image{ID: uuid.New(), StorageKey: key, CreatedAt: now}
			if err := tx.CreateImage(ctx, image); err != nil {
				return err
			}
			created = append(created, image)
			if err := attach(image.ID); err != nil {
				return err
			}
		}

		for _, imageID := range req.ImageIDs {
			if attached[imageID] {
				continue
			}
			if _, err := tx.LockImage(ctx, imageID); err != nil {
				return &ImageError{ImageID: imageID, Op: "attach", Err: err}
			}
			if err := attach(imageID); err != nil {
				return err
			}
		}

		ref, err := reconcileFeatured(ctx, tx, article)
		if err != nil {
			return err
		}

		result = &CreateArticleResult{
			ArticleID:       article.ID,
			ImageCount:      order,
			FeaturedImageID: ref,
		}
		return nil
	})
	if err != nil {
		return nil, &ArticleError{ArticleID: article.ID, Op: "create", Err: err}
	}

	if err := s.eventSink.ArticleCreated(ctx, article); err != nil {
		s.logger.DebugContext(ctx, "event sink rejected article created", "article_id", article.ID, "error", err)
	}
	for _, image := range created {
		if err := s.eventSink.ImageCreated(ctx, image); err != nil {
			s.logger.DebugContext(ctx, "event sink rejected image created", "image_id", image.ID, "error", err)
		}
	}

	return result, nil
}

func (s *service) GetArticle(ctx context.Context, id uuid.UUID) (*ArticleDetails, error) {
	article, err := s.repository.GetArticle(ctx, id)
	if err != nil {
		return nil, &ArticleError{ArticleID: id, Op: "get", Err: err}
	}
	return s.withImages(ctx, article)
}

func (s *service) ListArticles(ctx context.Context) ([]*ArticleDetails, error) {
	articles, err := s.repository.ListArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}

	result := make([]*ArticleDetails, 0, len(articles))
	for _, article := range articles {
		details, err := s.withImages(ctx, article)
		if err != nil {
			return nil, err
		}
		result = append(result, details)
	}
	return result, nil
}

func (s *service) withImages(ctx context.Context, article *Article) (*ArticleDetails, error) {
	images, err := s.repository.ListArticleImages(ctx, article.ID)
	if err != nil {
		return nil, &ArticleError{ArticleID: article.ID, Op: "list_images", Err: err}
	}
	if images == nil {
		images = []*ArticleImage{}
	}
	return &ArticleDetails{Article: *article, Images: images}, nil
}

func (s *service) UpdateArticle(ctx context.Context, req UpdateArticleRequest) (result *UpdateArticleResult, err error) {
	defer s.observe("update_article", time.Now(), &err)

	if err := s.validateUpdate(req); err != nil {
		return nil, err
	}

	now := s.now()
	var (
		article  *Article
		intents  []reclaimed
		created  []*Image
		removeID = dedupe(req.RemoveImageIDs)
	)
	err = s.inTx(ctx, "update_article", func(tx Tx) error {
		created = created[:0]

		var err error
		article, err = tx.LockArticle(ctx, req.ArticleID)
		if err != nil {
			return err
		}

		if applyArticleFields(article, req) {
			article.UpdatedAt = now
			if err := tx.UpdateArticle(ctx, article); err != nil {
				return err
			}
		}

		removed := 0
		for _, imageID := range removeID {
			ok, err := tx.Detach(ctx, article.ID, imageID)
			if err != nil {
				return err
			}
			if ok {
				removed++
			}
		}

		intents, err = reclaimAll(ctx, tx, removeID)
		if err != nil {
			return err
		}

		assocs, err := tx.ListByArticle(ctx, article.ID)
		if err != nil {
			return err
		}
		attached := make(map[uuid.UUID]bool, len(assocs))
		next := 0
		for _, a := range assocs {
			attached[a.ImageID] = true
			if a.SortOrder >= next {
				next = a.SortOrder + 1
			}
		}

		added := 0
		attach := func(imageID uuid.UUID) error {
			if err := tx.Attach(ctx, article.ID, imageID, false, next); err != nil {
				return err
			}
			attached[imageID] = true
			next++
			added++
			return nil
		}

		for _, key := range req.AddImageKeys {
			image := &Image{ID: uuid.New(), StorageKey: key, CreatedAt: now}
			if err := tx.CreateImage(ctx, image); err != nil {
				return err
			}
			created = append(created, image)
			if err := attach(image.ID); err != nil {
				return err
			}
		}

		for _, imageID := range req.AddImageIDs {
			if attached[imageID] {
				continue
			}
			if _, err := tx.LockImage(ctx, imageID); err != nil {
				return &ImageError{ImageID: imageID, Op: "attach", Err: err}
			}
			if err := attach(imageID); err != nil {
				return err
			}
		}

		if _, err := reconcileFeatured(ctx, tx, article); err != nil {
			return err
		}

		result = &UpdateArticleResult{AddedCount: added, RemovedCount: removed}
		return nil
	})
	if err != nil {
		return nil, &ArticleError{ArticleID: req.ArticleID, Op: "update", Err: err}
	}

	s.afterReclaim(ctx, intents)

	if err := s.eventSink.ArticleUpdated(ctx, article); err != nil {
		s.logger.DebugContext(ctx, "event sink rejected article updated", "article_id", article.ID, "error", err)
	}
	for _, image := range created {
		if err := s.eventSink.ImageCreated(ctx, image); err != nil {
			s.logger.DebugContext(ctx, "event sink rejected image created", "image_id", image.ID, "error", err)
		}
	}

	return result, nil
}

func (s *service) ReorderImages(ctx context.Context, articleID uuid.UUID, items []ReorderItem) (err error) {
	defer s.observe("reorder_images", time.Now(), &err)

	if err := s.validateReorder(items); err != nil {
		return err
	}

	err = s.inTx(ctx, "reorder_images", func(tx Tx) error {
		article, err := tx.LockArticle(ctx, articleID)
		if err != nil {
			return err
		}

		if err := tx.ClearFeatured(ctx, articleID); err != nil {
			return err
		}

		for _, item := range items {
			if _, err := tx.GetAssociation(ctx, articleID, item.ImageID); err != nil {
				return &ImageError{ImageID: item.ImageID, Op: "reorder", Err: err}
			}
			if err := tx.SetOrder(ctx, articleID, item.ImageID, item.SortOrder); err != nil {
				return err
			}
			if item.IsFeatured {
				if err := tx.SetFeatured(ctx, articleID, item.ImageID, true); err != nil {
					return err
				}
			}
		}

		assocs, err := tx.ListByArticle(ctx, articleID)
		if err != nil {
			return err
		}
		for i := 1; i < len(assocs); i++ {
			if assocs[i].SortOrder == assocs[i-1].SortOrder {
				return &ValidationError{
					Field:  "sort_order",
					Reason: fmt.Sprintf("%d is used by more than one image", assocs[i].SortOrder),
				}
			}
		}

		_, err = reconcileFeatured(ctx, tx, article)
		return err
	})
	if err != nil {
		return &ArticleError{ArticleID: articleID, Op: "reorder", Err: err}
	}
	return nil
}

func (s *service) RemoveImage(ctx context.Context, articleID, imageID uuid.UUID) (err error) {
	defer s.observe("remove_image", time.Now(), &err)

	var intents []reclaimed
	err = s.inTx(ctx, "remove_image", func(tx Tx) error {
		article, err := tx.LockArticle(ctx, articleID)
		if err != nil {
			return err
		}

		if _, err := tx.GetAssociation(ctx, articleID, imageID); err != nil {
			return err
		}
		if _, err := tx.Detach(ctx, articleID, imageID); err != nil {
			return err
		}

		if _, err := reconcileFeatured(ctx, tx, article); err != nil {
			return err
		}

		intents, err = reclaimAll(ctx, tx, []uuid.UUID{imageID})
		return err
	})
	if err != nil {
		return &ArticleError{ArticleID: articleID, Op: "remove_image", Err: err}
	}

	s.afterReclaim(ctx, intents)
	return nil
}

func (s *service) DeleteArticle(ctx context.Context, id uuid.UUID) (err error) {
	defer s.observe("delete_article", time.Now(), &err)

	var intents []reclaimed
	err = s.inTx(ctx, "delete_article", func(tx Tx) error {
		if _, err := tx.LockArticle(ctx, id); err != nil {
			return err
		}

		assocs, err := tx.ListByArticle(ctx, id)
		if err != nil {
			return err
		}
		imageIDs := make([]uuid.UUID, 0, len(assocs))
		for _, a := range assocs {
			imageIDs = append(imageIDs, a.ImageID)
		}

		if err := tx.DetachAll(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteArticle(ctx, id); err != nil {
			return err
		}

		intents, err = reclaimAll(ctx, tx, imageIDs)
		return err
	})
	if err != nil {
		return &ArticleError{ArticleID: id, Op: "delete", Err: err}
	}

	s.afterReclaim(ctx, intents)

	if err := s.eventSink.ArticleDeleted(ctx, id); err != nil {
		s.logger.DebugContext(ctx, "event sink rejected article deleted", "article_id", id, "error", err)
	}
	return nil
}

// Image operations

func (s *service) UploadImage(ctx context.Context, reader io.Reader, req UploadImageRequest) (image *Image, err error) {
	defer s.observe("upload_image", time.Now(), &err)

	key, err := s.UploadBlob(ctx, reader, req)
	if err != nil {
		return nil, err
	}

	image = &Image{ID: uuid.New(), StorageKey: key, CreatedAt: s.now()}
	err = s.inTx(ctx, "upload_image", func(tx Tx) error {
		return tx.CreateImage(ctx, image)
	})
	if err != nil {
		s.DiscardBlobs(ctx, []string{key})
		return nil, &ImageError{ImageID: image.ID, Op: "create", Err: err}
	}

	if err := s.eventSink.ImageCreated(ctx, image); err != nil {
		s.logger.DebugContext(ctx, "event sink rejected image created", "image_id", image.ID, "error", err)
	}
	return image, nil
}

func (s *service) GetImage(ctx context.Context, id uuid.UUID) (*Image, error) {
	image, err := s.repository.GetImage(ctx, id)
	if err != nil {
		return nil, &ImageError{ImageID: id, Op: "get", Err: err}
	}
	return image, nil
}

func (s *service) ListImages(ctx context.Context) ([]*Image, error) {
	images, err := s.repository.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

func (s *service) DeleteImage(ctx context.Context, id uuid.UUID) (err error) {
	defer s.observe("delete_image", time.Now(), &err)

	var key string
	err = s.inTx(ctx, "delete_image", func(tx Tx) error {
		image, err := tx.LockImage(ctx, id)
		if err != nil {
			return err
		}

		refs, err := tx.CountReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrImageInUse
		}

		key = image.StorageKey
		return tx.DeleteImage(ctx, id)
	})
	if err != nil {
		return &ImageError{ImageID: id, Op: "delete", Err: err}
	}

	s.afterReclaim(ctx, []reclaimed{{imageID: id, key: key}})
	return nil
}

func (s *service) SweepOrphans(ctx context.Context, cutoff time.Time) (count int, err error) {
	defer s.observe("sweep_orphans", time.Now(), &err)

	candidates, err := s.repository.ListUnreferencedImages(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list unreferenced images: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, 0, len(candidates))
	for _, image := range candidates {
		ids = append(ids, image.ID)
	}

	var intents []reclaimed
	err = s.inTx(ctx, "sweep_orphans", func(tx Tx) error {
		var err error
		intents, err = reclaimAll(ctx, tx, ids)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.afterReclaim(ctx, intents)
	return len(intents), nil
}

// Blob helpers

func (s *service) UploadBlob(ctx context.Context, reader io.Reader, req UploadImageRequest) (string, error) {
	if err := s.validateStruct(req); err != nil {
		return "", err
	}

	key := s.keyGenerator.Generate(req.FileName)
	err := s.blobStore.Upload(ctx, reader, UploadParams{ObjectKey: key, MimeType: req.MimeType})
	if err != nil {
		return "", &StorageError{Backend: s.backendName, Key: key, Op: "upload", Err: err}
	}
	return key, nil
}

func (s *service) DiscardBlobs(ctx context.Context, keys []string) {
	s.deleteBlobs(ctx, keys)
}

func (s *service) OpenBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.blobStore.Download(ctx, key)
	if err != nil {
		return nil, &StorageError{Backend: s.backendName, Key: key, Op: "download", Err: err}
	}
	return rc, nil
}

func (s *service) ImageURL(ctx context.Context, key string) (string, error) {
	url, err := s.blobStore.GetPreviewURL(ctx, key)
	if err != nil {
		return "", &StorageError{Backend: s.backendName, Key: key, Op: "preview_url", Err: err}
	}
	return url, nil
}

func applyArticleFields(article *Article, req UpdateArticleRequest) bool {
	changed := false
	if req.Title != nil && *req.Title != article.Title {
		article.Title = *req.Title
		changed = true
	}
	if req.Content != nil && *req.Content != article.Content {
		article.Content = *req.Content
		changed = true
	}
	if req.CategoryID != nil {
		category := *req.CategoryID
		article.CategoryID = &category
		changed = true
	}
	if req.Author != nil {
		author := *req.Author
		article.Author = &author
		changed = true
	}
	return changed
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
