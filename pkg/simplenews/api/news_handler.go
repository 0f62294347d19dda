package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-news/pkg/simplenews"
)

// ImageResponse is an image attached to an article
type ImageResponse struct {
	ImageID    string `json:"image_id"`
	StorageKey string `json:"storage_key"`
	URL        string `json:"url,omitempty"`
	IsFeatured bool   `json:"is_featured"`
	SortOrder  int    `json:"sort_order"`
}

// ArticleResponse is the response body for an article
type ArticleResponse struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Content         string          `json:"content"`
	CategoryID      *string         `json:"category_id"`
	Author          *string         `json:"author"`
	FeaturedImageID *string         `json:"featured_image_id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Images          []ImageResponse `json:"images"`
}

// CatalogImageResponse is an entry of the image catalog
type CatalogImageResponse struct {
	ID         string    `json:"id"`
	StorageKey string    `json:"storage_key"`
	URL        string    `json:"url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateArticleResponse is returned by POST /
type CreateArticleResponse struct {
	Message         string  `json:"message"`
	ID              string  `json:"id"`
	ImageCount      int     `json:"image_count"`
	FeaturedImageID *string `json:"featured_image_id"`
}

// UpdateArticleResponse is returned by PUT /{id}
type UpdateArticleResponse struct {
	Message       string `json:"message"`
	AddedImages   int    `json:"added_images"`
	RemovedImages int    `json:"removed_images"`
}

// UploadImageResponse is returned by POST /images/upload
type UploadImageResponse struct {
	Message  string `json:"message"`
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url,omitempty"`
}

// ReorderRequest is the body of PATCH /{id}/images/order
type ReorderRequest struct {
	Images []ReorderItemRequest `json:"images"`
}

// ReorderItemRequest positions one attached image
type ReorderItemRequest struct {
	ImageID    string `json:"image_id"`
	SortOrder  int    `json:"sort_order"`
	IsFeatured bool   `json:"is_featured"`
}

// NewsHandler serves the article and image endpoints
type NewsHandler struct {
	service simplenews.Service
	limits  UploadLimits
	admin   []func(http.Handler) http.Handler
}

// NewNewsHandler creates a handler. The admin middlewares guard every
// mutating route; reads are public.
func NewNewsHandler(service simplenews.Service, limits UploadLimits, admin ...func(http.Handler) http.Handler) *NewsHandler {
	if limits.MaxFiles <= 0 || limits.MaxFileBytes <= 0 {
		limits = DefaultUploadLimits
	}
	return &NewsHandler{service: service, limits: limits, admin: admin}
}

// Routes returns the routes for news
func (h *NewsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListArticles)
	r.Get("/images/all", h.ListImages)
	r.Get("/{id}", h.GetArticle)

	r.Group(func(r chi.Router) {
		r.Use(h.admin...)

		r.Post("/", h.CreateArticle)
		r.Put("/{id}", h.UpdateArticle)
		r.Patch("/{id}/images/order", h.ReorderImages)
		r.Delete("/{id}/images/{imageId}", h.RemoveImage)
		r.Delete("/{id}", h.DeleteArticle)

		r.Post("/images/upload", h.UploadImage)
		r.Delete("/images/{id}", h.DeleteImage)
	})

	return r
}

func urlID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, r, name, "Invalid ID")
		return uuid.Nil, false
	}
	return id, true
}

// ListArticles lists articles, newest first
func (h *NewsHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := h.service.ListArticles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]ArticleResponse, 0, len(articles))
	for _, a := range articles {
		resp = append(resp, h.articleResponse(r.Context(), a))
	}
	render.JSON(w, r, resp)
}

// GetArticle returns one article with its images in display order
func (h *NewsHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	article, err := h.service.GetArticle(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, h.articleResponse(r.Context(), article))
}

// CreateArticle creates an article from a multipart form
func (h *NewsHandler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := parseForm(w, r, h.limits); err != nil {
		writeUploadError(w, r, err)
		return
	}
	defer cleanupForm(r)

	categoryID, err := optionalUUID(r, "category_id")
	if err != nil {
		writeUploadError(w, r, err)
		return
	}
	imageIDs, err := idList(r, "image_ids")
	if err != nil {
		writeUploadError(w, r, err)
		return
	}
	files, err := formFiles(r, "images", h.limits)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	keys, err := storeFiles(ctx, h.service, files)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.service.CreateArticle(ctx, simplenews.CreateArticleRequest{
		Title:      r.FormValue("title"),
		Content:    r.FormValue("content"),
		CategoryID: categoryID,
		Author:     optionalString(r, "author"),
		ImageKeys:  keys,
		ImageIDs:   imageIDs,
	})
	if err != nil {
		h.service.DiscardBlobs(ctx, keys)
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreateArticleResponse{
		Message:         "News created successfully",
		ID:              result.ArticleID.String(),
		ImageCount:      result.ImageCount,
		FeaturedImageID: uuidString(result.FeaturedImageID),
	})
}

// UpdateArticle changes fields and adds or removes images
func (h *NewsHandler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	if err := parseForm(w, r, h.limits); err != nil {
		writeUploadError(w, r, err)
		return
	}
	defer cleanupForm(r)

	req := simplenews.UpdateArticleRequest{ArticleID: id}
	if v, ok := formValue(r, "title"); ok {
		req.Title = &v
	}
	if v, ok := formValue(r, "content"); ok {
		req.Content = &v
	}
	req.Author = optionalString(r, "author")

	var err error
	if req.CategoryID, err = optionalUUID(r, "category_id"); err != nil {
		writeUploadError(w, r, err)
		return
	}
	if req.AddImageIDs, err = idList(r, "new_image_ids"); err != nil {
		writeUploadError(w, r, err)
		return
	}
	if req.RemoveImageIDs, err = idList(r, "removed_image_ids"); err != nil {
		writeUploadError(w, r, err)
		return
	}
	files, err := formFiles(r, "images", h.limits)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	if req.AddImageKeys, err = storeFiles(ctx, h.service, files); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.service.UpdateArticle(ctx, req)
	if err != nil {
		h.service.DiscardBlobs(ctx, req.AddImageKeys)
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, UpdateArticleResponse{
		Message:       "News updated successfully",
		AddedImages:   result.AddedCount,
		RemovedImages: result.RemovedCount,
	})
}

// ReorderImages applies sort orders and the featured choice
func (h *NewsHandler) ReorderImages(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	var req ReorderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "", "Invalid JSON body")
		return
	}
	if req.Images == nil {
		badRequest(w, r, "images", "Images array is required")
		return
	}

	items := make([]simplenews.ReorderItem, 0, len(req.Images))
	for _, item := range req.Images {
		imageID, err := uuid.Parse(item.ImageID)
		if err != nil {
			badRequest(w, r, "image_id", "Invalid image ID")
			return
		}
		items = append(items, simplenews.ReorderItem{
			ImageID:    imageID,
			SortOrder:  item.SortOrder,
			IsFeatured: item.IsFeatured,
		})
	}

	if err := h.service.ReorderImages(r.Context(), id, items); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "Image order updated successfully"})
}

// RemoveImage detaches one image from an article
func (h *NewsHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	articleID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	imageID, ok := urlID(w, r, "imageId")
	if !ok {
		return
	}

	if err := h.service.RemoveImage(r.Context(), articleID, imageID); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "Image removed from news successfully"})
}

// DeleteArticle deletes an article and reclaims its unshared images
func (h *NewsHandler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteArticle(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "News deleted successfully"})
}

// ListImages lists the image catalog, newest first
func (h *NewsHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.service.ListImages(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]CatalogImageResponse, 0, len(images))
	for _, img := range images {
		resp = append(resp, CatalogImageResponse{
			ID:         img.ID.String(),
			StorageKey: img.StorageKey,
			URL:        h.imageURL(r.Context(), img.StorageKey),
			CreatedAt:  img.CreatedAt,
		})
	}
	render.JSON(w, r, resp)
}

// UploadImage stores a standalone image for later attachment
func (h *NewsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	single := UploadLimits{MaxFileBytes: h.limits.MaxFileBytes, MaxFiles: 1}
	if err := parseForm(w, r, single); err != nil {
		writeUploadError(w, r, err)
		return
	}
	defer cleanupForm(r)

	files, err := formFiles(r, "image", single)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}
	if len(files) == 0 {
		badRequest(w, r, "image", "No image file provided")
		return
	}

	f, err := files[0].Open()
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()

	image, err := h.service.UploadImage(r.Context(), f, simplenews.UploadImageRequest{
		FileName: files[0].Filename,
		MimeType: files[0].Header.Get("Content-Type"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, UploadImageResponse{
		Message:  "Image uploaded successfully",
		ID:       image.ID.String(),
		Filename: image.StorageKey,
		URL:      h.imageURL(r.Context(), image.StorageKey),
	})
}

// DeleteImage deletes an image no article references
func (h *NewsHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteImage(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "Image deleted successfully"})
}

func (h *NewsHandler) articleResponse(ctx context.Context, a *simplenews.ArticleDetails) ArticleResponse {
	resp := ArticleResponse{
		ID:              a.ID.String(),
		Title:           a.Title,
		Content:         a.Content,
		CategoryID:      uuidString(a.CategoryID),
		Author:          a.Author,
		FeaturedImageID: uuidString(a.FeaturedImageID),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		Images:          make([]ImageResponse, 0, len(a.Images)),
	}
	for _, img := range a.Images {
		resp.Images = append(resp.Images, ImageResponse{
			ImageID:    img.ImageID.String(),
			StorageKey: img.StorageKey,
			URL:        h.imageURL(ctx, img.StorageKey),
			IsFeatured: img.IsFeatured,
			SortOrder:  img.SortOrder,
		})
	}
	return resp
}

func (h *NewsHandler) imageURL(ctx context.Context, key string) string {
	url, err := h.service.ImageURL(ctx, key)
	if err != nil {
		slog.DebugContext(ctx, "No preview URL for image", "storage_key", key, "error", err)
		return ""
	}
	return url
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
