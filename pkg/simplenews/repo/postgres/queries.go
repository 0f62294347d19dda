package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tendant/simple-news/pkg/simplenews"
)

// queries implements simplenews.Tx on top of a pgx transaction
type queries struct {
	db DBTX
}

const articleColumns = `id, title, content, category_id, author, featured_image_id, created_at, updated_at`

func scanArticle(row pgx.Row) (*simplenews.Article, error) {
	var a simplenews.Article
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.CategoryID, &a.Author,
		&a.FeaturedImageID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Article operations

func (q *queries) CreateArticle(ctx context.Context, article *simplenews.Article) error {
	query := `
		INSERT INTO articles (` + articleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := q.db.Exec(ctx, query,
		article.ID, article.Title, article.Content, article.CategoryID, article.Author,
		article.FeaturedImageID, article.CreatedAt, article.UpdatedAt)
	if err != nil {
		return handlePostgresError("create article", err)
	}
	return nil
}

func (q *queries) LockArticle(ctx context.Context, id uuid.UUID) (*simplenews.Article, error) {
	return q.getArticle(ctx, id, true)
}

func (q *queries) getArticle(ctx context.Context, id uuid.UUID, lock bool) (*simplenews.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	article, err := scanArticle(q.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, simplenews.ErrArticleNotFound
	}
	if err != nil {
		return nil, handlePostgresError("get article", err)
	}
	return article, nil
}

func (q *queries) UpdateArticle(ctx context.Context, article *simplenews.Article) error {
	query := `
		UPDATE articles SET
			title = $2, content = $3, category_id = $4, author = $5, updated_at = $6
		WHERE id = $1`

	tag, err := q.db.Exec(ctx, query,
		article.ID, article.Title, article.Content, article.CategoryID, article.Author, article.UpdatedAt)
	if err != nil {
		return handlePostgresError("update article", err)
	}
	if tag.RowsAffected() == 0 {
		return simplenews.ErrArticleNotFound
	}
	return nil
}

func (q *queries) SetFeaturedImage(ctx context.Context, articleID uuid.UUID, imageID *uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `UPDATE articles SET featured_image_id = $2 WHERE id = $1`, articleID, imageID)
	if err != nil {
		return handlePostgresError("set featured image", err)
	}
	if tag.RowsAffected() == 0 {
		return simplenews.ErrArticleNotFound
	}
	return nil
}

func (q *queries) DeleteArticle(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete article", err)
	}
	if tag.RowsAffected() == 0 {
		return simplenews.ErrArticleNotFound
	}
	return nil
}

// Relation operations

func (q *queries) Attach(ctx context.Context, articleID, imageID uuid.UUID, isFeatured bool, sortOrder int) error {
	query := `
		INSERT INTO article_images (article_id, image_id, is_featured, sort_order)
		VALUES ($1, $2, $3, $4)`

	if _, err := q.db.Exec(ctx, query, articleID, imageID, isFeatured, sortOrder); err != nil {
		return handlePostgresError("attach image", err)
	}
	return nil
}

func (q *queries) Detach(ctx context.Context, articleID, imageID uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM article_images WHERE article_id = $1 AND image_id = $2`, articleID, imageID)
	if err != nil {
		return false, handlePostgresError("detach image", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (q *queries) DetachAll(ctx context.Context, articleID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM article_images WHERE article_id = $1`, articleID); err != nil {
		return handlePostgresError("detach all images", err)
	}
	return nil
}

func (q *queries) ListByArticle(ctx context.Context, articleID uuid.UUID) ([]*simplenews.Association, error) {
	query := `
		SELECT article_id, image_id, is_featured, sort_order
		FROM article_images
		WHERE article_id = $1
		ORDER BY sort_order, image_id`

	rows, err := q.db.Query(ctx, query, articleID)
	if err != nil {
		return nil, handlePostgresError("list associations", err)
	}
	defer rows.Close()

	var result []*simplenews.Association
	for rows.Next() {
		var a simplenews.Association
		if err := rows.Scan(&a.ArticleID, &a.ImageID, &a.IsFeatured, &a.SortOrder); err != nil {
			return nil, handlePostgresError("scan association", err)
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

func (q *queries) GetAssociation(ctx context.Context, articleID, imageID uuid.UUID) (*simplenews.Association, error) {
	query := `
		SELECT article_id, image_id, is_featured, sort_order
		FROM article_images
		WHERE article_id = $1 AND image_id = $2`

	var a simplenews.Association
	err := q.db.QueryRow(ctx, query, articleID, imageID).Scan(&a.ArticleID, &a.ImageID, &a.IsFeatured, &a.SortOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, simplenews.ErrAssociationNotFound
	}
	if err != nil {
		return nil, handlePostgresError("get association", err)
	}
	return &a, nil
}

func (q *queries) SetFeatured(ctx context.Context, articleID, imageID uuid.UUID, featured bool) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE article_images SET is_featured = $3 WHERE article_id = $1 AND image_id = $2`,
		articleID, imageID, featured)
	if err != nil {
		return handlePostgresError("set featured", err)
	}
	if tag.RowsAffected() == 0 {
		return simplenews.ErrAssociationNotFound
	}
	return nil
}

func (q *queries) SetOrder(ctx context.Context, articleID, imageID uuid.UUID, sortOrder int) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE article_images SET sort_order = $3 WHERE article_id = $1 AND image_id = $2`,
		articleID, imageID, sortOrder)
	if err != nil {
		return handlePostgresError("set sort order", err)
	}
	if tag.RowsAffected() == 0 {
		return simplenews.ErrAssociationNotFound
	}
	return nil
}

func (q *queries) ClearFeatured(ctx context.Context, articleID uuid.UUID) error {
	_, err := q.db.Exec(ctx,
		`UPDATE article_images SET is_featured = FALSE WHERE article_id = $1 AND is_featured`, articleID)
	if err != nil {
		return handlePostgresError("clear featured", err)
	}
	return nil
}

func (q *queries) CountReferences(ctx context.Context, imageID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM article_images WHERE image_id = $1`, imageID).Scan(&n)
	if err != nil {
		return 0, handlePostgresError("count references", err)
	}
	return n, nil
}

// Image operations

func (q *queries) CreateImage(ctx context.Context, image *simplenews.Image) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO images (id, storage_key, created_at) VALUES ($1, $2, $3)`,
		image.ID, image.StorageKey, image.CreatedAt)
	if err != nil {
		return handlePostgresError("create image", err)
	}
	return nil
}

func (q *queries) LockImage(ctx context.Context, id uuid.UUID) (*simplenews.Image, error) {
	return q.getImage(ctx, id, true)
}

func (q *queries) getImage(ctx context.Context, id uuid.UUID, lock bool) (*simplenews.Image, error) {
	query := `SELECT id, storage_key, created_at FROM images WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var img simplenews.Image
	err := q.db.QueryRow(ctx, query, id).Scan(&img.ID, &img.StorageKey, &img.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, simplenews.ErrImageNotFound
	}
	if err != nil {
		return nil, handlePostgresError("get image", err)
	}
	return &img, nil
}

func (q *queries) DeleteImage(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete image", err)
	}
	if tag.RowsAffected() == 0 {
		return simplenews.ErrImageNotFound
	}
	return nil
}
