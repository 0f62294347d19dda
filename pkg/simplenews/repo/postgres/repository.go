package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tendant/simple-news/pkg/simplenews"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// DB is a DBTX that can also start transactions, such as *pgxpool.Pool or *pgx.Conn.
type DB interface {
	DBTX
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Repository implements simplenews.Repository using PostgreSQL
type Repository struct {
	db DB
	q  *queries
}

var _ simplenews.Repository = (*Repository)(nil)

// New creates a new PostgreSQL repository
func New(db DB) *Repository {
	return &Repository{db: db, q: &queries{db: db}}
}

// WithTx runs fn in a READ COMMITTED transaction. Article and image rows are
// locked by LockArticle and LockImage for the rest of the transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx simplenews.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// rollback must still reach the server when ctx was cancelled
		err := tx.Rollback(context.WithoutCancel(ctx))
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.WarnContext(ctx, "Failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return handlePostgresError("commit", err)
	}
	return nil
}

// Read operations

func (r *Repository) GetArticle(ctx context.Context, id uuid.UUID) (*simplenews.Article, error) {
	return r.q.getArticle(ctx, id, false)
}

func (r *Repository) ListArticles(ctx context.Context) ([]*simplenews.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		ORDER BY created_at DESC, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, handlePostgresError("list articles", err)
	}
	defer rows.Close()

	var result []*simplenews.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, handlePostgresError("scan article", err)
		}
		result = append(result, article)
	}
	return result, rows.Err()
}

func (r *Repository) ListArticleImages(ctx context.Context, articleID uuid.UUID) ([]*simplenews.ArticleImage, error) {
	query := `
		SELECT ai.image_id, i.storage_key, ai.is_featured, ai.sort_order, i.created_at
		FROM article_images ai
		JOIN images i ON i.id = ai.image_id
		WHERE ai.article_id = $1
		ORDER BY ai.sort_order, ai.image_id`

	rows, err := r.db.Query(ctx, query, articleID)
	if err != nil {
		return nil, handlePostgresError("list article images", err)
	}
	defer rows.Close()

	var result []*simplenews.ArticleImage
	for rows.Next() {
		var v simplenews.ArticleImage
		if err := rows.Scan(&v.ImageID, &v.StorageKey, &v.IsFeatured, &v.SortOrder, &v.CreatedAt); err != nil {
			return nil, handlePostgresError("scan article image", err)
		}
		result = append(result, &v)
	}
	return result, rows.Err()
}

func (r *Repository) GetImage(ctx context.Context, id uuid.UUID) (*simplenews.Image, error) {
	return r.q.getImage(ctx, id, false)
}

func (r *Repository) ListImages(ctx context.Context) ([]*simplenews.Image, error) {
	query := `
		SELECT id, storage_key, created_at
		FROM images
		ORDER BY created_at DESC, id`

	return r.listImages(ctx, "list images", query)
}

func (r *Repository) ListUnreferencedImages(ctx context.Context, createdBefore time.Time) ([]*simplenews.Image, error) {
	query := `
		SELECT i.id, i.storage_key, i.created_at
		FROM images i
		WHERE i.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM article_images ai WHERE ai.image_id = i.id)
		ORDER BY i.created_at DESC, i.id`

	return r.listImages(ctx, "list unreferenced images", query, createdBefore)
}

func (r *Repository) listImages(ctx context.Context, op, query string, args ...interface{}) ([]*simplenews.Image, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError(op, err)
	}
	defer rows.Close()

	var result []*simplenews.Image
	for rows.Next() {
		var img simplenews.Image
		if err := rows.Scan(&img.ID, &img.StorageKey, &img.CreatedAt); err != nil {
			return nil, handlePostgresError(op, err)
		}
		result = append(result, &img)
	}
	return result, rows.Err()
}

// handlePostgresError maps constraint violations onto the simplenews error kinds
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			switch pgErr.ConstraintName {
			case "article_images_pkey":
				return simplenews.ErrAssociationExists
			case "images_storage_key_key":
				return simplenews.ErrStorageKeyExists
			case "article_images_sort_order_key":
				return fmt.Errorf("sort order already used by another image: %w", simplenews.ErrConflict)
			}
			return fmt.Errorf("duplicate entry: %w", simplenews.ErrConflict)
		case "23503": // foreign_key_violation
			switch pgErr.ConstraintName {
			case "article_images_article_id_fkey":
				return simplenews.ErrArticleNotFound
			case "article_images_image_id_fkey", "articles_featured_image_id_fkey":
				return simplenews.ErrImageNotFound
			}
			return fmt.Errorf("referenced record not found: %w", simplenews.ErrNotFound)
		case "23514": // check_violation
			return &simplenews.ValidationError{Field: pgErr.ColumnName, Reason: pgErr.Message}
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}
