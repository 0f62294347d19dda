package simplenews

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ArticleCreated(ctx context.Context, article *Article) error { return nil }
func (n *NoopEventSink) ArticleUpdated(ctx context.Context, article *Article) error { return nil }
func (n *NoopEventSink) ArticleDeleted(ctx context.Context, articleID uuid.UUID) error {
	return nil
}
func (n *NoopEventSink) ImageCreated(ctx context.Context, image *Image) error { return nil }
func (n *NoopEventSink) ImageReclaimed(ctx context.Context, imageID uuid.UUID, storageKey string) error {
	return nil
}
func (n *NoopEventSink) CleanupFailed(ctx context.Context, warning *CleanupWarning) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action.
// Useful for development and debugging.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) ArticleCreated(ctx context.Context, article *Article) error {
	l.logger.InfoContext(ctx, "Article created", "article_id", article.ID, "title", article.Title)
	return nil
}

func (l *LoggingEventSink) ArticleUpdated(ctx context.Context, article *Article) error {
	l.logger.InfoContext(ctx, "Article updated", "article_id", article.ID, "featured_image_id", article.FeaturedImageID)
	return nil
}

func (l *LoggingEventSink) ArticleDeleted(ctx context.Context, articleID uuid.UUID) error {
	l.logger.InfoContext(ctx, "Article deleted", "article_id", articleID)
	return nil
}

func (l *LoggingEventSink) ImageCreated(ctx context.Context, image *Image) error {
	l.logger.InfoContext(ctx, "Image created", "image_id", image.ID, "storage_key", image.StorageKey)
	return nil
}

func (l *LoggingEventSink) ImageReclaimed(ctx context.Context, imageID uuid.UUID, storageKey string) error {
	l.logger.InfoContext(ctx, "Image reclaimed", "image_id", imageID, "storage_key", storageKey)
	return nil
}

func (l *LoggingEventSink) CleanupFailed(ctx context.Context, warning *CleanupWarning) error {
	l.logger.WarnContext(ctx, "Blob cleanup failed", "storage_key", warning.Key, "error", warning.Err)
	return nil
}

// NoopMetrics discards all measurements
type NoopMetrics struct{}

func (NoopMetrics) ObserveOperation(op string, duration time.Duration, err error) {}
func (NoopMetrics) ImagesReclaimed(n int)                                         {}
func (NoopMetrics) CleanupFailed(key string)                                      {}
