package simplenews

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// afterReclaim runs once the reclaiming transaction has committed: it deletes
// the blobs and reports each reclaimed image.
func (s *service) afterReclaim(ctx context.Context, intents []reclaimed) {
	if len(intents) == 0 {
		return
	}

	keys := make([]string, 0, len(intents))
	for _, r := range intents {
		keys = append(keys, r.key)
	}
	s.deleteBlobs(ctx, keys)

	s.metrics.ImagesReclaimed(len(intents))
	for _, r := range intents {
		s.logger.DebugContext(ctx, "image reclaimed", "image_id", r.imageID, "storage_key", r.key)
		if err := s.eventSink.ImageReclaimed(ctx, r.imageID, r.key); err != nil {
			s.logger.DebugContext(ctx, "event sink rejected image reclaimed", "image_id", r.imageID, "error", err)
		}
	}
}

// deleteBlobs removes blobs best-effort. It runs detached from the caller's
// cancellation and never returns an error; failures become CleanupWarnings.
func (s *service) deleteBlobs(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.cleanupConcurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := s.blobStore.Delete(ctx, key); err != nil {
				s.cleanupFailed(ctx, &CleanupWarning{
					Key: key,
					Err: &StorageError{Backend: s.backendName, Key: key, Op: "delete", Err: err},
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *service) cleanupFailed(ctx context.Context, warning *CleanupWarning) {
	s.logger.WarnContext(ctx, "Failed to delete blob", "storage_key", warning.Key, "error", warning.Err)
	s.metrics.CleanupFailed(warning.Key)
	if err := s.eventSink.CleanupFailed(ctx, warning); err != nil {
		s.logger.DebugContext(ctx, "event sink rejected cleanup warning", "storage_key", warning.Key, "error", err)
	}
}
