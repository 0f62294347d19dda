package simplenews

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// reclaim deletes the catalog row of an image nothing references any more.
// It returns the storage key to delete once the transaction has committed.
// A missing or still referenced image is left alone.
func reclaim(ctx context.Context, tx Tx, imageID uuid.UUID) (string, bool, error) {
	image, err := tx.LockImage(ctx, imageID)
	if errors.Is(err, ErrImageNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	refs, err := tx.CountReferences(ctx, imageID)
	if err != nil {
		return "", false, err
	}
	if refs > 0 {
		return "", false, nil
	}

	if err := tx.DeleteImage(ctx, imageID); err != nil {
		return "", false, err
	}
	return image.StorageKey, true, nil
}

// reclaimAll runs reclaim for each image and collects the deletion intents.
func reclaimAll(ctx context.Context, tx Tx, imageIDs []uuid.UUID) ([]reclaimed, error) {
	var out []reclaimed
	for _, id := range imageIDs {
		key, ok, err := reclaim(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, reclaimed{imageID: id, key: key})
		}
	}
	return out, nil
}

type reclaimed struct {
	imageID uuid.UUID
	key     string
}
