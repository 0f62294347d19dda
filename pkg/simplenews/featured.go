package simplenews

import (
	"bytes"
	"cmp"
	"context"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// selectFeatured picks the association that should carry the featured flag.
// The second result reports whether the stored flags have to be rewritten:
// a single featured association is kept as is, anything else is repaired to
// the lowest sort order with the smaller image ID breaking ties.
func selectFeatured(assocs []*Association) (*Association, bool) {
	if len(assocs) == 0 {
		return nil, false
	}

	var featured *Association
	count := 0
	for _, a := range assocs {
		if a.IsFeatured {
			featured = a
			count++
		}
	}
	if count == 1 {
		return featured, false
	}

	return slices.MinFunc(assocs, compareAssociations), true
}

func compareAssociations(a, b *Association) int {
	if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
		return c
	}
	return bytes.Compare(a.ImageID[:], b.ImageID[:])
}

// reconcileFeatured restores the featured-image invariants of one article
// inside tx and returns the resulting featured image reference.
func reconcileFeatured(ctx context.Context, tx Tx, article *Article) (*uuid.UUID, error) {
	assocs, err := tx.ListByArticle(ctx, article.ID)
	if err != nil {
		return nil, err
	}

	chosen, repair := selectFeatured(assocs)
	if chosen == nil {
		if article.FeaturedImageID != nil {
			if err := tx.SetFeaturedImage(ctx, article.ID, nil); err != nil {
				return nil, err
			}
			article.FeaturedImageID = nil
		}
		return nil, nil
	}

	if repair {
		if err := tx.ClearFeatured(ctx, article.ID); err != nil {
			return nil, err
		}
		if err := tx.SetFeatured(ctx, article.ID, chosen.ImageID, true); err != nil {
			return nil, err
		}
	}

	ref := chosen.ImageID
	if article.FeaturedImageID == nil || *article.FeaturedImageID != ref {
		if err := tx.SetFeaturedImage(ctx, article.ID, &ref); err != nil {
			return nil, err
		}
		article.FeaturedImageID = &ref
	}
	return &ref, nil
}
