package simplenews

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds. Every error returned by the service matches exactly one of
// these with errors.Is.
var (
	// ErrInvalid indicates the request was rejected before any state changed
	ErrInvalid = errors.New("validation failed")

	// ErrNotFound indicates a referenced entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the request conflicts with current state
	ErrConflict = errors.New("conflict")

	// ErrTransaction indicates the store failed and the transaction was rolled back
	ErrTransaction = errors.New("transaction failed")
)

var (
	ErrArticleNotFound     = fmt.Errorf("article %w", ErrNotFound)
	ErrImageNotFound       = fmt.Errorf("image %w", ErrNotFound)
	ErrAssociationNotFound = fmt.Errorf("image is not attached to article: %w", ErrNotFound)

	// ErrBlobNotFound is returned by BlobStore.Download for unknown keys
	ErrBlobNotFound = fmt.Errorf("blob %w", ErrNotFound)

	// ErrAssociationExists is returned by RelationStore.Attach for an existing pair
	ErrAssociationExists = fmt.Errorf("image already attached to article: %w", ErrConflict)

	// ErrImageInUse is returned when deleting an image that articles still reference
	ErrImageInUse = fmt.Errorf("image is still referenced by articles: %w", ErrConflict)

	// ErrStorageKeyExists is returned when registering a storage key twice
	ErrStorageKeyExists = fmt.Errorf("storage key already registered: %w", ErrConflict)
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

// ArticleError represents an error related to article operations
type ArticleError struct {
	ArticleID uuid.UUID
	Op        string
	Err       error
}

func (e *ArticleError) Error() string {
	return fmt.Sprintf("article operation %s failed for article %s: %v", e.Op, e.ArticleID, e.Err)
}

func (e *ArticleError) Unwrap() error {
	return e.Err
}

// ImageError represents an error related to image operations
type ImageError struct {
	ImageID uuid.UUID
	Op      string
	Err     error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image operation %s failed for image %s: %v", e.Op, e.ImageID, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CleanupWarning reports a blob that could not be deleted after its catalog
// row was removed. It is logged and reported to the event sink, never
// returned to callers.
type CleanupWarning struct {
	Key string
	Err error
}

func (w *CleanupWarning) Error() string {
	return fmt.Sprintf("blob cleanup failed for key %s: %v", w.Key, w.Err)
}

func (w *CleanupWarning) Unwrap() error {
	return w.Err
}

// isDomainError reports whether err already carries one of the caller-facing
// kinds and must not be wrapped as a transaction failure.
func isDomainError(err error) bool {
	return errors.Is(err, ErrInvalid) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
}
