// Package simplenews provides the article and image association engine
// behind the news backend, with pluggable repository and blob storage
// backends.
//
// It exposes a single Service interface that creates, updates, reorders and
// deletes articles together with their images. Every operation runs in one
// repository transaction and keeps the featured image of each article
// consistent with its associations. Physical blob deletion happens only after
// the transaction commits and never fails the operation that requested it.
//
// Implementations of repositories (memory, Postgres) and blob stores (memory,
// filesystem, S3) are provided under subpackages.
package simplenews
