// Package blob defines the Blob Store port: opaque,
// content-addressable byte storage for tarballs and rendered docs. The core
// only consumes this interface; concrete backends (local filesystem,
// S3-compatible) are collaborators.
package blob

import (
	"context"
	"io"
)

// Store is opaque, content-addressable byte storage. Keys carry a kind
// prefix ("crates/", "docs/") and are otherwise meaningless to callers.
type Store interface {
	// Put writes the full contents of r under key, replacing any existing
	// object at that key.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens key for reading. The caller must Close the returned reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a key that doesn't exist is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Move renames srcKey to dstKey atomically from the caller's point of
	// view, used to promote a temporary upload key to its final
	// content-addressed key.
	Move(ctx context.Context, srcKey, dstKey string) error
}

// CratesKey returns the content-addressed object key for a crate tarball.
func CratesKey(contentHash string) string {
	return "crates/" + contentHash
}

// DocsKey returns the object key for a version's rendered documentation
// archive.
func DocsKey(crateID, versionID string) string {
	return "docs/" + crateID + "/" + versionID
}

// TempKey returns a scratch key a publish streams into before its content
// hash is known, namespaced by uploadID so concurrent publishes never
// collide.
func TempKey(uploadID string) string {
	return "tmp/" + uploadID
}
