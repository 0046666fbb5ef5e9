// Package index defines the Index Repository's port: the
// append-only, per-crate newline-delimited-JSON projection that package
// tooling fetches. The Metadata DB remains authoritative; this is a derived
// view, rebuildable by the reconciler.
package index

import (
	"context"

	"github.com/cratery/cratery/internal/domain/indexentry"
)

// Repository maintains the on-disk index file tree.
type Repository interface {
	// Append adds a new line for entry to crateName's index file, creating
	// the file and its shard directories if necessary. Used by Publish.
	Append(ctx context.Context, crateName string, entry indexentry.Entry) error

	// Rewrite replaces crateName's entire index file with entries, in order.
	// Used by Yank/Unyank (flip one line's `yanked` field) and Remove (drop
	// one line), and by the reconciler to re-derive a dirty file from the DB.
	Rewrite(ctx context.Context, crateName string, entries []indexentry.Entry) error

	// Read returns the current entries for crateName in publication order.
	// Returns an empty slice, not an error, if the crate has no index file yet.
	Read(ctx context.Context, crateName string) ([]indexentry.Entry, error)

	// ShardPath returns the relative path (e.g. "wi/dg/widgets") a crate name
	// maps to, mirroring the public-registry convention.
	ShardPath(crateName string) string
}
