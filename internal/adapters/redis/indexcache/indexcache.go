// Package indexcache wraps an index.Repository with a short-TTL Redis
// read-through cache for hot package index reads: a decorator that
// implements the same port it wraps.
package indexcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cratery/cratery/internal/domain/indexentry"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/platform/mredis"
	"github.com/cratery/cratery/internal/ports/index"
)

// DefaultTTL bounds how stale a cached index read may be; short enough that
// a publish's own synchronous Rewrite/Append is never meaningfully masked
// by a cache hit on the next GET /index request.
const DefaultTTL = 5 * time.Second

// Repository decorates an index.Repository with a cached Read path.
// Append/Rewrite/ShardPath pass straight through and invalidate the cache
// key they touch, so a write is always immediately visible.
type Repository struct {
	index.Repository

	conn   *mredis.Connection
	logger mlog.Logger
	ttl    time.Duration
}

// New wraps next with a Redis-backed cache over its Read method.
func New(next index.Repository, conn *mredis.Connection, logger mlog.Logger) *Repository {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &Repository{Repository: next, conn: conn, logger: logger, ttl: DefaultTTL}
}

func cacheKey(crateName string) string {
	return "indexcache:" + crateName
}

// Read serves from Redis when available and unexpired, otherwise falls
// through to the wrapped Repository and repopulates the cache. A Redis
// failure at any point falls through silently — this is a performance
// optimization, never a source of truth.
func (r *Repository) Read(ctx context.Context, crateName string) ([]indexentry.Entry, error) {
	client, err := r.conn.GetClient(ctx)
	if err == nil {
		if raw, getErr := client.Get(ctx, cacheKey(crateName)).Result(); getErr == nil {
			var entries []indexentry.Entry
			if jsonErr := json.Unmarshal([]byte(raw), &entries); jsonErr == nil {
				return entries, nil
			}
		}
	} else {
		r.logger.Warnf("indexcache: redis unavailable, bypassing cache: %v", err)
	}

	entries, err := r.Repository.Read(ctx, crateName)
	if err != nil {
		return nil, err
	}

	if client != nil {
		if raw, marshalErr := json.Marshal(entries); marshalErr == nil {
			client.Set(ctx, cacheKey(crateName), raw, r.ttl)
		}
	}

	return entries, nil
}

// Append invalidates crateName's cache entry after delegating.
func (r *Repository) Append(ctx context.Context, crateName string, entry indexentry.Entry) error {
	if err := r.Repository.Append(ctx, crateName, entry); err != nil {
		return err
	}

	r.invalidate(ctx, crateName)

	return nil
}

// Rewrite invalidates crateName's cache entry after delegating.
func (r *Repository) Rewrite(ctx context.Context, crateName string, entries []indexentry.Entry) error {
	if err := r.Repository.Rewrite(ctx, crateName, entries); err != nil {
		return err
	}

	r.invalidate(ctx, crateName)

	return nil
}

func (r *Repository) invalidate(ctx context.Context, crateName string) {
	client, err := r.conn.GetClient(ctx)
	if err != nil {
		return
	}

	client.Del(ctx, cacheKey(crateName))
}
