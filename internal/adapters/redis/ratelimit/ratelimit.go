// Package ratelimit is the per-token fixed-window publish rate limiter:
// a thin wrapper around *redis.Client using an INCR-and-expire counter per
// window bucket.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/platform/motel"
	"github.com/cratery/cratery/internal/platform/mredis"
)

// Limiter enforces a fixed request budget per window for a given key
// (normally a Token ID).
type Limiter struct {
	conn   *mredis.Connection
	logger mlog.Logger

	// Limit is the number of Allow calls permitted per Window for a given
	// key; Window is the fixed bucket's width, counted from the key's first
	// Allow call.
	Limit  int64
	Window time.Duration
}

// New constructs a Limiter. limit/window default to 30 publishes per 10
// minutes when zero, the kind of number a crates.io-alike registry uses to
// stop a single compromised token from hammering the index/blob store.
func New(conn *mredis.Connection, logger mlog.Logger, limit int64, window time.Duration) *Limiter {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	if limit <= 0 {
		limit = 30
	}

	if window <= 0 {
		window = 10 * time.Minute
	}

	return &Limiter{conn: conn, logger: logger, Limit: limit, Window: window}
}

// Allow increments key's counter for the current window and reports whether
// the caller is still under budget. A Redis failure fails open (logged, not
// rejected): a rate limiter that can take down publishing because the cache
// is unreachable is worse than no rate limiter.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	tracer := motel.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "redis.ratelimit.allow")
	defer span.End()

	client, err := l.conn.GetClient(ctx)
	if err != nil {
		motel.HandleSpanError(&span, "failed to get redis client", err)
		l.logger.Warnf("ratelimit: redis unavailable, failing open: %v", err)

		return true, nil
	}

	bucket := fmt.Sprintf("ratelimit:publish:%s", key)

	count, err := client.Incr(ctx, bucket).Result()
	if err != nil {
		motel.HandleSpanError(&span, "failed to incr rate bucket", err)
		l.logger.Warnf("ratelimit: incr failed, failing open: %v", err)

		return true, nil
	}

	if count == 1 {
		client.Expire(ctx, bucket, l.Window)
	}

	return count <= l.Limit, nil
}
