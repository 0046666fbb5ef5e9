// Package http is the public HTTP surface: a thin translation layer over
// the Auth, Package Service, Worker Registry and Job Scheduler components.
// Fiber route handlers decode, call, and translate errors; every
// package-tooling-facing endpoint returns the crates.io
// `{"errors":[{"detail":...}]}` envelope on failure (nethttp.WithWireError)
// rather than the richer admin-facing ResponseError shape.
package http

import (
	"context"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/token"
	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/platform/authn"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/services/command"
	"github.com/cratery/cratery/internal/services/eventbus"
	"github.com/cratery/cratery/internal/services/query"
	"github.com/cratery/cratery/internal/services/scheduler"
	"github.com/cratery/cratery/internal/services/workerregistry"
	"github.com/cratery/cratery/internal/worker/protocol"
)

// PublishRateLimiter is the narrow interface the publish route needs from
// internal/adapters/redis/ratelimit.Limiter; left unset, publish is unthrottled.
type PublishRateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// WorkerLivenessQuery is the narrow interface the admin worker listing uses
// from internal/adapters/redis/livenesshint.Cache to annotate a worker as
// seen elsewhere in the fleet; left unset, the field is simply omitted.
type WorkerLivenessQuery interface {
	Alive(ctx context.Context, workerID uuid.UUID) bool
}

// Config carries the registry.toml-equivalent values the Index and Worker
// handlers need to answer package tooling's config.json and to gate the
// worker upgrade endpoint.
type Config struct {
	APIURL             string
	DownloadURL        string
	WorkerSharedSecret string
}

// Handler aggregates every dependency the route handlers need: one struct
// rather than one per resource, since the wire surface is one cohesive
// resource (crates).
type Handler struct {
	Command   *command.Service
	Query     *query.Service
	Users     user.Repository
	Tokens    token.Repository
	Auth      *authn.Middleware
	Sessions  *authn.SessionManager
	IdP       *authn.IdentityProvider
	Scheduler *scheduler.Scheduler
	Registry  *workerregistry.Registry
	Hub       *protocol.Hub
	Bus       *eventbus.Bus
	Resolver  *command.DependencyResolver
	Logger    mlog.Logger
	Options   Config

	// RateLimiter throttles PUT /api/v1/crates/new per token (per user for a
	// principal without a token). Nil means unthrottled.
	RateLimiter PublishRateLimiter

	// LivenessQuery annotates ListWorkers with fleet-wide liveness. Nil
	// omits the annotation.
	LivenessQuery WorkerLivenessQuery
}
