package bootstrap

import (
	"fmt"
	"time"

	crateAdapter "github.com/cratery/cratery/internal/adapters/postgres/crate"
	jobAdapter "github.com/cratery/cratery/internal/adapters/postgres/job"
	ownershipAdapter "github.com/cratery/cratery/internal/adapters/postgres/ownership"
	tokenAdapter "github.com/cratery/cratery/internal/adapters/postgres/token"
	userAdapter "github.com/cratery/cratery/internal/adapters/postgres/user"
	versionAdapter "github.com/cratery/cratery/internal/adapters/postgres/version"

	"github.com/cratery/cratery/internal/adapters/fsblob"
	"github.com/cratery/cratery/internal/adapters/fsindex"
	"github.com/cratery/cratery/internal/adapters/mongodb/audit"
	"github.com/cratery/cratery/internal/adapters/mongodb/jobevents"
	"github.com/cratery/cratery/internal/adapters/rabbitmq/forwarder"
	"github.com/cratery/cratery/internal/adapters/redis/indexcache"
	"github.com/cratery/cratery/internal/adapters/redis/livenesshint"
	"github.com/cratery/cratery/internal/adapters/redis/ratelimit"
	"github.com/cratery/cratery/internal/platform/authn"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/platform/mmongo"
	"github.com/cratery/cratery/internal/platform/mpostgres"
	"github.com/cratery/cratery/internal/platform/mrabbitmq"
	"github.com/cratery/cratery/internal/platform/mredis"
	"github.com/cratery/cratery/internal/platform/mzap"
	httpPort "github.com/cratery/cratery/internal/ports/http"
	"github.com/cratery/cratery/internal/ports/index"
	"github.com/cratery/cratery/internal/services/command"
	"github.com/cratery/cratery/internal/services/eventbus"
	"github.com/cratery/cratery/internal/services/query"
	"github.com/cratery/cratery/internal/services/reconcile"
	"github.com/cratery/cratery/internal/services/scheduler"
	"github.com/cratery/cratery/internal/services/workerregistry"
	"github.com/cratery/cratery/internal/worker/protocol"
)

// Service is the application glue holding every top level component.
type Service struct {
	Config     *Config
	Logger     mlog.Logger
	Server     *Server
	Postgres   *mpostgres.Connection
	Registry   *workerregistry.Registry
	Scheduler  *scheduler.Scheduler
	Hub        *protocol.Hub
	Reconciler *reconcile.Reconciler

	// Forwarder is nil when RabbitMQ isn't configured.
	Forwarder *forwarder.Forwarder
}

// schedulerHandle breaks the Hub/Scheduler construction cycle: the Hub is
// built first against this handle, the Scheduler is built against the Hub,
// then the handle is bound. Binding completes before any connection is
// served.
type schedulerHandle struct {
	*scheduler.Scheduler
}

// InitServers reads configuration from the environment and assembles the
// whole registry.
func InitServers() (*Service, error) {
	cfg := &Config{}

	if err := SetConfigFromEnvVars(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := mzap.InitLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	return initWithLogger(cfg, logger)
}

func initWithLogger(cfg *Config, logger mlog.Logger) (*Service, error) {
	replicaConn := cfg.ReplicaDBConnection
	if replicaConn == "" {
		replicaConn = cfg.PrimaryDBConnection
	}

	postgres := &mpostgres.Connection{
		ConnectionStringPrimary: cfg.PrimaryDBConnection,
		ConnectionStringReplica: replicaConn,
		PrimaryDBName:           cfg.PrimaryDBName,
		MigrationsPath:          cfg.MigrationsPath,
		Logger:                  logger,
	}

	users := userAdapter.New(postgres)
	tokens := tokenAdapter.New(postgres)
	crates := crateAdapter.New(postgres)
	versions := versionAdapter.New(postgres)
	owners := ownershipAdapter.New(postgres)
	jobs := jobAdapter.New(postgres)

	blobs := fsblob.New(cfg.BlobDir)

	var idx index.Repository = fsindex.New(cfg.IndexDir)

	var redisConn *mredis.Connection
	if cfg.RedisURI != "" {
		redisConn = &mredis.Connection{ConnectionString: cfg.RedisURI, Logger: logger}
		idx = indexcache.New(idx, redisConn, logger)
	}

	var mongoConn *mmongo.Connection
	if cfg.MongoURI != "" {
		mongoConn = &mmongo.Connection{ConnectionString: cfg.MongoURI, Database: cfg.MongoDBName, Logger: logger}
	}

	bus := eventbus.New(logger)

	registry := workerregistry.New(bus, logger)
	if redisConn != nil {
		registry = registry.WithLivenessHint(livenesshint.New(redisConn, logger))
	}

	handle := &schedulerHandle{}
	hub := protocol.NewHub(registry, handle, logger)
	if mongoConn != nil {
		hub = hub.WithProgressRecorder(jobevents.New(mongoConn, logger))
	}

	sched := scheduler.New(jobs, registry, bus, hub, logger)
	handle.Scheduler = sched

	commandService := command.NewService(crates, versions, owners, idx, blobs, sched, bus, logger)

	if mongoConn != nil {
		commandService.Audit = audit.NewCommandLoggerAdapter(audit.New(mongoConn, logger))
	}

	queryService := query.NewService(crates, versions, owners, idx, logger)

	resolver := command.NewDependencyResolver(crates, cfg.upstreamAllowList())

	sessions := authn.NewSessionManager([]byte(cfg.SessionSigningKey), cfg.SessionTTL)
	verifier := &authn.TokenVerifier{Tokens: tokens}
	middleware := &authn.Middleware{Verifier: verifier, Sessions: sessions, Users: users}

	var idp *authn.IdentityProvider
	if cfg.oauthConfigured() {
		idp = authn.NewIdentityProvider(
			cfg.OAuthClientID,
			cfg.OAuthClientSecret,
			cfg.OAuthAuthURL,
			cfg.OAuthTokenURL,
			cfg.OAuthUserInfoURL,
			cfg.OAuthRedirectURL,
			cfg.oauthScopes(),
		)
	}

	handler := &httpPort.Handler{
		Command:   commandService,
		Query:     queryService,
		Users:     users,
		Tokens:    tokens,
		Auth:      middleware,
		Sessions:  sessions,
		IdP:       idp,
		Scheduler: sched,
		Registry:  registry,
		Hub:       hub,
		Bus:       bus,
		Resolver:  resolver,
		Logger:    logger,
		Options: httpPort.Config{
			APIURL:             cfg.APIURL,
			DownloadURL:        cfg.DownloadURL,
			WorkerSharedSecret: cfg.WorkerSharedSecret,
		},
	}

	if redisConn != nil {
		handler.RateLimiter = ratelimit.New(redisConn, logger, cfg.PublishRateLimit, cfg.PublishRateWindow)
		handler.LivenessQuery = livenesshint.New(redisConn, logger)
	}

	reconciler := reconcile.New(crates, versions, jobs, idx, blobs, logger)
	reconciler.Requeuer = sched

	svc := &Service{
		Config:     cfg,
		Logger:     logger,
		Postgres:   postgres,
		Registry:   registry,
		Scheduler:  sched,
		Hub:        hub,
		Reconciler: reconciler,
	}

	if cfg.RabbitMQURI != "" {
		rabbitConn := &mrabbitmq.Connection{ConnectionString: cfg.RabbitMQURI, Logger: logger}
		svc.Forwarder = forwarder.New(rabbitConn, bus, logger)
	}

	app := httpPort.NewRouter(logger, handler)

	sweep := cfg.WorkerSweepInterval
	if sweep <= 0 {
		sweep = 10 * time.Second
	}

	svc.Server = NewServer(cfg, app, logger, svc, sweep)

	return svc, nil
}
