// Package bootstrap wires every component of the registry together at
// process start: configuration from the environment, the logger, the
// Metadata DB with its migrations, the blob and index stores, the worker
// registry/scheduler/hub triple, and the Fiber server that fronts them all.
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ApplicationName names this component in logs and telemetry.
const ApplicationName = "cratery"

// Misconfiguration and fatal-storage failures carry distinct exit codes at
// the CLI boundary (0 success, 1 generic, 2 misconfiguration, 3 storage).
var (
	ErrMisconfiguration = errors.New("misconfiguration")
	ErrStorageFatal     = errors.New("fatal storage error")
)

// Config is the top level configuration struct for the registry.
type Config struct {
	EnvName  string `env:"ENV_NAME"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Version  string `env:"VERSION"`

	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":8080"`

	// Public URLs package tooling learns from /index/config.json.
	APIURL      string `env:"API_URL" envDefault:"http://localhost:8080"`
	DownloadURL string `env:"DOWNLOAD_URL" envDefault:"http://localhost:8080"`

	// Metadata DB.
	PrimaryDBConnection string `env:"DB_PRIMARY_CONNECTION"`
	ReplicaDBConnection string `env:"DB_REPLICA_CONNECTION"`
	PrimaryDBName       string `env:"DB_NAME" envDefault:"cratery"`
	MigrationsPath      string `env:"DB_MIGRATIONS_PATH" envDefault:"internal/adapters/postgres/migrations"`

	// Blob Store and Index Repository roots.
	BlobDir  string `env:"BLOB_DIR" envDefault:"data/blobs"`
	IndexDir string `env:"INDEX_DIR" envDefault:"data/index"`

	// Optional collaborators; each is skipped entirely when its connection
	// string is empty.
	MongoURI    string `env:"MONGO_URI"`
	MongoDBName string `env:"MONGO_DB_NAME" envDefault:"cratery"`
	RedisURI    string `env:"REDIS_URI"`
	RabbitMQURI string `env:"RABBITMQ_URI"`

	// Session cookies.
	SessionSigningKey string        `env:"SESSION_SIGNING_KEY"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// External identity provider; the handshake
	// endpoints 404 when ClientID is empty.
	OAuthClientID     string `env:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"OAUTH_CLIENT_SECRET"`
	OAuthAuthURL      string `env:"OAUTH_AUTH_URL"`
	OAuthTokenURL     string `env:"OAUTH_TOKEN_URL"`
	OAuthUserInfoURL  string `env:"OAUTH_USERINFO_URL"`
	OAuthRedirectURL  string `env:"OAUTH_REDIRECT_URL"`
	OAuthScopes       string `env:"OAUTH_SCOPES" envDefault:"openid,profile,email"`

	// Worker pool.
	WorkerSharedSecret  string        `env:"WORKER_SHARED_SECRET"`
	WorkerSweepInterval time.Duration `env:"WORKER_SWEEP_INTERVAL" envDefault:"10s"`

	// Upstream allow-list for dependency resolution (comma-separated crate
	// names resolvable against the configured upstream registry).
	UpstreamAllowList string `env:"UPSTREAM_ALLOW_LIST"`

	// Publish rate limiting (requires Redis).
	PublishRateLimit  int64         `env:"PUBLISH_RATE_LIMIT" envDefault:"30"`
	PublishRateWindow time.Duration `env:"PUBLISH_RATE_WINDOW" envDefault:"10m"`
}

// Validate rejects a Config the process cannot start with.
func (c *Config) Validate() error {
	if c.PrimaryDBConnection == "" {
		return fmt.Errorf("%w: DB_PRIMARY_CONNECTION is required", ErrMisconfiguration)
	}

	if c.SessionSigningKey == "" {
		return fmt.Errorf("%w: SESSION_SIGNING_KEY is required", ErrMisconfiguration)
	}

	return nil
}

// oauthConfigured reports whether the external-identity handshake can run.
func (c *Config) oauthConfigured() bool {
	return c.OAuthClientID != ""
}

func (c *Config) oauthScopes() []string {
	parts := strings.Split(c.OAuthScopes, ",")

	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}

	return scopes
}

func (c *Config) upstreamAllowList() []string {
	if c.UpstreamAllowList == "" {
		return nil
	}

	parts := strings.Split(c.UpstreamAllowList, ",")

	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			names = append(names, trimmed)
		}
	}

	return names
}
