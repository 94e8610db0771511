package meridian

import (
	"log/slog"

	"github.com/meridianhealth/meridian/internal/config"
	"github.com/meridianhealth/meridian/internal/server"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger      *slog.Logger
	cfg         *config.Config
	store       server.Store
	version     string
	port        int
	databaseURL string
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithConfig replaces the environment-loaded configuration entirely.
// The provided config must already pass config.Validate.
func WithConfig(cfg config.Config) Option {
	return func(o *resolvedOptions) { o.cfg = &cfg }
}

// WithStore injects a pre-built store, skipping the Postgres connection and
// embedded migrations. Used for embedding and tests.
func WithStore(store server.Store) Option {
	return func(o *resolvedOptions) { o.store = store }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithPort overrides the TCP port from config (MERIDIAN_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var). Ignored when WithStore is used.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}
