package fxvault

import (
	"context"
	"log/slog"
	"time"

	"github.com/jsralgo/fxvault/internal/assistant"
)

// Completer is the completion-service client interface an embedder can
// replace via WithCompleter. It matches the internal assistant client.
type Completer interface {
	Complete(ctx context.Context, apiKey string, messages []assistant.Message, collectionID string) (string, error)
}

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds configuration overrides after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port        int
	databaseURL string
	notifyURL   string
	logger      *slog.Logger
	version     string
	completer   Completer
}

// WithPort overrides the TCP port from config (FXVAULT_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithNotifyURL overrides the direct Postgres URL used for LISTEN/NOTIFY (NOTIFY_URL env var).
// Set this when using a connection pooler (e.g. PgBouncer) for queries — LISTEN/NOTIFY
// requires a direct (non-pooled) connection.
func WithNotifyURL(url string) Option {
	return func(o *resolvedOptions) { o.notifyURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithCompleter replaces the built-in completion client. Useful for pointing
// at a different OpenAI-compatible vendor or for tests.
func WithCompleter(c Completer) Option {
	return func(o *resolvedOptions) { o.completer = c }
}

// shutdownTimeout bounds the HTTP drain during graceful shutdown.
const shutdownTimeout = 15 * time.Second
