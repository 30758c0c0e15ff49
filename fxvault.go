// Package fxvault is the public API for embedding the FXVault server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := fxvault.New(
//	    fxvault.WithVersion(version),
//	    fxvault.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: fxvault (root) imports
// internal/*, but internal/* never imports fxvault (root).
package fxvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/jsralgo/fxvault/api"
	"github.com/jsralgo/fxvault/internal/assistant"
	"github.com/jsralgo/fxvault/internal/auth"
	"github.com/jsralgo/fxvault/internal/config"
	"github.com/jsralgo/fxvault/internal/mcp"
	"github.com/jsralgo/fxvault/internal/ratelimit"
	"github.com/jsralgo/fxvault/internal/server"
	"github.com/jsralgo/fxvault/internal/service/access"
	"github.com/jsralgo/fxvault/internal/service/accounts"
	"github.com/jsralgo/fxvault/internal/service/proposals"
	"github.com/jsralgo/fxvault/internal/storage"
	"github.com/jsralgo/fxvault/internal/telemetry"
	"github.com/jsralgo/fxvault/migrations"
	"github.com/jsralgo/fxvault/ui"
)

// App is the FXVault server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	broker       *server.Broker // nil when no notify connection
	limiters     []ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the FXVault server. It connects to the database, runs
// migrations, bootstraps the owner identity, and wires all subsystems.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("fxvault starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to database and migrate.
	db, err := storage.New(context.Background(), cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	db.RegisterPoolMetrics()

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// Bootstrap the owner identity: promoted to admin, API key replaced
	// with the configured one on every start.
	if cfg.OwnerOpenID != "" && cfg.OwnerAPIKey != "" {
		hash, herr := auth.HashAPIKey(cfg.OwnerAPIKey)
		if herr != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("owner bootstrap: hash key: %w", herr)
		}
		owner, oerr := db.EnsureOwner(context.Background(), cfg.OwnerOpenID, hash)
		if oerr != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("owner bootstrap: %w", oerr)
		}
		logger.Info("owner identity ensured", "user_id", owner.ID, "open_id", owner.OpenID)
	} else {
		logger.Warn("owner bootstrap skipped (FXVAULT_OWNER_OPEN_ID / FXVAULT_OWNER_API_KEY not set)")
	}

	// JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}

	// Services.
	accountSvc := accounts.New(db, logger)
	accessSvc := access.New(db, logger)
	proposalSvc := proposals.New(db, logger)

	var completer assistant.Completer
	if o.completer != nil {
		completer = o.completer
	} else {
		completer = assistant.NewClient(cfg.CompletionBaseURL, cfg.CompletionModel, cfg.CompletionTimeout)
	}
	assistantSvc := assistant.New(db, completer, accountSvc, proposalSvc, cfg.CompletionAPIKey, logger)

	// MCP server over the same account service and permission model.
	mcpSrv := mcp.New(accountSvc, logger)

	// SSE broker needs the dedicated notify connection.
	var broker *server.Broker
	if db.HasNotifyConn() {
		broker = server.NewBroker(db, logger)
	} else {
		logger.Info("SSE broker: disabled (no notify connection)")
	}

	// Rate limiters.
	var authLimiter, chatLimiter ratelimit.Limiter
	var limiters []ratelimit.Limiter
	if cfg.RateLimitEnabled {
		al := ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		cl := ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		authLimiter, chatLimiter = al, cl
		limiters = append(limiters, al, cl)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		logger.Info("rate limiting: disabled")
	}

	// Embedded SPA: nil unless built with the ui tag.
	uiFS, err := ui.DistFS()
	if err != nil {
		logger.Warn("ui assets unavailable", "error", err)
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		AccountSvc:          accountSvc,
		AccessSvc:           accessSvc,
		ProposalSvc:         proposalSvc,
		AssistantSvc:        assistantSvc,
		Broker:              broker,
		AuthLimiter:         authLimiter,
		ChatLimiter:         chatLimiter,
		MCPServer:           mcpSrv.MCPServer(),
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		UIFS:                uiFS,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		broker:       broker,
		limiters:     limiters,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the SSE broker and the HTTP server, then blocks until ctx is
// cancelled or a fatal server error occurs. On return, Shutdown is called
// automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	if a.broker != nil {
		go a.broker.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the rate limiters,
// database pool, and OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("fxvault shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	for _, l := range a.limiters {
		_ = l.Close()
	}
	_ = a.otelShutdown(context.Background())
	a.db.Close(context.Background())

	a.logger.Info("fxvault stopped")
	return nil
}
