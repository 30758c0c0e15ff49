package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/jsralgo/fxvault/internal/assistant"
	"github.com/jsralgo/fxvault/internal/auth"
	"github.com/jsralgo/fxvault/internal/ratelimit"
	"github.com/jsralgo/fxvault/internal/service/access"
	"github.com/jsralgo/fxvault/internal/service/accounts"
	"github.com/jsralgo/fxvault/internal/service/proposals"
	"github.com/jsralgo/fxvault/internal/storage"
)

// Server is the FXVault HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Broker, AuthLimiter, ChatLimiter, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	DB           *storage.DB
	JWTMgr       *auth.JWTManager
	AccountSvc   *accounts.Service
	AccessSvc    *access.Service
	ProposalSvc  *proposals.Service
	AssistantSvc *assistant.Service
	Logger       *slog.Logger

	// Optional dependencies (nil = disabled).
	Broker      *Broker
	AuthLimiter ratelimit.Limiter // per-IP, protects the credential exchange
	ChatLimiter ratelimit.Limiter // per-user, protects the completion upstream
	MCPServer   *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// Optional embedded assets.
	UIFS        fs.FS  // Embedded UI filesystem (SPA).
	OpenAPISpec []byte // Embedded OpenAPI YAML.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		AccountSvc:          cfg.AccountSvc,
		AccessSvc:           cfg.AccessSvc,
		ProposalSvc:         cfg.ProposalSvc,
		AssistantSvc:        cfg.AssistantSvc,
		Broker:              cfg.Broker,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Rate limit rules: the token exchange is keyed by client IP, the chat
	// endpoint by authenticated user so one user cannot exhaust the
	// completion-service quota for everyone.
	authRL := ratelimit.Middleware(cfg.AuthLimiter, ratelimit.IPKeyFunc, reqIDFunc)
	chatRL := ratelimit.Middleware(cfg.ChatLimiter, userKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Auth endpoint (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Accounts (per-account permission checks happen in the service).
	mux.HandleFunc("GET /v1/accounts", h.HandleListAccounts)
	mux.HandleFunc("POST /v1/accounts", h.HandleCreateAccount)
	mux.HandleFunc("GET /v1/accounts/{id}", h.HandleGetAccount)
	mux.HandleFunc("PATCH /v1/accounts/{id}", h.HandleUpdateAccount)
	mux.HandleFunc("DELETE /v1/accounts/{id}", h.HandleDeleteAccount)
	mux.HandleFunc("GET /v1/accounts/{id}/permission", h.HandleAccountPermission)

	// Access grants (admin checks in the service; list-own is open).
	mux.HandleFunc("POST /v1/grants", h.HandleCreateGrant)
	mux.HandleFunc("GET /v1/grants", h.HandleListMyGrants)
	mux.HandleFunc("GET /v1/accounts/{id}/grants", h.HandleListAccountGrants)
	mux.HandleFunc("DELETE /v1/accounts/{id}/grants/{user_id}", h.HandleRevokeGrant)

	// Notifications (always scoped to the caller).
	mux.HandleFunc("GET /v1/notifications", h.HandleListNotifications)
	mux.HandleFunc("GET /v1/notifications/unread-count", h.HandleUnreadCount)
	mux.HandleFunc("POST /v1/notifications/{id}/read", h.HandleMarkNotificationRead)
	mux.HandleFunc("POST /v1/notifications/read-all", h.HandleMarkAllNotificationsRead)
	mux.HandleFunc("DELETE /v1/notifications/{id}", h.HandleDeleteNotification)
	mux.HandleFunc("GET /v1/notifications/stream", h.HandleNotificationStream)

	// Chat (rate limited per user — each send is an upstream completion call).
	mux.Handle("POST /v1/chat/messages", chatRL(http.HandlerFunc(h.HandleChatSend)))
	mux.HandleFunc("GET /v1/chat/history", h.HandleChatHistory)
	mux.HandleFunc("DELETE /v1/chat/history", h.HandleChatClear)

	// Schema proposals (admin gating in the service).
	mux.HandleFunc("POST /v1/proposals", h.HandleCreateProposal)
	mux.HandleFunc("GET /v1/proposals", h.HandleListProposals)
	mux.HandleFunc("GET /v1/proposals/{id}", h.HandleGetProposal)
	mux.HandleFunc("POST /v1/proposals/{id}/approve", h.HandleApproveProposal)
	mux.HandleFunc("POST /v1/proposals/{id}/execute", h.HandleExecuteProposal)

	// Custom fields (read open to authenticated users, mutation admin-only).
	adminOnly := requireAdmin
	mux.HandleFunc("GET /v1/custom-fields", h.HandleListCustomFields)
	mux.Handle("POST /v1/custom-fields", adminOnly(http.HandlerFunc(h.HandleCreateCustomField)))
	mux.Handle("PATCH /v1/custom-fields/{id}", adminOnly(http.HandlerFunc(h.HandleUpdateCustomField)))
	mux.Handle("DELETE /v1/custom-fields/{id}", adminOnly(http.HandlerFunc(h.HandleDeleteCustomField)))

	// Catalogs (list: any authenticated; mutation: admin).
	mux.HandleFunc("GET /v1/servers", h.HandleListServers)
	mux.Handle("POST /v1/servers", adminOnly(http.HandlerFunc(h.HandleCreateServer)))
	mux.Handle("DELETE /v1/servers/{id}", adminOnly(http.HandlerFunc(h.HandleDeleteServer)))
	mux.HandleFunc("GET /v1/bots", h.HandleListBots)
	mux.Handle("POST /v1/bots", adminOnly(http.HandlerFunc(h.HandleCreateBot)))
	mux.Handle("DELETE /v1/bots/{id}", adminOnly(http.HandlerFunc(h.HandleDeleteBot)))

	// User management (admin-only).
	mux.Handle("GET /v1/users", adminOnly(http.HandlerFunc(h.HandleListUsers)))
	mux.Handle("POST /v1/users", adminOnly(http.HandlerFunc(h.HandleCreateUser)))
	mux.Handle("POST /v1/users/{id}/role", adminOnly(http.HandlerFunc(h.HandleUpdateUserRole)))

	// Settings (admin-only).
	mux.Handle("GET /v1/settings", adminOnly(http.HandlerFunc(h.HandleListSettings)))
	mux.Handle("PUT /v1/settings/{key}", adminOnly(http.HandlerFunc(h.HandlePutSetting)))
	mux.Handle("DELETE /v1/settings/{key}", adminOnly(http.HandlerFunc(h.HandleDeleteSetting)))
	mux.Handle("POST /v1/settings/test-connection", adminOnly(http.HandlerFunc(h.HandleTestConnection)))

	// MCP StreamableHTTP transport (auth required).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// OpenAPI spec (no auth, no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// SPA: serve the embedded UI at the root path.
	// Registered last so all API routes take priority via the mux's longest-match rule.
	if cfg.UIFS != nil {
		mux.Handle("/", newSPAHandler(cfg.UIFS))
		cfg.Logger.Info("ui enabled, serving SPA at /")
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// userKeyFunc extracts the authenticated user ID for rate limiting.
// Admins are exempt (empty key skips the limiter).
func userKeyFunc(r *http.Request) string {
	actor := ActorFromContext(r.Context())
	if actor == nil || actor.IsAdmin() {
		return ""
	}
	return strconv.FormatInt(actor.UserID, 10)
}

// Handlers returns the underlying Handlers, mainly for tests.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
