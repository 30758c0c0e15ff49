package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jsralgo/fxvault/internal/assistant"
	"github.com/jsralgo/fxvault/internal/auth"
	"github.com/jsralgo/fxvault/internal/authz"
	"github.com/jsralgo/fxvault/internal/model"
	"github.com/jsralgo/fxvault/internal/service/access"
	"github.com/jsralgo/fxvault/internal/service/accounts"
	"github.com/jsralgo/fxvault/internal/service/proposals"
	"github.com/jsralgo/fxvault/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	jwtMgr              *auth.JWTManager
	accountSvc          *accounts.Service
	accessSvc           *access.Service
	proposalSvc         *proposals.Service
	assistantSvc        *assistant.Service
	broker              *Broker
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Broker.
type HandlersDeps struct {
	DB                  *storage.DB
	JWTMgr              *auth.JWTManager
	AccountSvc          *accounts.Service
	AccessSvc           *access.Service
	ProposalSvc         *proposals.Service
	AssistantSvc        *assistant.Service
	Broker              *Broker
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		jwtMgr:              d.JWTMgr,
		accountSvc:          d.AccountSvc,
		accessSvc:           d.AccessSvc,
		proposalSvc:         d.ProposalSvc,
		assistantSvc:        d.AssistantSvc,
		broker:              d.Broker,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// HandleAuthToken handles POST /auth/token.
// Exchanges an open_id + API key pair for a signed JWT.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.OpenID == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "open_id and api_key are required")
		return
	}

	user, err := h.db.GetUserByOpenID(r.Context(), req.OpenID)
	if err != nil || user.APIKeyHash == nil {
		// Burn the same hashing cost as a real verification so response
		// timing does not reveal whether the user exists.
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	valid, verr := auth.VerifyAPIKey(req.APIKey, *user.APIKeyHash)
	if verr != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(user)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	if terr := h.db.TouchUserSignIn(r.Context(), user.ID, time.Now().UTC()); terr != nil {
		h.logger.Warn("failed to record sign-in", "user_id", user.ID, "error", terr)
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	resp := model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	}
	if h.broker != nil {
		resp.SSEBroker = "running"
	}

	writeJSON(w, r, httpStatus, resp)
}

// writeInternalError logs the underlying error with request correlation and
// returns a generic 500 so internals never leak to clients.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// --- Shared helpers ---

// writeServiceError maps the well-known service error classes onto HTTP
// statuses; anything unrecognized becomes a logged 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallbackMsg string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "not found")
	case errors.Is(err, storage.ErrConflict):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
	case errors.Is(err, authz.ErrForbidden):
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "insufficient permissions")
	default:
		h.writeInternalError(w, r, fallbackMsg, err)
	}
}

// mustActor returns the authenticated actor or writes a 401. The auth
// middleware guarantees an actor on every protected route, so a miss here
// means a routing bug, but the check keeps handlers safe to call directly
// in tests.
func (h *Handlers) mustActor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor := ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no actor in context")
		return model.Actor{}, false
	}
	return *actor, true
}

func pathID(r *http.Request, key string) (int64, error) {
	raw := r.PathValue(key)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return id, nil
}

// maxQueryLimit is the maximum allowed value for limit query parameters.
const maxQueryLimit = 500

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// queryLimit returns a bounded limit value from query params.
// Values are clamped to [1, maxQueryLimit].
func queryLimit(r *http.Request, defaultVal int) int {
	limit := queryInt(r, "limit", defaultVal)
	if limit < 1 {
		return 1
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
