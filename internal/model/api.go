package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ErrorDetail carries a machine-readable code and a human-actionable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta is attached to every response for request correlation.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Error codes returned in ErrorDetail.Code.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"

	// Completion-service error codes (one per upstream failure class so the
	// UI can show a specific, actionable message instead of a bare "failed").
	ErrCodeMissingCredential = "MISSING_CREDENTIAL"
	ErrCodeInvalidCredential = "INVALID_CREDENTIAL"
	ErrCodeUpstreamRateLimit = "UPSTREAM_RATE_LIMITED"
	ErrCodeUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	ErrCodeNetworkFailure    = "NETWORK_FAILURE"
	ErrCodeUpstreamError     = "UPSTREAM_ERROR"
)

// AuthTokenRequest is the body of POST /auth/token.
type AuthTokenRequest struct {
	OpenID string `json:"open_id"`
	APIKey string `json:"api_key"`
}

// AuthTokenResponse is the reply to a successful token exchange.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GrantRequest is the body of POST /v1/grants.
type GrantRequest struct {
	AccountID int64 `json:"account_id"`
	UserID    int64 `json:"user_id"`
	CanEdit   bool  `json:"can_edit"`
}

// RoleUpdateRequest is the body of POST /v1/users/{id}/role.
type RoleUpdateRequest struct {
	Role UserRole `json:"role"`
}

// NameRequest is the body for creating catalog entries (servers, bots).
type NameRequest struct {
	Name string `json:"name"`
}

// CreateUserRequest is the body of POST /v1/users (admin).
type CreateUserRequest struct {
	OpenID string   `json:"open_id"`
	Name   *string  `json:"name,omitempty"`
	Email  *string  `json:"email,omitempty"`
	Role   UserRole `json:"role,omitempty"`
}

// CreateUserResponse returns the created user and their API key.
// The key is shown exactly once; only its hash is stored.
type CreateUserResponse struct {
	User   User   `json:"user"`
	APIKey string `json:"api_key"`
}

// ChatSendRequest is the body of POST /v1/chat/messages.
type ChatSendRequest struct {
	Message      string `json:"message"`
	CollectionID string `json:"collection_id,omitempty"`
}

// ChatSendResponse is the assistant reply plus whatever structured side
// effect the extraction produced, in one envelope.
type ChatSendResponse struct {
	Message    string            `json:"message"`
	Extraction *ExtractionResult `json:"extraction,omitempty"`
}

// ExtractionResult reports the outcome of routing one extracted payload.
type ExtractionResult struct {
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Detail        string `json:"detail,omitempty"`
	AccountID     *int64 `json:"account_id,omitempty"`
	CustomFieldID *int64 `json:"custom_field_id,omitempty"`
	ProposalID    *int64 `json:"proposal_id,omitempty"`
}

// Extraction result statuses.
const (
	ExtractionCreated   = "created"
	ExtractionQueued    = "queued"
	ExtractionFailed    = "failed"
	ExtractionForbidden = "forbidden"
)

// TestConnectionRequest is the body of POST /v1/settings/test-connection.
type TestConnectionRequest struct {
	APIKey string `json:"api_key"`
}

// TestConnectionResponse reports a completion-service probe result.
type TestConnectionResponse struct {
	Success bool   `json:"success"`
	Model   string `json:"model,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the reply to GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Postgres  string `json:"postgres"`
	SSEBroker string `json:"sse_broker,omitempty"`
	Uptime    int64  `json:"uptime_seconds"`
}

// UnreadCountResponse is the reply to GET /v1/notifications/unread-count.
type UnreadCountResponse struct {
	Count int `json:"count"`
}
