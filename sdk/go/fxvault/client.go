package fxvault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the FXVault server (e.g. "http://localhost:8080").
	BaseURL string

	// OpenID identifies the user for authentication.
	OpenID string

	// APIKey is the secret used to obtain a JWT token.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the FXVault API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL, OpenID, or APIKey is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("fxvault: BaseURL is required")
	}
	if cfg.OpenID == "" {
		return nil, fmt.Errorf("fxvault: OpenID is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("fxvault: APIKey is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  baseURL,
		client:   httpClient,
		tokenMgr: newTokenManager(baseURL, cfg.OpenID, cfg.APIKey, httpClient),
	}, nil
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

// ListAccounts returns the accounts visible to the caller: every account for
// admins, owned and granted accounts for clients.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var resp []Account
	if err := c.get(ctx, "/v1/accounts", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetAccount retrieves one account the caller can view.
func (c *Client) GetAccount(ctx context.Context, id int64) (*Account, error) {
	var resp Account
	if err := c.get(ctx, "/v1/accounts/"+strconv.FormatInt(id, 10), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateAccount stores a new credential set. Requires admin role.
func (c *Client) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	var resp Account
	if err := c.post(ctx, "/v1/accounts", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateAccount applies a partial update. Requires ownership, admin role, or
// an edit grant.
func (c *Client) UpdateAccount(ctx context.Context, id int64, req UpdateAccountRequest) (*Account, error) {
	var resp Account
	if err := c.patch(ctx, "/v1/accounts/"+strconv.FormatInt(id, 10), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteAccount removes an account and its grants. Requires ownership or
// admin role.
func (c *Client) DeleteAccount(ctx context.Context, id int64) error {
	return c.doDelete(ctx, "/v1/accounts/"+strconv.FormatInt(id, 10), nil)
}

// GetPermission reports the caller's effective access to an account.
// Returns nil when the caller has no access at all.
func (c *Client) GetPermission(ctx context.Context, id int64) (*Permission, error) {
	var resp *Permission
	if err := c.get(ctx, "/v1/accounts/"+strconv.FormatInt(id, 10)+"/permission", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// Grants
// ---------------------------------------------------------------------------

// CreateGrant grants or updates a user's access to an account. Requires
// admin role. The grantee is notified on every call, re-grants included.
func (c *Client) CreateGrant(ctx context.Context, req CreateGrantRequest) (*Grant, error) {
	var resp Grant
	if err := c.post(ctx, "/v1/grants", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListMyGrants returns the grants held by the caller.
func (c *Client) ListMyGrants(ctx context.Context) ([]Grant, error) {
	var resp []Grant
	if err := c.get(ctx, "/v1/grants", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListAccountGrants returns the grants on one account. Requires ownership or
// admin role.
func (c *Client) ListAccountGrants(ctx context.Context, accountID int64) ([]Grant, error) {
	var resp []Grant
	if err := c.get(ctx, "/v1/accounts/"+strconv.FormatInt(accountID, 10)+"/grants", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RevokeGrant removes a user's access to an account. Requires admin role.
func (c *Client) RevokeGrant(ctx context.Context, accountID, userID int64) error {
	path := "/v1/accounts/" + strconv.FormatInt(accountID, 10) + "/grants/" + strconv.FormatInt(userID, 10)
	return c.doDelete(ctx, path, nil)
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

// ListNotifications returns the caller's notifications, newest first.
// A limit of 0 uses the server default.
func (c *Client) ListNotifications(ctx context.Context, limit int) ([]Notification, error) {
	path := "/v1/notifications"
	if limit > 0 {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit))
		path += "?" + params.Encode()
	}
	var resp []Notification
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// UnreadCount returns the number of unread notifications for the caller.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "/v1/notifications/unread-count", &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// MarkNotificationRead marks one of the caller's notifications as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.post(ctx, "/v1/notifications/"+strconv.FormatInt(id, 10)+"/read", nil, nil)
}

// MarkAllNotificationsRead marks every unread notification as read and
// returns how many changed.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int, error) {
	var resp struct {
		Updated int `json:"updated"`
	}
	if err := c.post(ctx, "/v1/notifications/read-all", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// DeleteNotification removes one of the caller's notifications.
func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.doDelete(ctx, "/v1/notifications/"+strconv.FormatInt(id, 10), nil)
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

// SendChatMessage sends a message to the assistant and returns the reply
// along with any structured extraction outcome.
func (c *Client) SendChatMessage(ctx context.Context, message string) (*ChatResponse, error) {
	body := map[string]any{"message": message}
	var resp ChatResponse
	if err := c.post(ctx, "/v1/chat/messages", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChatHistory returns the caller's conversation, oldest first.
func (c *Client) ChatHistory(ctx context.Context) ([]ChatMessage, error) {
	var resp []ChatMessage
	if err := c.get(ctx, "/v1/chat/history", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ClearChatHistory deletes the caller's conversation and returns how many
// messages were removed.
func (c *Client) ClearChatHistory(ctx context.Context) (int, error) {
	var resp struct {
		Deleted int `json:"deleted"`
	}
	if err := c.doDelete(ctx, "/v1/chat/history", &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// ---------------------------------------------------------------------------
// Schema proposals (admin-only)
// ---------------------------------------------------------------------------

// CreateProposal submits a schema change for review. Requires admin role.
func (c *Client) CreateProposal(ctx context.Context, req CreateProposalRequest) (*Proposal, error) {
	var resp Proposal
	if err := c.post(ctx, "/v1/proposals", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListProposals returns proposals, optionally filtered by status.
func (c *Client) ListProposals(ctx context.Context, status string) ([]Proposal, error) {
	path := "/v1/proposals"
	if status != "" {
		params := url.Values{}
		params.Set("status", status)
		path += "?" + params.Encode()
	}
	var resp []Proposal
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetProposal retrieves one proposal.
func (c *Client) GetProposal(ctx context.Context, id int64) (*Proposal, error) {
	var resp Proposal
	if err := c.get(ctx, "/v1/proposals/"+strconv.FormatInt(id, 10), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ApproveProposal moves a pending proposal to approved.
func (c *Client) ApproveProposal(ctx context.Context, id int64) (*Proposal, error) {
	var resp Proposal
	if err := c.post(ctx, "/v1/proposals/"+strconv.FormatInt(id, 10)+"/approve", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecuteProposal runs a proposal's SQL. Pending proposals are approved
// implicitly. A failed statement is reported through the returned proposal's
// status and error message, not as a client error.
func (c *Client) ExecuteProposal(ctx context.Context, id int64) (*Proposal, error) {
	var resp Proposal
	if err := c.post(ctx, "/v1/proposals/"+strconv.FormatInt(id, 10)+"/execute", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Health checks the server's health status. This endpoint does not require
// authentication and will work even if the client has invalid credentials.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.getNoAuth(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("fxvault: marshal request body: %w", err)
		}
	}
	return c.doRequest(ctx, http.MethodPost, path, encoded, dest)
}

func (c *Client) patch(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("fxvault: marshal request body: %w", err)
	}
	return c.doRequest(ctx, http.MethodPatch, path, encoded, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, dest)
}

func (c *Client) doDelete(ctx context.Context, path string, dest any) error {
	return c.doRequest(ctx, http.MethodDelete, path, nil, dest)
}

func (c *Client) getNoAuth(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("fxvault: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fxvault: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

// doRequest sends an authenticated request. On a 401 the cached token is
// dropped and the request retried once with a fresh one, so callers survive
// server-side key rotation without re-constructing the client.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, dest any) error {
	send := func() (*http.Response, error) {
		token, err := c.tokenMgr.getToken(ctx)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("fxvault: create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fxvault: %s %s: %w", method, path, err)
		}
		return resp, nil
	}

	resp, err := send()
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		c.tokenMgr.invalidate()
		resp, err = send()
		if err != nil {
			return err
		}
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fxvault: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// 204 No Content — nothing to decode.
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("fxvault: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
