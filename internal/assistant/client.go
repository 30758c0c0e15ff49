package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is one turn sent to the completion service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
	// CollectionID opts the call into server-side conversation memory.
	CollectionID string `json:"collection_id,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

const (
	defaultTemperature = 0.8
	defaultMaxTokens   = 2000
)

// Client calls an OpenAI-compatible chat completion API. It depends only on
// the request/response shape, not on any specific vendor.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a completion client. Timeout bounds each request.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Complete sends the message sequence and returns the assistant's reply
// text. Failures come back as *UpstreamError so callers can surface a
// specific, actionable message.
func (c *Client) Complete(ctx context.Context, apiKey string, messages []Message, collectionID string) (string, error) {
	if apiKey == "" {
		return "", &UpstreamError{Kind: ErrMissingCredential, Detail: "no API key"}
	}

	reqBody, err := json.Marshal(completionRequest{
		Model:        c.model,
		Messages:     messages,
		Temperature:  defaultTemperature,
		MaxTokens:    defaultMaxTokens,
		CollectionID: collectionID,
	})
	if err != nil {
		return "", fmt.Errorf("assistant: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("assistant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", classifyStatus(resp.StatusCode, string(body))
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &UpstreamError{Kind: ErrUpstream, Detail: fmt.Sprintf("decode response: %v", err)}
	}
	if len(result.Choices) == 0 {
		return "", &UpstreamError{Kind: ErrUpstream, Detail: "empty choices"}
	}
	return result.Choices[0].Message.Content, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// TestKey verifies a credential with a minimal one-token request.
func (c *Client) TestKey(ctx context.Context, apiKey string) error {
	_, err := c.Complete(ctx, apiKey, []Message{
		{Role: "user", Content: "ping"},
	}, "")
	return err
}

func classifyStatus(status int, body string) *UpstreamError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &UpstreamError{Kind: ErrInvalidCredential, Status: status, Detail: body}
	case status == http.StatusTooManyRequests:
		return &UpstreamError{Kind: ErrRateLimited, Status: status, Detail: body}
	default:
		return &UpstreamError{Kind: ErrUpstream, Status: status, Detail: body}
	}
}

func classifyTransportError(err error) *UpstreamError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Kind: ErrTimeout, Detail: err.Error()}
	}
	// http.Client wraps its own timeout in a *url.Error that reports
	// Timeout() true rather than wrapping DeadlineExceeded.
	var timeouter interface{ Timeout() bool }
	if errors.As(err, &timeouter) && timeouter.Timeout() {
		return &UpstreamError{Kind: ErrTimeout, Detail: err.Error()}
	}
	return &UpstreamError{Kind: ErrNetworkFailure, Detail: err.Error()}
}
