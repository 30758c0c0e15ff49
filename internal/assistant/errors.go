package assistant

import "fmt"

// ErrorKind classifies a completion-service failure. Every kind maps to a
// distinct, user-actionable message at the HTTP boundary.
type ErrorKind string

const (
	// ErrMissingCredential means no API key is configured in settings or
	// the environment.
	ErrMissingCredential ErrorKind = "missing_credential"
	// ErrInvalidCredential means the remote rejected the key (401/403).
	ErrInvalidCredential ErrorKind = "invalid_credential"
	// ErrRateLimited means the remote returned 429.
	ErrRateLimited ErrorKind = "rate_limited"
	// ErrTimeout means the request exceeded the configured deadline.
	ErrTimeout ErrorKind = "timeout"
	// ErrNetworkFailure means the request never reached the remote.
	ErrNetworkFailure ErrorKind = "network_failure"
	// ErrUpstream is any other non-2xx response.
	ErrUpstream ErrorKind = "upstream_error"
)

// UpstreamError is a classified completion-service failure.
type UpstreamError struct {
	Kind   ErrorKind
	Status int    // HTTP status when the remote answered, 0 otherwise
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("assistant: %s (status %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("assistant: %s: %s", e.Kind, e.Detail)
}

// Message returns the human-actionable text for this failure.
func (e *UpstreamError) Message() string {
	switch e.Kind {
	case ErrMissingCredential:
		return "No completion API key configured. Please add your API key in Settings."
	case ErrInvalidCredential:
		return "The completion API rejected your key. Please update your API key in Settings."
	case ErrRateLimited:
		return "Completion API rate limit exceeded. Please try again later."
	case ErrTimeout:
		return "Request timed out. Please check your internet connection and try again."
	case ErrNetworkFailure:
		return "Network connection failed. Please check your internet connection."
	default:
		return "The completion API returned an error. Please try again."
	}
}
