package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAPIPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		// API paths that should be detected.
		{"/v1/accounts", true},
		{"/v1/accounts/42/permission", true},
		{"/v1/grants", true},
		{"/v1/chat/messages", true},
		{"/v1/notifications/stream", true},
		{"/v1/", true},
		{"/auth/token", true},
		{"/mcp", true},

		// Non-API paths that the SPA should handle.
		{"/", false},
		{"/accounts", false},
		{"/settings", false},
		{"/assets/index-abc123.js", false},
		{"/favicon.ico", false},
		{"/health", false}, // Health is registered on the mux, not an API path for SPA purposes.
		{"/openapi.yaml", false},
		{"/some/other/path", false},

		// Edge cases.
		{"", false},
		{"/v1", false},     // Must have trailing slash to match /v1/ prefix.
		{"/v2/foo", false}, // Different API version is not recognized.
		{"/authorization", false},
		{"/mcpserver", false}, // /mcp must match exactly, not as a prefix.
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isAPIPath(tt.path))
		})
	}
}

func TestSetCacheHeaders(t *testing.T) {
	tests := []struct {
		name    string
		urlPath string
		wantCC  string
	}{
		{"hashed asset", "/assets/index-abc123.js", "public, max-age=31536000, immutable"},
		{"hashed css", "/assets/style-def456.css", "public, max-age=31536000, immutable"},
		{"assets root", "/assets/something", "public, max-age=31536000, immutable"},
		{"favicon", "/favicon.ico", "public, max-age=3600"},
		{"index", "/index.html", "public, max-age=3600"},
		{"nested image", "/images/logo.png", "public, max-age=3600"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			setCacheHeaders(w, tt.urlPath)
			assert.Equal(t, tt.wantCC, w.Header().Get("Cache-Control"))
		})
	}
}
