package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jsralgo/fxvault/internal/assistant"
	"github.com/jsralgo/fxvault/internal/model"
)

// HandleChatSend handles POST /v1/chat/messages.
// Completion-service failures map to specific error codes so the client can
// show an actionable message instead of a generic failure.
func (h *Handlers) HandleChatSend(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	var req model.ChatSendRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "message is required")
		return
	}

	resp, err := h.assistantSvc.SendMessage(r.Context(), actor, req.Message, req.CollectionID)
	if err != nil {
		var upErr *assistant.UpstreamError
		if errors.As(err, &upErr) {
			status, code := upstreamErrorStatus(upErr)
			writeError(w, r, status, code, upErr.Message())
			return
		}
		h.writeServiceError(w, r, err, "failed to process chat message")
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// upstreamErrorStatus maps a classified completion failure to the HTTP
// status and error code surfaced to the client.
func upstreamErrorStatus(e *assistant.UpstreamError) (int, string) {
	switch e.Kind {
	case assistant.ErrMissingCredential:
		return http.StatusBadRequest, model.ErrCodeMissingCredential
	case assistant.ErrInvalidCredential:
		return http.StatusBadGateway, model.ErrCodeInvalidCredential
	case assistant.ErrRateLimited:
		return http.StatusTooManyRequests, model.ErrCodeUpstreamRateLimit
	case assistant.ErrTimeout:
		return http.StatusGatewayTimeout, model.ErrCodeUpstreamTimeout
	case assistant.ErrNetworkFailure:
		return http.StatusBadGateway, model.ErrCodeNetworkFailure
	default:
		return http.StatusBadGateway, model.ErrCodeUpstreamError
	}
}

// HandleChatHistory handles GET /v1/chat/history.
func (h *Handlers) HandleChatHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	history, err := h.assistantSvc.History(r.Context(), actor)
	if err != nil {
		h.writeInternalError(w, r, "failed to load chat history", err)
		return
	}
	writeJSON(w, r, http.StatusOK, history)
}

// HandleChatClear handles DELETE /v1/chat/history.
func (h *Handlers) HandleChatClear(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	deleted, err := h.assistantSvc.ClearHistory(r.Context(), actor)
	if err != nil {
		h.writeInternalError(w, r, "failed to clear chat history", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int64{"deleted": deleted})
}
