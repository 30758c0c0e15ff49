package server

import (
	"net/http"
	"time"

	"github.com/jsralgo/fxvault/internal/model"
)

// HandleListNotifications handles GET /v1/notifications.
func (h *Handlers) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	limit := queryLimit(r, 50)
	list, err := h.db.ListNotifications(r.Context(), actor.UserID, limit)
	if err != nil {
		h.writeInternalError(w, r, "failed to list notifications", err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// HandleUnreadCount handles GET /v1/notifications/unread-count.
func (h *Handlers) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	count, err := h.db.UnreadNotificationCount(r.Context(), actor.UserID)
	if err != nil {
		h.writeInternalError(w, r, "failed to count notifications", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.UnreadCountResponse{Count: int(count)})
}

// HandleMarkNotificationRead handles POST /v1/notifications/{id}/read.
// Scoped to the caller: a user can only mark their own notifications.
func (h *Handlers) HandleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.db.MarkNotificationRead(r.Context(), actor.UserID, id); err != nil {
		h.writeServiceError(w, r, err, "failed to mark notification read")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"read": true})
}

// HandleMarkAllNotificationsRead handles POST /v1/notifications/read-all.
func (h *Handlers) HandleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	count, err := h.db.MarkAllNotificationsRead(r.Context(), actor.UserID)
	if err != nil {
		h.writeInternalError(w, r, "failed to mark notifications read", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int64{"updated": count})
}

// HandleDeleteNotification handles DELETE /v1/notifications/{id}.
func (h *Handlers) HandleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.db.DeleteNotification(r.Context(), actor.UserID, id); err != nil {
		h.writeServiceError(w, r, err, "failed to delete notification")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// HandleNotificationStream handles GET /v1/notifications/stream (SSE).
// Streams the caller's notifications as they are created, with periodic
// keepalive comments so proxies don't cut the connection.
func (h *Handlers) HandleNotificationStream(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"SSE not available (LISTEN/NOTIFY not configured)")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Disable the server's WriteTimeout for this long-lived connection.
	// Without this, idle SSE connections are killed after WriteTimeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ch := h.broker.Subscribe(actor.UserID)
	defer h.broker.Unsubscribe(ch)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-ch:
			if !open {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
