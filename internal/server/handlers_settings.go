package server

import (
	"net/http"

	"github.com/jsralgo/fxvault/internal/model"
)

// HandleListSettings handles GET /v1/settings (admin).
// API-key values are masked; the stored hash-free plaintext never leaves
// the server in list responses.
func (h *Handlers) HandleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.db.ListSettings(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list settings", err)
		return
	}
	for i := range settings {
		if settings[i].SettingType == model.SettingAPIKey && settings[i].Value != nil {
			masked := maskSecret(*settings[i].Value)
			settings[i].Value = &masked
		}
	}
	writeJSON(w, r, http.StatusOK, settings)
}

// maskSecret keeps the last four characters of a secret for recognition.
func maskSecret(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// HandlePutSetting handles PUT /v1/settings/{key} (admin).
func (h *Handlers) HandlePutSetting(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	key := r.PathValue("key")
	if key == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "key is required")
		return
	}

	var in model.SettingInput
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateSettingInput(in); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	setting, err := h.db.PutSetting(r.Context(), key, in, actor.UserID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to store setting")
		return
	}
	writeJSON(w, r, http.StatusOK, setting)
}

// HandleDeleteSetting handles DELETE /v1/settings/{key} (admin).
func (h *Handlers) HandleDeleteSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "key is required")
		return
	}

	if err := h.db.DeleteSetting(r.Context(), key); err != nil {
		h.writeServiceError(w, r, err, "failed to delete setting")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// HandleTestConnection handles POST /v1/settings/test-connection (admin).
// Probes the completion service with the supplied key, or the stored one
// when the body omits it. The probe outcome is the response; an upstream
// failure is a result, not an HTTP error.
func (h *Handlers) HandleTestConnection(w http.ResponseWriter, r *http.Request) {
	var req model.TestConnectionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	resp := model.TestConnectionResponse{Model: h.assistantSvc.ModelName()}
	if err := h.assistantSvc.TestCredential(r.Context(), req.APIKey); err != nil {
		resp.Error = err.Error()
		writeJSON(w, r, http.StatusOK, resp)
		return
	}
	resp.Success = true
	writeJSON(w, r, http.StatusOK, resp)
}
