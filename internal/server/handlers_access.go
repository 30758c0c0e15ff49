package server

import (
	"net/http"

	"github.com/jsralgo/fxvault/internal/model"
)

// HandleCreateGrant handles POST /v1/grants (admin).
// Grants or updates a user's access to an account; the recipient gets
// exactly one notification per call.
func (h *Handlers) HandleCreateGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	var req model.GrantRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.AccountID <= 0 || req.UserID <= 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "account_id and user_id are required")
		return
	}

	grant, err := h.accessSvc.Grant(r.Context(), actor, req.AccountID, req.UserID, req.CanEdit)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to grant access")
		return
	}
	writeJSON(w, r, http.StatusCreated, grant)
}

// HandleListAccountGrants handles GET /v1/accounts/{id}/grants (admin).
func (h *Handlers) HandleListAccountGrants(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	grants, err := h.accessSvc.ListForAccount(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list grants")
		return
	}
	writeJSON(w, r, http.StatusOK, grants)
}

// HandleRevokeGrant handles DELETE /v1/accounts/{id}/grants/{user_id} (admin).
func (h *Handlers) HandleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.accessSvc.Revoke(r.Context(), actor, accountID, userID); err != nil {
		h.writeServiceError(w, r, err, "failed to revoke access")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"revoked": true})
}

// HandleListMyGrants handles GET /v1/grants (the caller's own grants).
func (h *Handlers) HandleListMyGrants(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	grants, err := h.accessSvc.ListForUser(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list grants")
		return
	}
	writeJSON(w, r, http.StatusOK, grants)
}
