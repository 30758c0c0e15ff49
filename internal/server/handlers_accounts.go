package server

import (
	"net/http"

	"github.com/jsralgo/fxvault/internal/model"
)

// HandleListAccounts handles GET /v1/accounts.
// Admins see every account; clients see owned plus granted accounts.
func (h *Handlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	list, err := h.accountSvc.List(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list accounts")
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// HandleCreateAccount handles POST /v1/accounts (admin).
func (h *Handlers) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	var in model.AccountInput
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateAccountInput(in); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	account, err := h.accountSvc.Create(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create account")
		return
	}
	writeJSON(w, r, http.StatusCreated, account)
}

// HandleGetAccount handles GET /v1/accounts/{id}.
func (h *Handlers) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	account, err := h.accountSvc.Get(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load account")
		return
	}
	writeJSON(w, r, http.StatusOK, account)
}

// HandleUpdateAccount handles PATCH /v1/accounts/{id}.
func (h *Handlers) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var upd model.AccountUpdate
	if err := decodeJSON(w, r, &upd, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateAccountUpdate(upd); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	account, err := h.accountSvc.Update(r.Context(), actor, id, upd)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to update account")
		return
	}
	writeJSON(w, r, http.StatusOK, account)
}

// HandleDeleteAccount handles DELETE /v1/accounts/{id}.
// Owner or admin only; an edit grant does not confer delete.
func (h *Handlers) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.accountSvc.Delete(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, r, err, "failed to delete account")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// HandleAccountPermission handles GET /v1/accounts/{id}/permission.
// Returns the caller's resolved access; null data means no access.
func (h *Handlers) HandleAccountPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	perm, err := h.accountSvc.Permission(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to resolve permission")
		return
	}
	writeJSON(w, r, http.StatusOK, perm)
}
