package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/jsralgo/fxvault/internal/auth"
	"github.com/jsralgo/fxvault/internal/model"
	"github.com/jsralgo/fxvault/internal/service/proposals"
)

// --- Users ---

// HandleListUsers handles GET /v1/users (admin).
func (h *Handlers) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list users", err)
		return
	}
	writeJSON(w, r, http.StatusOK, users)
}

// HandleCreateUser handles POST /v1/users (admin).
// Generates a fresh API key for the user; the raw key appears in this
// response only and is stored as an Argon2id hash.
func (h *Handlers) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.OpenID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "open_id is required")
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleClient
	}
	if !model.ValidRole(role) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "role must be admin or client")
		return
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		h.writeInternalError(w, r, "failed to generate api key", err)
		return
	}
	hash, err := auth.HashAPIKey(apiKey)
	if err != nil {
		h.writeInternalError(w, r, "failed to hash api key", err)
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.OpenID, req.Name, req.Email, role, hash)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create user")
		return
	}

	h.logger.Info("user created", "user_id", user.ID, "open_id", user.OpenID, "role", user.Role)
	writeJSON(w, r, http.StatusCreated, model.CreateUserResponse{
		User:   user,
		APIKey: apiKey,
	})
}

// HandleUpdateUserRole handles POST /v1/users/{id}/role (admin).
func (h *Handlers) HandleUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.RoleUpdateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if !model.ValidRole(req.Role) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "role must be admin or client")
		return
	}

	user, err := h.db.UpdateUserRole(r.Context(), id, req.Role)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to update role")
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

// --- Schema proposals ---

// HandleCreateProposal handles POST /v1/proposals (admin).
func (h *Handlers) HandleCreateProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	var in model.ProposalInput
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateProposalInput(in); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	proposal, err := h.proposalSvc.Create(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create proposal")
		return
	}
	writeJSON(w, r, http.StatusCreated, proposal)
}

// HandleListProposals handles GET /v1/proposals (admin, ?status= filter).
func (h *Handlers) HandleListProposals(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	status := model.ProposalStatus(r.URL.Query().Get("status"))
	if status != "" && !model.ValidProposalStatus(status) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"status must be one of pending, approved, executed, failed")
		return
	}

	list, err := h.proposalSvc.List(r.Context(), actor, status)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list proposals")
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// HandleGetProposal handles GET /v1/proposals/{id} (admin).
func (h *Handlers) HandleGetProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	proposal, err := h.proposalSvc.Get(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load proposal")
		return
	}
	writeJSON(w, r, http.StatusOK, proposal)
}

// HandleApproveProposal handles POST /v1/proposals/{id}/approve (admin).
func (h *Handlers) HandleApproveProposal(w http.ResponseWriter, r *http.Request) {
	h.transitionProposal(w, r, h.proposalSvc.Approve, "failed to approve proposal")
}

// HandleExecuteProposal handles POST /v1/proposals/{id}/execute (admin).
// A SQL failure is a recorded outcome (status=failed with error_message),
// not an HTTP error.
func (h *Handlers) HandleExecuteProposal(w http.ResponseWriter, r *http.Request) {
	h.transitionProposal(w, r, h.proposalSvc.Execute, "failed to execute proposal")
}

func (h *Handlers) transitionProposal(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, actor model.Actor, id int64) (model.SchemaProposal, error),
	fallbackMsg string,
) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	proposal, err := fn(r.Context(), actor, id)
	if err != nil {
		if errors.Is(err, proposals.ErrInvalidTransition) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
			return
		}
		h.writeServiceError(w, r, err, fallbackMsg)
		return
	}
	writeJSON(w, r, http.StatusOK, proposal)
}

// --- Custom fields ---

// HandleListCustomFields handles GET /v1/custom-fields.
// Requires entity_type and entity_id query parameters.
func (h *Handlers) HandleListCustomFields(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	entityID := int64(queryInt(r, "entity_id", 0))
	if entityType == "" || entityID <= 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"entity_type and entity_id are required")
		return
	}

	fields, err := h.db.ListCustomFields(r.Context(), entityType, entityID)
	if err != nil {
		h.writeInternalError(w, r, "failed to list custom fields", err)
		return
	}
	writeJSON(w, r, http.StatusOK, fields)
}

// HandleCreateCustomField handles POST /v1/custom-fields (admin).
func (h *Handlers) HandleCreateCustomField(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.mustActor(w, r)
	if !ok {
		return
	}

	var in model.CustomFieldInput
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateCustomFieldInput(in); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	field, err := h.db.CreateCustomField(r.Context(), in, actor.UserID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create custom field")
		return
	}
	writeJSON(w, r, http.StatusCreated, field)
}

// HandleUpdateCustomField handles PATCH /v1/custom-fields/{id} (admin).
// Only the value can change; name and type are fixed at creation.
func (h *Handlers) HandleUpdateCustomField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req struct {
		FieldValue *string `json:"field_value"`
	}
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	field, err := h.db.UpdateCustomFieldValue(r.Context(), id, req.FieldValue)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to update custom field")
		return
	}
	writeJSON(w, r, http.StatusOK, field)
}

// HandleDeleteCustomField handles DELETE /v1/custom-fields/{id} (admin).
func (h *Handlers) HandleDeleteCustomField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.db.DeleteCustomField(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, "failed to delete custom field")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// --- Catalogs (trade servers, bots) ---

// HandleListServers handles GET /v1/servers.
func (h *Handlers) HandleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.db.ListTradeServers(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list servers", err)
		return
	}
	writeJSON(w, r, http.StatusOK, servers)
}

// HandleCreateServer handles POST /v1/servers (admin).
func (h *Handlers) HandleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req model.NameRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}

	server, err := h.db.CreateTradeServer(r.Context(), req.Name)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create server")
		return
	}
	writeJSON(w, r, http.StatusCreated, server)
}

// HandleDeleteServer handles DELETE /v1/servers/{id} (admin).
func (h *Handlers) HandleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.db.DeleteTradeServer(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, "failed to delete server")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// HandleListBots handles GET /v1/bots.
func (h *Handlers) HandleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := h.db.ListBots(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list bots", err)
		return
	}
	writeJSON(w, r, http.StatusOK, bots)
}

// HandleCreateBot handles POST /v1/bots (admin).
func (h *Handlers) HandleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req model.NameRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}

	bot, err := h.db.CreateBot(r.Context(), req.Name)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create bot")
		return
	}
	writeJSON(w, r, http.StatusCreated, bot)
}

// HandleDeleteBot handles DELETE /v1/bots/{id} (admin).
func (h *Handlers) HandleDeleteBot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.db.DeleteBot(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, "failed to delete bot")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}
