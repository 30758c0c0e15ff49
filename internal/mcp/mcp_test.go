package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/jsralgo/fxvault/internal/authz"
	"github.com/jsralgo/fxvault/internal/model"
	"github.com/jsralgo/fxvault/internal/storage"
)

type fakeReader struct {
	accounts map[int64]model.ForexAccount
	perms    map[int64]*model.Permission
}

func (f *fakeReader) List(_ context.Context, actor model.Actor) ([]model.ForexAccount, error) {
	var out []model.ForexAccount
	for id, a := range f.accounts {
		if actor.IsAdmin() || f.perms[id] != nil || (a.OwnerID != nil && *a.OwnerID == actor.UserID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeReader) Get(_ context.Context, actor model.Actor, id int64) (model.ForexAccount, error) {
	a, ok := f.accounts[id]
	if !ok {
		return model.ForexAccount{}, storage.ErrNotFound
	}
	if actor.IsAdmin() || f.perms[id] != nil || (a.OwnerID != nil && *a.OwnerID == actor.UserID) {
		return a, nil
	}
	return model.ForexAccount{}, fmt.Errorf("view account %d: %w", id, authz.ErrForbidden)
}

func (f *fakeReader) Permission(_ context.Context, actor model.Actor, id int64) (*model.Permission, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if a.OwnerID != nil && *a.OwnerID == actor.UserID {
		return &model.Permission{CanEdit: true, IsOwner: true}, nil
	}
	return f.perms[id], nil
}

func newTestServer() (*Server, *fakeReader) {
	owner := int64(1)
	f := &fakeReader{
		accounts: map[int64]model.ForexAccount{
			10: {ID: 10, AccountName: "Exness 12345678", AccountLogin: "12345678", OwnerID: &owner},
		},
		perms: map[int64]*model.Permission{},
	}
	return New(f, slog.New(slog.DiscardHandler)), f
}

func actorCtx(userID int64, role model.UserRole) context.Context {
	return authz.WithActor(context.Background(), &model.Actor{UserID: userID, Role: role})
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// toolText extracts the first TextContent text from a CallToolResult.
func toolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestListAccountsTool(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleListAccounts(actorCtx(1, model.RoleClient), toolRequest("fx_list_accounts", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		Accounts []model.ForexAccount `json:"accounts"`
		Total    int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "Exness 12345678", resp.Accounts[0].AccountName)
}

func TestListAccountsToolRequiresActor(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleListAccounts(context.Background(), toolRequest("fx_list_accounts", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "authentication required")
}

func TestGetAccountTool(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleGetAccount(actorCtx(1, model.RoleClient),
		toolRequest("fx_get_account", map[string]any{"account_id": float64(10)}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var account model.ForexAccount
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &account))
	assert.Equal(t, int64(10), account.ID)
	assert.Equal(t, "12345678", account.AccountLogin)
}

func TestGetAccountToolDeniesStrangers(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleGetAccount(actorCtx(99, model.RoleClient),
		toolRequest("fx_get_account", map[string]any{"account_id": float64(10)}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGetAccountToolRequiresID(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleGetAccount(actorCtx(1, model.RoleClient),
		toolRequest("fx_get_account", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "account_id is required")
}

func TestCheckPermissionTool(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleCheckPermission(actorCtx(1, model.RoleClient),
		toolRequest("fx_check_permission", map[string]any{"account_id": float64(10)}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		HasAccess bool `json:"has_access"`
		CanEdit   bool `json:"can_edit"`
		IsOwner   bool `json:"is_owner"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &resp))
	assert.True(t, resp.HasAccess)
	assert.True(t, resp.CanEdit)
	assert.True(t, resp.IsOwner)
}

func TestCheckPermissionToolNoAccess(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleCheckPermission(actorCtx(99, model.RoleClient),
		toolRequest("fx_check_permission", map[string]any{"account_id": float64(10)}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		HasAccess bool `json:"has_access"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &resp))
	assert.False(t, resp.HasAccess)
}
