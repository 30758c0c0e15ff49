// Package mcp implements the Model Context Protocol server for FXVault.
//
// The MCP server exposes credential lookups through MCP tools so
// MCP-compatible AI agents can work with the same records as the HTTP
// API, under the same permission model. All tools resolve the caller
// from the request context; the HTTP transport is mounted behind the
// JWT middleware, so an actor is always present for authenticated calls.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/jsralgo/fxvault/internal/authz"
	"github.com/jsralgo/fxvault/internal/model"
	"github.com/jsralgo/fxvault/internal/service/accounts"
)

// AccountReader is the slice of the accounts service the tools need.
type AccountReader interface {
	List(ctx context.Context, actor model.Actor) ([]model.ForexAccount, error)
	Get(ctx context.Context, actor model.Actor, id int64) (model.ForexAccount, error)
	Permission(ctx context.Context, actor model.Actor, id int64) (*model.Permission, error)
}

// Server wraps the MCP server with FXVault's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	accounts  AccountReader
	logger    *slog.Logger
}

var _ AccountReader = (*accounts.Service)(nil)

// New creates and configures a new MCP server with all tools registered.
func New(accountSvc AccountReader, logger *slog.Logger) *Server {
	s := &Server{
		accounts: accountSvc,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"fxvault",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// fxvault://accounts — the accounts visible to the caller.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"fxvault://accounts",
			"Visible Accounts",
			mcplib.WithResourceDescription("Trading accounts the caller may view"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAccountsResource,
	)
}

func (s *Server) registerTools() {
	// fx_list_accounts — list accounts visible to the caller.
	s.mcpServer.AddTool(
		mcplib.NewTool("fx_list_accounts",
			mcplib.WithDescription("List the trading accounts the caller may view, including broker and platform details"),
		),
		s.handleListAccounts,
	)

	// fx_get_account — fetch one account's full credential record.
	s.mcpServer.AddTool(
		mcplib.NewTool("fx_get_account",
			mcplib.WithDescription("Fetch one trading account's credential record by ID"),
			mcplib.WithNumber("account_id", mcplib.Description("Account identifier"), mcplib.Required()),
		),
		s.handleGetAccount,
	)

	// fx_check_permission — report the caller's resolved access.
	s.mcpServer.AddTool(
		mcplib.NewTool("fx_check_permission",
			mcplib.WithDescription("Report the caller's resolved access to a trading account (owner, editor, viewer, or none)"),
			mcplib.WithNumber("account_id", mcplib.Description("Account identifier"), mcplib.Required()),
		),
		s.handleCheckPermission,
	)
}

func (s *Server) handleAccountsResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	actor := authz.ActorFromContext(ctx)
	if actor == nil {
		return nil, fmt.Errorf("mcp: authentication required")
	}

	list, err := s.accounts.List(ctx, *actor)
	if err != nil {
		return nil, fmt.Errorf("mcp: list accounts: %w", err)
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal accounts: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "fxvault://accounts",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleListAccounts(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	actor := authz.ActorFromContext(ctx)
	if actor == nil {
		return errorResult("authentication required"), nil
	}

	list, err := s.accounts.List(ctx, *actor)
	if err != nil {
		return errorResult(fmt.Sprintf("list failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(map[string]any{
		"accounts": list,
		"total":    len(list),
	}, "", "  ")

	return textResult(string(resultData)), nil
}

func (s *Server) handleGetAccount(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	actor := authz.ActorFromContext(ctx)
	if actor == nil {
		return errorResult("authentication required"), nil
	}

	accountID := int64(request.GetFloat("account_id", 0))
	if accountID <= 0 {
		return errorResult("account_id is required"), nil
	}

	account, err := s.accounts.Get(ctx, *actor, accountID)
	if err != nil {
		return errorResult(fmt.Sprintf("get failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(account, "", "  ")
	return textResult(string(resultData)), nil
}

func (s *Server) handleCheckPermission(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	actor := authz.ActorFromContext(ctx)
	if actor == nil {
		return errorResult("authentication required"), nil
	}

	accountID := int64(request.GetFloat("account_id", 0))
	if accountID <= 0 {
		return errorResult("account_id is required"), nil
	}

	perm, err := s.accounts.Permission(ctx, *actor, accountID)
	if err != nil {
		return errorResult(fmt.Sprintf("permission check failed: %v", err)), nil
	}

	out := map[string]any{
		"account_id": accountID,
		"is_admin":   actor.IsAdmin(),
		"has_access": perm != nil || actor.IsAdmin(),
	}
	if perm != nil {
		out["can_edit"] = perm.CanEdit
		out["is_owner"] = perm.IsOwner
	}

	resultData, _ := json.MarshalIndent(out, "", "  ")
	return textResult(string(resultData)), nil
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
