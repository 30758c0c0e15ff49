package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsralgo/fxvault/api"
	"github.com/jsralgo/fxvault/internal/assistant"
	"github.com/jsralgo/fxvault/internal/auth"
	"github.com/jsralgo/fxvault/internal/mcp"
	"github.com/jsralgo/fxvault/internal/model"
	"github.com/jsralgo/fxvault/internal/server"
	"github.com/jsralgo/fxvault/internal/service/access"
	"github.com/jsralgo/fxvault/internal/service/accounts"
	"github.com/jsralgo/fxvault/internal/service/proposals"
	"github.com/jsralgo/fxvault/internal/storage"
	"github.com/jsralgo/fxvault/internal/testutil"
)

// scriptedCompleter returns a canned reply instead of calling the real
// completion service. Tests mutate reply between requests.
type scriptedCompleter struct {
	reply string
	err   error
}

func (c *scriptedCompleter) Complete(_ context.Context, _ string, _ []assistant.Message, _ string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

var (
	testSrv    *httptest.Server
	testDB     *storage.DB
	fakeLLM    *scriptedCompleter
	adminToken string
	aliceToken string
	bobToken   string
	aliceID    int64
	bobID      int64
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithCancel(context.Background())

	tc := testutil.MustStartPostgres()
	logger := testutil.TestLogger()

	var err error
	testDB, err = tc.NewTestDB(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		os.Exit(1)
	}

	seedUser := func(openID string, role model.UserRole, apiKey string) int64 {
		hash, err := auth.HashAPIKey(apiKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash key: %v\n", err)
			os.Exit(1)
		}
		u, err := testDB.CreateUser(ctx, openID, nil, nil, role, hash)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed user %s: %v\n", openID, err)
			os.Exit(1)
		}
		return u.ID
	}
	seedUser("admin", model.RoleAdmin, "admin-key")
	aliceID = seedUser("alice", model.RoleClient, "alice-key")
	bobID = seedUser("bob", model.RoleClient, "bob-key")

	jwtMgr, _ := auth.NewJWTManager("", "", 24*time.Hour)
	accountSvc := accounts.New(testDB, logger)
	accessSvc := access.New(testDB, logger)
	proposalSvc := proposals.New(testDB, logger)
	fakeLLM = &scriptedCompleter{reply: "Happy to help."}
	assistantSvc := assistant.New(testDB, fakeLLM, accountSvc, proposalSvc, "env-test-key", logger)
	mcpSrv := mcp.New(accountSvc, logger)

	broker := server.NewBroker(testDB, logger)
	go broker.Start(ctx)

	srv := server.New(server.ServerConfig{
		DB:                  testDB,
		JWTMgr:              jwtMgr,
		AccountSvc:          accountSvc,
		AccessSvc:           accessSvc,
		ProposalSvc:         proposalSvc,
		AssistantSvc:        assistantSvc,
		Broker:              broker,
		MCPServer:           mcpSrv.MCPServer(),
		Logger:              logger,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		Version:             "test",
		MaxRequestBodyBytes: 1 * 1024 * 1024,
		OpenAPISpec:         api.OpenAPISpec,
	})

	testSrv = httptest.NewServer(srv.Handler())

	adminToken = getToken(testSrv.URL, "admin", "admin-key")
	aliceToken = getToken(testSrv.URL, "alice", "alice-key")
	bobToken = getToken(testSrv.URL, "bob", "bob-key")

	code := m.Run()

	testSrv.Close()
	cancel()
	testDB.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

func getToken(baseURL, openID, apiKey string) string {
	body, _ := json.Marshal(model.AuthTokenRequest{OpenID: openID, APIKey: apiKey})
	resp, err := http.Post(baseURL+"/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		panic(fmt.Sprintf("getToken: request failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		panic(fmt.Sprintf("getToken: status %d, body: %s", resp.StatusCode, string(data)))
	}
	var result struct {
		Data model.AuthTokenResponse `json:"data"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		panic(fmt.Sprintf("getToken: unmarshal failed: %v, body: %s", err, string(data)))
	}
	if result.Data.Token == "" {
		panic(fmt.Sprintf("getToken: empty token, body: %s", string(data)))
	}
	return result.Data.Token
}

func authedRequest(method, url, token string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return http.DefaultClient.Do(req)
}

// decodeData unmarshals the data field of the response envelope into out.
func decodeData(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope), "body: %s", string(data))
	if out != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, out), "data: %s", string(envelope.Data))
	}
}

func strptr(s string) *string { return &s }

func TestHealthEndpoint(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health model.HealthResponse
	decodeData(t, resp, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.Postgres)
	assert.Equal(t, "running", health.SSEBroker)
	assert.Equal(t, "test", health.Version)
}

func TestAuthFlow(t *testing.T) {
	// Valid credentials.
	token := getToken(testSrv.URL, "admin", "admin-key")
	assert.NotEmpty(t, token)

	// Invalid credentials.
	body, _ := json.Marshal(model.AuthTokenRequest{OpenID: "admin", APIKey: "wrong"})
	resp, err := http.Post(testSrv.URL+"/auth/token", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Unknown user gets the same answer as a wrong key.
	body2, _ := json.Marshal(model.AuthTokenRequest{OpenID: "nobody", APIKey: "whatever"})
	resp2, err := http.Post(testSrv.URL+"/auth/token", "application/json", bytes.NewReader(body2))
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestUnauthenticatedAccess(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/v1/accounts")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOpenAPISpecServed(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/openapi.yaml")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FXVault API")
}

func TestMalformedRequestBody(t *testing.T) {
	req, _ := http.NewRequest("POST", testSrv.URL+"/v1/accounts", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	data, _ := io.ReadAll(resp.Body)
	var envelope model.APIError
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, model.ErrCodeInvalidInput, envelope.Error.Code)
	assert.NotEmpty(t, envelope.Meta.RequestID)
}

func createAccount(t *testing.T, login string) model.ForexAccount {
	t.Helper()
	resp, err := authedRequest("POST", testSrv.URL+"/v1/accounts", adminToken, model.AccountInput{
		AccountLogin:       login,
		PlatformType:       model.PlatformMeta5,
		AccountType:        model.AccountUSD,
		PlatformNameServer: strptr("Exness-MT5Real8"),
		MasterPassword:     strptr("secret-master"),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var account model.ForexAccount
	decodeData(t, resp, &account)
	return account
}

func TestAccountLifecycle(t *testing.T) {
	account := createAccount(t, "10001")
	assert.Equal(t, "Exness 10001", account.AccountName)
	require.NotNil(t, account.BrokerLogoURL)
	assert.Equal(t, "0.00", account.AccountBalance)

	// Get it back.
	resp, err := authedRequest("GET", fmt.Sprintf("%s/v1/accounts/%d", testSrv.URL, account.ID), adminToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched model.ForexAccount
	decodeData(t, resp, &fetched)
	assert.Equal(t, account.ID, fetched.ID)

	// Partial update.
	resp2, err := authedRequest("PATCH", fmt.Sprintf("%s/v1/accounts/%d", testSrv.URL, account.ID), adminToken,
		model.AccountUpdate{AccountBalance: strptr("1500.50")})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var updated model.ForexAccount
	decodeData(t, resp2, &updated)
	assert.Equal(t, "1500.50", updated.AccountBalance)
	assert.Equal(t, account.AccountLogin, updated.AccountLogin)

	// Duplicate login conflicts.
	resp3, err := authedRequest("POST", testSrv.URL+"/v1/accounts", adminToken, model.AccountInput{
		AccountName:  "Duplicate 10001",
		AccountLogin: "10001",
		PlatformType: model.PlatformMeta5,
		AccountType:  model.AccountUSD,
	})
	require.NoError(t, err)
	defer func() { _ = resp3.Body.Close() }()
	assert.Equal(t, http.StatusConflict, resp3.StatusCode)

	// Delete.
	resp4, err := authedRequest("DELETE", fmt.Sprintf("%s/v1/accounts/%d", testSrv.URL, account.ID), adminToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp4.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp4.StatusCode)

	resp5, err := authedRequest("GET", fmt.Sprintf("%s/v1/accounts/%d", testSrv.URL, account.ID), adminToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp5.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp5.StatusCode)
}

func TestAccountValidation(t *testing.T) {
	resp, err := authedRequest("POST", testSrv.URL+"/v1/accounts", adminToken, model.AccountInput{
		AccountLogin: "20001",
		PlatformType: "meta7",
		AccountType:  model.AccountUSD,
	})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClientCannotCreateAccounts(t *testing.T) {
	resp, err := authedRequest("POST", testSrv.URL+"/v1/accounts", aliceToken, model.AccountInput{
		AccountLogin: "30001",
		PlatformType: model.PlatformMeta5,
		AccountType:  model.AccountUSD,
	})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGrantFlowAndNotifications(t *testing.T) {
	account := createAccount(t, "40001")

	// No access at all yet.
	resp, err := authedRequest("GET", fmt.Sprintf("%s/v1/accounts/%d", testSrv.URL, account.ID), bobToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Clients cannot grant.
	resp2, err := authedRequest("POST", testSrv.URL+"/v1/grants", aliceToken,
		model.GrantRequest{AccountID: account.ID, UserID: bobID})
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode)

	// Admin grants bob view access.
	resp3, err := authedRequest("POST", testSrv.URL+"/v1/grants", adminToken,
		model.GrantRequest{AccountID: account.ID, UserID: bobID, CanEdit: false})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp3.StatusCode)
	var grant model.AccountGrant
	decodeData(t, resp3, &grant)
	assert.Equal(t, bobID, grant.UserID)
	assert.False(t, grant.CanEdit)

	// Bob can now view but not edit.
	resp4, err := authedRequest("GET", fmt.Sprintf("%s/v1/accounts/%d", testSrv.URL, account.ID), bobToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp4.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp4.StatusCode)

	resp5, err := authedRequest("PATCH", fmt.Sprintf("%s/v1/accounts/%d", testSrv.URL, account.ID), bobToken,
		model.AccountUpdate{AccountBalance: strptr("99.99")})
	require.NoError(t, err)
	defer func() { _ = resp5.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp5.StatusCode)

	// The grant produced exactly one notification for bob.
	resp6, err := authedRequest("GET", testSrv.URL+"/v1/notifications", bobToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp6.StatusCode)
	var notes []model.Notification
	decodeData(t, resp6, &notes)
	require.Len(t, notes, 1)
	assert.Equal(t, "Account Access Granted", notes[0].Title)
	assert.False(t, notes[0].IsRead)

	// Re-granting with edit upgrades in place: still one grant row, one
	// more notification.
	resp7, err := authedRequest("POST", testSrv.URL+"/v1/grants", adminToken,
		model.GrantRequest{AccountID: account.ID, UserID: bobID, CanEdit: true})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp7.StatusCode)
	var upgraded model.AccountGrant
	decodeData(t, resp7, &upgraded)
	assert.True(t, upgraded.CanEdit)
	assert.Equal(t, grant.ID, upgraded.ID)

	resp8, err := authedRequest("GET", fmt.Sprintf("%s/v1/accounts/%d/grants", testSrv.URL, account.ID), adminToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp8.StatusCode)
	var grants []model.AccountGrant
	decodeData(t, resp8, &grants)
	assert.Len(t, grants, 1)

	resp9, err := authedRequest("GET", testSrv.URL+"/v1/notifications", bobToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp9.StatusCode)
	var notes2 []model.Notification
	decodeData(t, resp9, &notes2)
	assert.Len(t, notes2, 2)

	// Bob can edit now, and sees the grant in his own list.
	resp10, err := authedRequest("PATCH", fmt.Sprintf("%s/v1/accounts/%d", testSrv.URL, account.ID), bobToken,
		model.AccountUpdate{AccountBalance: strptr("99.99")})
	require.NoError(t, err)
	defer func() { _ = resp10.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp10.StatusCode)

	resp11, err := authedRequest("GET", testSrv.URL+"/v1/grants", bobToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp11.StatusCode)
	var mine []model.AccountGrant
	decodeData(t, resp11, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, account.ID, mine[0].AccountID)

	// Edit grant does not confer delete.
	resp12, err := authedRequest("DELETE", fmt.Sprintf("%s/v1/accounts/%d", testSrv.URL, account.ID), bobToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp12.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp12.StatusCode)

	// Revoke closes the door again and tells bob about it.
	resp13, err := authedRequest("DELETE", fmt.Sprintf("%s/v1/accounts/%d/grants/%d", testSrv.URL, account.ID, bobID), adminToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp13.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp13.StatusCode)

	resp14, err := authedRequest("GET", fmt.Sprintf("%s/v1/accounts/%d", testSrv.URL, account.ID), bobToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp14.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp14.StatusCode)

	resp15, err := authedRequest("GET", testSrv.URL+"/v1/notifications", bobToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp15.StatusCode)
	var notes3 []model.Notification
	decodeData(t, resp15, &notes3)
	require.Len(t, notes3, 3, "revoke should notify the affected user once")
	titles := make(map[string]int)
	for _, n := range notes3 {
		titles[n.Title]++
	}
	assert.Equal(t, 1, titles["Account Access Removed"])

	// Revoking a grant that does not exist is an error.
	resp16, err := authedRequest("DELETE", fmt.Sprintf("%s/v1/accounts/%d/grants/%d", testSrv.URL, account.ID, bobID), adminToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp16.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp16.StatusCode)
}

func TestAccountPermissionEndpoint(t *testing.T) {
	account := createAccount(t, "50001")

	// Admin owns what it creates.
	resp, err := authedRequest("GET", fmt.Sprintf("%s/v1/accounts/%d/permission", testSrv.URL, account.ID), adminToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var perm model.Permission
	decodeData(t, resp, &perm)
	assert.True(t, perm.IsOwner)
	assert.True(t, perm.CanEdit)

	// A stranger resolves to null.
	resp2, err := authedRequest("GET", fmt.Sprintf("%s/v1/accounts/%d/permission", testSrv.URL, account.ID), aliceToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	data, _ := io.ReadAll(resp2.Body)
	var envelope struct {
		Data *model.Permission `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Nil(t, envelope.Data)
}

func TestNotificationReadLifecycle(t *testing.T) {
	account := createAccount(t, "60001")

	// Two grants, two notifications for alice.
	for _, canEdit := range []bool{false, true} {
		resp, err := authedRequest("POST", testSrv.URL+"/v1/grants", adminToken,
			model.GrantRequest{AccountID: account.ID, UserID: aliceID, CanEdit: canEdit})
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, err := authedRequest("GET", testSrv.URL+"/v1/notifications/unread-count", aliceToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var count model.UnreadCountResponse
	decodeData(t, resp, &count)
	require.GreaterOrEqual(t, count.Count, 2)

	resp2, err := authedRequest("GET", testSrv.URL+"/v1/notifications", aliceToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var notes []model.Notification
	decodeData(t, resp2, &notes)
	require.NotEmpty(t, notes)

	// Mark one read.
	resp3, err := authedRequest("POST", fmt.Sprintf("%s/v1/notifications/%d/read", testSrv.URL, notes[0].ID), aliceToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp3.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)

	// Another user cannot touch alice's notification.
	resp4, err := authedRequest("POST", fmt.Sprintf("%s/v1/notifications/%d/read", testSrv.URL, notes[0].ID), bobToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp4.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp4.StatusCode)

	// Read-all zeroes the counter.
	resp5, err := authedRequest("POST", testSrv.URL+"/v1/notifications/read-all", aliceToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp5.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp5.StatusCode)

	resp6, err := authedRequest("GET", testSrv.URL+"/v1/notifications/unread-count", aliceToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp6.StatusCode)
	var after model.UnreadCountResponse
	decodeData(t, resp6, &after)
	assert.Equal(t, 0, after.Count)

	// Delete one.
	resp7, err := authedRequest("DELETE", fmt.Sprintf("%s/v1/notifications/%d", testSrv.URL, notes[0].ID), aliceToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp7.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp7.StatusCode)
}

func TestChatConversation(t *testing.T) {
	fakeLLM.reply = "Happy to help with your accounts."

	resp, err := authedRequest("POST", testSrv.URL+"/v1/chat/messages", aliceToken,
		model.ChatSendRequest{Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reply model.ChatSendResponse
	decodeData(t, resp, &reply)
	assert.Equal(t, "Happy to help with your accounts.", reply.Message)
	assert.Nil(t, reply.Extraction, "plain reply should not produce an extraction")

	// Both turns are persisted.
	resp2, err := authedRequest("GET", testSrv.URL+"/v1/chat/history", aliceToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var history []model.ChatMessage
	decodeData(t, resp2, &history)
	require.Len(t, history, 2)
	assert.Equal(t, model.ChatRoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, model.ChatRoleAssistant, history[1].Role)

	// Empty message is rejected.
	resp3, err := authedRequest("POST", testSrv.URL+"/v1/chat/messages", aliceToken,
		model.ChatSendRequest{Message: "   "})
	require.NoError(t, err)
	defer func() { _ = resp3.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)

	// Clearing wipes the log.
	resp4, err := authedRequest("DELETE", testSrv.URL+"/v1/chat/history", aliceToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp4.StatusCode)
	var cleared map[string]int64
	decodeData(t, resp4, &cleared)
	assert.Equal(t, int64(2), cleared["deleted"])

	resp5, err := authedRequest("GET", testSrv.URL+"/v1/chat/history", aliceToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp5.StatusCode)
	var empty []model.ChatMessage
	decodeData(t, resp5, &empty)
	assert.Empty(t, empty)
}

func TestChatAccountExtraction(t *testing.T) {
	fakeLLM.reply = "Saved that for you.\n```json\n" +
		`{"account_login":"70001","master_password":"mp","platform_type":"meta5",` +
		`"account_type":"usd","platform_name_server":"ICMarketsSC-MT5","account_balance":250.5}` +
		"\n```"

	resp, err := authedRequest("POST", testSrv.URL+"/v1/chat/messages", adminToken,
		model.ChatSendRequest{Message: "add my icmarkets account, login 70001"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reply model.ChatSendResponse
	decodeData(t, resp, &reply)

	require.NotNil(t, reply.Extraction)
	assert.Equal(t, "account", reply.Extraction.Kind)
	assert.Equal(t, model.ExtractionCreated, reply.Extraction.Status)
	require.NotNil(t, reply.Extraction.AccountID)

	// The record really exists with the normalized balance.
	resp2, err := authedRequest("GET", fmt.Sprintf("%s/v1/accounts/%d", testSrv.URL, *reply.Extraction.AccountID), adminToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var account model.ForexAccount
	decodeData(t, resp2, &account)
	assert.Equal(t, "70001", account.AccountLogin)
	assert.Equal(t, "250.50", account.AccountBalance)

	fakeLLM.reply = "Happy to help."
}

func TestProposalWorkflow(t *testing.T) {
	// Clients cannot see the workflow at all.
	resp, err := authedRequest("GET", testSrv.URL+"/v1/proposals", aliceToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Queue a proposal.
	resp2, err := authedRequest("POST", testSrv.URL+"/v1/proposals", adminToken, model.ProposalInput{
		Kind:      model.ProposalAddColumn,
		TableName: "forex_accounts",
		SQLQuery:  "ALTER TABLE forex_accounts ADD COLUMN risk_note TEXT",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp2.StatusCode)
	var proposal model.SchemaProposal
	decodeData(t, resp2, &proposal)
	assert.Equal(t, model.ProposalPending, proposal.Status)

	// Approve, then execute.
	resp3, err := authedRequest("POST", fmt.Sprintf("%s/v1/proposals/%d/approve", testSrv.URL, proposal.ID), adminToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp3.StatusCode)
	var approved model.SchemaProposal
	decodeData(t, resp3, &approved)
	assert.Equal(t, model.ProposalApproved, approved.Status)

	// Approving twice is an invalid transition.
	resp4, err := authedRequest("POST", fmt.Sprintf("%s/v1/proposals/%d/approve", testSrv.URL, proposal.ID), adminToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp4.Body.Close() }()
	assert.Equal(t, http.StatusConflict, resp4.StatusCode)

	resp5, err := authedRequest("POST", fmt.Sprintf("%s/v1/proposals/%d/execute", testSrv.URL, proposal.ID), adminToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp5.StatusCode)
	var executed model.SchemaProposal
	decodeData(t, resp5, &executed)
	assert.Equal(t, model.ProposalExecuted, executed.Status)
	assert.NotNil(t, executed.ExecutedAt)

	// Executed is terminal.
	resp6, err := authedRequest("POST", fmt.Sprintf("%s/v1/proposals/%d/execute", testSrv.URL, proposal.ID), adminToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp6.Body.Close() }()
	assert.Equal(t, http.StatusConflict, resp6.StatusCode)

	// Status filter.
	resp7, err := authedRequest("GET", testSrv.URL+"/v1/proposals?status=executed", adminToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp7.StatusCode)
	var listed []model.SchemaProposal
	decodeData(t, resp7, &listed)
	require.NotEmpty(t, listed)
	for _, p := range listed {
		assert.Equal(t, model.ProposalExecuted, p.Status)
	}
}

func TestProposalExecutionFailure(t *testing.T) {
	resp, err := authedRequest("POST", testSrv.URL+"/v1/proposals", adminToken, model.ProposalInput{
		Kind:      model.ProposalDropColumn,
		TableName: "no_such_table",
		SQLQuery:  "ALTER TABLE no_such_table DROP COLUMN ghost",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var proposal model.SchemaProposal
	decodeData(t, resp, &proposal)

	// Execute straight from pending; the SQL fails, the proposal records it.
	resp2, err := authedRequest("POST", fmt.Sprintf("%s/v1/proposals/%d/execute", testSrv.URL, proposal.ID), adminToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var failed model.SchemaProposal
	decodeData(t, resp2, &failed)
	assert.Equal(t, model.ProposalFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.NotEmpty(t, *failed.ErrorMessage)

	// Failed is terminal too.
	resp3, err := authedRequest("POST", fmt.Sprintf("%s/v1/proposals/%d/execute", testSrv.URL, proposal.ID), adminToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp3.Body.Close() }()
	assert.Equal(t, http.StatusConflict, resp3.StatusCode)
}

func TestCustomFields(t *testing.T) {
	account := createAccount(t, "80001")

	// Mutation is admin-only.
	resp, err := authedRequest("POST", testSrv.URL+"/v1/custom-fields", aliceToken, model.CustomFieldInput{
		EntityType: "account", EntityID: account.ID, FieldName: "vps", FieldType: model.FieldText,
	})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp2, err := authedRequest("POST", testSrv.URL+"/v1/custom-fields", adminToken, model.CustomFieldInput{
		EntityType: "account", EntityID: account.ID, FieldName: "vps",
		FieldType: model.FieldText, FieldValue: strptr("contabo-3"),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp2.StatusCode)
	var field model.CustomField
	decodeData(t, resp2, &field)
	assert.Equal(t, "vps", field.FieldName)

	// Any authenticated user can read.
	url := fmt.Sprintf("%s/v1/custom-fields?entity_type=account&entity_id=%d", testSrv.URL, account.ID)
	resp3, err := authedRequest("GET", url, aliceToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp3.StatusCode)
	var fields []model.CustomField
	decodeData(t, resp3, &fields)
	require.Len(t, fields, 1)

	// Update the value.
	resp4, err := authedRequest("PATCH", fmt.Sprintf("%s/v1/custom-fields/%d", testSrv.URL, field.ID), adminToken,
		map[string]any{"field_value": "hetzner-1"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp4.StatusCode)
	var updated model.CustomField
	decodeData(t, resp4, &updated)
	require.NotNil(t, updated.FieldValue)
	assert.Equal(t, "hetzner-1", *updated.FieldValue)

	// Delete.
	resp5, err := authedRequest("DELETE", fmt.Sprintf("%s/v1/custom-fields/%d", testSrv.URL, field.ID), adminToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp5.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp5.StatusCode)
}

func TestCatalogs(t *testing.T) {
	resp, err := authedRequest("POST", testSrv.URL+"/v1/servers", aliceToken, model.NameRequest{Name: "Exness-MT5Real8"})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp2, err := authedRequest("POST", testSrv.URL+"/v1/servers", adminToken, model.NameRequest{Name: "Exness-MT5Real8"})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp2.StatusCode)
	var srv model.TradeServer
	decodeData(t, resp2, &srv)

	resp3, err := authedRequest("GET", testSrv.URL+"/v1/servers", aliceToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp3.StatusCode)
	var servers []model.TradeServer
	decodeData(t, resp3, &servers)
	assert.NotEmpty(t, servers)

	resp4, err := authedRequest("POST", testSrv.URL+"/v1/bots", adminToken, model.NameRequest{Name: "GoldSniper v3"})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp4.StatusCode)
	var bot model.Bot
	decodeData(t, resp4, &bot)

	resp5, err := authedRequest("DELETE", fmt.Sprintf("%s/v1/bots/%d", testSrv.URL, bot.ID), adminToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp5.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp5.StatusCode)

	resp6, err := authedRequest("DELETE", fmt.Sprintf("%s/v1/servers/%d", testSrv.URL, srv.ID), adminToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp6.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp6.StatusCode)
}

func TestUserManagement(t *testing.T) {
	// Admin-only surface.
	resp, err := authedRequest("GET", testSrv.URL+"/v1/users", aliceToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Creating a user returns the raw API key exactly once.
	resp2, err := authedRequest("POST", testSrv.URL+"/v1/users", adminToken,
		model.CreateUserRequest{OpenID: "carol", Name: strptr("Carol")})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp2.StatusCode)
	var created model.CreateUserResponse
	decodeData(t, resp2, &created)
	assert.Equal(t, "carol", created.User.OpenID)
	assert.Equal(t, model.RoleClient, created.User.Role)
	assert.NotEmpty(t, created.APIKey)

	// The key actually works.
	carolToken := getToken(testSrv.URL, "carol", created.APIKey)
	assert.NotEmpty(t, carolToken)

	// Promote to admin.
	resp3, err := authedRequest("POST", fmt.Sprintf("%s/v1/users/%d/role", testSrv.URL, created.User.ID), adminToken,
		model.RoleUpdateRequest{Role: model.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp3.StatusCode)
	var promoted model.User
	decodeData(t, resp3, &promoted)
	assert.Equal(t, model.RoleAdmin, promoted.Role)

	// Duplicate open_id conflicts.
	resp4, err := authedRequest("POST", testSrv.URL+"/v1/users", adminToken,
		model.CreateUserRequest{OpenID: "carol"})
	require.NoError(t, err)
	defer func() { _ = resp4.Body.Close() }()
	assert.Equal(t, http.StatusConflict, resp4.StatusCode)
}

func TestSettings(t *testing.T) {
	resp, err := authedRequest("GET", testSrv.URL+"/v1/settings", aliceToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Store the completion key.
	resp2, err := authedRequest("PUT", testSrv.URL+"/v1/settings/"+model.SettingKeyCompletionAPIKey, adminToken,
		model.SettingInput{Value: strptr("xai-abcdef123456"), SettingType: model.SettingAPIKey})
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	// The list masks api_key values.
	resp3, err := authedRequest("GET", testSrv.URL+"/v1/settings", adminToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp3.StatusCode)
	var settings []model.Setting
	decodeData(t, resp3, &settings)
	require.NotEmpty(t, settings)
	for _, s := range settings {
		if s.Key == model.SettingKeyCompletionAPIKey {
			require.NotNil(t, s.Value)
			assert.Equal(t, "****3456", *s.Value)
		}
	}

	// Probe outcome is a result, not an HTTP error: the scripted completer
	// answers, so the probe succeeds.
	fakeLLM.reply = "pong"
	resp4, err := authedRequest("POST", testSrv.URL+"/v1/settings/test-connection", adminToken,
		model.TestConnectionRequest{APIKey: "xai-abcdef123456"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp4.StatusCode)
	var probe model.TestConnectionResponse
	decodeData(t, resp4, &probe)
	assert.True(t, probe.Success)

	fakeLLM.err = fmt.Errorf("upstream unreachable")
	resp5, err := authedRequest("POST", testSrv.URL+"/v1/settings/test-connection", adminToken,
		model.TestConnectionRequest{APIKey: "xai-abcdef123456"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp5.StatusCode)
	var bad model.TestConnectionResponse
	decodeData(t, resp5, &bad)
	assert.False(t, bad.Success)
	assert.NotEmpty(t, bad.Error)
	fakeLLM.err = nil

	// Remove the stored key.
	resp6, err := authedRequest("DELETE", testSrv.URL+"/v1/settings/"+model.SettingKeyCompletionAPIKey, adminToken, nil)
	require.NoError(t, err)
	defer func() { _ = resp6.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp6.StatusCode)
}

// newMCPClient creates an MCP client that connects to the test server's /mcp
// endpoint with the given bearer token for authentication.
func newMCPClient(t *testing.T, token string) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.NewStreamableHttpClient(
		testSrv.URL+"/mcp",
		mcptransport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + token,
		}),
	)
	require.NoError(t, err)
	return c
}

func TestMCPInitialize(t *testing.T) {
	c := newMCPClient(t, aliceToken)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	initResult, err := c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "fxvault", initResult.ServerInfo.Name)
}

func TestMCPListTools(t *testing.T) {
	c := newMCPClient(t, aliceToken)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	_, err := c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)

	toolsResult, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	require.NoError(t, err)

	toolNames := make(map[string]bool)
	for _, tool := range toolsResult.Tools {
		toolNames[tool.Name] = true
	}
	assert.True(t, toolNames["fx_list_accounts"], "expected fx_list_accounts tool")
	assert.True(t, toolNames["fx_get_account"], "expected fx_get_account tool")
	assert.True(t, toolNames["fx_check_permission"], "expected fx_check_permission tool")
}

func TestMCPGetAccountHonorsPermissions(t *testing.T) {
	account := createAccount(t, "90001")

	c := newMCPClient(t, aliceToken)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	_, err := c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)

	// Alice has no access to the admin-owned account.
	result, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "fx_get_account",
			Arguments: map[string]any{"account_id": account.ID},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError, "tool should deny access, got: %v", result.Content)
}
