package storage_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsralgo/fxvault/internal/model"
	"github.com/jsralgo/fxvault/internal/storage"
	"github.com/jsralgo/fxvault/internal/testutil"
	"github.com/jsralgo/fxvault/migrations"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()
	logger := testutil.TestLogger()

	var err error
	testDB, err = tc.NewTestDB(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close(ctx)
	tc.Terminate()
	os.Exit(code)
}

func strptr(s string) *string { return &s }

// newUser inserts a user with a throwaway API key hash.
func newUser(t *testing.T, openID string, role model.UserRole) model.User {
	t.Helper()
	u, err := testDB.CreateUser(context.Background(), openID, nil, nil, role, "salt$hash")
	require.NoError(t, err)
	return u
}

// newAccount inserts an account owned by ownerID.
func newAccount(t *testing.T, login string, ownerID int64) model.ForexAccount {
	t.Helper()
	a, err := testDB.CreateAccount(context.Background(), model.ForexAccount{
		AccountName:    "Test " + login,
		AccountLogin:   login,
		AccountBalance: "0.00",
		PlatformType:   model.PlatformMeta5,
		AccountType:    model.AccountUSD,
		OwnerID:        &ownerID,
	})
	require.NoError(t, err)
	return a
}

func TestMigrationsAreIdempotent(t *testing.T) {
	// A second run over an already-migrated database applies nothing.
	require.NoError(t, testDB.RunMigrations(context.Background(), migrations.FS))
}

func TestUserCRUD(t *testing.T) {
	ctx := context.Background()

	u := newUser(t, "user-crud", model.RoleClient)
	assert.Equal(t, model.RoleClient, u.Role)

	// Duplicate open_id conflicts.
	_, err := testDB.CreateUser(ctx, "user-crud", nil, nil, model.RoleClient, "x$y")
	require.ErrorIs(t, err, storage.ErrConflict)

	got, err := testDB.GetUserByOpenID(ctx, "user-crud")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = testDB.GetUserByOpenID(ctx, "no-such-user")
	require.ErrorIs(t, err, storage.ErrNotFound)

	promoted, err := testDB.UpdateUserRole(ctx, u.ID, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, promoted.Role)

	signedIn := time.Now().UTC().Add(time.Minute)
	require.NoError(t, testDB.TouchUserSignIn(ctx, u.ID, signedIn))
	touched, err := testDB.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, signedIn, touched.LastSignedIn, time.Second)
}

func TestUpsertUserOnLoginKeepsRole(t *testing.T) {
	ctx := context.Background()

	u := newUser(t, "login-upsert", model.RoleAdmin)

	// A repeat login refreshes profile fields but never the role.
	again, err := testDB.UpsertUserOnLogin(ctx, "login-upsert", strptr("New Name"), nil)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, model.RoleAdmin, again.Role)
	require.NotNil(t, again.Name)
	assert.Equal(t, "New Name", *again.Name)

	// A first login creates a client row.
	fresh, err := testDB.UpsertUserOnLogin(ctx, "login-fresh", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RoleClient, fresh.Role)
}

func TestEnsureOwner(t *testing.T) {
	ctx := context.Background()

	// Creates the owner as admin when absent.
	owner, err := testDB.EnsureOwner(ctx, "the-owner", "salt$ownerhash")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, owner.Role)

	// Re-running promotes an existing row instead of failing.
	again, err := testDB.EnsureOwner(ctx, "the-owner", "salt$newhash")
	require.NoError(t, err)
	assert.Equal(t, owner.ID, again.ID)
	assert.Equal(t, model.RoleAdmin, again.Role)
}

func TestAccountCRUD(t *testing.T) {
	ctx := context.Background()
	owner := newUser(t, "acct-owner", model.RoleAdmin)

	a := newAccount(t, "100100", owner.ID)

	// Unique login conflicts.
	_, err := testDB.CreateAccount(ctx, model.ForexAccount{
		AccountName:    "Other",
		AccountLogin:   "100100",
		AccountBalance: "0.00",
		PlatformType:   model.PlatformMeta4,
		AccountType:    model.AccountCent,
	})
	require.ErrorIs(t, err, storage.ErrConflict)

	// Partial update leaves untouched fields alone.
	updated, err := testDB.UpdateAccount(ctx, a.ID, model.AccountUpdate{
		AccountBalance: strptr("42.00"),
		MasterPassword: strptr("new-secret"),
	})
	require.NoError(t, err)
	assert.Equal(t, "42.00", updated.AccountBalance)
	assert.Equal(t, a.AccountLogin, updated.AccountLogin)
	assert.Equal(t, a.AccountName, updated.AccountName)

	require.NoError(t, testDB.SetAccountBrokerLogo(ctx, a.ID, "https://example.com/logo.ico"))
	got, err := testDB.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.BrokerLogoURL)
	assert.Equal(t, "https://example.com/logo.ico", *got.BrokerLogoURL)

	require.NoError(t, testDB.DeleteAccount(ctx, a.ID))
	_, err = testDB.GetAccount(ctx, a.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, testDB.DeleteAccount(ctx, a.ID), storage.ErrNotFound)
}

func TestListAccountsForUser(t *testing.T) {
	ctx := context.Background()
	owner := newUser(t, "list-owner", model.RoleAdmin)
	viewer := newUser(t, "list-viewer", model.RoleClient)

	owned := newAccount(t, "200100", owner.ID)
	granted := newAccount(t, "200200", owner.ID)
	newAccount(t, "200300", owner.ID) // invisible to viewer

	_, err := testDB.UpsertGrant(ctx, viewer.ID, granted.ID, false, owner.ID)
	require.NoError(t, err)

	// Owned and granted both appear; an account that is both appears once.
	_, err = testDB.UpsertGrant(ctx, owner.ID, owned.ID, true, owner.ID)
	require.NoError(t, err)

	forViewer, err := testDB.ListAccountsForUser(ctx, viewer.ID)
	require.NoError(t, err)
	require.Len(t, forViewer, 1)
	assert.Equal(t, granted.ID, forViewer[0].ID)

	forOwner, err := testDB.ListAccountsForUser(ctx, owner.ID)
	require.NoError(t, err)
	seen := make(map[int64]int)
	for _, a := range forOwner {
		seen[a.ID]++
	}
	assert.Equal(t, 1, seen[owned.ID], "owned+granted account must appear exactly once")
}

func TestGrantUpsertCollapses(t *testing.T) {
	ctx := context.Background()
	owner := newUser(t, "grant-owner", model.RoleAdmin)
	viewer := newUser(t, "grant-viewer", model.RoleClient)
	account := newAccount(t, "300100", owner.ID)

	first, err := testDB.UpsertGrant(ctx, viewer.ID, account.ID, false, owner.ID)
	require.NoError(t, err)
	assert.False(t, first.CanEdit)

	// Same pair again: the row is updated in place, not duplicated.
	second, err := testDB.UpsertGrant(ctx, viewer.ID, account.ID, true, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.CanEdit)

	grants, err := testDB.ListGrantsByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)

	byUser, err := testDB.ListGrantsByUser(ctx, viewer.ID)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, account.ID, byUser[0].AccountID)

	require.NoError(t, testDB.DeleteGrant(ctx, viewer.ID, account.ID))
	require.ErrorIs(t, testDB.DeleteGrant(ctx, viewer.ID, account.ID), storage.ErrNotFound)
	_, err = testDB.GrantFor(ctx, viewer.ID, account.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGrantsVanishWithAccount(t *testing.T) {
	ctx := context.Background()
	owner := newUser(t, "cascade-owner", model.RoleAdmin)
	viewer := newUser(t, "cascade-viewer", model.RoleClient)
	account := newAccount(t, "310100", owner.ID)

	_, err := testDB.UpsertGrant(ctx, viewer.ID, account.ID, true, owner.ID)
	require.NoError(t, err)

	require.NoError(t, testDB.DeleteAccount(ctx, account.ID))
	_, err = testDB.GrantFor(ctx, viewer.ID, account.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNotificationsScopedToUser(t *testing.T) {
	ctx := context.Background()
	u1 := newUser(t, "notif-1", model.RoleClient)
	u2 := newUser(t, "notif-2", model.RoleClient)

	for i := range 3 {
		_, err := testDB.CreateNotification(ctx, model.Notification{
			UserID:   u1.ID,
			Title:    fmt.Sprintf("note %d", i),
			Message:  "hello",
			Severity: model.SeverityInfo,
		})
		require.NoError(t, err)
	}
	other, err := testDB.CreateNotification(ctx, model.Notification{
		UserID:   u2.ID,
		Title:    "not yours",
		Message:  "hello",
		Severity: model.SeverityWarning,
	})
	require.NoError(t, err)

	notes, err := testDB.ListNotifications(ctx, u1.ID, 10)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	// Newest first.
	assert.Equal(t, "note 2", notes[0].Title)

	count, err := testDB.UnreadNotificationCount(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Reads are scoped: u1 cannot mark u2's notification.
	require.ErrorIs(t, testDB.MarkNotificationRead(ctx, u1.ID, other.ID), storage.ErrNotFound)

	require.NoError(t, testDB.MarkNotificationRead(ctx, u1.ID, notes[0].ID))
	count, err = testDB.UnreadNotificationCount(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	updated, err := testDB.MarkAllNotificationsRead(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	// Deletes are scoped too.
	require.ErrorIs(t, testDB.DeleteNotification(ctx, u1.ID, other.ID), storage.ErrNotFound)
	require.NoError(t, testDB.DeleteNotification(ctx, u1.ID, notes[0].ID))
}

func TestNotificationPublish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u := newUser(t, "notif-stream", model.RoleClient)
	require.NoError(t, testDB.Listen(ctx, storage.ChannelNotifications))

	created, err := testDB.CreateNotification(ctx, model.Notification{
		UserID:   u.ID,
		Title:    "live",
		Message:  "hello",
		Severity: model.SeveritySuccess,
	})
	require.NoError(t, err)

	channel, payload, err := testDB.WaitForNotification(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.ChannelNotifications, channel)

	var got model.Notification
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, u.ID, got.UserID)
}

func TestChatLog(t *testing.T) {
	ctx := context.Background()
	u := newUser(t, "chat-user", model.RoleClient)

	for i := range 6 {
		_, err := testDB.SaveChatMessage(ctx, u.ID, model.ChatRoleUser, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
		_, err = testDB.SaveChatMessage(ctx, u.ID, model.ChatRoleAssistant, fmt.Sprintf("a%d", i))
		require.NoError(t, err)
	}

	history, err := testDB.ChatHistory(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, history, 12)
	assert.Equal(t, "q0", history[0].Content)
	assert.Equal(t, "a5", history[11].Content)

	// The recent window is the trailing n messages in chronological order.
	recent, err := testDB.RecentChatMessages(ctx, u.ID, 4)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, "q4", recent[0].Content)
	assert.Equal(t, "a5", recent[3].Content)

	deleted, err := testDB.ClearChatHistory(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)

	history, err = testDB.ChatHistory(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCustomFields(t *testing.T) {
	ctx := context.Background()
	admin := newUser(t, "cf-admin", model.RoleAdmin)
	account := newAccount(t, "400100", admin.ID)

	f, err := testDB.CreateCustomField(ctx, model.CustomFieldInput{
		EntityType: "account",
		EntityID:   account.ID,
		FieldName:  "vps_host",
		FieldType:  model.FieldText,
		FieldValue: strptr("contabo-3"),
	}, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, f.CreatedBy)

	fields, err := testDB.ListCustomFields(ctx, "account", account.ID)
	require.NoError(t, err)
	require.Len(t, fields, 1)

	updated, err := testDB.UpdateCustomFieldValue(ctx, f.ID, strptr("hetzner-1"))
	require.NoError(t, err)
	require.NotNil(t, updated.FieldValue)
	assert.Equal(t, "hetzner-1", *updated.FieldValue)

	cleared, err := testDB.UpdateCustomFieldValue(ctx, f.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.FieldValue)

	require.NoError(t, testDB.DeleteCustomField(ctx, f.ID))
	require.ErrorIs(t, testDB.DeleteCustomField(ctx, f.ID), storage.ErrNotFound)
}

func TestProposalTransitions(t *testing.T) {
	ctx := context.Background()
	admin := newUser(t, "prop-admin", model.RoleAdmin)

	p, err := testDB.CreateProposal(ctx, model.ProposalInput{
		Kind:      model.ProposalAddColumn,
		TableName: "forex_accounts",
		SQLQuery:  "ALTER TABLE forex_accounts ADD COLUMN transition_probe TEXT",
	}, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalPending, p.Status)

	approved, err := testDB.ApproveProposal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalApproved, approved.Status)

	// pending→approved only once.
	_, err = testDB.ApproveProposal(ctx, p.ID)
	require.ErrorIs(t, err, storage.ErrConflict)

	executed, err := testDB.MarkProposalExecuted(ctx, p.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, model.ProposalExecuted, executed.Status)
	assert.NotNil(t, executed.ExecutedAt)

	// executed is terminal in both directions.
	_, err = testDB.MarkProposalExecuted(ctx, p.ID, time.Now().UTC())
	require.ErrorIs(t, err, storage.ErrConflict)
	_, err = testDB.MarkProposalFailed(ctx, p.ID, "too late")
	require.ErrorIs(t, err, storage.ErrConflict)

	// Unknown proposal distinguishes not-found from conflict.
	_, err = testDB.ApproveProposal(ctx, 999999)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProposalFailurePath(t *testing.T) {
	ctx := context.Background()
	admin := newUser(t, "prop-fail-admin", model.RoleAdmin)

	p, err := testDB.CreateProposal(ctx, model.ProposalInput{
		Kind:       model.ProposalDropColumn,
		TableName:  "nope",
		ColumnName: strptr("ghost"),
		SQLQuery:   "ALTER TABLE nope DROP COLUMN ghost",
	}, admin.ID)
	require.NoError(t, err)

	_, err = testDB.ApproveProposal(ctx, p.ID)
	require.NoError(t, err)

	require.Error(t, testDB.ExecuteRawSQL(ctx, p.SQLQuery))

	failed, err := testDB.MarkProposalFailed(ctx, p.ID, "relation does not exist")
	require.NoError(t, err)
	assert.Equal(t, model.ProposalFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)

	// failed never becomes executed.
	_, err = testDB.MarkProposalExecuted(ctx, p.ID, time.Now().UTC())
	require.ErrorIs(t, err, storage.ErrConflict)

	// Status filter.
	list, err := testDB.ListProposals(ctx, model.ProposalFailed)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	for _, lp := range list {
		assert.Equal(t, model.ProposalFailed, lp.Status)
	}
}

func TestSettingsUpsert(t *testing.T) {
	ctx := context.Background()
	admin := newUser(t, "settings-admin", model.RoleAdmin)

	s, err := testDB.PutSetting(ctx, "grok_api_key", model.SettingInput{
		Value:       strptr("xai-first"),
		SettingType: model.SettingAPIKey,
	}, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SettingAPIKey, s.SettingType)

	// Same key updates in place.
	s2, err := testDB.PutSetting(ctx, "grok_api_key", model.SettingInput{
		Value:       strptr("xai-second"),
		SettingType: model.SettingAPIKey,
	}, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, s2.ID)
	require.NotNil(t, s2.Value)
	assert.Equal(t, "xai-second", *s2.Value)

	got, err := testDB.GetSetting(ctx, "grok_api_key")
	require.NoError(t, err)
	require.NotNil(t, got.Value)
	assert.Equal(t, "xai-second", *got.Value)

	require.NoError(t, testDB.DeleteSetting(ctx, "grok_api_key"))
	_, err = testDB.GetSetting(ctx, "grok_api_key")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, testDB.DeleteSetting(ctx, "grok_api_key"), storage.ErrNotFound)
}

func TestCatalogs(t *testing.T) {
	ctx := context.Background()

	srv, err := testDB.CreateTradeServer(ctx, "Exness-MT5Real8")
	require.NoError(t, err)

	_, err = testDB.CreateTradeServer(ctx, "Exness-MT5Real8")
	require.ErrorIs(t, err, storage.ErrConflict)

	servers, err := testDB.ListTradeServers(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, servers)

	bot, err := testDB.CreateBot(ctx, "GoldSniper v3")
	require.NoError(t, err)
	_, err = testDB.CreateBot(ctx, "GoldSniper v3")
	require.ErrorIs(t, err, storage.ErrConflict)

	require.NoError(t, testDB.DeleteBot(ctx, bot.ID))
	require.ErrorIs(t, testDB.DeleteBot(ctx, bot.ID), storage.ErrNotFound)
	require.NoError(t, testDB.DeleteTradeServer(ctx, srv.ID))
	require.ErrorIs(t, testDB.DeleteTradeServer(ctx, srv.ID), storage.ErrNotFound)
}
