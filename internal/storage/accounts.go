package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jsralgo/fxvault/internal/model"
)

const accountColumns = `id, account_name, owner_name, owner_id, account_balance, account_login,
	 investor_password, master_password, platform_type, account_type,
	 platform_name_server, bot_running, linked_user_email, broker_logo_url,
	 created_at, updated_at`

func scanAccount(row pgx.Row) (model.ForexAccount, error) {
	var a model.ForexAccount
	err := row.Scan(
		&a.ID, &a.AccountName, &a.OwnerName, &a.OwnerID, &a.AccountBalance, &a.AccountLogin,
		&a.InvestorPassword, &a.MasterPassword, &a.PlatformType, &a.AccountType,
		&a.PlatformNameServer, &a.BotRunning, &a.LinkedUserEmail, &a.BrokerLogoURL,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

// CreateAccount inserts a new credential record. Duplicate account_name or
// account_login returns ErrConflict.
func (db *DB) CreateAccount(ctx context.Context, a model.ForexAccount) (model.ForexAccount, error) {
	created, err := scanAccount(db.pool.QueryRow(ctx,
		`INSERT INTO forex_accounts (account_name, owner_name, owner_id, account_balance,
		 account_login, investor_password, master_password, platform_type, account_type,
		 platform_name_server, bot_running, linked_user_email, broker_logo_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+accountColumns,
		a.AccountName, a.OwnerName, a.OwnerID, a.AccountBalance,
		a.AccountLogin, a.InvestorPassword, a.MasterPassword, a.PlatformType, a.AccountType,
		a.PlatformNameServer, a.BotRunning, a.LinkedUserEmail, a.BrokerLogoURL,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return model.ForexAccount{}, fmt.Errorf("storage: create account %s: %w", a.AccountName, ErrConflict)
		}
		return model.ForexAccount{}, fmt.Errorf("storage: create account: %w", err)
	}
	return created, nil
}

// GetAccount retrieves an account by ID.
func (db *DB) GetAccount(ctx context.Context, id int64) (model.ForexAccount, error) {
	a, err := scanAccount(db.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM forex_accounts WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ForexAccount{}, fmt.Errorf("storage: account %d: %w", id, ErrNotFound)
		}
		return model.ForexAccount{}, fmt.Errorf("storage: get account: %w", err)
	}
	return a, nil
}

// UpdateAccount applies a partial update; nil fields keep their stored value.
func (db *DB) UpdateAccount(ctx context.Context, id int64, upd model.AccountUpdate) (model.ForexAccount, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.AccountName != nil {
		add("account_name", *upd.AccountName)
	}
	if upd.OwnerName != nil {
		add("owner_name", *upd.OwnerName)
	}
	if upd.AccountBalance != nil {
		add("account_balance", *upd.AccountBalance)
	}
	if upd.AccountLogin != nil {
		add("account_login", *upd.AccountLogin)
	}
	if upd.InvestorPassword != nil {
		add("investor_password", *upd.InvestorPassword)
	}
	if upd.MasterPassword != nil {
		add("master_password", *upd.MasterPassword)
	}
	if upd.PlatformType != nil {
		add("platform_type", *upd.PlatformType)
	}
	if upd.AccountType != nil {
		add("account_type", *upd.AccountType)
	}
	if upd.PlatformNameServer != nil {
		add("platform_name_server", *upd.PlatformNameServer)
	}
	if upd.BotRunning != nil {
		add("bot_running", *upd.BotRunning)
	}
	if upd.LinkedUserEmail != nil {
		add("linked_user_email", *upd.LinkedUserEmail)
	}

	a, err := scanAccount(db.pool.QueryRow(ctx,
		`UPDATE forex_accounts SET `+strings.Join(sets, ", ")+`
		 WHERE id = $1
		 RETURNING `+accountColumns,
		args...,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ForexAccount{}, fmt.Errorf("storage: account %d: %w", id, ErrNotFound)
		}
		if isUniqueViolation(err) {
			return model.ForexAccount{}, fmt.Errorf("storage: update account %d: %w", id, ErrConflict)
		}
		return model.ForexAccount{}, fmt.Errorf("storage: update account: %w", err)
	}
	return a, nil
}

// SetAccountBrokerLogo records the derived broker logo URL.
func (db *DB) SetAccountBrokerLogo(ctx context.Context, id int64, logoURL string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE forex_accounts SET broker_logo_url = $2, updated_at = now() WHERE id = $1`,
		id, logoURL,
	)
	if err != nil {
		return fmt.Errorf("storage: set account broker logo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: account %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAccount removes an account and its grants.
func (db *DB) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM forex_accounts WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: account %d: %w", id, ErrNotFound)
	}
	if _, err := db.pool.Exec(ctx,
		`DELETE FROM account_grants WHERE account_id = $1`, id,
	); err != nil {
		return fmt.Errorf("storage: delete account grants: %w", err)
	}
	return nil
}

// ListAccounts returns every account ordered by id.
func (db *DB) ListAccounts(ctx context.Context) ([]model.ForexAccount, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM forex_accounts ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list accounts: %w", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// ListAccountsForUser returns the accounts a user owns or holds a grant on,
// ordered by id. An account that is both owned and granted appears once.
func (db *DB) ListAccountsForUser(ctx context.Context, userID int64) ([]model.ForexAccount, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM forex_accounts a
		 WHERE a.owner_id = $1
		 OR EXISTS (
		   SELECT 1 FROM account_grants g
		   WHERE g.account_id = a.id AND g.user_id = $1
		 )
		 ORDER BY a.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list accounts for user: %w", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func collectAccounts(rows pgx.Rows) ([]model.ForexAccount, error) {
	var accounts []model.ForexAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
