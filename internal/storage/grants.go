package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jsralgo/fxvault/internal/model"
)

const grantColumns = `id, user_id, account_id, can_edit, granted_by, created_at, updated_at`

func scanGrant(row pgx.Row) (model.AccountGrant, error) {
	var g model.AccountGrant
	err := row.Scan(
		&g.ID, &g.UserID, &g.AccountID, &g.CanEdit, &g.GrantedBy,
		&g.CreatedAt, &g.UpdatedAt,
	)
	return g, err
}

// UpsertGrant creates or refreshes the single grant row for a (user, account)
// pair. Concurrent grants for the same pair collapse into one row with the
// latest can_edit flag, relying on the unique constraint.
func (db *DB) UpsertGrant(ctx context.Context, userID, accountID int64, canEdit bool, grantedBy int64) (model.AccountGrant, error) {
	g, err := scanGrant(db.pool.QueryRow(ctx,
		`INSERT INTO account_grants (user_id, account_id, can_edit, granted_by)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, account_id) DO UPDATE SET
		   can_edit = EXCLUDED.can_edit,
		   granted_by = EXCLUDED.granted_by,
		   updated_at = now()
		 RETURNING `+grantColumns,
		userID, accountID, canEdit, grantedBy,
	))
	if err != nil {
		return model.AccountGrant{}, fmt.Errorf("storage: upsert grant: %w", err)
	}
	return g, nil
}

// DeleteGrant removes the grant for a (user, account) pair.
// Returns ErrNotFound if no such grant exists.
func (db *DB) DeleteGrant(ctx context.Context, userID, accountID int64) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM account_grants WHERE user_id = $1 AND account_id = $2`,
		userID, accountID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: grant user=%d account=%d: %w", userID, accountID, ErrNotFound)
	}
	return nil
}

// GrantFor retrieves the grant a user holds on an account, or ErrNotFound.
func (db *DB) GrantFor(ctx context.Context, userID, accountID int64) (model.AccountGrant, error) {
	g, err := scanGrant(db.pool.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM account_grants
		 WHERE user_id = $1 AND account_id = $2`,
		userID, accountID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AccountGrant{}, fmt.Errorf("storage: grant user=%d account=%d: %w", userID, accountID, ErrNotFound)
		}
		return model.AccountGrant{}, fmt.Errorf("storage: get grant: %w", err)
	}
	return g, nil
}

// ListGrantsByAccount returns every grant on an account ordered by user.
func (db *DB) ListGrantsByAccount(ctx context.Context, accountID int64) ([]model.AccountGrant, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM account_grants
		 WHERE account_id = $1 ORDER BY user_id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list grants by account: %w", err)
	}
	defer rows.Close()

	var grants []model.AccountGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ListGrantsByUser returns every grant held by a user ordered by account.
func (db *DB) ListGrantsByUser(ctx context.Context, userID int64) ([]model.AccountGrant, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM account_grants
		 WHERE user_id = $1 ORDER BY account_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list grants by user: %w", err)
	}
	defer rows.Close()

	var grants []model.AccountGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
