package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jsralgo/fxvault/internal/model"
)

const userColumns = `id, open_id, name, email, role, api_key_hash, created_at, updated_at, last_signed_in`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.OpenID, &u.Name, &u.Email, &u.Role, &u.APIKeyHash,
		&u.CreatedAt, &u.UpdatedAt, &u.LastSignedIn,
	)
	return u, err
}

// CreateUser inserts a new user with a pre-hashed API key.
// A duplicate open_id returns ErrConflict.
func (db *DB) CreateUser(ctx context.Context, openID string, name, email *string, role model.UserRole, apiKeyHash string) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`INSERT INTO users (open_id, name, email, role, api_key_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+userColumns,
		openID, name, email, role, apiKeyHash,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, fmt.Errorf("storage: create user %s: %w", openID, ErrConflict)
		}
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

// UpsertUserOnLogin records a sign-in: a new open_id gets a fresh client
// row, a known one refreshes name, email and last_signed_in while keeping
// its role and API key hash.
func (db *DB) UpsertUserOnLogin(ctx context.Context, openID string, name, email *string) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`INSERT INTO users (open_id, name, email)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (open_id) DO UPDATE SET
		   name = COALESCE(EXCLUDED.name, users.name),
		   email = COALESCE(EXCLUDED.email, users.email),
		   last_signed_in = now(),
		   updated_at = now()
		 RETURNING `+userColumns,
		openID, name, email,
	))
	if err != nil {
		return model.User{}, fmt.Errorf("storage: upsert user on login: %w", err)
	}
	return u, nil
}

// EnsureOwner creates or refreshes the distinguished owner account and
// forces its role to admin. Called once at startup.
func (db *DB) EnsureOwner(ctx context.Context, openID, apiKeyHash string) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`INSERT INTO users (open_id, role, api_key_hash)
		 VALUES ($1, 'admin', $2)
		 ON CONFLICT (open_id) DO UPDATE SET
		   role = 'admin',
		   api_key_hash = EXCLUDED.api_key_hash,
		   updated_at = now()
		 RETURNING `+userColumns,
		openID, apiKeyHash,
	))
	if err != nil {
		return model.User{}, fmt.Errorf("storage: ensure owner: %w", err)
	}
	return u, nil
}

// GetUserByID retrieves a user by primary key.
func (db *DB) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %d: %w", id, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

// GetUserByOpenID retrieves a user by its external identity.
func (db *DB) GetUserByOpenID(ctx context.Context, openID string) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE open_id = $1`, openID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %s: %w", openID, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user by open_id: %w", err)
	}
	return u, nil
}

// ListUsers returns every user ordered by id.
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserRole changes a user's role.
func (db *DB) UpdateUserRole(ctx context.Context, id int64, role model.UserRole) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`UPDATE users SET role = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, role,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %d: %w", id, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: update user role: %w", err)
	}
	return u, nil
}

// UpdateUserName changes a user's display name.
func (db *DB) UpdateUserName(ctx context.Context, id int64, name string) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, name,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %d: %w", id, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: update user name: %w", err)
	}
	return u, nil
}

// TouchUserSignIn bumps last_signed_in for an existing user.
func (db *DB) TouchUserSignIn(ctx context.Context, id int64, at time.Time) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET last_signed_in = $2 WHERE id = $1`, id, at,
	)
	if err != nil {
		return fmt.Errorf("storage: touch user sign-in: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: user %d: %w", id, ErrNotFound)
	}
	return nil
}
