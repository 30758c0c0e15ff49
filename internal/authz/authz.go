// Package authz resolves what an actor may do with a credential record.
//
// This package exists to share access-control logic between the HTTP server,
// the services, and the MCP server without creating a circular dependency
// (all of them import this package; it imports none of them).
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jsralgo/fxvault/internal/model"
	"github.com/jsralgo/fxvault/internal/storage"
)

// ErrForbidden is returned when the actor's resolved permission does not
// cover the attempted operation.
var ErrForbidden = errors.New("authz: forbidden")

// Store is the slice of the storage layer permission resolution needs.
type Store interface {
	GetAccount(ctx context.Context, id int64) (model.ForexAccount, error)
	GrantFor(ctx context.Context, userID, accountID int64) (model.AccountGrant, error)
	ListAccounts(ctx context.Context) ([]model.ForexAccount, error)
	ListAccountsForUser(ctx context.Context, userID int64) ([]model.ForexAccount, error)
}

// ResolvePermission computes the actor's access to one account. Ownership
// wins over any grant; a grant yields its edit flag; otherwise the actor
// has no access and (nil, nil) is returned. Admins resolve like everyone
// else here — their super-role is applied by callers, not hidden in the
// permission record.
func ResolvePermission(ctx context.Context, store Store, actor model.Actor, accountID int64) (*model.Permission, error) {
	account, err := store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if account.OwnerID != nil && *account.OwnerID == actor.UserID {
		return &model.Permission{CanEdit: true, IsOwner: true}, nil
	}

	grant, err := store.GrantFor(ctx, actor.UserID, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &model.Permission{CanEdit: grant.CanEdit, IsOwner: false}, nil
}

// CanViewAccount reports whether the actor may read the account's
// credentials. Admins always can.
func CanViewAccount(ctx context.Context, store Store, actor model.Actor, accountID int64) error {
	if actor.IsAdmin() {
		if _, err := store.GetAccount(ctx, accountID); err != nil {
			return err
		}
		return nil
	}
	perm, err := ResolvePermission(ctx, store, actor, accountID)
	if err != nil {
		return err
	}
	if perm == nil {
		return fmt.Errorf("view account %d: %w", accountID, ErrForbidden)
	}
	return nil
}

// CanMutateAccount reports whether the actor may edit the account.
// Admins and owners always can; granted users need the edit flag.
func CanMutateAccount(ctx context.Context, store Store, actor model.Actor, accountID int64) error {
	if actor.IsAdmin() {
		if _, err := store.GetAccount(ctx, accountID); err != nil {
			return err
		}
		return nil
	}
	perm, err := ResolvePermission(ctx, store, actor, accountID)
	if err != nil {
		return err
	}
	if perm == nil || !perm.CanEdit {
		return fmt.Errorf("mutate account %d: %w", accountID, ErrForbidden)
	}
	return nil
}

// CanDeleteAccount reports whether the actor may delete the account.
// Only the owner or an admin can; an edit grant is not enough.
func CanDeleteAccount(ctx context.Context, store Store, actor model.Actor, accountID int64) error {
	if actor.IsAdmin() {
		if _, err := store.GetAccount(ctx, accountID); err != nil {
			return err
		}
		return nil
	}
	perm, err := ResolvePermission(ctx, store, actor, accountID)
	if err != nil {
		return err
	}
	if perm == nil || !perm.IsOwner {
		return fmt.Errorf("delete account %d: %w", accountID, ErrForbidden)
	}
	return nil
}

// VisibleAccounts returns the accounts the actor may see: every account
// for admins, owned-or-granted accounts for everyone else.
func VisibleAccounts(ctx context.Context, store Store, actor model.Actor) ([]model.ForexAccount, error) {
	if actor.IsAdmin() {
		return store.ListAccounts(ctx)
	}
	return store.ListAccountsForUser(ctx, actor.UserID)
}
