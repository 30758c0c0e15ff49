// Package access manages per-user grants on credential records, including
// the notification side effects the grant lifecycle produces.
package access

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/jsralgo/fxvault/internal/authz"
	"github.com/jsralgo/fxvault/internal/model"
	"github.com/jsralgo/fxvault/internal/telemetry"
)

// Store is the slice of the storage layer this service needs.
type Store interface {
	GetAccount(ctx context.Context, id int64) (model.ForexAccount, error)
	GetUserByID(ctx context.Context, id int64) (model.User, error)
	UpsertGrant(ctx context.Context, userID, accountID int64, canEdit bool, grantedBy int64) (model.AccountGrant, error)
	DeleteGrant(ctx context.Context, userID, accountID int64) error
	GrantFor(ctx context.Context, userID, accountID int64) (model.AccountGrant, error)
	ListGrantsByAccount(ctx context.Context, accountID int64) ([]model.AccountGrant, error)
	ListGrantsByUser(ctx context.Context, userID int64) ([]model.AccountGrant, error)
	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error)
}

// Service encapsulates grant business logic. All mutations are admin only.
type Service struct {
	store  Store
	logger *slog.Logger

	granted metric.Int64Counter
	revoked metric.Int64Counter
}

// New creates a new access Service.
func New(store Store, logger *slog.Logger) *Service {
	meter := telemetry.Meter("fxvault/access")
	granted, _ := meter.Int64Counter("fxvault.grants.granted",
		metric.WithDescription("Access grants created or refreshed"),
	)
	revoked, _ := meter.Int64Counter("fxvault.grants.revoked",
		metric.WithDescription("Access grants revoked"),
	)
	return &Service{store: store, logger: logger, granted: granted, revoked: revoked}
}

const relatedEntityAccount = "account"

// Grant links a user to an account with the given edit flag. Granting
// twice updates the flag in place rather than erroring or duplicating.
// Exactly one notification is created per call, even on re-grant.
func (s *Service) Grant(ctx context.Context, actor model.Actor, accountID, userID int64, canEdit bool) (model.AccountGrant, error) {
	if !actor.IsAdmin() {
		return model.AccountGrant{}, fmt.Errorf("grant access: %w", authz.ErrForbidden)
	}

	// Both endpoints must exist before the upsert so the notification
	// can name the account.
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return model.AccountGrant{}, err
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return model.AccountGrant{}, err
	}

	grant, err := s.store.UpsertGrant(ctx, userID, accountID, canEdit, actor.UserID)
	if err != nil {
		return model.AccountGrant{}, err
	}

	permission := "view"
	if canEdit {
		permission = "edit"
	}
	if _, err := s.store.CreateNotification(ctx, model.Notification{
		UserID:            userID,
		Title:             "Account Access Granted",
		Message:           fmt.Sprintf("You now have %s access to account %q.", permission, account.AccountName),
		Severity:          model.SeveritySuccess,
		RelatedEntityType: strptr(relatedEntityAccount),
		RelatedEntityID:   &accountID,
	}); err != nil {
		// The grant itself succeeded; a lost notification should not
		// roll it back.
		s.logger.Warn("grant notification failed", "error", err, "user_id", userID)
	}

	s.granted.Add(ctx, 1)
	s.logger.Info("access granted",
		"account_id", accountID,
		"user_id", userID,
		"can_edit", canEdit,
		"granted_by", actor.UserID)
	return grant, nil
}

// Revoke removes a user's grant on an account. Revoking a grant that does
// not exist is an error and produces no notification.
func (s *Service) Revoke(ctx context.Context, actor model.Actor, accountID, userID int64) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("revoke access: %w", authz.ErrForbidden)
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteGrant(ctx, userID, accountID); err != nil {
		return err
	}

	if _, err := s.store.CreateNotification(ctx, model.Notification{
		UserID:            userID,
		Title:             "Account Access Removed",
		Message:           fmt.Sprintf("Your access to account %q has been removed.", account.AccountName),
		Severity:          model.SeverityWarning,
		RelatedEntityType: strptr(relatedEntityAccount),
		RelatedEntityID:   &accountID,
	}); err != nil {
		s.logger.Warn("revoke notification failed", "error", err, "user_id", userID)
	}

	s.revoked.Add(ctx, 1)
	s.logger.Info("access revoked",
		"account_id", accountID,
		"user_id", userID,
		"revoked_by", actor.UserID)
	return nil
}

// ListForAccount returns every grant on an account. Admin only.
func (s *Service) ListForAccount(ctx context.Context, actor model.Actor, accountID int64) ([]model.AccountGrant, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("list grants: %w", authz.ErrForbidden)
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListGrantsByAccount(ctx, accountID)
}

// ListForUser returns every grant the actor holds.
func (s *Service) ListForUser(ctx context.Context, actor model.Actor) ([]model.AccountGrant, error) {
	return s.store.ListGrantsByUser(ctx, actor.UserID)
}

func strptr(s string) *string { return &s }
