// Package accounts provides the shared business logic for credential
// records.
//
// Both the HTTP API and MCP server delegate to this service so that
// permission gating, name derivation, and logo resolution behave the same
// across all interfaces.
package accounts

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
	authz.Store
	CreateAccount(ctx context.Context, a model.ForexAccount) (model.ForexAccount, error)
	UpdateAccount(ctx context.Context, id int64, upd model.AccountUpdate) (model.ForexAccount, error)
	SetAccountBrokerLogo(ctx context.Context, id int64, logoURL string) error
	DeleteAccount(ctx context.Context, id int64) error
}

// Service encapsulates account business logic shared by HTTP and MCP handlers.
type Service struct {
	store  Store
	logger *slog.Logger

	created metric.Int64Counter
	deleted metric.Int64Counter
}

// New creates a new account Service.
func New(store Store, logger *slog.Logger) *Service {
	meter := telemetry.Meter("fxvault/accounts")
	created, _ := meter.Int64Counter("fxvault.accounts.created",
		metric.WithDescription("Credential records created"),
	)
	deleted, _ := meter.Int64Counter("fxvault.accounts.deleted",
		metric.WithDescription("Credential records deleted"),
	)
	return &Service{store: store, logger: logger, created: created, deleted: deleted}
}

// Create validates input, derives a display name and broker logo when
// absent, and inserts the record owned by the actor. Admin only.
func (s *Service) Create(ctx context.Context, actor model.Actor, in model.AccountInput) (model.ForexAccount, error) {
	if !actor.IsAdmin() {
		return model.ForexAccount{}, fmt.Errorf("create account: %w", authz.ErrForbidden)
	}
	if err := model.ValidateAccountInput(in); err != nil {
		return model.ForexAccount{}, fmt.Errorf("accounts: %w", err)
	}

	name := in.AccountName
	if name == "" {
		name = deriveAccountName(in)
	}
	balance := in.AccountBalance
	if balance == "" {
		balance = "0.00"
	}

	account := model.ForexAccount{
		AccountName:        name,
		OwnerName:          in.OwnerName,
		OwnerID:            &actor.UserID,
		AccountBalance:     balance,
		AccountLogin:       in.AccountLogin,
		InvestorPassword:   in.InvestorPassword,
		MasterPassword:     in.MasterPassword,
		PlatformType:       in.PlatformType,
		AccountType:        in.AccountType,
		PlatformNameServer: in.PlatformNameServer,
		BotRunning:         in.BotRunning,
		LinkedUserEmail:    in.LinkedUserEmail,
	}
	if in.PlatformNameServer != nil {
		logo := BrokerLogoURL(*in.PlatformNameServer)
		account.BrokerLogoURL = &logo
	}

	created, err := s.store.CreateAccount(ctx, account)
	if err != nil {
		return model.ForexAccount{}, err
	}

	s.created.Add(ctx, 1)
	s.logger.Info("account created",
		"account_id", created.ID,
		"account_name", created.AccountName,
		"owner_id", actor.UserID)
	return created, nil
}

// Get returns one account if the actor may view it.
func (s *Service) Get(ctx context.Context, actor model.Actor, id int64) (model.ForexAccount, error) {
	if err := authz.CanViewAccount(ctx, s.store, actor, id); err != nil {
		return model.ForexAccount{}, err
	}
	return s.store.GetAccount(ctx, id)
}

// List returns the accounts visible to the actor.
func (s *Service) List(ctx context.Context, actor model.Actor) ([]model.ForexAccount, error) {
	return authz.VisibleAccounts(ctx, s.store, actor)
}

// Update applies a partial update if the actor may edit the account.
// Changing the platform server re-derives the broker logo.
func (s *Service) Update(ctx context.Context, actor model.Actor, id int64, upd model.AccountUpdate) (model.ForexAccount, error) {
	if err := model.ValidateAccountUpdate(upd); err != nil {
		return model.ForexAccount{}, fmt.Errorf("accounts: %w", err)
	}
	if err := authz.CanMutateAccount(ctx, s.store, actor, id); err != nil {
		return model.ForexAccount{}, err
	}

	updated, err := s.store.UpdateAccount(ctx, id, upd)
	if err != nil {
		return model.ForexAccount{}, err
	}

	if upd.PlatformNameServer != nil {
		logo := BrokerLogoURL(*upd.PlatformNameServer)
		if err := s.store.SetAccountBrokerLogo(ctx, id, logo); err != nil {
			return model.ForexAccount{}, err
		}
		updated.BrokerLogoURL = &logo
	}

	s.logger.Info("account updated", "account_id", id, "user_id", actor.UserID)
	return updated, nil
}

// Delete removes the account. Owner or admin only; an edit grant does not
// confer delete.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id int64) error {
	if err := authz.CanDeleteAccount(ctx, s.store, actor, id); err != nil {
		return err
	}
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.deleted.Add(ctx, 1)
	s.logger.Info("account deleted", "account_id", id, "user_id", actor.UserID)
	return nil
}

// Permission reports the actor's resolved access to one account.
// A nil result means no access.
func (s *Service) Permission(ctx context.Context, actor model.Actor, id int64) (*model.Permission, error) {
	return authz.ResolvePermission(ctx, s.store, actor, id)
}

// deriveAccountName builds "<Broker> <login>" from the platform server,
// falling back to the bare login when no broker is derivable.
func deriveAccountName(in model.AccountInput) string {
	if in.PlatformNameServer != nil {
		if broker := ExtractBrokerName(*in.PlatformNameServer); broker != "" {
			return broker + " " + in.AccountLogin
		}
	}
	return in.AccountLogin
}
