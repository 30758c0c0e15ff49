// Package proposals runs the schema-change review workflow: queued raw SQL
// moves pending → approved → executed, with approved → failed as the only
// other edge. History is never rewritten; a failed proposal stays failed.
package proposals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/jsralgo/fxvault/internal/authz"
	"github.com/jsralgo/fxvault/internal/model"
	"github.com/jsralgo/fxvault/internal/storage"
	"github.com/jsralgo/fxvault/internal/telemetry"
)

// ErrInvalidTransition is returned when a proposal is not in the state a
// lifecycle operation requires.
var ErrInvalidTransition = errors.New("proposals: invalid transition")

// Store is the slice of the storage layer this service needs.
type Store interface {
	CreateProposal(ctx context.Context, in model.ProposalInput, createdBy int64) (model.SchemaProposal, error)
	GetProposal(ctx context.Context, id int64) (model.SchemaProposal, error)
	ListProposals(ctx context.Context, status model.ProposalStatus) ([]model.SchemaProposal, error)
	ApproveProposal(ctx context.Context, id int64) (model.SchemaProposal, error)
	MarkProposalExecuted(ctx context.Context, id int64, at time.Time) (model.SchemaProposal, error)
	MarkProposalFailed(ctx context.Context, id int64, errorMessage string) (model.SchemaProposal, error)
	ExecuteRawSQL(ctx context.Context, query string) error
}

// Service encapsulates the proposal workflow. Every operation is admin only.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	executed metric.Int64Counter
	failed   metric.Int64Counter
}

// New creates a new proposal Service.
func New(store Store, logger *slog.Logger) *Service {
	meter := telemetry.Meter("fxvault/proposals")
	executed, _ := meter.Int64Counter("fxvault.proposals.executed",
		metric.WithDescription("Schema proposals executed successfully"),
	)
	failed, _ := meter.Int64Counter("fxvault.proposals.failed",
		metric.WithDescription("Schema proposals that failed during execution"),
	)
	return &Service{
		store:    store,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		executed: executed,
		failed:   failed,
	}
}

// Create queues a new proposal in pending state.
func (s *Service) Create(ctx context.Context, actor model.Actor, in model.ProposalInput) (model.SchemaProposal, error) {
	if !actor.IsAdmin() {
		return model.SchemaProposal{}, fmt.Errorf("create proposal: %w", authz.ErrForbidden)
	}
	if err := model.ValidateProposalInput(in); err != nil {
		return model.SchemaProposal{}, fmt.Errorf("proposals: %w", err)
	}

	p, err := s.store.CreateProposal(ctx, in, actor.UserID)
	if err != nil {
		return model.SchemaProposal{}, err
	}
	s.logger.Info("schema proposal queued",
		"proposal_id", p.ID,
		"kind", p.Kind,
		"table", p.TableName,
		"created_by", actor.UserID)
	return p, nil
}

// Get returns one proposal. Admin only.
func (s *Service) Get(ctx context.Context, actor model.Actor, id int64) (model.SchemaProposal, error) {
	if !actor.IsAdmin() {
		return model.SchemaProposal{}, fmt.Errorf("get proposal: %w", authz.ErrForbidden)
	}
	return s.store.GetProposal(ctx, id)
}

// List returns proposals newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, actor model.Actor, status model.ProposalStatus) ([]model.SchemaProposal, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("list proposals: %w", authz.ErrForbidden)
	}
	if status != "" && !model.ValidProposalStatus(status) {
		return nil, fmt.Errorf("proposals: unknown status %q", status)
	}
	return s.store.ListProposals(ctx, status)
}

// Approve moves a pending proposal to approved. Approving a proposal in
// any other state is ErrInvalidTransition.
func (s *Service) Approve(ctx context.Context, actor model.Actor, id int64) (model.SchemaProposal, error) {
	if !actor.IsAdmin() {
		return model.SchemaProposal{}, fmt.Errorf("approve proposal: %w", authz.ErrForbidden)
	}

	p, err := s.store.ApproveProposal(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return model.SchemaProposal{}, fmt.Errorf("approve proposal %d: %w", id, ErrInvalidTransition)
		}
		return model.SchemaProposal{}, err
	}
	s.logger.Info("schema proposal approved", "proposal_id", id, "approved_by", actor.UserID)
	return p, nil
}

// Execute runs a proposal's SQL. A pending proposal is approved first so a
// single call can take it all the way through. Execution failure is an
// outcome, not an error: the proposal lands in failed state carrying the
// database's message, and Execute returns it with a nil error.
func (s *Service) Execute(ctx context.Context, actor model.Actor, id int64) (model.SchemaProposal, error) {
	if !actor.IsAdmin() {
		return model.SchemaProposal{}, fmt.Errorf("execute proposal: %w", authz.ErrForbidden)
	}

	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return model.SchemaProposal{}, err
	}

	switch p.Status {
	case model.ProposalPending:
		if p, err = s.store.ApproveProposal(ctx, id); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return model.SchemaProposal{}, fmt.Errorf("execute proposal %d: %w", id, ErrInvalidTransition)
			}
			return model.SchemaProposal{}, err
		}
	case model.ProposalApproved:
	default:
		return model.SchemaProposal{}, fmt.Errorf("execute proposal %d in state %s: %w", id, p.Status, ErrInvalidTransition)
	}

	if execErr := s.store.ExecuteRawSQL(ctx, p.SQLQuery); execErr != nil {
		failed, err := s.store.MarkProposalFailed(ctx, id, execErr.Error())
		if err != nil {
			return model.SchemaProposal{}, err
		}
		s.failed.Add(ctx, 1)
		s.logger.Warn("schema proposal failed",
			"proposal_id", id,
			"error", execErr,
			"executed_by", actor.UserID)
		return failed, nil
	}

	executed, err := s.store.MarkProposalExecuted(ctx, id, s.now())
	if err != nil {
		return model.SchemaProposal{}, err
	}
	s.executed.Add(ctx, 1)
	s.logger.Info("schema proposal executed", "proposal_id", id, "executed_by", actor.UserID)
	return executed, nil
}
