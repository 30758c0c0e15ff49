// Package assistant is the boundary adapter between free-text chat and
// structured records: it calls an external completion service, persists
// the conversation log, and routes any structured payload found in the
// reply to its handler.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/jsralgo/fxvault/internal/authz"
	"github.com/jsralgo/fxvault/internal/model"
	"github.com/jsralgo/fxvault/internal/storage"
	"github.com/jsralgo/fxvault/internal/telemetry"
)

// historyWindow is how many trailing persisted messages are replayed as
// model context. Older turns fall out of the window; the persisted log
// itself is unbounded.
const historyWindow = 10

// Store is the slice of the storage layer the adapter needs.
type Store interface {
	SaveChatMessage(ctx context.Context, userID int64, role model.ChatRole, content string) (model.ChatMessage, error)
	ChatHistory(ctx context.Context, userID int64) ([]model.ChatMessage, error)
	RecentChatMessages(ctx context.Context, userID int64, n int) ([]model.ChatMessage, error)
	ClearChatHistory(ctx context.Context, userID int64) (int64, error)
	GetSetting(ctx context.Context, key string) (model.Setting, error)
	CreateCustomField(ctx context.Context, in model.CustomFieldInput, createdBy int64) (model.CustomField, error)
}

// AccountCreator creates credential records from extracted payloads.
type AccountCreator interface {
	Create(ctx context.Context, actor model.Actor, in model.AccountInput) (model.ForexAccount, error)
}

// ProposalCreator queues schema proposals from extracted payloads.
type ProposalCreator interface {
	Create(ctx context.Context, actor model.Actor, in model.ProposalInput) (model.SchemaProposal, error)
}

// Completer is the completion-service client.
type Completer interface {
	Complete(ctx context.Context, apiKey string, messages []Message, collectionID string) (string, error)
}

// Service wires the chat flow together. It holds no per-conversation
// state; the persisted log is the only memory between requests.
type Service struct {
	store     Store
	completer Completer
	accounts  AccountCreator
	proposals ProposalCreator
	envAPIKey string
	logger    *slog.Logger

	keyGroup    singleflight.Group
	extractions metric.Int64Counter
}

// New creates the assistant Service. envAPIKey is the environment fallback
// used when no key is stored in settings.
func New(store Store, completer Completer, accounts AccountCreator, proposals ProposalCreator, envAPIKey string, logger *slog.Logger) *Service {
	meter := telemetry.Meter("fxvault/assistant")
	extractions, _ := meter.Int64Counter("fxvault.assistant.extractions",
		metric.WithDescription("Structured payloads extracted from assistant replies"),
	)
	return &Service{
		store:       store,
		completer:   completer,
		accounts:    accounts,
		proposals:   proposals,
		envAPIKey:   envAPIKey,
		logger:      logger,
		extractions: extractions,
	}
}

// SendMessage runs one chat turn: persist the user message, call the
// completion service with the trailing history window, persist the reply
// unconditionally, then scan it for a structured payload and route it.
//
// The user message is saved before the remote call so a failed completion
// never loses the user's turn.
func (s *Service) SendMessage(ctx context.Context, actor model.Actor, message, collectionID string) (model.ChatSendResponse, error) {
	if message == "" {
		return model.ChatSendResponse{}, fmt.Errorf("assistant: message is required")
	}

	if _, err := s.store.SaveChatMessage(ctx, actor.UserID, model.ChatRoleUser, message); err != nil {
		return model.ChatSendResponse{}, err
	}

	apiKey, err := s.resolveAPIKey(ctx)
	if err != nil {
		return model.ChatSendResponse{}, err
	}

	// The window already includes the message just saved.
	recent, err := s.store.RecentChatMessages(ctx, actor.UserID, historyWindow)
	if err != nil {
		return model.ChatSendResponse{}, err
	}
	outbound := make([]Message, 0, len(recent)+1)
	outbound = append(outbound, Message{Role: "system", Content: systemPrompt})
	for _, m := range recent {
		outbound = append(outbound, Message{Role: string(m.Role), Content: m.Content})
	}

	reply, err := s.completer.Complete(ctx, apiKey, outbound, collectionID)
	if err != nil {
		return model.ChatSendResponse{}, err
	}

	// Persist the reply before parsing: conversational continuity is a
	// stronger guarantee than successful extraction.
	if _, err := s.store.SaveChatMessage(ctx, actor.UserID, model.ChatRoleAssistant, reply); err != nil {
		return model.ChatSendResponse{}, err
	}

	resp := model.ChatSendResponse{Message: reply}
	if payload, ok := ExtractPayload(reply); ok {
		resp.Extraction = s.route(ctx, actor, payload)
	}
	return resp, nil
}

// History returns the actor's full persisted conversation log.
func (s *Service) History(ctx context.Context, actor model.Actor) ([]model.ChatMessage, error) {
	return s.store.ChatHistory(ctx, actor.UserID)
}

// ClearHistory deletes the actor's conversation log.
func (s *Service) ClearHistory(ctx context.Context, actor model.Actor) (int64, error) {
	return s.store.ClearChatHistory(ctx, actor.UserID)
}

// TestCredential checks a key against the live service, resolving from
// settings or the environment when key is empty.
func (s *Service) TestCredential(ctx context.Context, key string) error {
	if key == "" {
		resolved, err := s.resolveAPIKey(ctx)
		if err != nil {
			return err
		}
		key = resolved
	}
	if tester, ok := s.completer.(interface {
		TestKey(ctx context.Context, apiKey string) error
	}); ok {
		return tester.TestKey(ctx, key)
	}
	_, err := s.completer.Complete(ctx, key, []Message{{Role: "user", Content: "ping"}}, "")
	return err
}

// ModelName reports the completer's model identifier when it exposes one.
func (s *Service) ModelName() string {
	if m, ok := s.completer.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

// resolveAPIKey prefers the stored setting over the environment fallback.
// Concurrent chat sends are deduplicated via singleflight so a burst makes
// one settings lookup; every call after that reads fresh, so a rotated key
// takes effect immediately.
func (s *Service) resolveAPIKey(ctx context.Context) (string, error) {
	key, err, _ := s.keyGroup.Do(model.SettingKeyCompletionAPIKey, func() (any, error) {
		setting, err := s.store.GetSetting(ctx, model.SettingKeyCompletionAPIKey)
		if err == nil && setting.Value != nil && *setting.Value != "" {
			return *setting.Value, nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return "", err
		}
		if s.envAPIKey != "" {
			return s.envAPIKey, nil
		}
		return "", &UpstreamError{Kind: ErrMissingCredential, Detail: "no key in settings or environment"}
	})
	if err != nil {
		return "", err
	}
	return key.(string), nil
}

// route dispatches one classified payload. Side-effect failures are
// reported in the extraction result, never as a request error: the reply
// text has already been persisted and must reach the caller.
func (s *Service) route(ctx context.Context, actor model.Actor, payload *Payload) *model.ExtractionResult {
	result := &model.ExtractionResult{Kind: string(payload.Kind)}

	switch payload.Kind {
	case PayloadAccount:
		s.routeAccount(ctx, actor, payload, result)
	case PayloadCustomField:
		if !actor.IsAdmin() {
			result.Status = model.ExtractionForbidden
			result.Detail = "only admins can create custom fields from chat"
			break
		}
		field, err := s.store.CreateCustomField(ctx, *payload.CustomField, actor.UserID)
		if err != nil {
			result.Status = model.ExtractionFailed
			result.Detail = err.Error()
			break
		}
		result.Status = model.ExtractionCreated
		result.CustomFieldID = &field.ID
	case PayloadSchemaChange:
		if !actor.IsAdmin() {
			result.Status = model.ExtractionForbidden
			result.Detail = "only admins can propose schema changes from chat"
			break
		}
		proposal, err := s.proposals.Create(ctx, actor, *payload.SchemaChange)
		if err != nil {
			result.Status = model.ExtractionFailed
			result.Detail = err.Error()
			break
		}
		result.Status = model.ExtractionQueued
		result.ProposalID = &proposal.ID
	}

	s.extractions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", result.Kind),
		attribute.String("status", string(result.Status)),
	))
	s.logger.Info("chat extraction routed",
		"kind", result.Kind,
		"status", result.Status,
		"user_id", actor.UserID)
	return result
}

func (s *Service) routeAccount(ctx context.Context, actor model.Actor, payload *Payload, result *model.ExtractionResult) {
	inputs := make([]model.AccountInput, 0, 1+len(payload.Accounts))
	if payload.Account != nil {
		inputs = append(inputs, payload.Account.Input())
	}
	for _, p := range payload.Accounts {
		inputs = append(inputs, p.Input())
	}

	var created int
	for _, in := range inputs {
		account, err := s.accounts.Create(ctx, actor, in)
		if err != nil {
			result.Status = model.ExtractionFailed
			if errors.Is(err, authz.ErrForbidden) {
				result.Status = model.ExtractionForbidden
			}
			result.Detail = err.Error()
			return
		}
		created++
		result.AccountID = &account.ID
	}
	if created == 0 {
		result.Status = model.ExtractionFailed
		result.Detail = "payload contained no accounts"
		return
	}
	result.Status = model.ExtractionCreated
}
