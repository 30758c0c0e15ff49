package authz

import (
	"context"

	"github.com/jsralgo/fxvault/internal/model"
)

type contextKey struct{}

// WithActor returns a context carrying the authenticated actor.
// Set once at the transport boundary (HTTP middleware, MCP session).
func WithActor(ctx context.Context, actor *model.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFromContext extracts the authenticated actor, or nil when the
// request never passed authentication.
func ActorFromContext(ctx context.Context) *model.Actor {
	if v, ok := ctx.Value(contextKey{}).(*model.Actor); ok {
		return v
	}
	return nil
}
