package shared

import (
	"context"

	"github.com/custodia-fin/custodia/internal/identity"
)

type actorContextKey struct{}

// ContextWithActor stores the calling identity in context.
func ContextWithActor(ctx context.Context, actor identity.Identity) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the calling identity from context. The null
// identity is returned when no actor was set.
func ActorFromContext(ctx context.Context) identity.Identity {
	actor, _ := ctx.Value(actorContextKey{}).(identity.Identity)
	return actor
}
