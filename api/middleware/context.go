package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/pkg/enums"
)

type contextKey string

const ctxActor contextKey = "actor"

// Actor is the authenticated caller extracted from the bearer token.
type Actor struct {
	UserID     uuid.UUID
	Role       enums.ActorRole
	SupplierID *uuid.UUID
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxActor, actor)
}

// ActorFromContext returns the caller and whether the request was authenticated.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(Actor)
	return actor, ok
}
