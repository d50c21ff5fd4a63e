// Package auth authenticates callers with HS256 JWTs and carries the
// resulting actor through request contexts.
package auth

import (
	"context"

	"github.com/gartstein/ymm/internal/registry/models"
)

type contextKey string

const (
	actorContextKey contextKey = "actor"
)

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(models.Actor)
	return actor, ok
}
