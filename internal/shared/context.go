package shared

import "context"

// Actor identifies the acting user for createdBy/postedBy fields. Identity
// resolution happens upstream; the id is treated as an opaque string.
type Actor struct {
	ID   string
	Role string
}

// Manager roles may enter purchase prices and selling prices.
const (
	RoleAdmin   = "admin"
	RoleOwner   = "owner"
	RoleManager = "manager"
)

// IsManager reports whether the actor holds an elevated role.
func (a Actor) IsManager() bool {
	switch a.Role {
	case RoleAdmin, RoleOwner, RoleManager:
		return true
	}
	return false
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor is
// returned for unauthenticated requests.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
