package shared

import "context"

type actorContextKey struct{}

// Actor identifies the authenticated caller and the tenant scope every
// ledger operation runs under. Tenant scope is always passed explicitly;
// nothing below the HTTP layer reads it from ambient state.
type Actor struct {
	UserID      int64
	OwnerID     int64
	permissions map[string]struct{}
}

// NewActor builds an actor with the given permission grants.
func NewActor(userID, ownerID int64, permissions ...string) Actor {
	grants := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		grants[p] = struct{}{}
	}
	return Actor{UserID: userID, OwnerID: ownerID, permissions: grants}
}

// Can reports whether the actor holds a permission.
func (a Actor) Can(permission string) bool {
	_, ok := a.permissions[permission]
	return ok
}

// Valid reports whether the actor carries both identity and tenant scope.
func (a Actor) Valid() bool {
	return a.UserID != 0 && a.OwnerID != 0
}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
