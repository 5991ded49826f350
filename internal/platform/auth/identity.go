package auth

import (
	"context"
	"slices"
)

// Roles understood by the route gates.
const (
	RoleAdmin     = "admin"
	RoleScheduler = "scheduler"
	RoleClinician = "clinician"
	RoleViewer    = "viewer"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Roles  []string
}

type identityKey struct{}

// WithIdentity stores the caller's subject and roles on ctx.
func WithIdentity(ctx context.Context, userID string, roles []string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{UserID: userID, Roles: roles})
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}

func RolesFromContext(ctx context.Context) []string {
	id, _ := IdentityFromContext(ctx)
	return id.Roles
}

// HasRole reports whether granted contains admin or any of required.
func HasRole(granted []string, required ...string) bool {
	return slices.ContainsFunc(granted, func(r string) bool {
		return r == RoleAdmin || slices.Contains(required, r)
	})
}
