package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role is one of the fixed application roles.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleStoreManager Role = "store_manager"
	RoleDoctor       Role = "doctor"
	RolePatient      Role = "patient"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStoreManager, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// Principal identifies the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

// IsStaff reports whether the caller may operate on any order.
func (p Principal) IsStaff() bool {
	return p.Role == RoleAdmin || p.Role == RoleStoreManager
}

func (p Principal) IsPatient() bool { return p.Role == RolePatient }

// Has reports whether the principal holds one of roles.
func (p Principal) Has(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal set by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return ""
	}
	return p.UserID.String()
}

func RoleFromContext(ctx context.Context) Role {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}
