package access

import "context"

// Principal is the authenticated actor behind a request or navigation.
type Principal struct {
	ID            string `json:"id"`
	Role          Role   `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the resolved principal to ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal attached by the authentication layer, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
