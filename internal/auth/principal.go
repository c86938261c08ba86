package auth

import "context"

// Principal is the resolved caller identity attached to a request after the
// guard authorizes it. Exactly one of Account and APIKey may be nil: a
// token-authenticated request carries the account plus its effective roles,
// an API-key request carries the key record (and the owner account when the
// key is bound to one).
type Principal struct {
	Account     *Account
	APIKey      *APIKey
	Roles       []Role
	Permissions map[string]struct{}
}

// HasRole reports whether the principal holds an effective role with the
// given normalized name.
func (p *Principal) HasRole(name string) bool {
	if p == nil {
		return false
	}
	for _, role := range p.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// HasPermission reports exact membership of perm in the principal's union
// permission set.
func (p *Principal) HasPermission(perm string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Permissions[perm]
	return ok
}

// IsAdmin reports whether the admin role is effective for the principal.
func (p *Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

// AccountID returns the id of the principal's account, or the empty string
// for an unbound service key.
func (p *Principal) AccountID() string {
	if p == nil {
		return ""
	}
	if p.Account != nil {
		return p.Account.ID
	}
	if p.APIKey != nil {
		return p.APIKey.AccountID
	}
	return ""
}

type principalKey struct{}

// ContextWithPrincipal returns a child context carrying the principal.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by the guard, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
