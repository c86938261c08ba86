package auth

import (
	"context"
	"errors"
	"fmt"
)

// PolicyKind tags the authorization mode a protected operation demands.
type PolicyKind int

const (
	// PolicyAuthenticated admits any resolvable active account.
	PolicyAuthenticated PolicyKind = iota
	// PolicyAdminOnly additionally requires the effective admin role.
	PolicyAdminOnly
	// PolicyPermission requires an exact permission string.
	PolicyPermission
	// PolicyRole requires an effective role by name.
	PolicyRole
	// PolicyAPIKeyOnly admits only a valid API key.
	PolicyAPIKeyOnly
	// PolicyTokenOrAPIKey tries the bearer token first, then the API key.
	PolicyTokenOrAPIKey
)

// Policy is a declarative authorization requirement evaluated by the Guard.
// Construct values with the helpers below rather than literal structs.
type Policy struct {
	Kind       PolicyKind
	Permission string
	Role       string
}

// Authenticated requires any active account identified by a bearer token.
func Authenticated() Policy { return Policy{Kind: PolicyAuthenticated} }

// AdminOnly requires an account holding the effective admin role.
func AdminOnly() Policy { return Policy{Kind: PolicyAdminOnly} }

// RequirePermission requires perm in the caller's union permission set.
func RequirePermission(perm string) Policy {
	return Policy{Kind: PolicyPermission, Permission: perm}
}

// RequireRole requires an effective role with the given normalized name.
func RequireRole(name string) Policy {
	return Policy{Kind: PolicyRole, Role: name}
}

// APIKeyOnly requires a valid API key credential.
func APIKeyOnly() Policy { return Policy{Kind: PolicyAPIKeyOnly} }

// TokenOrAPIKey admits either credential. Token resolution is attempted
// first; any resolution failure falls through to the API key. A
// token-resolved account with zero effective roles is rejected as forbidden.
func TokenOrAPIKey() Policy { return Policy{Kind: PolicyTokenOrAPIKey} }

// Credentials is the raw material extracted from a request before any
// verification. Empty fields mean the credential was not presented.
type Credentials struct {
	BearerToken  string
	APIKeySecret string
}

// Guard is the request-time authorization decision point. It resolves a
// principal from the presented credentials and checks it against the policy.
type Guard struct {
	tokens *Tokens
	vault  *KeyVault
	graph  *Graph
}

// NewGuard constructs the guard over the token service, key vault and
// identity graph.
func NewGuard(tokens *Tokens, vault *KeyVault, graph *Graph) (*Guard, error) {
	if tokens == nil || vault == nil || graph == nil {
		return nil, errors.New("auth: token service, key vault and graph are required")
	}
	return &Guard{tokens: tokens, vault: vault, graph: graph}, nil
}

// Authorize resolves the credentials and enforces the policy. Missing or
// unresolvable credentials fail with ErrUnauthenticated; a resolved principal
// that does not meet the requirement fails with ErrForbidden.
func (g *Guard) Authorize(ctx context.Context, creds Credentials, policy Policy) (*Principal, error) {
	switch policy.Kind {
	case PolicyAuthenticated, PolicyAdminOnly, PolicyPermission, PolicyRole:
		principal, err := g.resolveToken(ctx, creds)
		if err != nil {
			return nil, err
		}
		if err := g.checkRequirement(principal, policy); err != nil {
			return nil, err
		}
		return principal, nil
	case PolicyAPIKeyOnly:
		return g.resolveAPIKey(ctx, creds)
	case PolicyTokenOrAPIKey:
		principal, tokenErr := g.resolveToken(ctx, creds)
		if tokenErr == nil {
			if len(principal.Roles) == 0 {
				return nil, fmt.Errorf("%w: account has no effective roles", ErrForbidden)
			}
			return principal, nil
		}
		principal, keyErr := g.resolveAPIKey(ctx, creds)
		if keyErr == nil {
			return principal, nil
		}
		// A credential rejection on the final path collapses to 401; an
		// infrastructure failure must not masquerade as one.
		if !errors.Is(keyErr, ErrUnauthenticated) {
			return nil, keyErr
		}
		return nil, fmt.Errorf("%w: no acceptable credential", ErrUnauthenticated)
	default:
		return nil, fmt.Errorf("%w: unknown policy", ErrInternal)
	}
}

func (g *Guard) resolveToken(ctx context.Context, creds Credentials) (*Principal, error) {
	if creds.BearerToken == "" {
		return nil, fmt.Errorf("%w: bearer token required", ErrUnauthenticated)
	}
	account, err := g.tokens.ResolveAccount(ctx, creds.BearerToken)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrUnauthenticated)
		}
		if errors.Is(err, ErrInvalid) {
			return nil, fmt.Errorf("%w: token rejected", ErrUnauthenticated)
		}
		return nil, err
	}
	roles, err := g.graph.EffectiveRoles(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	perms := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range role.Permissions {
			perms[p] = struct{}{}
		}
	}
	return &Principal{Account: account, Roles: roles, Permissions: perms}, nil
}

func (g *Guard) resolveAPIKey(ctx context.Context, creds Credentials) (*Principal, error) {
	if creds.APIKeySecret == "" {
		return nil, fmt.Errorf("%w: api key required", ErrUnauthenticated)
	}
	key, err := g.vault.Validate(ctx, creds.APIKeySecret)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalid),
			errors.Is(err, ErrInactive), errors.Is(err, ErrExpired):
			return nil, fmt.Errorf("%w: api key rejected", ErrUnauthenticated)
		}
		return nil, err
	}
	principal := &Principal{APIKey: key, Permissions: map[string]struct{}{}}
	if key.AccountID != "" {
		if account, err := g.tokens.accounts.Find(ctx, key.AccountID); err == nil && account.IsActive {
			principal.Account = account
			roles, err := g.graph.EffectiveRoles(ctx, account.ID)
			if err != nil {
				return nil, err
			}
			principal.Roles = roles
			for _, role := range roles {
				for _, p := range role.Permissions {
					principal.Permissions[p] = struct{}{}
				}
			}
		}
	}
	return principal, nil
}

func (g *Guard) checkRequirement(p *Principal, policy Policy) error {
	switch policy.Kind {
	case PolicyAuthenticated:
		return nil
	case PolicyAdminOnly:
		if !p.IsAdmin() {
			return fmt.Errorf("%w: admin role required", ErrForbidden)
		}
	case PolicyPermission:
		if !p.HasPermission(policy.Permission) {
			return fmt.Errorf("%w: permission %s required", ErrForbidden, policy.Permission)
		}
	case PolicyRole:
		if !p.HasRole(policy.Role) {
			return fmt.Errorf("%w: role %s required", ErrForbidden, policy.Role)
		}
	}
	return nil
}
