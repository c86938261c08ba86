package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Graph maintains the many-to-many association between accounts and roles.
// An assignment edge is effective only while both the edge and the role are
// active.
type Graph struct {
	accounts AccountStore
	roles    RoleStore
	edges    AssignmentStore
	now      func() time.Time
}

// GraphOption configures Graph behavior.
type GraphOption func(*Graph)

// WithGraphClock overrides the time source (useful for tests).
func WithGraphClock(fn func() time.Time) GraphOption {
	return func(g *Graph) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGraph constructs a Graph over the given stores.
func NewGraph(accounts AccountStore, roles RoleStore, edges AssignmentStore, opts ...GraphOption) (*Graph, error) {
	if accounts == nil || roles == nil || edges == nil {
		return nil, errors.New("auth: account, role and assignment stores are required")
	}
	g := &Graph{accounts: accounts, roles: roles, edges: edges, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Assign creates an effective edge between an account and a role. assignedBy
// records provenance and may be empty. Assigning a soft-deleted role fails
// with ErrInactive; an already-effective edge fails with ErrDuplicate.
func (g *Graph) Assign(ctx context.Context, accountID, roleID, assignedBy string) error {
	accountID = strings.TrimSpace(accountID)
	roleID = strings.TrimSpace(roleID)
	if accountID == "" || roleID == "" {
		return fmt.Errorf("%w: account id and role id are required", ErrInvalid)
	}
	if _, err := g.accounts.Find(ctx, accountID); err != nil {
		return err
	}
	role, err := g.roles.Find(ctx, roleID)
	if err != nil {
		return err
	}
	if !role.IsActive {
		return fmt.Errorf("%w: role %s is not active", ErrInactive, role.Name)
	}
	return g.edges.Insert(ctx, RoleAssignment{
		AccountID:  accountID,
		RoleID:     roleID,
		AssignedAt: g.now().UTC(),
		AssignedBy: strings.TrimSpace(assignedBy),
		IsActive:   true,
	})
}

// Unassign deactivates the edge. The row survives for audit; it is never
// deleted. A missing effective edge fails with ErrNotFound.
func (g *Graph) Unassign(ctx context.Context, accountID, roleID string) error {
	accountID = strings.TrimSpace(accountID)
	roleID = strings.TrimSpace(roleID)
	if accountID == "" || roleID == "" {
		return fmt.Errorf("%w: account id and role id are required", ErrInvalid)
	}
	return g.edges.Deactivate(ctx, accountID, roleID)
}

// EffectiveRoles returns roles where both the edge and the role are active.
func (g *Graph) EffectiveRoles(ctx context.Context, accountID string) ([]Role, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalid)
	}
	return g.edges.EffectiveRoles(ctx, accountID)
}

// PermissionsOf returns the union of permission sets over all effective
// roles of the account.
func (g *Graph) PermissionsOf(ctx context.Context, accountID string) (map[string]struct{}, error) {
	roles, err := g.EffectiveRoles(ctx, accountID)
	if err != nil {
		return nil, err
	}
	perms := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range role.Permissions {
			perms[p] = struct{}{}
		}
	}
	return perms, nil
}

// HoldersOf returns the active accounts holding an effective edge to the
// role.
func (g *Graph) HoldersOf(ctx context.Context, roleID string) ([]Account, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalid)
	}
	if _, err := g.roles.Find(ctx, roleID); err != nil {
		return nil, err
	}
	return g.edges.Holders(ctx, roleID)
}
