package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authgate.org/internal/ids"
)

// Reserved role names seeded by EnsureDefaults.
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// Canonical permission strings for the built-in roles.
const (
	PermSystemAdmin = "system:admin"

	PermUsersRead   = "users:read"
	PermUsersWrite  = "users:write"
	PermUsersDelete = "users:delete"

	PermAPIKeysRead   = "api_keys:read"
	PermAPIKeysWrite  = "api_keys:write"
	PermAPIKeysDelete = "api_keys:delete"

	PermRolesRead   = "roles:read"
	PermRolesWrite  = "roles:write"
	PermRolesDelete = "roles:delete"

	PermUsersReadOwn     = "users:read_own"
	PermUsersWriteOwn    = "users:write_own"
	PermAPIKeysReadOwn   = "api_keys:read_own"
	PermAPIKeysWriteOwn  = "api_keys:write_own"
	PermAPIKeysDeleteOwn = "api_keys:delete_own"
)

// defaultRoles are the roles every deployment starts with.
var defaultRoles = []CreateRoleInput{
	{
		Name:        RoleAdmin,
		DisplayName: "Administrator",
		Description: "Full access to the system",
		Permissions: []string{
			PermUsersRead, PermUsersWrite, PermUsersDelete,
			PermAPIKeysRead, PermAPIKeysWrite, PermAPIKeysDelete,
			PermRolesRead, PermRolesWrite, PermRolesDelete,
			PermSystemAdmin,
		},
	},
	{
		Name:        RoleClient,
		DisplayName: "Client",
		Description: "Default self-scoped account",
		Permissions: []string{
			PermUsersReadOwn, PermUsersWriteOwn,
			PermAPIKeysReadOwn, PermAPIKeysWriteOwn, PermAPIKeysDeleteOwn,
		},
	},
}

// NormalizeRoleName lowercases a role name and folds spaces to underscores.
// After normalization only letters, digits and underscores are allowed.
func NormalizeRoleName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" {
		return "", fmt.Errorf("%w: role name is required", ErrInvalid)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return "", fmt.Errorf("%w: role name may contain only letters, digits and underscores", ErrInvalid)
		}
	}
	return name, nil
}

// Registry provides role CRUD and the default-role bootstrap.
type Registry struct {
	roles RoleStore
	now   func() time.Time
}

// RegistryOption configures Registry behavior.
type RegistryOption func(*Registry)

// WithRegistryClock overrides the time source (useful for tests).
func WithRegistryClock(fn func() time.Time) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry constructs a Registry over the given store.
func NewRegistry(roles RoleStore, opts ...RegistryOption) (*Registry, error) {
	if roles == nil {
		return nil, errors.New("auth: role store is required")
	}
	r := &Registry{roles: roles, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CreateRoleInput describes a new role.
type CreateRoleInput struct {
	Name        string
	DisplayName string
	Description string
	Permissions []string
}

// Create inserts a new active role. The name is normalized first; a clash
// with any existing role, active or soft-deleted, fails with ErrDuplicate.
// The store's uniqueness constraint is the real guarantee against concurrent
// creates; the lookup here only produces a friendlier early error.
func (r *Registry) Create(ctx context.Context, in CreateRoleInput) (*Role, error) {
	name, err := NormalizeRoleName(in.Name)
	if err != nil {
		return nil, err
	}
	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalid)
	}
	if _, err := r.roles.FindByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: role name %q is taken", ErrDuplicate, name)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	now := r.now().UTC()
	role := &Role{
		ID:          ids.New(),
		Name:        name,
		DisplayName: display,
		Description: strings.TrimSpace(in.Description),
		Permissions: dedupeStrings(in.Permissions),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Get returns a role by id.
func (r *Registry) Get(ctx context.Context, id string) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalid)
	}
	return r.roles.Find(ctx, id)
}

// GetByName returns a role by normalized name, active or not.
func (r *Registry) GetByName(ctx context.Context, name string) (*Role, error) {
	name, err := NormalizeRoleName(name)
	if err != nil {
		return nil, err
	}
	return r.roles.FindByName(ctx, name)
}

// List returns roles, optionally restricted to active ones.
func (r *Registry) List(ctx context.Context, activeOnly bool) ([]*Role, error) {
	return r.roles.List(ctx, activeOnly)
}

// Update applies a partial patch. Renaming normalizes the new name and
// re-checks uniqueness against all other roles.
func (r *Registry) Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalid)
	}
	if upd.Name != nil {
		name, err := NormalizeRoleName(*upd.Name)
		if err != nil {
			return nil, err
		}
		if existing, err := r.roles.FindByName(ctx, name); err == nil && existing.ID != id {
			return nil, fmt.Errorf("%w: role name %q is taken", ErrDuplicate, name)
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		upd.Name = &name
	}
	if upd.DisplayName != nil {
		display := strings.TrimSpace(*upd.DisplayName)
		if display == "" {
			return nil, fmt.Errorf("%w: display name is required", ErrInvalid)
		}
		upd.DisplayName = &display
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	if upd.Permissions != nil {
		upd.Permissions = dedupeStrings(upd.Permissions)
	}
	return r.roles.Update(ctx, id, upd)
}

// Delete soft-deletes a role. Assignment edges referencing it are kept; they
// simply stop being effective.
func (r *Registry) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalid)
	}
	return r.roles.SetActive(ctx, id, false)
}

// EnsureDefaults seeds the reserved admin and client roles. It is idempotent:
// roles that already exist by name, regardless of active flag, are skipped.
func (r *Registry) EnsureDefaults(ctx context.Context) error {
	for _, in := range defaultRoles {
		_, err := r.roles.FindByName(ctx, in.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if _, err := r.Create(ctx, in); err != nil && !errors.Is(err, ErrDuplicate) {
			return fmt.Errorf("seed role %s: %w", in.Name, err)
		}
	}
	return nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
