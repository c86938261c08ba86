package auth

import (
	"context"
	"errors"
	"fmt"
)

// SeedAdmin describes the initial administrator account created at startup.
// Empty values disable account seeding; role seeding always runs.
type SeedAdmin struct {
	Name     string
	Email    string
	Password string
}

// Bootstrap seeds the default roles and, when configured, the initial admin
// account with the admin role attached. It is idempotent and safe to run on
// every startup: existing roles, accounts and assignments are left alone.
func Bootstrap(ctx context.Context, registry *Registry, accounts *Accounts, graph *Graph, admin SeedAdmin) error {
	if registry == nil || accounts == nil || graph == nil {
		return errors.New("auth: registry, accounts and graph are required")
	}
	if err := registry.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("seed default roles: %w", err)
	}
	if admin.Email == "" || admin.Password == "" {
		return nil
	}

	account, err := accounts.GetByEmail(ctx, admin.Email)
	switch {
	case errors.Is(err, ErrNotFound):
		name := admin.Name
		if name == "" {
			name = "Administrator"
		}
		outcome, err := accounts.Register(ctx, RegisterInput{
			Name:     name,
			Email:    admin.Email,
			Password: admin.Password,
		})
		if err != nil {
			return fmt.Errorf("seed admin account: %w", err)
		}
		account = outcome.Account
	case err != nil:
		return err
	}

	adminRole, err := registry.GetByName(ctx, RoleAdmin)
	if err != nil {
		return fmt.Errorf("load admin role: %w", err)
	}
	if err := graph.Assign(ctx, account.ID, adminRole.ID, ""); err != nil && !errors.Is(err, ErrDuplicate) {
		return fmt.Errorf("assign admin role: %w", err)
	}
	return nil
}
