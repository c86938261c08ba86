package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// All mutating methods are expected to be transactional: either the whole
// operation commits, or nothing does.
type Store interface {
	Accounts() AccountStore
	Roles() RoleStore
	Assignments() AssignmentStore
	APIKeys() APIKeyStore
}

// AccountUpdate is a partial account patch; nil fields are left untouched.
type AccountUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
	IsActive     *bool
}

// AccountStore manages accounts.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
	Update(ctx context.Context, id string, upd AccountUpdate) (*Account, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// RoleUpdate is a partial role patch; nil fields are left untouched.
// Permissions replaces the whole set when non-nil.
type RoleUpdate struct {
	Name        *string
	DisplayName *string
	Description *string
	Permissions []string
}

// RoleStore manages roles. Roles are never hard-deleted; SetActive flips the
// soft-delete flag. FindByName matches active and inactive roles alike so
// uniqueness holds across both.
type RoleStore interface {
	Create(ctx context.Context, r *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context, activeOnly bool) ([]*Role, error)
	Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error)
	SetActive(ctx context.Context, id string, active bool) error
	Count(ctx context.Context) (int, error)
}

// AssignmentStore manages account-role edges. Insert reactivates a previously
// deactivated edge and fails with ErrDuplicate when an effective edge already
// exists; uniqueness is enforced by the store, not by a check-then-insert.
type AssignmentStore interface {
	Insert(ctx context.Context, edge RoleAssignment) error
	Deactivate(ctx context.Context, accountID, roleID string) error
	EffectiveRoles(ctx context.Context, accountID string) ([]Role, error)
	Holders(ctx context.Context, roleID string) ([]Account, error)
}

// APIKeyUpdate is a partial key patch. ClearExpiry removes the expiry
// timestamp; it takes precedence over ExpiresAt.
type APIKeyUpdate struct {
	Name        *string
	Description *string
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// APIKeyStore manages API key records keyed by the secret's digest.
type APIKeyStore interface {
	Create(ctx context.Context, k *APIKey) error
	Find(ctx context.Context, id string) (*APIKey, error)
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
	ListByOwner(ctx context.Context, accountID string) ([]*APIKey, error)
	List(ctx context.Context) ([]*APIKey, error)
	Update(ctx context.Context, id string, upd APIKeyUpdate) (*APIKey, error)
	SetActive(ctx context.Context, id string, active bool) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
