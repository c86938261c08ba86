package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authgate.org/internal/ids"
)

const minPasswordLength = 6

// Accounts provides account lifecycle operations. Registration attempts to
// attach the default client role; a failed attachment degrades the outcome
// instead of failing the registration.
type Accounts struct {
	store AccountStore
	graph *Graph
	roles RoleStore
	now   func() time.Time
}

// AccountsOption configures Accounts behavior.
type AccountsOption func(*Accounts)

// WithAccountsClock overrides the time source (useful for tests).
func WithAccountsClock(fn func() time.Time) AccountsOption {
	return func(a *Accounts) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAccounts constructs the account service.
func NewAccounts(store AccountStore, roles RoleStore, graph *Graph, opts ...AccountsOption) (*Accounts, error) {
	if store == nil || roles == nil || graph == nil {
		return nil, errors.New("auth: account store, role store and graph are required")
	}
	a := &Accounts{store: store, graph: graph, roles: roles, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// RegisterOutcome reports a successful registration. Degraded is set when the
// default client role was missing and the auto-assignment was skipped; the
// account still exists and can authenticate.
type RegisterOutcome struct {
	Account  *Account
	Degraded bool
}

func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalid)
	}
	return email, nil
}

// Register creates an active account and auto-assigns the client role.
func (a *Accounts) Register(ctx context.Context, in RegisterInput) (RegisterOutcome, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return RegisterOutcome{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return RegisterOutcome{}, err
	}
	if len(in.Password) < minPasswordLength {
		return RegisterOutcome{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, minPasswordLength)
	}
	if _, err := a.store.FindByEmail(ctx, email); err == nil {
		return RegisterOutcome{}, fmt.Errorf("%w: email is already registered", ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return RegisterOutcome{}, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return RegisterOutcome{}, err
	}
	now := a.now().UTC()
	account := &Account{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.Create(ctx, account); err != nil {
		return RegisterOutcome{}, err
	}

	// The account row is committed past this point. Any failure to attach
	// the default role degrades the outcome; reporting an error here would
	// describe a half-applied registration that actually exists.
	outcome := RegisterOutcome{Account: account}
	client, err := a.roles.FindByName(ctx, RoleClient)
	if err != nil {
		outcome.Degraded = true
		return outcome, nil
	}
	if err := a.graph.Assign(ctx, account.ID, client.ID, ""); err != nil && !errors.Is(err, ErrDuplicate) {
		outcome.Degraded = true
	}
	return outcome, nil
}

// Authenticate verifies email and password against the stored verifier.
// Every failure mode collapses to ErrUnauthenticated so a caller cannot
// distinguish an unknown email from a wrong password.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrUnauthenticated)
	}
	account, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: bad credentials", ErrUnauthenticated)
		}
		return nil, err
	}
	ok, err := VerifyPassword(account.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: bad credentials", ErrUnauthenticated)
	}
	if !account.IsActive {
		return nil, fmt.Errorf("%w: account is inactive", ErrUnauthenticated)
	}
	return account, nil
}

// Get returns an account by id.
func (a *Accounts) Get(ctx context.Context, id string) (*Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalid)
	}
	return a.store.Find(ctx, id)
}

// GetByEmail returns an account by its exact stored email.
func (a *Accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	email, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	return a.store.FindByEmail(ctx, email)
}

// List returns all accounts.
func (a *Accounts) List(ctx context.Context) ([]*Account, error) {
	return a.store.List(ctx)
}

// UpdateAccountInput is a partial account patch; a non-nil Password is
// re-hashed before storage.
type UpdateAccountInput struct {
	Name     *string
	Email    *string
	Password *string
	IsActive *bool
}

// Update applies a partial patch. Changing the email re-checks uniqueness;
// the store's constraint is still the final arbiter under concurrency.
func (a *Accounts) Update(ctx context.Context, id string, in UpdateAccountInput) (*Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalid)
	}
	upd := AccountUpdate{IsActive: in.IsActive}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalid)
		}
		upd.Name = &name
	}
	if in.Email != nil {
		email, err := validateEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		if existing, err := a.store.FindByEmail(ctx, email); err == nil && existing.ID != id {
			return nil, fmt.Errorf("%w: email is already registered", ErrDuplicate)
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		upd.Email = &email
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, minPasswordLength)
		}
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
	}
	return a.store.Update(ctx, id, upd)
}

// Delete removes the account permanently. Accounts are hard-deleted, unlike
// roles; the assignment edges go with the row.
func (a *Accounts) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalid)
	}
	return a.store.Delete(ctx, id)
}

// Count returns the total number of accounts.
func (a *Accounts) Count(ctx context.Context) (int, error) {
	return a.store.Count(ctx)
}
