package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store used across the package tests. It mirrors
// the constraint behavior of the postgres implementation: unique emails,
// unique role names, unique key digests and upsert-reactivate assignment
// edges.
type memStore struct {
	mu          sync.Mutex
	accounts    map[string]*Account
	roles       map[string]*Role
	assignments map[string]*RoleAssignment
	keys        map[string]*APIKey
}

func newMemStore() *memStore {
	return &memStore{
		accounts:    make(map[string]*Account),
		roles:       make(map[string]*Role),
		assignments: make(map[string]*RoleAssignment),
		keys:        make(map[string]*APIKey),
	}
}

func (s *memStore) Accounts() AccountStore       { return (*memAccounts)(s) }
func (s *memStore) Roles() RoleStore             { return (*memRoles)(s) }
func (s *memStore) Assignments() AssignmentStore { return (*memAssignments)(s) }
func (s *memStore) APIKeys() APIKeyStore         { return (*memKeys)(s) }

func edgeKey(accountID, roleID string) string { return accountID + "/" + roleID }

type memAccounts memStore

func (s *memAccounts) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == account.Email {
			return fmt.Errorf("%w: email taken", ErrDuplicate)
		}
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *memAccounts) Find(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *memAccounts) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: email %s", ErrNotFound, email)
}

func (s *memAccounts) List(_ context.Context) ([]*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memAccounts) Update(_ context.Context, id string, upd AccountUpdate) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	if upd.Email != nil {
		a.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		a.PasswordHash = *upd.PasswordHash
	}
	if upd.IsActive != nil {
		a.IsActive = *upd.IsActive
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (s *memAccounts) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	delete(s.accounts, id)
	for k, e := range s.assignments {
		if e.AccountID == id {
			delete(s.assignments, k)
		}
	}
	return nil
}

func (s *memAccounts) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts), nil
}

type memRoles memStore

func (s *memRoles) Create(_ context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == role.Name {
			return fmt.Errorf("%w: role name taken", ErrDuplicate)
		}
	}
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *memRoles) Find(_ context.Context, id string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	cp := *r
	return &cp, nil
}

func (s *memRoles) FindByName(_ context.Context, name string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: role %s", ErrNotFound, name)
}

func (s *memRoles) List(_ context.Context, activeOnly bool) ([]*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Role, 0, len(s.roles))
	for _, r := range s.roles {
		if activeOnly && !r.IsActive {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memRoles) Update(_ context.Context, id string, upd RoleUpdate) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.DisplayName != nil {
		r.DisplayName = *upd.DisplayName
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Permissions != nil {
		r.Permissions = append([]string(nil), upd.Permissions...)
	}
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	return &cp, nil
}

func (s *memRoles) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	r.IsActive = active
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memRoles) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.roles), nil
}

type memAssignments memStore

func (s *memAssignments) Insert(_ context.Context, edge RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey(edge.AccountID, edge.RoleID)
	if existing, ok := s.assignments[key]; ok {
		if existing.IsActive {
			return fmt.Errorf("%w: assignment exists", ErrDuplicate)
		}
		existing.IsActive = true
		existing.AssignedAt = edge.AssignedAt
		existing.AssignedBy = edge.AssignedBy
		return nil
	}
	cp := edge
	s.assignments[key] = &cp
	return nil
}

func (s *memAssignments) Deactivate(_ context.Context, accountID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.assignments[edgeKey(accountID, roleID)]
	if !ok || !e.IsActive {
		return fmt.Errorf("%w: no effective assignment", ErrNotFound)
	}
	e.IsActive = false
	return nil
}

func (s *memAssignments) EffectiveRoles(_ context.Context, accountID string) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Role
	for _, e := range s.assignments {
		if e.AccountID != accountID || !e.IsActive {
			continue
		}
		if r, ok := s.roles[e.RoleID]; ok && r.IsActive {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memAssignments) Holders(_ context.Context, roleID string) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Account
	for _, e := range s.assignments {
		if e.RoleID != roleID || !e.IsActive {
			continue
		}
		if a, ok := s.accounts[e.AccountID]; ok && a.IsActive {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memKeys memStore

func (s *memKeys) Create(_ context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.KeyHash == key.KeyHash {
			return fmt.Errorf("%w: key digest taken", ErrDuplicate)
		}
	}
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

func (s *memKeys) Find(_ context.Context, id string) (*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: api key %s", ErrNotFound, id)
	}
	cp := *k
	return &cp, nil
}

func (s *memKeys) FindByHash(_ context.Context, hash string) (*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.KeyHash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown api key", ErrNotFound)
}

func (s *memKeys) ListByOwner(_ context.Context, accountID string) ([]*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*APIKey
	for _, k := range s.keys {
		if k.AccountID == accountID {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memKeys) List(_ context.Context) ([]*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		cp := *k
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memKeys) Update(_ context.Context, id string, upd APIKeyUpdate) (*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: api key %s", ErrNotFound, id)
	}
	if upd.Name != nil {
		k.Name = *upd.Name
	}
	if upd.Description != nil {
		k.Description = *upd.Description
	}
	if upd.ClearExpiry {
		k.ExpiresAt = nil
	} else if upd.ExpiresAt != nil {
		t := *upd.ExpiresAt
		k.ExpiresAt = &t
	}
	cp := *k
	return &cp, nil
}

func (s *memKeys) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return fmt.Errorf("%w: api key %s", ErrNotFound, id)
	}
	k.IsActive = active
	return nil
}

func (s *memKeys) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return fmt.Errorf("%w: api key %s", ErrNotFound, id)
	}
	t := at
	k.LastUsedAt = &t
	return nil
}

func (s *memKeys) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		return fmt.Errorf("%w: api key %s", ErrNotFound, id)
	}
	delete(s.keys, id)
	return nil
}
