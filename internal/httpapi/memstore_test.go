package httpapi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"authgate.org/internal/auth"
)

// memStore is the in-memory auth.Store backing the handler tests.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*auth.Account
	roles    map[string]*auth.Role
	edges    map[string]*auth.RoleAssignment
	keys     map[string]*auth.APIKey
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*auth.Account),
		roles:    make(map[string]*auth.Role),
		edges:    make(map[string]*auth.RoleAssignment),
		keys:     make(map[string]*auth.APIKey),
	}
}

func (s *memStore) Accounts() auth.AccountStore       { return (*memAccounts)(s) }
func (s *memStore) Roles() auth.RoleStore             { return (*memRoles)(s) }
func (s *memStore) Assignments() auth.AssignmentStore { return (*memEdges)(s) }
func (s *memStore) APIKeys() auth.APIKeyStore         { return (*memKeys)(s) }

type memAccounts memStore

func (s *memAccounts) Create(_ context.Context, a *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Email == a.Email {
			return fmt.Errorf("%w: email taken", auth.ErrDuplicate)
		}
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *memAccounts) Find(_ context.Context, id string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", auth.ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *memAccounts) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: email %s", auth.ErrNotFound, email)
}

func (s *memAccounts) List(_ context.Context) ([]*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memAccounts) Update(_ context.Context, id string, upd auth.AccountUpdate) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", auth.ErrNotFound, id)
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
		return fmt.Errorf("%w: account %s", auth.ErrNotFound, id)
	}
	delete(s.accounts, id)
	return nil
}

func (s *memAccounts) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts), nil
}

type memRoles memStore

func (s *memRoles) Create(_ context.Context, r *auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == r.Name {
			return fmt.Errorf("%w: role name taken", auth.ErrDuplicate)
		}
	}
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *memRoles) Find(_ context.Context, id string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
	}
	cp := *r
	return &cp, nil
}

func (s *memRoles) FindByName(_ context.Context, name string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: role %s", auth.ErrNotFound, name)
}

func (s *memRoles) List(_ context.Context, activeOnly bool) ([]*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.Role, 0, len(s.roles))
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

func (s *memRoles) Update(_ context.Context, id string, upd auth.RoleUpdate) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
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
		return fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
	}
	r.IsActive = active
	return nil
}

func (s *memRoles) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.roles), nil
}

type memEdges memStore

func edgeKey(accountID, roleID string) string { return accountID + "/" + roleID }

func (s *memEdges) Insert(_ context.Context, edge auth.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey(edge.AccountID, edge.RoleID)
	if existing, ok := s.edges[key]; ok {
		if existing.IsActive {
			return fmt.Errorf("%w: assignment exists", auth.ErrDuplicate)
		}
		existing.IsActive = true
		existing.AssignedAt = edge.AssignedAt
		existing.AssignedBy = edge.AssignedBy
		return nil
	}
	cp := edge
	s.edges[key] = &cp
	return nil
}

func (s *memEdges) Deactivate(_ context.Context, accountID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[edgeKey(accountID, roleID)]
	if !ok || !e.IsActive {
		return fmt.Errorf("%w: no effective assignment", auth.ErrNotFound)
	}
	e.IsActive = false
	return nil
}

func (s *memEdges) EffectiveRoles(_ context.Context, accountID string) ([]auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Role
	for _, e := range s.edges {
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

func (s *memEdges) Holders(_ context.Context, roleID string) ([]auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Account
	for _, e := range s.edges {
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

func (s *memKeys) Create(_ context.Context, k *auth.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.keys {
		if existing.KeyHash == k.KeyHash {
			return fmt.Errorf("%w: key digest taken", auth.ErrDuplicate)
		}
	}
	cp := *k
	s.keys[k.ID] = &cp
	return nil
}

func (s *memKeys) Find(_ context.Context, id string) (*auth.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: api key %s", auth.ErrNotFound, id)
	}
	cp := *k
	return &cp, nil
}

func (s *memKeys) FindByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.KeyHash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown api key", auth.ErrNotFound)
}

func (s *memKeys) ListByOwner(_ context.Context, accountID string) ([]*auth.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.APIKey
	for _, k := range s.keys {
		if k.AccountID == accountID {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memKeys) List(_ context.Context) ([]*auth.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		cp := *k
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memKeys) Update(_ context.Context, id string, upd auth.APIKeyUpdate) (*auth.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: api key %s", auth.ErrNotFound, id)
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
		return fmt.Errorf("%w: api key %s", auth.ErrNotFound, id)
	}
	k.IsActive = active
	return nil
}

func (s *memKeys) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return fmt.Errorf("%w: api key %s", auth.ErrNotFound, id)
	}
	t := at
	k.LastUsedAt = &t
	return nil
}

func (s *memKeys) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		return fmt.Errorf("%w: api key %s", auth.ErrNotFound, id)
	}
	delete(s.keys, id)
	return nil
}
