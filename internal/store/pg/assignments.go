package pg

import (
	"context"
	"fmt"

	"authgate.org/internal/auth"
)

type assignmentStore Store

var _ auth.AssignmentStore = (*assignmentStore)(nil)

// Insert creates the edge or reactivates a previously deactivated one. The
// conditional upsert leaves an already-effective edge untouched, so zero
// affected rows means a duplicate; the composite primary key makes this race
// safe without an explicit lock.
func (s *assignmentStore) Insert(ctx context.Context, edge auth.RoleAssignment) error {
	res, err := s.db.ExecContext(ctx, `
		insert into account_roles (account_id, role_id, assigned_at, assigned_by, is_active)
		values ($1, $2, $3, nullif($4, ''), true)
		on conflict (account_id, role_id) do update
		set is_active = true, assigned_at = excluded.assigned_at, assigned_by = excluded.assigned_by
		where account_roles.is_active = false
	`, edge.AccountID, edge.RoleID, edge.AssignedAt, edge.AssignedBy)
	if err != nil {
		return mapConstraintErr(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: assignment exists", auth.ErrDuplicate)
	}
	return nil
}

func (s *assignmentStore) Deactivate(ctx context.Context, accountID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		update account_roles set is_active = false
		where account_id = $1 and role_id = $2 and is_active
	`, accountID, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: no effective assignment", auth.ErrNotFound)
	}
	return nil
}

func (s *assignmentStore) EffectiveRoles(ctx context.Context, accountID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.display_name, r.description, r.permissions, r.is_active, r.created_at, r.updated_at
		from account_roles ar
		join roles r on r.id = ar.role_id
		where ar.account_id = $1 and ar.is_active and r.is_active
		order by r.name
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *assignmentStore) Holders(ctx context.Context, roleID string) ([]auth.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		select a.id, a.name, a.email, a.password_hash, a.is_active, a.created_at, a.updated_at
		from account_roles ar
		join accounts a on a.id = ar.account_id
		where ar.role_id = $1 and ar.is_active and a.is_active
		order by a.created_at, a.id
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []auth.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}
