package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"authgate.org/internal/auth"
)

type apiKeyStore Store

var _ auth.APIKeyStore = (*apiKeyStore)(nil)

const apiKeyColumns = `id, name, description, key_hash, account_id, is_active, expires_at, last_used_at, created_at`

func scanAPIKey(row interface{ Scan(...any) error }) (*auth.APIKey, error) {
	var (
		k        auth.APIKey
		desc     sql.NullString
		account  sql.NullString
		expires  sql.NullTime
		lastUsed sql.NullTime
	)
	if err := row.Scan(&k.ID, &k.Name, &desc, &k.KeyHash, &account, &k.IsActive, &expires, &lastUsed, &k.CreatedAt); err != nil {
		return nil, err
	}
	if desc.Valid {
		k.Description = desc.String
	}
	if account.Valid {
		k.AccountID = account.String
	}
	if expires.Valid {
		t := expires.Time
		k.ExpiresAt = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		k.LastUsedAt = &t
	}
	return &k, nil
}

func (s *apiKeyStore) Create(ctx context.Context, k *auth.APIKey) error {
	_, err := s.db.ExecContext(ctx, `
		insert into api_keys (id, name, description, key_hash, account_id, is_active, expires_at, created_at)
		values ($1, $2, $3, $4, nullif($5, ''), $6, $7, $8)
	`, k.ID, k.Name, nullIfEmpty(k.Description), k.KeyHash, k.AccountID, k.IsActive, nullTime(k.ExpiresAt), k.CreatedAt)
	if err != nil {
		return mapConstraintErr(err)
	}
	return nil
}

func (s *apiKeyStore) Find(ctx context.Context, id string) (*auth.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `select `+apiKeyColumns+` from api_keys where id = $1`, id)
	key, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: api key %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (s *apiKeyStore) FindByHash(ctx context.Context, hash string) (*auth.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `select `+apiKeyColumns+` from api_keys where key_hash = $1`, hash)
	key, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: unknown api key", auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (s *apiKeyStore) ListByOwner(ctx context.Context, accountID string) ([]*auth.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+apiKeyColumns+` from api_keys where account_id = $1 order by created_at, id
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAPIKeys(rows)
}

func (s *apiKeyStore) List(ctx context.Context) ([]*auth.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `select `+apiKeyColumns+` from api_keys order by created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAPIKeys(rows)
}

func collectAPIKeys(rows *sql.Rows) ([]*auth.APIKey, error) {
	var keys []*auth.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *apiKeyStore) Update(ctx context.Context, id string, upd auth.APIKeyUpdate) (*auth.APIKey, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		if *upd.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
	}
	if upd.ClearExpiry {
		sets = append(sets, "expires_at = NULL")
	} else if upd.ExpiresAt != nil {
		sets = append(sets, fmt.Sprintf("expires_at = $%d", idx))
		args = append(args, *upd.ExpiresAt)
		idx++
	}
	if len(sets) > 0 {
		query := fmt.Sprintf(`update api_keys set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, mapConstraintErr(err)
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if aff == 0 {
			return nil, fmt.Errorf("%w: api key %s", auth.ErrNotFound, id)
		}
	}
	return (*apiKeyStore)(s).Find(ctx, id)
}

func (s *apiKeyStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `update api_keys set is_active = $2 where id = $1`, id, active)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: api key %s", auth.ErrNotFound, id)
	}
	return nil
}

func (s *apiKeyStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `update api_keys set last_used_at = $2 where id = $1`, id, at)
	return err
}

func (s *apiKeyStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from api_keys where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: api key %s", auth.ErrNotFound, id)
	}
	return nil
}
