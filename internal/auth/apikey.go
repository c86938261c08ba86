package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"authgate.org/internal/ids"
)

// keySecretBytes is the entropy of a generated secret (256 bits).
const keySecretBytes = 32

// GenerateSecret produces a cryptographically random URL-safe key secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, keySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashSecret returns the hex SHA-256 digest of a key secret. The digest is
// deterministic so validation is an exact-match lookup, not a
// recompute-and-compare against per-record salts.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// KeyVault manages the API key lifecycle. The plaintext secret is returned to
// the caller exactly once, at creation; afterwards only its digest exists.
type KeyVault struct {
	keys APIKeyStore
	now  func() time.Time
}

// VaultOption configures KeyVault behavior.
type VaultOption func(*KeyVault)

// WithVaultClock overrides the time source (useful for tests).
func WithVaultClock(fn func() time.Time) VaultOption {
	return func(v *KeyVault) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewKeyVault constructs a KeyVault over the given store.
func NewKeyVault(keys APIKeyStore, opts ...VaultOption) (*KeyVault, error) {
	if keys == nil {
		return nil, fmt.Errorf("auth: api key store is required")
	}
	v := &KeyVault{keys: keys, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// CreateKeyInput describes a new key. AccountID may be empty for
// service-level keys not tied to any account.
type CreateKeyInput struct {
	Name        string
	Description string
	AccountID   string
	ExpiresAt   *time.Time
}

// Create persists a new key record and returns it together with the
// plaintext secret. The secret is not retrievable afterwards.
func (v *KeyVault) Create(ctx context.Context, in CreateKeyInput) (*APIKey, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, "", fmt.Errorf("%w: key name is required", ErrInvalid)
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(v.now()) {
		return nil, "", fmt.Errorf("%w: expiry must be in the future", ErrInvalid)
	}
	secret, err := GenerateSecret()
	if err != nil {
		return nil, "", err
	}
	key := &APIKey{
		ID:          ids.New(),
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		KeyHash:     HashSecret(secret),
		AccountID:   strings.TrimSpace(in.AccountID),
		IsActive:    true,
		ExpiresAt:   in.ExpiresAt,
		CreatedAt:   v.now().UTC(),
	}
	if err := v.keys.Create(ctx, key); err != nil {
		return nil, "", err
	}
	return key, secret, nil
}

// Validate hashes the presented secret and looks the record up by digest.
// It fails with ErrNotFound for an unknown secret, ErrInactive for a
// deactivated key and ErrExpired for an elapsed expiry. On success the
// last-used timestamp is touched; the touch is best-effort and does not fail
// the validation.
func (v *KeyVault) Validate(ctx context.Context, secret string) (*APIKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalid)
	}
	key, err := v.keys.FindByHash(ctx, HashSecret(secret))
	if err != nil {
		return nil, err
	}
	if !key.IsActive {
		return nil, fmt.Errorf("%w: api key is deactivated", ErrInactive)
	}
	now := v.now().UTC()
	if key.Expired(now) {
		return nil, fmt.Errorf("%w: api key expired", ErrExpired)
	}
	if err := v.keys.TouchLastUsed(ctx, key.ID, now); err == nil {
		key.LastUsedAt = &now
	}
	return key, nil
}

// Get returns a key record by id. The record never carries the plaintext.
func (v *KeyVault) Get(ctx context.Context, id string) (*APIKey, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: key id is required", ErrInvalid)
	}
	return v.keys.Find(ctx, id)
}

// List returns all key records. Privileged callers only.
func (v *KeyVault) List(ctx context.Context) ([]*APIKey, error) {
	return v.keys.List(ctx)
}

// ListByOwner returns the keys owned by an account.
func (v *KeyVault) ListByOwner(ctx context.Context, accountID string) ([]*APIKey, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalid)
	}
	return v.keys.ListByOwner(ctx, accountID)
}

// Update applies a partial patch to a key's label, description or expiry.
func (v *KeyVault) Update(ctx context.Context, id string, upd APIKeyUpdate) (*APIKey, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: key id is required", ErrInvalid)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: key name is required", ErrInvalid)
		}
		upd.Name = &name
	}
	return v.keys.Update(ctx, id, upd)
}

// Activate re-enables a deactivated key.
func (v *KeyVault) Activate(ctx context.Context, id string) error {
	return v.setActive(ctx, id, true)
}

// Deactivate revokes a key. Validation observes the flip on the next lookup.
func (v *KeyVault) Deactivate(ctx context.Context, id string) error {
	return v.setActive(ctx, id, false)
}

func (v *KeyVault) setActive(ctx context.Context, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: key id is required", ErrInvalid)
	}
	return v.keys.SetActive(ctx, id, active)
}

// Delete removes a key record permanently. Keys are hard-deleted, unlike
// roles and assignment edges.
func (v *KeyVault) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: key id is required", ErrInvalid)
	}
	return v.keys.Delete(ctx, id)
}
