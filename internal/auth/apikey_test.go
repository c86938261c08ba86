package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyVaultCreateAndValidate(t *testing.T) {
	store := newMemStore()
	vault, err := NewKeyVault(store.APIKeys())
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	ctx := context.Background()

	key, secret, err := vault.Create(ctx, CreateKeyInput{Name: "ci", AccountID: "acct-7"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if secret == "" {
		t.Fatal("expected a plaintext secret")
	}
	if key.KeyHash == secret {
		t.Fatal("stored digest must not equal the plaintext")
	}

	got, err := vault.Validate(ctx, secret)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.ID != key.ID {
		t.Fatalf("validate returned key %s, want %s", got.ID, key.ID)
	}
	if got.LastUsedAt == nil {
		t.Fatal("validate should touch last_used_at")
	}
}

func TestKeyVaultPlaintextNotRetrievable(t *testing.T) {
	store := newMemStore()
	vault, err := NewKeyVault(store.APIKeys())
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	ctx := context.Background()
	key, secret, err := vault.Create(ctx, CreateKeyInput{Name: "ci"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fetched, err := vault.Get(ctx, key.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.KeyHash == secret {
		t.Fatal("fetched record leaks the plaintext")
	}
}

func TestKeyVaultValidateUnknownSecret(t *testing.T) {
	store := newMemStore()
	vault, err := NewKeyVault(store.APIKeys())
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	if _, err := vault.Validate(context.Background(), "no-such-secret"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("validate unknown secret: got %v, want ErrNotFound", err)
	}
}

func TestKeyVaultValidateDeactivated(t *testing.T) {
	store := newMemStore()
	vault, err := NewKeyVault(store.APIKeys())
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	ctx := context.Background()
	key, secret, err := vault.Create(ctx, CreateKeyInput{Name: "ci"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := vault.Validate(ctx, secret); err != nil {
		t.Fatalf("validate before deactivate: %v", err)
	}
	if err := vault.Deactivate(ctx, key.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := vault.Validate(ctx, secret); !errors.Is(err, ErrInactive) {
		t.Fatalf("validate deactivated key: got %v, want ErrInactive", err)
	}
	if err := vault.Activate(ctx, key.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := vault.Validate(ctx, secret); err != nil {
		t.Fatalf("validate reactivated key: %v", err)
	}
}

func TestKeyVaultValidateExpired(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	vault, err := NewKeyVault(store.APIKeys(), WithVaultClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	ctx := context.Background()
	expiry := now.Add(time.Hour)
	_, secret, err := vault.Create(ctx, CreateKeyInput{Name: "ci", ExpiresAt: &expiry})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := vault.Validate(ctx, secret); !errors.Is(err, ErrExpired) {
		t.Fatalf("validate expired key: got %v, want ErrExpired", err)
	}
}

func TestKeyVaultCreateRejectsPastExpiry(t *testing.T) {
	store := newMemStore()
	vault, err := NewKeyVault(store.APIKeys())
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	if _, _, err := vault.Create(context.Background(), CreateKeyInput{Name: "ci", ExpiresAt: &past}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("create with past expiry: got %v, want ErrInvalid", err)
	}
}

func TestKeyVaultListByOwner(t *testing.T) {
	store := newMemStore()
	vault, err := NewKeyVault(store.APIKeys())
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	ctx := context.Background()
	if _, _, err := vault.Create(ctx, CreateKeyInput{Name: "mine", AccountID: "acct-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := vault.Create(ctx, CreateKeyInput{Name: "theirs", AccountID: "acct-2"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	keys, err := vault.ListByOwner(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(keys) != 1 || keys[0].Name != "mine" {
		t.Fatalf("unexpected keys: %+v", keys)
	}
}
