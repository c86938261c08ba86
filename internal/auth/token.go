package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer   = "authgate"
	defaultTokenTTL = 15 * time.Minute
)

// Claims represents the verified JWT claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// Tokens issues and verifies signed session tokens. Tokens are stateless:
// once issued they stay valid for their full TTL; there is no revocation
// list. Deactivating the account instead takes effect on the next
// ResolveAccount call.
type Tokens struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	now      func() time.Time
	accounts AccountStore
}

// TokenOption configures Tokens behavior.
type TokenOption func(*Tokens)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(t *Tokens) {
		if s := strings.TrimSpace(issuer); s != "" {
			t.issuer = s
		}
	}
}

// WithTokenTTL configures the default token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(t *Tokens) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokens constructs the token service. The signing secret is required.
func NewTokens(secret string, accounts AccountStore, opts ...TokenOption) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if accounts == nil {
		return nil, errors.New("auth: account store is required")
	}
	t := &Tokens{
		secret:   []byte(secret),
		issuer:   defaultIssuer,
		ttl:      defaultTokenTTL,
		now:      time.Now,
		accounts: accounts,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Issue signs an HS256 JWT for the given account. A non-positive ttl falls
// back to the configured default.
func (t *Tokens) Issue(accountID string, ttl time.Duration) (string, time.Time, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", time.Time{}, fmt.Errorf("%w: account id is required", ErrInvalid)
	}
	if ttl <= 0 {
		ttl = t.ttl
	}
	now := t.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature, algorithm, issuer and timestamps. Expiry is
// reported as ErrExpired; every other failure collapses to ErrInvalid so the
// caller learns nothing about why a forged token was rejected.
func (t *Tokens) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalid)
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: unexpected signing method", ErrInvalid)
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithIssuer(t.issuer), jwt.WithIssuedAt())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrExpired)
		}
		return nil, fmt.Errorf("%w: token rejected", ErrInvalid)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: token rejected", ErrInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrInvalid)
	}
	return claims, nil
}

// ResolveAccount verifies the token and loads the subject account, re-reading
// committed state so a deactivated account is rejected on the next request.
func (t *Tokens) ResolveAccount(ctx context.Context, token string) (*Account, error) {
	claims, err := t.Verify(token)
	if err != nil {
		return nil, err
	}
	account, err := t.accounts.Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", ErrInvalid)
		}
		return nil, err
	}
	if !account.IsActive {
		return nil, fmt.Errorf("%w: account is inactive", ErrInvalid)
	}
	return account, nil
}

// Refresh issues a fresh token for the subject of a still-valid token. The
// old token remains usable until its own expiry; refresh is additive, not a
// swap.
func (t *Tokens) Refresh(ctx context.Context, token string) (string, time.Time, error) {
	account, err := t.ResolveAccount(ctx, token)
	if err != nil {
		return "", time.Time{}, err
	}
	return t.Issue(account.ID, 0)
}
