package httpapi

import (
	"errors"
	"net/http"
	"time"

	"authgate.org/internal/auth"
	"authgate.org/internal/obs"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Account   *auth.Account `json:"account,omitempty"`
	Degraded  bool          `json:"degraded,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := a.accounts.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	token, expiresAt, err := a.tokens.Issue(outcome.Account.ID, 0)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveTokenIssued()
	a.audit(r.Context(), "auth.account.register", "account", outcome.Account.ID, map[string]string{
		"email":    outcome.Account.Email,
		"degraded": boolStr(outcome.Degraded),
	})
	writeJSON(w, http.StatusCreated, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Account:   outcome.Account,
		Degraded:  outcome.Degraded,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account, err := a.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	token, expiresAt, err := a.tokens.Issue(account.ID, 0)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveTokenIssued()
	a.audit(r.Context(), "auth.session.login", "account", account.ID, nil)
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Account:   account,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	creds := extractCredentials(r)
	if creds.BearerToken == "" {
		writeError(w, r, http.StatusUnauthorized, "bearer token required")
		return
	}
	token, expiresAt, err := a.tokens.Refresh(r.Context(), creds.BearerToken)
	if err != nil {
		// A bad refresh credential is an authentication failure, not input.
		if errors.Is(err, auth.ErrInvalid) || errors.Is(err, auth.ErrExpired) {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveTokenIssued()
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p := principal(r)
	perms := make([]string, 0, len(p.Permissions))
	for perm := range p.Permissions {
		perms = append(perms, perm)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":     p.Account,
		"roles":       p.Roles,
		"permissions": perms,
	})
}

func (a *API) handleKeyIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p := principal(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"api_key": p.APIKey,
		"account": p.Account,
	})
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
