package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"authgate.org/internal/auth"
)

type createAPIKeyRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	AccountID   string     `json:"account_id"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type updateAPIKeyRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
}

// createdKeyResponse is the only place the plaintext secret ever appears.
type createdKeyResponse struct {
	Key    *auth.APIKey `json:"key"`
	Secret string       `json:"secret"`
}

func (a *API) handleAPIKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.protected(auth.RequirePermission(auth.PermAPIKeysRead), a.listAPIKeys)(w, r)
	case http.MethodPost:
		a.protected(auth.RequirePermission(auth.PermAPIKeysWrite), a.createAPIKey)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := a.vault.List(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if keys == nil {
		keys = []*auth.APIKey{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

func (a *API) createAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.AccountID != "" {
		if _, err := a.accounts.Get(r.Context(), req.AccountID); err != nil {
			handleAuthError(w, r, err)
			return
		}
	}
	key, secret, err := a.vault.Create(r.Context(), auth.CreateKeyInput{
		Name:        req.Name,
		Description: req.Description,
		AccountID:   req.AccountID,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "apikey.create", "api_key", key.ID, map[string]string{
		"name": key.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/api-keys/%s", key.ID))
	writeJSON(w, http.StatusCreated, createdKeyResponse{Key: key, Secret: secret})
}

func (a *API) handleAPIKeyResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/api-keys/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if parts[0] == "my-keys" {
		if len(parts) != 1 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleMyKeys(w, r)
		return
	}
	keyID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleAPIKeyByID(w, r, keyID)
	case len(parts) == 2 && parts[1] == "activate":
		a.setKeyActive(w, r, keyID, true)
	case len(parts) == 2 && parts[1] == "deactivate":
		a.setKeyActive(w, r, keyID, false)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleMyKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.protected(auth.Authenticated(), func(w http.ResponseWriter, r *http.Request) {
			keys, err := a.vault.ListByOwner(r.Context(), principal(r).AccountID())
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			if keys == nil {
				keys = []*auth.APIKey{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
		})(w, r)
	case http.MethodPost:
		a.protected(auth.Authenticated(), func(w http.ResponseWriter, r *http.Request) {
			var req createAPIKeyRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			// Self-service keys always belong to the caller.
			key, secret, err := a.vault.Create(r.Context(), auth.CreateKeyInput{
				Name:        req.Name,
				Description: req.Description,
				AccountID:   principal(r).AccountID(),
				ExpiresAt:   req.ExpiresAt,
			})
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "apikey.create.self", "api_key", key.ID, nil)
			w.Header().Set("Location", fmt.Sprintf("/v1/api-keys/%s", key.ID))
			writeJSON(w, http.StatusCreated, createdKeyResponse{Key: key, Secret: secret})
		})(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAPIKeyByID(w http.ResponseWriter, r *http.Request, keyID string) {
	switch r.Method {
	case http.MethodGet:
		a.protected(auth.Authenticated(), func(w http.ResponseWriter, r *http.Request) {
			key, err := a.vault.Get(r.Context(), keyID)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			p := principal(r)
			if key.AccountID != p.AccountID() && !p.HasPermission(auth.PermAPIKeysRead) {
				writeError(w, r, http.StatusForbidden, "insufficient privilege")
				return
			}
			writeJSON(w, http.StatusOK, key)
		})(w, r)
	case http.MethodPut:
		a.protected(auth.Authenticated(), func(w http.ResponseWriter, r *http.Request) {
			key, err := a.vault.Get(r.Context(), keyID)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			p := principal(r)
			if key.AccountID != p.AccountID() && !p.HasPermission(auth.PermAPIKeysWrite) {
				writeError(w, r, http.StatusForbidden, "insufficient privilege")
				return
			}
			var req updateAPIKeyRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			updated, err := a.vault.Update(r.Context(), keyID, auth.APIKeyUpdate{
				Name:        req.Name,
				Description: req.Description,
				ExpiresAt:   req.ExpiresAt,
				ClearExpiry: req.ClearExpiry,
			})
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "apikey.update", "api_key", keyID, nil)
			writeJSON(w, http.StatusOK, updated)
		})(w, r)
	case http.MethodDelete:
		a.protected(auth.Authenticated(), func(w http.ResponseWriter, r *http.Request) {
			key, err := a.vault.Get(r.Context(), keyID)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			p := principal(r)
			if key.AccountID != p.AccountID() && !p.HasPermission(auth.PermAPIKeysDelete) {
				writeError(w, r, http.StatusForbidden, "insufficient privilege")
				return
			}
			if err := a.vault.Delete(r.Context(), keyID); err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "apikey.delete", "api_key", keyID, nil)
			writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
		})(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) setKeyActive(w http.ResponseWriter, r *http.Request, keyID string, active bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.protected(auth.RequirePermission(auth.PermAPIKeysWrite), func(w http.ResponseWriter, r *http.Request) {
		var err error
		if active {
			err = a.vault.Activate(r.Context(), keyID)
		} else {
			err = a.vault.Deactivate(r.Context(), keyID)
		}
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		event := "apikey.deactivate"
		if active {
			event = "apikey.activate"
		}
		a.audit(r.Context(), event, "api_key", keyID, nil)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})(w, r)
}
