package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"authgate.org/internal/auth"
)

type createAccountRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateAccountRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.protected(auth.RequirePermission(auth.PermUsersRead), a.listAccounts)(w, r)
	case http.MethodPost:
		a.protected(auth.RequirePermission(auth.PermUsersWrite), a.createAccount)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.accounts.List(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []*auth.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (a *API) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
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
	a.audit(r.Context(), "rbac.account.create", "account", outcome.Account.ID, map[string]string{
		"email": outcome.Account.Email,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/accounts/%s", outcome.Account.ID))
	writeJSON(w, http.StatusCreated, map[string]any{
		"account":  outcome.Account,
		"degraded": outcome.Degraded,
	})
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if parts[0] == "my-roles" {
		if len(parts) != 1 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.protected(auth.Authenticated(), a.listMyRoles)(w, r)
		return
	}
	accountID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleAccountByID(w, r, accountID)
	case len(parts) == 2 && parts[1] == "roles":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.protected(auth.RequirePermission(auth.PermUsersRead), func(w http.ResponseWriter, r *http.Request) {
			a.listAccountRoles(w, r, accountID)
		})(w, r)
	case len(parts) == 3 && parts[1] == "roles":
		a.handleAssignment(w, r, accountID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAccountByID(w http.ResponseWriter, r *http.Request, accountID string) {
	switch r.Method {
	case http.MethodGet:
		a.protected(auth.Authenticated(), func(w http.ResponseWriter, r *http.Request) {
			p := principal(r)
			if p.AccountID() != accountID && !p.HasPermission(auth.PermUsersRead) {
				writeError(w, r, http.StatusForbidden, "insufficient privilege")
				return
			}
			account, err := a.accounts.Get(r.Context(), accountID)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, account)
		})(w, r)
	case http.MethodPut:
		a.protected(auth.Authenticated(), func(w http.ResponseWriter, r *http.Request) {
			p := principal(r)
			if p.AccountID() != accountID && !p.HasPermission(auth.PermUsersWrite) {
				writeError(w, r, http.StatusForbidden, "insufficient privilege")
				return
			}
			a.updateAccount(w, r, accountID, p)
		})(w, r)
	case http.MethodDelete:
		a.protected(auth.RequirePermission(auth.PermUsersDelete), func(w http.ResponseWriter, r *http.Request) {
			if err := a.accounts.Delete(r.Context(), accountID); err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "rbac.account.delete", "account", accountID, nil)
			writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
		})(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) updateAccount(w http.ResponseWriter, r *http.Request, accountID string, p *auth.Principal) {
	var req updateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// Only privileged callers may flip the active flag.
	if req.IsActive != nil && !p.HasPermission(auth.PermUsersWrite) {
		writeError(w, r, http.StatusForbidden, "insufficient privilege")
		return
	}
	account, err := a.accounts.Update(r.Context(), accountID, auth.UpdateAccountInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		IsActive: req.IsActive,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.account.update", "account", account.ID, nil)
	writeJSON(w, http.StatusOK, account)
}

func (a *API) listMyRoles(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	perms := make([]string, 0, len(p.Permissions))
	for perm := range p.Permissions {
		perms = append(perms, perm)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roles":       p.Roles,
		"permissions": perms,
	})
}

func (a *API) listAccountRoles(w http.ResponseWriter, r *http.Request, accountID string) {
	if _, err := a.accounts.Get(r.Context(), accountID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	roles, err := a.graph.EffectiveRoles(r.Context(), accountID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleAssignment(w http.ResponseWriter, r *http.Request, accountID, roleID string) {
	switch r.Method {
	case http.MethodPost:
		a.protected(auth.AdminOnly(), func(w http.ResponseWriter, r *http.Request) {
			p := principal(r)
			if err := a.graph.Assign(r.Context(), accountID, roleID, p.AccountID()); err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "rbac.assignment.create", "account", accountID, map[string]string{
				"role_id": roleID,
			})
			writeJSON(w, http.StatusCreated, map[string]any{"status": "assigned"})
		})(w, r)
	case http.MethodDelete:
		a.protected(auth.AdminOnly(), func(w http.ResponseWriter, r *http.Request) {
			if err := a.graph.Unassign(r.Context(), accountID, roleID); err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "rbac.assignment.remove", "account", accountID, map[string]string{
				"role_id": roleID,
			})
			writeJSON(w, http.StatusOK, map[string]any{"status": "unassigned"})
		})(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}
