package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"authgate.org/internal/auth"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Name        *string  `json:"name"`
	DisplayName *string  `json:"display_name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.protected(auth.TokenOrAPIKey(), a.listRoles)(w, r)
	case http.MethodPost:
		a.protected(auth.AdminOnly(), a.createRole)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("include_inactive") != "true"
	roles, err := a.registry.List(r.Context(), activeOnly)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if roles == nil {
		roles = []*auth.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.registry.Create(r.Context(), auth.CreateRoleInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.create", "role", role.ID, map[string]string{
		"name": role.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if parts[0] == "initialize" {
		if len(parts) != 1 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.protected(auth.AdminOnly(), a.initializeRoles)(w, r)
		return
	}
	roleID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleRoleByID(w, r, roleID)
	case len(parts) == 2 && parts[1] == "accounts":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.protected(auth.AdminOnly(), func(w http.ResponseWriter, r *http.Request) {
			a.listRoleHolders(w, r, roleID)
		})(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRoleByID(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		a.protected(auth.RequirePermission(auth.PermRolesRead), func(w http.ResponseWriter, r *http.Request) {
			role, err := a.registry.Get(r.Context(), roleID)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, role)
		})(w, r)
	case http.MethodPut:
		a.protected(auth.AdminOnly(), func(w http.ResponseWriter, r *http.Request) {
			a.updateRole(w, r, roleID)
		})(w, r)
	case http.MethodDelete:
		a.protected(auth.AdminOnly(), func(w http.ResponseWriter, r *http.Request) {
			if err := a.registry.Delete(r.Context(), roleID); err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "rbac.role.delete", "role", roleID, nil)
			writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
		})(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request, roleID string) {
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.registry.Update(r.Context(), roleID, auth.RoleUpdate{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.update", "role", role.ID, map[string]string{
		"name": role.Name,
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) initializeRoles(w http.ResponseWriter, r *http.Request) {
	if err := a.registry.EnsureDefaults(r.Context()); err != nil {
		handleAuthError(w, r, err)
		return
	}
	roles, err := a.registry.List(r.Context(), false)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.roles.initialize", "role", "", nil)
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) listRoleHolders(w http.ResponseWriter, r *http.Request, roleID string) {
	accounts, err := a.graph.HoldersOf(r.Context(), roleID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []auth.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}
