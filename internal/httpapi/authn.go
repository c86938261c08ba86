package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"authgate.org/internal/auth"
	"authgate.org/internal/obs"
)

const (
	authHeader   = "Authorization"
	apiKeyHeader = "X-API-Key"
	bearerScheme = "Bearer "
	apiKeyScheme = "ApiKey "
)

// extractCredentials pulls the raw credentials off the request. A bearer
// token comes from the Authorization header; an API key from either the
// X-API-Key header or the ApiKey authorization scheme. Neither is verified
// here.
func extractCredentials(r *http.Request) auth.Credentials {
	var creds auth.Credentials
	header := strings.TrimSpace(r.Header.Get(authHeader))
	switch {
	case len(header) >= len(bearerScheme) && strings.EqualFold(header[:len(bearerScheme)], bearerScheme):
		creds.BearerToken = strings.TrimSpace(header[len(bearerScheme):])
	case len(header) >= len(apiKeyScheme) && strings.EqualFold(header[:len(apiKeyScheme)], apiKeyScheme):
		creds.APIKeySecret = strings.TrimSpace(header[len(apiKeyScheme):])
	}
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		creds.APIKeySecret = key
	}
	return creds
}

func policyLabel(p auth.Policy) string {
	switch p.Kind {
	case auth.PolicyAuthenticated:
		return "authenticated"
	case auth.PolicyAdminOnly:
		return "admin_only"
	case auth.PolicyPermission:
		return "permission"
	case auth.PolicyRole:
		return "role"
	case auth.PolicyAPIKeyOnly:
		return "api_key_only"
	case auth.PolicyTokenOrAPIKey:
		return "token_or_api_key"
	default:
		return "unknown"
	}
}

// protected wraps a handler with the guard. The resolved principal lands in
// the request context; rejections are mapped to 401/403 before the handler
// body runs.
func (a *API) protected(policy auth.Policy, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds := extractCredentials(r)
		principal, err := a.guard.Authorize(r.Context(), creds, policy)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUnauthenticated):
				obs.ObserveAuthDecision(policyLabel(policy), "unauthenticated")
				if creds.APIKeySecret != "" {
					obs.ObserveAPIKeyValidation("rejected")
				}
				writeError(w, r, http.StatusUnauthorized, err.Error())
			case errors.Is(err, auth.ErrForbidden):
				obs.ObserveAuthDecision(policyLabel(policy), "forbidden")
				writeError(w, r, http.StatusForbidden, err.Error())
			default:
				obs.ObserveAuthDecision(policyLabel(policy), "error")
				writeError(w, r, http.StatusInternalServerError, "authorization error")
			}
			return
		}
		obs.ObserveAuthDecision(policyLabel(policy), "authorized")
		if principal.APIKey != nil {
			obs.ObserveAPIKeyValidation("ok")
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next(w, r.WithContext(ctx))
	}
}

// principal returns the guard-resolved caller; handlers behind protected can
// rely on it being present.
func principal(r *http.Request) *auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
