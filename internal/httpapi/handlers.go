package httpapi

import (
	"context"
	"net/http"
	"time"

	"authgate.org/internal/audit"
	"authgate.org/internal/auth"
	"authgate.org/internal/obs"
	"authgate.org/internal/stream"
)

// ReadyProbe reports whether the service's dependencies are reachable.
type ReadyProbe struct {
	Ping func(ctx context.Context) error
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Ping == nil {
		return nil
	}
	return rp.Ping(ctx)
}

// Services bundles the core components the HTTP layer dispatches into.
type Services struct {
	Accounts *auth.Accounts
	Registry *auth.Registry
	Graph    *auth.Graph
	Tokens   *auth.Tokens
	Vault    *auth.KeyVault
	Guard    *auth.Guard
	Events   *stream.Stream
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	accounts   *auth.Accounts
	registry   *auth.Registry
	graph      *auth.Graph
	tokens     *auth.Tokens
	vault      *auth.KeyVault
	guard      *auth.Guard
	events     *stream.Stream
	readyProbe ReadyProbe
	version    string
}

func New(svc Services, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		accounts:   svc.Accounts,
		registry:   svc.Registry,
		graph:      svc.Graph,
		tokens:     svc.Tokens,
		vault:      svc.Vault,
		guard:      svc.Guard,
		events:     svc.Events,
		readyProbe: rp,
		version:    version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session flow
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/me", a.protected(auth.Authenticated(), a.handleMe))
	a.mux.HandleFunc("/v1/auth/key", a.protected(auth.APIKeyOnly(), a.handleKeyIdentity))

	// roles
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)

	// accounts
	a.mux.HandleFunc("/v1/accounts", a.handleAccounts)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountResource)

	// api keys
	a.mux.HandleFunc("/v1/api-keys", a.handleAPIKeys)
	a.mux.HandleFunc("/v1/api-keys/", a.handleAPIKeyResource)

	// live audit event stream
	a.mux.HandleFunc("/v1/events", a.handleEvents)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = LoggingJSON(h)
	h = obs.Instrument(h)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RequestID(h)
	return h
}

func (a *API) audit(ctx context.Context, event, entity, id string, fields map[string]string) {
	payload := map[string]any{
		"entity":    entity,
		"entity_id": id,
	}
	for k, v := range fields {
		payload[k] = v
	}
	_ = audit.LogEvent(ctx, event, payload)

	if a.events != nil {
		evt := stream.Event{
			Event:     event,
			Entity:    entity,
			EntityID:  id,
			RequestID: RequestIDFromContext(ctx),
			Fields:    fields,
		}
		if p, ok := auth.PrincipalFromContext(ctx); ok {
			evt.Actor = p.AccountID()
		}
		a.events.Publish(evt)
	}
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authgate-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "authgate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
