// Package httpapi is the HTTP surface of the user-management service:
// authentication, password reset, and the RBAC admin endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/activity"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/audit"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/identity"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/obs"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/passreset"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/rbac"
)

// timeNow is swapped in tests.
var timeNow = time.Now

// ReadyProbe reports whether downstream dependencies are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries everything the API needs. Accounts, Store, Service,
// Resolver, Guard and Reset are required; Auditor and Tracker default to
// log-only/no-op behavior when nil.
type Config struct {
	ReadyProbe ReadyProbe
	Version    string

	Accounts identity.AccountStore
	Store    rbac.Store
	Service  *rbac.Service
	Resolver *rbac.Resolver
	Guard    *rbac.Guard
	Reset    *passreset.Service

	Auditor *audit.Logger
	Tracker *activity.Tracker
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	accounts identity.AccountStore
	store    rbac.Store
	service  *rbac.Service
	resolver *rbac.Resolver
	guard    *rbac.Guard
	reset    *passreset.Service
	auditor  *audit.Logger
	tracker  *activity.Tracker
}

// New wires routes and constructs the API.
func New(cfg Config) (*API, error) {
	if cfg.Accounts == nil || cfg.Store == nil || cfg.Service == nil ||
		cfg.Resolver == nil || cfg.Guard == nil || cfg.Reset == nil {
		return nil, errors.New("httpapi: accounts, store, service, resolver, guard and reset are required")
	}
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		accounts:   cfg.Accounts,
		store:      cfg.Store,
		service:    cfg.Service,
		resolver:   cfg.Resolver,
		guard:      cfg.Guard,
		reset:      cfg.Reset,
		auditor:    cfg.Auditor,
		tracker:    cfg.Tracker,
	}
	if a.auditor == nil {
		a.auditor = audit.NewLogger(nil)
	}
	if a.tracker == nil {
		a.tracker = activity.NewTracker(nil)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/password-reset/request", a.handleResetRequest)
	a.mux.HandleFunc("/v1/auth/password-reset/verify", a.handleResetVerify)
	a.mux.HandleFunc("/v1/auth/password-reset/complete", a.handleResetComplete)

	a.mux.HandleFunc("/v1/me", a.handleMe)
	a.mux.HandleFunc("/v1/me/permissions", a.handleMyPermissions)
	a.mux.HandleFunc("/v1/me/modules", a.handleMyModules)
	a.mux.HandleFunc("/v1/me/activity", a.handleMyActivity)

	a.mux.HandleFunc("/v1/organizations", a.handleOrganizations)
	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizationResource)
	a.mux.HandleFunc("/v1/modules", a.handleModules)
	a.mux.HandleFunc("/v1/modules/", a.handleModuleResource)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)
	a.mux.HandleFunc("/v1/permissions/", a.handlePermissionResource)
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/profiles", a.handleProfiles)
	a.mux.HandleFunc("/v1/profiles/", a.handleProfileResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return a, nil
}

// Handler returns the fully wrapped handler for the server. Order matters:
// metrics outermost, then request id and logging, hardening, rate limit,
// authentication, the profile gate, and the write-audit recorder closest to
// the routes.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.profileGate(a.auditWrites(a.mux)))
	h = RateLimit(h, 20, 10)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(SecurityHeaders(h))
	h = RequestID(LoggingJSON(h))
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "user-management",
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
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "user-management",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorResponse{
		Error:     msg,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// respondError is writeError without a request in hand.
func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

type guardCheck func(context.Context, identity.Identity) (bool, error)

// requireGuard answers false (and writes the response) unless the caller
// passes the predicate.
func (a *API) requireGuard(w http.ResponseWriter, r *http.Request, check guardCheck, denied string) (identity.Identity, bool) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return identity.Identity{}, false
	}
	allowed, err := check(r.Context(), ident)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authorization check failed")
		return identity.Identity{}, false
	}
	if !allowed {
		writeError(w, r, http.StatusForbidden, denied)
		return identity.Identity{}, false
	}
	return ident, true
}

func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	return a.requireGuard(w, r, a.guard.IsAdmin, "admin role required")
}

// requireUserManager gates the profile routes: admin role or the
// users.manage permission.
func (a *API) requireUserManager(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	return a.requireGuard(w, r, a.guard.CanManageUsers, "user management access required")
}

// requireRoleManager gates the role routes: super_admin role or the
// roles.manage permission.
func (a *API) requireRoleManager(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	return a.requireGuard(w, r, a.guard.CanManageRoles, "role management access required")
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, rbac.ErrSystemRole):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "rbac operation failed")
	}
}
