package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/audit"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/identity"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/rbac"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/auth/login",
	"/v1/auth/password-reset/request",
	"/v1/auth/password-reset/verify",
	"/v1/auth/password-reset/complete",
	"/",
}

// withAuth resolves the bearer token into an identity on the context.
// Public paths pass through unauthenticated.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := identity.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		ctx := identity.ContextWithIdentity(r.Context(), claims.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// profileGate rejects authenticated callers whose profile cannot authorize:
// soft-deleted, non-active status, or locked out. Callers without a profile
// pass; the per-check guards deny them anyway.
func (a *API) profileGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := identity.FromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		profile, err := a.store.Profiles(r.Context()).FindByUser(r.Context(), ident.ID)
		if err != nil {
			if errors.Is(err, rbac.ErrNotFound) {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, r, http.StatusInternalServerError, "profile lookup failed")
			return
		}
		if !profile.CanAuthorize(timeNow()) {
			writeError(w, r, http.StatusForbidden, rbac.ErrAccountBlocked.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// auditWrites records every mutating request under /v1/ with its outcome.
// The resource type is the first path segment after the version prefix.
func (a *API) auditWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/v1/") || strings.HasPrefix(r.URL.Path, "/v1/auth/") {
			next.ServeHTTP(w, r)
			return
		}

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		entry := audit.Entry{
			Action:       strings.ToLower(r.Method),
			ResourceType: resourceTypeFromPath(r.URL.Path),
			ResourceID:   resourceIDFromPath(r.URL.Path),
			IPAddress:    clientIP(r),
			UserAgent:    r.UserAgent(),
			Success:      sw.code < 400,
			Metadata: map[string]any{
				"path":       r.URL.Path,
				"status":     sw.code,
				"request_id": RequestIDFromContext(r.Context()),
			},
		}
		if !entry.Success {
			entry.Error = http.StatusText(sw.code)
		}
		if ident, ok := identity.FromContext(r.Context()); ok {
			entry.ActorID = ident.ID
			entry.ActorEmail = ident.Email
		}
		a.auditor.Record(r.Context(), entry)
	})
}

func resourceTypeFromPath(path string) string {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/v1/"), "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func resourceIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/v1/"), "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
