package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/identity"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/rbac"
)

// myProfile resolves the caller's profile or writes the error response.
func (a *API) myProfile(w http.ResponseWriter, r *http.Request) (*rbac.UserProfile, identity.Identity, bool) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, identity.Identity{}, false
	}
	profile, err := a.store.Profiles(r.Context()).FindByUser(r.Context(), ident.ID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "no profile for account")
			return nil, identity.Identity{}, false
		}
		writeError(w, r, http.StatusInternalServerError, "profile lookup failed")
		return nil, identity.Identity{}, false
	}
	return profile, ident, true
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	profile, ident, ok := a.myProfile(w, r)
	if !ok {
		return
	}
	acct, err := a.accounts.Find(r.Context(), ident.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "account lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": acct,
		"profile": profile,
	})
}

func (a *API) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	profile, _, ok := a.myProfile(w, r)
	if !ok {
		return
	}
	codes, err := a.resolver.AllPermissions(r.Context(), profile)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "permission resolution failed")
		return
	}
	if codes == nil {
		codes = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": codes})
}

func (a *API) handleMyModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	profile, _, ok := a.myProfile(w, r)
	if !ok {
		return
	}
	codes, err := a.resolver.AllModules(r.Context(), profile)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "module resolution failed")
		return
	}
	if codes == nil {
		codes = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": codes})
}

func (a *API) handleMyActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	events, err := a.tracker.Recent(r.Context(), ident.ID, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "activity lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
