package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/activity"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/audit"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/identity"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/obs"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/passreset"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/rbac"
)

const tokenTTL = 15 * time.Minute

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token             string    `json:"token"`
	ExpiresAt         time.Time `json:"expires_at"`
	MustResetPassword bool      `json:"must_reset_password,omitempty"`
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
	email := identity.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	acct, err := a.accounts.FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	profile, profileErr := a.store.Profiles(r.Context()).FindByUser(r.Context(), acct.ID)
	if profileErr != nil && !errors.Is(profileErr, rbac.ErrNotFound) {
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}
	now := timeNow()
	if profile != nil && profile.LockedUntil != nil && profile.LockedUntil.After(now) {
		writeError(w, r, http.StatusForbidden, "account temporarily locked")
		return
	}

	if err := identity.VerifyPassword(acct.PasswordHash, req.Password); err != nil {
		if profile != nil {
			if locked, lockErr := a.service.RecordFailedLogin(r.Context(), profile.ID); lockErr == nil && locked {
				obs.LogEvent(map[string]any{
					"level":      "warn",
					"event":      "account_locked",
					"profile_id": profile.ID,
				})
			}
		}
		a.auditor.Record(r.Context(), audit.Entry{
			ActorID:    acct.ID,
			ActorEmail: acct.Email,
			Action:     "login",
			IPAddress:  clientIP(r),
			UserAgent:  r.UserAgent(),
			Success:    false,
			Error:      "invalid credentials",
		})
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if profile != nil && !profile.CanAuthorize(now) {
		writeError(w, r, http.StatusForbidden, rbac.ErrAccountBlocked.Error())
		return
	}

	token, err := identity.GenerateToken(acct, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	if profile != nil {
		if err := a.service.RecordLogin(r.Context(), profile.ID, clientIP(r)); err != nil {
			obs.LogEvent(map[string]any{
				"level": "error",
				"event": "record_login_failure",
				"error": err.Error(),
			})
		}
	}
	a.tracker.Track(r.Context(), activity.Event{
		UserID:    acct.ID,
		Category:  "login",
		IPAddress: clientIP(r),
	})
	a.auditor.Record(r.Context(), audit.Entry{
		ActorID:    acct.ID,
		ActorEmail: acct.Email,
		Action:     "login",
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
		Success:    true,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:             token,
		ExpiresAt:         time.Now().UTC().Add(tokenTTL),
		MustResetPassword: acct.MustResetPassword,
	})
}

type resetRequestBody struct {
	Email string `json:"email"`
}

// handleResetRequest always answers 202 so the endpoint cannot be used to
// enumerate registered addresses.
func (a *API) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetRequestBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := identity.NormalizeEmail(req.Email)
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	token, err := a.reset.CreateResetToken(r.Context(), email)
	switch {
	case err == nil:
		if err := a.reset.SendResetEmail(r.Context(), email, token); err != nil {
			obs.LogEvent(map[string]any{
				"level": "error",
				"event": "reset_email_send_failure",
				"error": err.Error(),
			})
		}
	case errors.Is(err, passreset.ErrUserNotFound), errors.Is(err, passreset.ErrStorageDegraded):
		// Same response either way.
	default:
		writeError(w, r, http.StatusInternalServerError, "reset request failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

type resetVerifyBody struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

func (a *API) handleResetVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetVerifyBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.reset.VerifyResetToken(r.Context(), req.Email, req.Token); err != nil {
		handleResetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "valid"})
}

type resetCompleteBody struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleResetComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetCompleteBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if err := a.reset.CompleteReset(r.Context(), req.Email, req.Token, req.NewPassword); err != nil {
		handleResetError(w, r, err)
		return
	}
	if acct, err := a.accounts.FindByEmail(r.Context(), identity.NormalizeEmail(req.Email)); err == nil {
		a.tracker.Track(r.Context(), activity.Event{
			UserID:    acct.ID,
			Category:  "password_reset",
			IPAddress: clientIP(r),
		})
		a.auditor.Record(r.Context(), audit.Entry{
			ActorID:    acct.ID,
			ActorEmail: acct.Email,
			Action:     "password_reset",
			IPAddress:  clientIP(r),
			Success:    true,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func handleResetError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, passreset.ErrUserNotFound),
		errors.Is(err, passreset.ErrNoToken),
		errors.Is(err, passreset.ErrInvalidToken):
		writeError(w, r, http.StatusBadRequest, "invalid or unknown reset token")
	case errors.Is(err, passreset.ErrExpiredToken):
		writeError(w, r, http.StatusBadRequest, "reset token expired")
	default:
		writeError(w, r, http.StatusInternalServerError, "reset operation failed")
	}
}

func trimPathSegment(path, prefix string) []string {
	return strings.Split(strings.Trim(strings.TrimPrefix(path, prefix), "/"), "/")
}
