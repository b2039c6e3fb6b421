package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("identity: not found")
	ErrConflict     = errors.New("identity: already exists")
	ErrInvalidInput = errors.New("identity: invalid input")
)

// Identity is the resolved caller as seen by the authorization layer.
// IsSuperuser and IsStaff are platform-level emergency fallbacks that exist
// independently of RBAC roles.
type Identity struct {
	ID              string
	Email           string
	IsAuthenticated bool
	IsSuperuser     bool
	IsStaff         bool
}

// Account is the persisted authentication record backing an Identity.
type Account struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	IsSuperuser  bool       `json:"is_superuser"`
	IsStaff      bool       `json:"is_staff"`
	IsVerified   bool       `json:"is_verified"`

	// Password lifecycle tracking.
	IsFirstLogin          bool       `json:"is_first_login"`
	MustResetPassword     bool       `json:"must_reset_password"`
	TempPasswordCreatedAt *time.Time `json:"temp_password_created_at,omitempty"`
	LastPasswordChange    *time.Time `json:"last_password_change,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity projects the account into the caller view used by guards.
func (a *Account) Identity() Identity {
	if a == nil {
		return Identity{}
	}
	return Identity{
		ID:              a.ID,
		Email:           a.Email,
		IsAuthenticated: true,
		IsSuperuser:     a.IsSuperuser,
		IsStaff:         a.IsStaff,
	}
}

// AccountStore manages authentication records.
type AccountStore interface {
	Create(ctx context.Context, acct *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
	// SetMustReset flags the bare account when no richer reset state can be
	// stored. Degrade path, not the primary token flow.
	SetMustReset(ctx context.Context, id string, at time.Time) error
	// ClearResetState lifts the must-reset flag and records the password
	// change time. Safe to call repeatedly.
	ClearResetState(ctx context.Context, id string, at time.Time) error
}

// NormalizeEmail lower-cases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// FromContext extracts the authenticated identity from the context.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || !v.IsAuthenticated {
		return Identity{}, false
	}
	return v, true
}
