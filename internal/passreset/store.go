package passreset

import (
	"context"
	"time"
)

// Token is a stored password-reset token. Only the SHA-256 digest of the
// plaintext token is persisted; the plaintext exists solely in the reset
// email. One row per account: a new request replaces the old token.
type Token struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenStore persists reset tokens keyed by account ID.
type TokenStore interface {
	// Upsert stores the token, replacing any existing token for the account.
	Upsert(ctx context.Context, token Token) error
	Find(ctx context.Context, userID string) (*Token, error)
	// Delete removes the account's token. Deleting a missing token returns
	// ErrNoToken.
	Delete(ctx context.Context, userID string) error
}
