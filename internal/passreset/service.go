// Package passreset implements the password-reset token lifecycle: issue a
// single-use token, deliver it by email, verify it, and complete the reset.
package passreset

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/identity"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/mail"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/obs"
)

const (
	defaultTokenTTL = 24 * time.Hour
	tokenBytes      = 64
)

var (
	// ErrUserNotFound indicates no account exists for the email.
	ErrUserNotFound = errors.New("passreset: user not found")
	// ErrNoToken indicates no reset token is outstanding for the account.
	ErrNoToken = errors.New("passreset: no token")
	// ErrInvalidToken indicates the presented token does not match.
	ErrInvalidToken = errors.New("passreset: invalid token")
	// ErrExpiredToken indicates a matching token whose validity window has
	// passed. The stored token is purged as a side effect.
	ErrExpiredToken = errors.New("passreset: expired token")
	// ErrStorageDegraded indicates the token could not be stored; the
	// account has been flagged to force a password change instead.
	ErrStorageDegraded = errors.New("passreset: token storage degraded")
)

// Service drives the reset-token lifecycle.
type Service struct {
	accounts identity.AccountStore
	tokens   TokenStore
	mailer   mail.Mailer

	now func() time.Time
	ttl time.Duration

	resetURL string
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTokenTTL overrides the token validity window.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithResetURL sets the base URL embedded in reset emails.
func WithResetURL(url string) Option {
	return func(s *Service) { s.resetURL = url }
}

// WithMailer sets the delivery backend. Defaults to mail.Noop.
func WithMailer(m mail.Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// NewService constructs a Service.
func NewService(accounts identity.AccountStore, tokens TokenStore, opts ...Option) (*Service, error) {
	if accounts == nil || tokens == nil {
		return nil, errors.New("passreset: account and token stores are required")
	}
	s := &Service{
		accounts: accounts,
		tokens:   tokens,
		mailer:   mail.Noop{},
		now:      time.Now,
		ttl:      defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateResetToken issues a fresh token for the account behind the email and
// returns the plaintext exactly once. Any previous token is replaced. If the
// token cannot be stored the account is flagged to force a password change
// and ErrStorageDegraded is returned.
func (s *Service) CreateResetToken(ctx context.Context, email string) (string, error) {
	acct, err := s.lookup(ctx, email)
	if err != nil {
		return "", err
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(raw)

	now := s.now().UTC()
	token := Token{
		UserID:    acct.ID,
		TokenHash: hashToken(plaintext),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.tokens.Upsert(ctx, token); err != nil {
		obs.LogEvent(map[string]any{
			"level":   "error",
			"event":   "reset_token_storage_failure",
			"user_id": acct.ID,
			"error":   err.Error(),
		})
		if fallbackErr := s.accounts.SetMustReset(ctx, acct.ID, now); fallbackErr != nil {
			return "", fmt.Errorf("%w: fallback failed: %v", ErrStorageDegraded, fallbackErr)
		}
		return "", ErrStorageDegraded
	}
	return plaintext, nil
}

// VerifyResetToken checks the presented token against the stored digest.
// The digest comparison runs first: a mismatch fails with ErrInvalidToken
// and mutates nothing. Only a matching token past its window is purged
// before ErrExpiredToken is returned, so a second attempt with it reports
// ErrNoToken.
func (s *Service) VerifyResetToken(ctx context.Context, email, plaintext string) error {
	acct, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	token, err := s.tokens.Find(ctx, acct.ID)
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return ErrNoToken
		}
		return err
	}
	presented := hashToken(plaintext)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(token.TokenHash)) != 1 {
		return ErrInvalidToken
	}
	if s.now().UTC().After(token.ExpiresAt) {
		if err := s.tokens.Delete(ctx, acct.ID); err != nil && !errors.Is(err, ErrNoToken) {
			return err
		}
		return ErrExpiredToken
	}
	return nil
}

// CompleteReset verifies the token, sets the new password, and clears the
// token and any forced-reset flags on the account.
func (s *Service) CompleteReset(ctx context.Context, email, plaintext, newPassword string) error {
	if err := s.VerifyResetToken(ctx, email, plaintext); err != nil {
		return err
	}
	acct, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	hash, err := identity.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	if err := s.accounts.UpdatePassword(ctx, acct.ID, hash, now); err != nil {
		return err
	}
	return s.clear(ctx, acct.ID, now)
}

// ClearResetToken drops any outstanding token and forced-reset flags for the
// account. Clearing when nothing is outstanding is not an error.
func (s *Service) ClearResetToken(ctx context.Context, userID string) error {
	return s.clear(ctx, userID, s.now().UTC())
}

func (s *Service) clear(ctx context.Context, userID string, at time.Time) error {
	if err := s.tokens.Delete(ctx, userID); err != nil && !errors.Is(err, ErrNoToken) {
		return err
	}
	if err := s.accounts.ClearResetState(ctx, userID, at); err != nil && !errors.Is(err, identity.ErrNotFound) {
		return err
	}
	return nil
}

// SendResetEmail delivers the reset link. Delivery failure is reported to
// the caller but the token stays valid; the user can retry the request.
func (s *Service) SendResetEmail(ctx context.Context, email, plaintext string) error {
	link := plaintext
	if s.resetURL != "" {
		link = s.resetURL + "?token=" + plaintext
	}
	textBody := fmt.Sprintf(
		"A password reset was requested for your account.\r\n\r\n"+
			"Use the link below within %s to choose a new password:\r\n\r\n%s\r\n\r\n"+
			"If you did not request this, you can ignore this message.\r\n",
		s.ttl, link)
	htmlBody := fmt.Sprintf(
		"<p>A password reset was requested for your account.</p>"+
			"<p>Use <a href=%q>this link</a> within %s to choose a new password.</p>"+
			"<p>If you did not request this, you can ignore this message.</p>",
		link, s.ttl)
	if err := s.mailer.Send(email, "Password reset", textBody, htmlBody); err != nil {
		obs.LogEvent(map[string]any{
			"level": "error",
			"event": "reset_email_failure",
			"error": err.Error(),
		})
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, email string) (*identity.Account, error) {
	acct, err := s.accounts.FindByEmail(ctx, identity.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return acct, nil
}

func hashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
