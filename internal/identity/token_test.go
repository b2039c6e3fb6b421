package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("USERMGMT_AUTH_SECRET", "token-test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndParseToken(t *testing.T) {
	setSecret(t)

	acct := &Account{
		ID:          "acct-1",
		Email:       "ops@example.com",
		IsSuperuser: true,
	}
	signed, err := GenerateToken(acct, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(signed)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Fatalf("subject = %q, want acct-1", claims.Subject)
	}
	if claims.Email != "ops@example.com" {
		t.Fatalf("email = %q", claims.Email)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti claim")
	}

	ident := claims.Identity()
	if !ident.IsAuthenticated || !ident.IsSuperuser || ident.ID != "acct-1" {
		t.Fatalf("identity projection wrong: %+v", ident)
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	setSecret(t)

	signed, err := GenerateToken(&Account{ID: "acct-1", Email: "a@b.c"}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	tampered := signed[:len(signed)-2] + "xx"
	if _, err := ParseAndValidate(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	if _, err := ParseAndValidate(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token err = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	setSecret(t)

	signed, err := GenerateToken(&Account{ID: "acct-1", Email: "a@b.c"}, time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	t.Setenv("USERMGMT_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken(&Account{ID: "acct-1"}, time.Minute); err == nil {
		t.Fatal("expected error without a configured secret")
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("hunter2-long-enough")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "hunter2-long-enough" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := VerifyPassword(hash, "hunter2-long-enough"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ops@Example.COM "); got != "ops@example.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}

func TestMemoryAccountStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAccountStore()

	acct := &Account{ID: "acct-1", Email: "ops@example.com", PasswordHash: "x"}
	if err := store.Create(ctx, acct); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dup := &Account{ID: "acct-2", Email: "ops@example.com", PasswordHash: "y"}
	if err := store.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email err = %v, want ErrConflict", err)
	}

	found, err := store.FindByEmail(ctx, "ops@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if found.ID != "acct-1" {
		t.Fatalf("found %q, want acct-1", found.ID)
	}
	if _, err := store.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing email err = %v, want ErrNotFound", err)
	}

	now := time.Now().UTC()
	if err := store.SetMustReset(ctx, "acct-1", now); err != nil {
		t.Fatalf("SetMustReset: %v", err)
	}
	found, _ = store.Find(ctx, "acct-1")
	if !found.MustResetPassword {
		t.Fatal("expected must-reset flag after SetMustReset")
	}

	if err := store.UpdatePassword(ctx, "acct-1", "newhash", now); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if err := store.ClearResetState(ctx, "acct-1", now); err != nil {
		t.Fatalf("ClearResetState: %v", err)
	}
	found, _ = store.Find(ctx, "acct-1")
	if found.PasswordHash != "newhash" || found.MustResetPassword {
		t.Fatalf("reset state not cleared: %+v", found)
	}
	if found.LastPasswordChange == nil {
		t.Fatal("expected last password change to be recorded")
	}
	if strings.TrimSpace(found.PasswordHash) == "" {
		t.Fatal("password hash missing")
	}
}
