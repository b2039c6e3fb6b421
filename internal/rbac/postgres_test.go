package rbac

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewPGStore(db), mock
}

func TestPGOrganizationFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`select .+ from organizations where id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Organizations(context.Background()).Find(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGPermissionHasActiveGrant(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`select exists`).
		WithArgs("finance.read", "role-a", "role-b").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.Permissions(context.Background()).
		HasActiveGrant(context.Background(), []string{"role-a", "role-b"}, "finance.read")
	if err != nil {
		t.Fatalf("has active grant: %v", err)
	}
	if !ok {
		t.Fatal("expected grant")
	}
}

func TestPGPermissionHasActiveGrantNoRoles(t *testing.T) {
	store, _ := newMockStore(t)

	// No roles short-circuits without touching the database.
	ok, err := store.Permissions(context.Background()).
		HasActiveGrant(context.Background(), nil, "finance.read")
	if err != nil {
		t.Fatalf("has active grant: %v", err)
	}
	if ok {
		t.Fatal("no roles must mean no grant")
	}
}

func TestPGProfileUpdateBuildsPartialSet(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	status := StatusSuspended

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "organization_id", "status", "is_mfa_enabled",
		"employee_id", "department", "job_title", "metadata", "manager_id",
		"last_login_ip", "last_login_at", "failed_login_attempts", "locked_until",
		"must_change_password", "is_deleted", "deleted_at", "deleted_by", "created_at", "updated_at",
	}).AddRow(
		"prof-1", "user-1", "org-1", "suspended", false,
		"", "", "", []byte(`{}`), nil,
		"", nil, 0, nil,
		false, false, nil, nil, now, now,
	)

	mock.ExpectQuery(`update user_profiles set updated_at = now\(\), status = \$2\s+where id = \$1`).
		WithArgs("prof-1", "suspended").
		WillReturnRows(rows)

	profile, err := store.Profiles(context.Background()).
		Update(context.Background(), "prof-1", ProfileUpdate{Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if profile.Status != StatusSuspended {
		t.Fatalf("status = %s, want suspended", profile.Status)
	}
}

func TestPGRoleRevokePermissionNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`delete from role_permissions`).
		WithArgs("role-1", "perm-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Roles(context.Background()).
		RevokePermission(context.Background(), "role-1", "perm-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGProfileSoftDeleteAffectsRow(t *testing.T) {
	store, mock := newMockStore(t)
	deleter := "admin-1"
	at := time.Now().UTC()
	mock.ExpectExec(`update user_profiles\s+set is_deleted = true`).
		WithArgs("prof-1", at, &deleter).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Profiles(context.Background()).
		SoftDelete(context.Background(), "prof-1", &deleter, at); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
}
