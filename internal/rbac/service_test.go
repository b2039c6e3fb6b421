package rbac

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestServiceValidatesInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	if _, err := f.service.CreateOrganization(ctx, OrganizationParams{Name: "  ", Code: ""}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("create org: err = %v, want ErrInvalidInput", err)
	}
	if _, err := f.service.CreateRole(ctx, RoleParams{Name: "X", Code: "x", Level: 0}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("create role with bad level: err = %v, want ErrInvalidInput", err)
	}
	if _, err := f.service.CreatePermission(ctx, PermissionParams{
		ModuleID: f.module.ID, Code: "x", Name: "X", Action: Action("destroy"),
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("create permission with bad action: err = %v, want ErrInvalidInput", err)
	}
	if _, err := f.service.SetProfileStatus(ctx, f.profile.ID, ProfileStatus("frozen")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("set bad status: err = %v, want ErrInvalidInput", err)
	}
}

func TestServiceDuplicateCodesConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	if _, err := f.service.CreateOrganization(ctx, OrganizationParams{Name: "Other", Code: "acme"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate org code: err = %v, want ErrConflict", err)
	}
	if _, err := f.service.CreatePermission(ctx, PermissionParams{
		ModuleID: f.module.ID, Code: "finance.read", Name: "Dup", Action: ActionRead,
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate permission code: err = %v, want ErrConflict", err)
	}
}

func TestServiceSystemRoleUndeletable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	system, err := f.service.CreateRole(ctx, RoleParams{
		Name: "Super Admin", Code: RoleSuperAdmin, Level: LevelSuperAdmin, IsSystemRole: true,
	})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := f.service.DeleteRole(ctx, system.ID); !errors.Is(err, ErrSystemRole) {
		t.Fatalf("delete system role: err = %v, want ErrSystemRole", err)
	}
	if err := f.service.DeleteRole(ctx, f.role.ID); err != nil {
		t.Fatalf("delete ordinary role: %v", err)
	}
	if _, err := f.store.Roles(ctx).Find(ctx, f.role.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted role still present: err = %v", err)
	}
}

func TestServicePrimaryRoleDemotion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	second, err := f.service.CreateRole(ctx, RoleParams{Name: "Reviewer", Code: "reviewer", Level: LevelReviewer})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := f.service.AssignRole(ctx, f.profile.ID, second.ID, nil, true); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	assignments, err := f.store.Profiles(ctx).Assignments(ctx, f.profile.ID)
	if err != nil {
		t.Fatalf("assignments: %v", err)
	}
	var primaries int
	for _, a := range assignments {
		if a.IsPrimary {
			primaries++
			if a.RoleID != second.ID {
				t.Fatalf("primary = role %s, want %s", a.RoleID, second.ID)
			}
		}
	}
	if primaries != 1 {
		t.Fatalf("primaries = %d, want 1", primaries)
	}
}

func TestServiceFailedLoginLockout(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, fixedClock(base))

	for i := 0; i < defaultMaxFailedLogins-1; i++ {
		locked, err := f.service.RecordFailedLogin(ctx, f.profile.ID)
		if err != nil {
			t.Fatalf("failed login %d: %v", i, err)
		}
		if locked {
			t.Fatalf("locked after %d attempts, threshold is %d", i+1, defaultMaxFailedLogins)
		}
	}
	locked, err := f.service.RecordFailedLogin(ctx, f.profile.ID)
	if err != nil {
		t.Fatalf("final failed login: %v", err)
	}
	if !locked {
		t.Fatal("threshold attempt must lock")
	}

	profile := f.reload(t, ctx)
	if profile.LockedUntil == nil {
		t.Fatal("locked_until not set")
	}
	want := base.Add(defaultLockoutDuration)
	if !profile.LockedUntil.Equal(want) {
		t.Fatalf("locked_until = %v, want %v", profile.LockedUntil, want)
	}

	// A successful login clears the counter and the lock.
	if err := f.service.RecordLogin(ctx, f.profile.ID, "10.0.0.7"); err != nil {
		t.Fatalf("record login: %v", err)
	}
	profile = f.reload(t, ctx)
	if profile.FailedLoginAttempts != 0 || profile.LockedUntil != nil {
		t.Fatalf("login did not reset lock state: attempts=%d locked=%v",
			profile.FailedLoginAttempts, profile.LockedUntil)
	}
	if profile.LastLoginIP != "10.0.0.7" {
		t.Fatalf("last_login_ip = %q", profile.LastLoginIP)
	}
}

func TestServiceUnlockProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	until := time.Now().Add(time.Hour)
	attempts := 5
	if _, err := f.store.Profiles(ctx).Update(ctx, f.profile.ID, ProfileUpdate{
		FailedLoginAttempts: &attempts,
		LockedUntil:         &until,
	}); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := f.service.UnlockProfile(ctx, f.profile.ID); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	profile := f.reload(t, ctx)
	if profile.FailedLoginAttempts != 0 || profile.LockedUntil != nil {
		t.Fatalf("unlock left state: attempts=%d locked=%v", profile.FailedLoginAttempts, profile.LockedUntil)
	}
}

func TestServiceSoftDeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	deleter := "admin-1"
	if err := f.service.SoftDeleteProfile(ctx, f.profile.ID, &deleter); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	profile := f.reload(t, ctx)
	if !profile.IsDeleted || profile.DeletedAt == nil || profile.DeletedBy == nil || *profile.DeletedBy != deleter {
		t.Fatalf("soft delete state: %+v", profile)
	}

	// Deleted profiles drop out of tenant listings.
	listed, err := f.store.Profiles(ctx).ListByOrg(ctx, f.org.ID)
	if err != nil {
		t.Fatalf("list by org: %v", err)
	}
	for _, p := range listed {
		if p.ID == f.profile.ID {
			t.Fatal("soft-deleted profile still listed")
		}
	}

	if err := f.service.RestoreProfile(ctx, f.profile.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	profile = f.reload(t, ctx)
	if profile.IsDeleted || profile.DeletedAt != nil || profile.DeletedBy != nil {
		t.Fatalf("restore state: %+v", profile)
	}
	// Restore of an already-live profile is a not-found.
	if err := f.service.RestoreProfile(ctx, f.profile.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double restore: err = %v, want ErrNotFound", err)
	}
}

func TestServiceGrantProvenance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	granter := "admin-1"
	perm, err := f.service.CreatePermission(ctx, PermissionParams{
		ModuleID: f.module.ID, Code: "finance.approve", Name: "Approve finance", Action: ActionApprove,
	})
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if err := f.service.GrantPermission(ctx, f.role.ID, perm.ID, &granter); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// Re-granting the same edge is a no-op, not a conflict.
	if err := f.service.GrantPermission(ctx, f.role.ID, perm.ID, &granter); err != nil {
		t.Fatalf("idempotent grant: %v", err)
	}
	if err := f.service.RevokePermission(ctx, f.role.ID, perm.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := f.service.RevokePermission(ctx, f.role.ID, perm.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double revoke: err = %v, want ErrNotFound", err)
	}
}
