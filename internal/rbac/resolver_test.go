package rbac

import (
	"context"
	"testing"
	"time"
)

type fixture struct {
	store    *MemoryStore
	resolver *Resolver
	service  *Service

	org     *Organization
	module  *Module
	perm    *Permission
	role    *Role
	profile *UserProfile
}

// newFixture builds an org with one module ("finance"), one read permission
// on it, one engineer role holding both grants, and one active profile with
// the role assigned.
func newFixture(t *testing.T, now func() time.Time) *fixture {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore(WithMemoryClock(now))
	resolver, err := NewResolver(store, WithResolverClock(now))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	service, err := NewService(store, WithClock(now))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	org, err := service.CreateOrganization(ctx, OrganizationParams{Name: "Acme", Code: "acme"})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	module, err := service.CreateModule(ctx, ModuleParams{Name: "Finance", Code: "finance"})
	if err != nil {
		t.Fatalf("create module: %v", err)
	}
	perm, err := service.CreatePermission(ctx, PermissionParams{
		ModuleID: module.ID, Code: "finance.read", Name: "Read finance", Action: ActionRead,
	})
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	role, err := service.CreateRole(ctx, RoleParams{Name: "Engineer", Code: "engineer", Level: LevelEngineer})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := service.GrantPermission(ctx, role.ID, perm.ID, nil); err != nil {
		t.Fatalf("grant permission: %v", err)
	}
	if err := service.GrantModule(ctx, role.ID, module.ID, nil); err != nil {
		t.Fatalf("grant module: %v", err)
	}
	profile, err := service.CreateProfile(ctx, ProfileParams{UserID: "user-1", OrganizationID: org.ID})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := service.AssignRole(ctx, profile.ID, role.ID, nil, true); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	return &fixture{
		store: store, resolver: resolver, service: service,
		org: org, module: module, perm: perm, role: role, profile: profile,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func (f *fixture) reload(t *testing.T, ctx context.Context) *UserProfile {
	t.Helper()
	profile, err := f.store.Profiles(ctx).Find(ctx, f.profile.ID)
	if err != nil {
		t.Fatalf("reload profile: %v", err)
	}
	return profile
}

func TestResolverGrantedThroughRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	ok, err := f.resolver.HasPermission(ctx, f.profile, "finance.read")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if !ok {
		t.Fatal("expected permission granted through assigned role")
	}

	ok, err = f.resolver.HasModuleAccess(ctx, f.profile, "finance")
	if err != nil {
		t.Fatalf("has module access: %v", err)
	}
	if !ok {
		t.Fatal("expected module access granted through assigned role")
	}
}

func TestResolverDeniesUnknownAndEmptyCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	for _, code := range []string{"", "nonexistent.permission"} {
		ok, err := f.resolver.HasPermission(ctx, f.profile, code)
		if err != nil {
			t.Fatalf("has permission %q: %v", code, err)
		}
		if ok {
			t.Fatalf("expected %q denied", code)
		}
	}
}

func TestResolverDeniesProfileWithoutRoles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	bare, err := f.service.CreateProfile(ctx, ProfileParams{UserID: "user-2", OrganizationID: f.org.ID})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	ok, err := f.resolver.HasPermission(ctx, bare, "finance.read")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if ok {
		t.Fatal("profile with zero roles must hold nothing")
	}
}

func TestResolverSuperAdminBypass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	super, err := f.service.CreateRole(ctx, RoleParams{
		Name: "Super Admin", Code: RoleSuperAdmin, Level: LevelSuperAdmin, IsSystemRole: true,
	})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	profile, err := f.service.CreateProfile(ctx, ProfileParams{UserID: "root-user", OrganizationID: f.org.ID})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := f.service.AssignRole(ctx, profile.ID, super.ID, nil, true); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	// The bypass grants even codes that were never registered.
	ok, err := f.resolver.HasPermission(ctx, profile, "never.registered")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if !ok {
		t.Fatal("super_admin must pass every permission check")
	}
	ok, err = f.resolver.HasModuleAccess(ctx, profile, "ghost-module")
	if err != nil {
		t.Fatalf("has module access: %v", err)
	}
	if !ok {
		t.Fatal("super_admin must pass every module check")
	}

	// Deactivating the super_admin role disables the bypass.
	if err := f.service.SetRoleActive(ctx, super.ID, false); err != nil {
		t.Fatalf("deactivate role: %v", err)
	}
	ok, err = f.resolver.HasPermission(ctx, profile, "never.registered")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if ok {
		t.Fatal("inactive super_admin role must not bypass")
	}
}

func TestResolverStatusGateBeatsSuperAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	super, err := f.service.CreateRole(ctx, RoleParams{
		Name: "Super Admin", Code: RoleSuperAdmin, Level: LevelSuperAdmin, IsSystemRole: true,
	})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := f.service.AssignRole(ctx, f.profile.ID, super.ID, nil, false); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if _, err := f.service.SetProfileStatus(ctx, f.profile.ID, StatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	profile := f.reload(t, ctx)
	ok, err := f.resolver.HasPermission(ctx, profile, "finance.read")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if ok {
		t.Fatal("suspended super_admin must fail the status gate")
	}
}

func TestResolverLockoutGate(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, fixedClock(base))

	until := base.Add(10 * time.Minute)
	if _, err := f.store.Profiles(ctx).Update(ctx, f.profile.ID, ProfileUpdate{LockedUntil: &until}); err != nil {
		t.Fatalf("lock profile: %v", err)
	}
	profile := f.reload(t, ctx)

	ok, err := f.resolver.HasPermission(ctx, profile, "finance.read")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if ok {
		t.Fatal("locked profile must be denied")
	}

	// After the lock expires the same row passes again.
	later, err := NewResolver(f.store, WithResolverClock(fixedClock(until.Add(time.Second))))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	ok, err = later.HasPermission(ctx, profile, "finance.read")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if !ok {
		t.Fatal("expired lock must not deny")
	}
}

func TestResolverDeactivationMasksGrants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	if err := f.service.SetPermissionActive(ctx, f.perm.ID, false); err != nil {
		t.Fatalf("deactivate permission: %v", err)
	}
	ok, err := f.resolver.HasPermission(ctx, f.profile, "finance.read")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if ok {
		t.Fatal("inactive permission must be masked")
	}

	if err := f.service.SetModuleActive(ctx, f.module.ID, false); err != nil {
		t.Fatalf("deactivate module: %v", err)
	}
	ok, err = f.resolver.HasModuleAccess(ctx, f.profile, "finance")
	if err != nil {
		t.Fatalf("has module access: %v", err)
	}
	if ok {
		t.Fatal("inactive module must be masked")
	}

	// Reactivating restores access without re-granting.
	if err := f.service.SetPermissionActive(ctx, f.perm.ID, true); err != nil {
		t.Fatalf("reactivate permission: %v", err)
	}
	ok, err = f.resolver.HasPermission(ctx, f.profile, "finance.read")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if !ok {
		t.Fatal("reactivated permission must grant again")
	}
}

func TestResolverSoftDeletedProfileDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	if err := f.service.SoftDeleteProfile(ctx, f.profile.ID, nil); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	profile := f.reload(t, ctx)
	ok, err := f.resolver.HasPermission(ctx, profile, "finance.read")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if ok {
		t.Fatal("soft-deleted profile must be denied")
	}
	perms, err := f.resolver.AllPermissions(ctx, profile)
	if err != nil {
		t.Fatalf("all permissions: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("soft-deleted profile must have no effective permissions, got %v", perms)
	}
}

func TestResolverUnionDeduplicatesAcrossRoles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	// Second role carrying the same permission plus one extra.
	extra, err := f.service.CreatePermission(ctx, PermissionParams{
		ModuleID: f.module.ID, Code: "finance.export", Name: "Export finance", Action: ActionExport,
	})
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	reviewer, err := f.service.CreateRole(ctx, RoleParams{Name: "Reviewer", Code: "reviewer", Level: LevelReviewer})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	for _, permID := range []string{f.perm.ID, extra.ID} {
		if err := f.service.GrantPermission(ctx, reviewer.ID, permID, nil); err != nil {
			t.Fatalf("grant permission: %v", err)
		}
	}
	if err := f.service.AssignRole(ctx, f.profile.ID, reviewer.ID, nil, false); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	perms, err := f.resolver.AllPermissions(ctx, f.profile)
	if err != nil {
		t.Fatalf("all permissions: %v", err)
	}
	want := []string{"finance.export", "finance.read"}
	if len(perms) != len(want) {
		t.Fatalf("permissions = %v, want %v", perms, want)
	}
	for i := range want {
		if perms[i] != want[i] {
			t.Fatalf("permissions = %v, want %v", perms, want)
		}
	}
}

func TestResolverRevokeRemovesAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now)

	if err := f.service.RevokePermission(ctx, f.role.ID, f.perm.ID); err != nil {
		t.Fatalf("revoke permission: %v", err)
	}
	ok, err := f.resolver.HasPermission(ctx, f.profile, "finance.read")
	if err != nil {
		t.Fatalf("has permission: %v", err)
	}
	if ok {
		t.Fatal("revoked permission must be denied")
	}

	// Module access rides a separate grant axis and survives.
	ok, err = f.resolver.HasModuleAccess(ctx, f.profile, "finance")
	if err != nil {
		t.Fatalf("has module access: %v", err)
	}
	if !ok {
		t.Fatal("module grant must be independent of permission grants")
	}
}
