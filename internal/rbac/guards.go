package rbac

import (
	"context"
	"errors"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/identity"
)

// Ownable is implemented by resources that record a single owning account.
type Ownable interface {
	OwnerID() string
}

// OrganizationScoped is implemented by resources bound to a tenant.
type OrganizationScoped interface {
	OrganizationRef() string
}

// Guard exposes the reusable access predicates consumed by the HTTP layer.
// Every predicate denies unauthenticated callers and callers without a
// profile; there is no implicit grant.
type Guard struct {
	store    Store
	resolver *Resolver
}

// NewGuard constructs a Guard over the shared store and resolver.
func NewGuard(store Store, resolver *Resolver) (*Guard, error) {
	if store == nil || resolver == nil {
		return nil, errors.New("rbac: store and resolver are required")
	}
	return &Guard{store: store, resolver: resolver}, nil
}

// IsSuperAdmin reports whether the caller holds the super_admin role.
// Platform superusers pass as an emergency fallback.
func (g *Guard) IsSuperAdmin(ctx context.Context, ident identity.Identity) (bool, error) {
	if !ident.IsAuthenticated {
		return false, nil
	}
	if ident.IsSuperuser {
		return true, nil
	}
	return g.holdsRole(ctx, ident, RoleSuperAdmin)
}

// IsAdmin reports whether the caller holds the admin or super_admin role.
// Platform superusers and staff pass as an emergency fallback.
func (g *Guard) IsAdmin(ctx context.Context, ident identity.Identity) (bool, error) {
	if !ident.IsAuthenticated {
		return false, nil
	}
	if ident.IsSuperuser || ident.IsStaff {
		return true, nil
	}
	return g.holdsRole(ctx, ident, RoleSuperAdmin, RoleAdmin)
}

// HasPermission reports whether the caller holds the permission. The check
// runs through the status-aware resolver, so the profile gate applies even
// to super_admin holders.
func (g *Guard) HasPermission(ctx context.Context, ident identity.Identity, code string) (bool, error) {
	profile, ok, err := g.profileFor(ctx, ident)
	if err != nil || !ok {
		return false, err
	}
	return g.resolver.HasPermission(ctx, profile, code)
}

// HasModuleAccess reports whether the caller can see the module.
func (g *Guard) HasModuleAccess(ctx context.Context, ident identity.Identity, code string) (bool, error) {
	profile, ok, err := g.profileFor(ctx, ident)
	if err != nil || !ok {
		return false, err
	}
	return g.resolver.HasModuleAccess(ctx, profile, code)
}

// CanManageUsers allows admins and holders of the users.manage permission.
// Platform superusers and staff pass as an emergency fallback.
func (g *Guard) CanManageUsers(ctx context.Context, ident identity.Identity) (bool, error) {
	if !ident.IsAuthenticated {
		return false, nil
	}
	if ident.IsSuperuser || ident.IsStaff {
		return true, nil
	}
	ok, err := g.holdsRole(ctx, ident, RoleSuperAdmin, RoleAdmin)
	if err != nil || ok {
		return ok, err
	}
	return g.HasPermission(ctx, ident, PermManageUsers)
}

// CanManageRoles allows super admins and holders of the roles.manage
// permission. Platform superusers pass as an emergency fallback.
func (g *Guard) CanManageRoles(ctx context.Context, ident identity.Identity) (bool, error) {
	if !ident.IsAuthenticated {
		return false, nil
	}
	if ident.IsSuperuser {
		return true, nil
	}
	ok, err := g.holdsRole(ctx, ident, RoleSuperAdmin)
	if err != nil || ok {
		return ok, err
	}
	return g.HasPermission(ctx, ident, PermManageRoles)
}

// IsOwnerOrAdmin allows the recorded owner of a resource or a super admin.
func (g *Guard) IsOwnerOrAdmin(ctx context.Context, ident identity.Identity, resource Ownable) (bool, error) {
	if !ident.IsAuthenticated || resource == nil {
		return false, nil
	}
	super, err := g.IsSuperAdmin(ctx, ident)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}
	owner := resource.OwnerID()
	return owner != "" && owner == ident.ID, nil
}

// SameOrganization allows callers whose profile belongs to the resource's
// tenant, or a super admin.
func (g *Guard) SameOrganization(ctx context.Context, ident identity.Identity, resource OrganizationScoped) (bool, error) {
	if !ident.IsAuthenticated || resource == nil {
		return false, nil
	}
	super, err := g.IsSuperAdmin(ctx, ident)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}
	profile, ok, err := g.profileFor(ctx, ident)
	if err != nil || !ok {
		return false, err
	}
	org := resource.OrganizationRef()
	return org != "" && org == profile.OrganizationID, nil
}

func (g *Guard) holdsRole(ctx context.Context, ident identity.Identity, codes ...string) (bool, error) {
	profile, ok, err := g.profileFor(ctx, ident)
	if err != nil || !ok {
		return false, err
	}
	roles, err := g.store.Roles(ctx).ListForProfile(ctx, profile.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, role := range roles {
		if !role.IsActive {
			continue
		}
		for _, code := range codes {
			if role.Code == code {
				return true, nil
			}
		}
	}
	return false, nil
}

func (g *Guard) profileFor(ctx context.Context, ident identity.Identity) (*UserProfile, bool, error) {
	if !ident.IsAuthenticated || ident.ID == "" {
		return nil, false, nil
	}
	profile, err := g.store.Profiles(ctx).FindByUser(ctx, ident.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return profile, true, nil
}
