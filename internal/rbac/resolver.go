package rbac

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/obs"
)

// Resolver answers "can this profile do X" and "can this profile see module Y"
// without materializing the full grant set unless asked.
//
// Evaluation order is fixed: the profile gate (soft delete, status, lockout)
// runs first, then the super_admin bypass, then grant lookup. The gate wins
// over the bypass, so a suspended super_admin fails every check.
type Resolver struct {
	store Store
	now   func() time.Time
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver)

// WithResolverClock overrides the time source (useful for tests).
func WithResolverClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver constructs a Resolver.
func NewResolver(store Store, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("rbac: store is required")
	}
	r := &Resolver{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// HasPermission reports whether the profile holds the permission through any
// assigned role. A missing grant is a normal false result, never an error.
func (r *Resolver) HasPermission(ctx context.Context, profile *UserProfile, code string) (bool, error) {
	granted, err := r.check(ctx, profile, code, func(ctx context.Context, roleIDs []string) (bool, error) {
		return r.store.Permissions(ctx).HasActiveGrant(ctx, roleIDs, code)
	})
	if err == nil {
		obs.ObservePermissionCheck(granted)
	}
	return granted, err
}

// HasModuleAccess reports whether the profile can see the module through any
// assigned role.
func (r *Resolver) HasModuleAccess(ctx context.Context, profile *UserProfile, code string) (bool, error) {
	granted, err := r.check(ctx, profile, code, func(ctx context.Context, roleIDs []string) (bool, error) {
		return r.store.Modules(ctx).HasActiveGrant(ctx, roleIDs, code)
	})
	if err == nil {
		obs.ObservePermissionCheck(granted)
	}
	return granted, err
}

func (r *Resolver) check(ctx context.Context, profile *UserProfile, code string, lookup func(context.Context, []string) (bool, error)) (bool, error) {
	if code == "" {
		return false, nil
	}
	if !profile.CanAuthorize(r.now()) {
		return false, nil
	}
	roles, err := r.store.Roles(ctx).ListForProfile(ctx, profile.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if hasSuperAdmin(roles) {
		return true, nil
	}
	ids := roleIDs(roles)
	if len(ids) == 0 {
		return false, nil
	}
	granted, err := lookup(ctx, ids)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return granted, nil
}

// AllPermissions returns the deduplicated, sorted union of active permission
// codes across all assigned roles. A gated profile has none.
func (r *Resolver) AllPermissions(ctx context.Context, profile *UserProfile) ([]string, error) {
	return r.union(ctx, profile, func(ctx context.Context, roleIDs []string) ([]string, error) {
		return r.store.Permissions(ctx).ActiveCodesForRoles(ctx, roleIDs)
	})
}

// AllModules returns the deduplicated, sorted union of active module codes
// across all assigned roles.
func (r *Resolver) AllModules(ctx context.Context, profile *UserProfile) ([]string, error) {
	return r.union(ctx, profile, func(ctx context.Context, roleIDs []string) ([]string, error) {
		return r.store.Modules(ctx).ActiveCodesForRoles(ctx, roleIDs)
	})
}

func (r *Resolver) union(ctx context.Context, profile *UserProfile, lookup func(context.Context, []string) ([]string, error)) ([]string, error) {
	if !profile.CanAuthorize(r.now()) {
		return nil, nil
	}
	roles, err := r.store.Roles(ctx).ListForProfile(ctx, profile.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	ids := roleIDs(roles)
	if len(ids) == 0 {
		return nil, nil
	}
	codes, err := lookup(ctx, ids)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return dedupeSorted(codes), nil
}

func hasSuperAdmin(roles []*Role) bool {
	for _, role := range roles {
		if role.Code == RoleSuperAdmin && role.IsActive {
			return true
		}
	}
	return false
}

func roleIDs(roles []*Role) []string {
	ids := make([]string, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
	}
	return ids
}

func dedupeSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
