package rbac

import (
	"context"
	"time"
)

// Store describes persistence operations required by the RBAC subsystem.
type Store interface {
	Organizations(ctx context.Context) OrganizationStore
	Modules(ctx context.Context) ModuleStore
	Permissions(ctx context.Context) PermissionStore
	Roles(ctx context.Context) RoleStore
	Profiles(ctx context.Context) ProfileStore
}

// OrganizationStore manages tenant records.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	FindByCode(ctx context.Context, code string) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// ModuleStore manages the feature-area catalog.
type ModuleStore interface {
	Create(ctx context.Context, mod *Module) error
	Find(ctx context.Context, id string) (*Module, error)
	FindByCode(ctx context.Context, code string) (*Module, error)
	List(ctx context.Context) ([]*Module, error)
	SetActive(ctx context.Context, id string, active bool) error

	// HasActiveGrant reports whether any of the roles holds an active module
	// with the given code through role_modules.
	HasActiveGrant(ctx context.Context, roleIDs []string, code string) (bool, error)
	// ActiveCodesForRoles returns the deduplicated active module codes
	// reachable from the roles.
	ActiveCodesForRoles(ctx context.Context, roleIDs []string) ([]string, error)
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	Create(ctx context.Context, perm *Permission) error
	Find(ctx context.Context, id string) (*Permission, error)
	FindByCode(ctx context.Context, code string) (*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
	ListByModule(ctx context.Context, moduleID string) ([]*Permission, error)
	SetActive(ctx context.Context, id string, active bool) error

	// HasActiveGrant reports whether any of the roles holds an active
	// permission with the given code through role_permissions.
	HasActiveGrant(ctx context.Context, roleIDs []string, code string) (bool, error)
	// ActiveCodesForRoles returns the deduplicated active permission codes
	// reachable from the roles.
	ActiveCodesForRoles(ctx context.Context, roleIDs []string) ([]string, error)
}

// RoleStore manages roles and their grant edges.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByCode(ctx context.Context, code string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error

	GrantPermission(ctx context.Context, grant RolePermission) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error
	GrantModule(ctx context.Context, grant RoleModule) error
	RevokeModule(ctx context.Context, roleID, moduleID string) error

	// ListForProfile returns every role assigned to the profile, active or not.
	ListForProfile(ctx context.Context, profileID string) ([]*Role, error)
}

// ProfileUpdate carries optional field updates; nil means keep current value.
type ProfileUpdate struct {
	Status              *ProfileStatus
	IsMFAEnabled        *bool
	EmployeeID          *string
	Department          *string
	JobTitle            *string
	Metadata            map[string]string
	ManagerID           *string
	FailedLoginAttempts *int
	LockedUntil         *time.Time
	ClearLockedUntil    bool
	MustChangePassword  *bool
}

// ProfileStore manages authorization profiles and role assignments.
type ProfileStore interface {
	Create(ctx context.Context, profile *UserProfile) error
	Find(ctx context.Context, id string) (*UserProfile, error)
	FindByUser(ctx context.Context, userID string) (*UserProfile, error)
	ListByOrg(ctx context.Context, orgID string) ([]*UserProfile, error)
	Update(ctx context.Context, id string, upd ProfileUpdate) (*UserProfile, error)
	RecordLogin(ctx context.Context, id, ip string, at time.Time) error
	SoftDelete(ctx context.Context, id string, deletedBy *string, at time.Time) error
	Restore(ctx context.Context, id string) error

	AssignRole(ctx context.Context, assignment UserRole) error
	RevokeRole(ctx context.Context, profileID, roleID string) error
	Assignments(ctx context.Context, profileID string) ([]UserRole, error)
	// ClearPrimary demotes any current primary assignment for the profile.
	ClearPrimary(ctx context.Context, profileID string) error
}
