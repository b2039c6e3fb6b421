package rbac

import "time"

// Role codes with hardwired platform semantics.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
)

// Permission codes honored by the composite management guards, so management
// can be delegated without handing out an admin role.
const (
	PermManageUsers = "users.manage"
	PermManageRoles = "roles.manage"
)

// Role levels, 1 = highest privilege.
const (
	LevelSuperAdmin = 1
	LevelAdmin      = 2
	LevelManager    = 3
	LevelEngineer   = 4
	LevelReviewer   = 5
	LevelViewer     = 6
)

// ProfileStatus gates every authorization decision for a profile.
type ProfileStatus string

const (
	StatusActive    ProfileStatus = "active"
	StatusInactive  ProfileStatus = "inactive"
	StatusSuspended ProfileStatus = "suspended"
	StatusPending   ProfileStatus = "pending"
)

// Valid reports whether the status is one of the known values.
func (s ProfileStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusPending:
		return true
	}
	return false
}

// Action is the kind of operation a permission allows within a module.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionExport  Action = "export"
	ActionImport  Action = "import"
	ActionExecute Action = "execute"
)

// Valid reports whether the action is part of the catalog.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete,
		ActionApprove, ActionExport, ActionImport, ActionExecute:
		return true
	}
	return false
}

// Organization is the tenant boundary. Organizations are deactivated, never
// hard-deleted, because profiles and roles reference them.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`

	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`

	// Per-tenant object storage configuration.
	StorageBucket string `json:"storage_bucket,omitempty"`
	StorageRegion string `json:"storage_region,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Module is a gated feature area of the application.
type Module struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	Icon        string    `json:"icon,omitempty"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a fine-grained action right scoped to a module. Codes are
// globally unique so a grant can never be ambiguous.
type Permission struct {
	ID          string    `json:"id"`
	ModuleID    string    `json:"module_id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Action      Action    `json:"action"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a named privilege bundle. Module access and permissions are two
// independent grant axes: a role may see a module without holding write
// permissions inside it.
type Role struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	Description  string    `json:"description,omitempty"`
	Level        int       `json:"level"`
	IsActive     bool      `json:"is_active"`
	IsSystemRole bool      `json:"is_system_role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RolePermission links a role to a permission with grant provenance.
// GrantedBy is nil when the granting account has been deleted.
type RolePermission struct {
	ID           string    `json:"id"`
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	GrantedBy    *string   `json:"granted_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RoleModule links a role to a module with grant provenance.
type RoleModule struct {
	ID        string    `json:"id"`
	RoleID    string    `json:"role_id"`
	ModuleID  string    `json:"module_id"`
	GrantedBy *string   `json:"granted_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserProfile is the authorization identity bound 1:1 to an account in the
// identity store.
type UserProfile struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	OrganizationID string        `json:"organization_id"`
	Status         ProfileStatus `json:"status"`
	IsMFAEnabled   bool          `json:"is_mfa_enabled"`

	EmployeeID string            `json:"employee_id,omitempty"`
	Department string            `json:"department,omitempty"`
	JobTitle   string            `json:"job_title,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ManagerID  *string           `json:"manager_id,omitempty"`

	LastLoginIP         string     `json:"last_login_ip,omitempty"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`

	MustChangePassword bool `json:"must_change_password"`

	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *string    `json:"deleted_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanAuthorize reports whether the profile may pass any permission or module
// check at the given instant. The status gate runs before role resolution,
// so a suspended super_admin still fails closed.
func (p *UserProfile) CanAuthorize(now time.Time) bool {
	if p == nil {
		return false
	}
	if p.IsDeleted {
		return false
	}
	if p.Status != StatusActive {
		return false
	}
	if p.LockedUntil != nil && p.LockedUntil.After(now) {
		return false
	}
	return true
}

// UserRole assigns a role to a profile. At most one assignment per profile
// should carry IsPrimary; the flag is informational and not DB-enforced.
type UserRole struct {
	ID         string    `json:"id"`
	ProfileID  string    `json:"profile_id"`
	RoleID     string    `json:"role_id"`
	AssignedBy *string   `json:"assigned_by,omitempty"`
	IsPrimary  bool      `json:"is_primary"`
	CreatedAt  time.Time `json:"created_at"`
}
