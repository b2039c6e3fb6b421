package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxFailedLogins = 5
	defaultLockoutDuration = 30 * time.Minute
)

// Service provides validated administrative operations over the RBAC store.
type Service struct {
	store Store
	now   func() time.Time

	maxFailedLogins int
	lockoutDuration time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLockoutPolicy overrides the failed-login threshold and lock duration.
func WithLockoutPolicy(maxAttempts int, duration time.Duration) ServiceOption {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxFailedLogins = maxAttempts
		}
		if duration > 0 {
			s.lockoutDuration = duration
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac: store is required")
	}
	s := &Service{
		store:           store,
		now:             time.Now,
		maxFailedLogins: defaultMaxFailedLogins,
		lockoutDuration: defaultLockoutDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OrganizationParams carries the fields accepted when creating a tenant.
type OrganizationParams struct {
	Name          string
	Code          string
	Description   string
	ContactName   string
	ContactEmail  string
	ContactPhone  string
	StorageBucket string
	StorageRegion string
}

// CreateOrganization registers a new tenant. Name and code must be unique.
func (s *Service) CreateOrganization(ctx context.Context, params OrganizationParams) (*Organization, error) {
	name := strings.TrimSpace(params.Name)
	code := strings.TrimSpace(params.Code)
	if name == "" || code == "" {
		return nil, fmt.Errorf("%w: organization name and code are required", ErrInvalidInput)
	}
	org := &Organization{
		Name:          name,
		Code:          code,
		Description:   strings.TrimSpace(params.Description),
		IsActive:      true,
		ContactName:   strings.TrimSpace(params.ContactName),
		ContactEmail:  strings.TrimSpace(strings.ToLower(params.ContactEmail)),
		ContactPhone:  strings.TrimSpace(params.ContactPhone),
		StorageBucket: strings.TrimSpace(params.StorageBucket),
		StorageRegion: strings.TrimSpace(params.StorageRegion),
	}
	if err := s.store.Organizations(ctx).Create(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// SetOrganizationActive flips the tenant's active flag. Organizations are
// never hard-deleted because profiles and roles reference them.
func (s *Service) SetOrganizationActive(ctx context.Context, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.Organizations(ctx).SetActive(ctx, id, active)
}

// ModuleParams carries the fields accepted when registering a feature area.
type ModuleParams struct {
	Name        string
	Code        string
	Description string
	Icon        string
	Order       int
}

// CreateModule registers a feature area in the catalog.
func (s *Service) CreateModule(ctx context.Context, params ModuleParams) (*Module, error) {
	name := strings.TrimSpace(params.Name)
	code := strings.TrimSpace(params.Code)
	if name == "" || code == "" {
		return nil, fmt.Errorf("%w: module name and code are required", ErrInvalidInput)
	}
	mod := &Module{
		Name:        name,
		Code:        code,
		Description: strings.TrimSpace(params.Description),
		IsActive:    true,
		Icon:        strings.TrimSpace(params.Icon),
		Order:       params.Order,
	}
	if err := s.store.Modules(ctx).Create(ctx, mod); err != nil {
		return nil, err
	}
	return mod, nil
}

// SetModuleActive flips the module's active flag. Deactivation masks every
// grant that references the module without touching the grant rows.
func (s *Service) SetModuleActive(ctx context.Context, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: module_id is required", ErrInvalidInput)
	}
	return s.store.Modules(ctx).SetActive(ctx, id, active)
}

// PermissionParams carries the fields accepted when registering a permission.
type PermissionParams struct {
	ModuleID    string
	Code        string
	Name        string
	Description string
	Action      Action
}

// CreatePermission registers an action right scoped to a module. The code is
// globally unique.
func (s *Service) CreatePermission(ctx context.Context, params PermissionParams) (*Permission, error) {
	moduleID := strings.TrimSpace(params.ModuleID)
	code := strings.TrimSpace(params.Code)
	name := strings.TrimSpace(params.Name)
	if moduleID == "" || code == "" || name == "" {
		return nil, fmt.Errorf("%w: module_id, code and name are required", ErrInvalidInput)
	}
	if !params.Action.Valid() {
		return nil, fmt.Errorf("%w: unsupported action %q", ErrInvalidInput, params.Action)
	}
	if _, err := s.store.Modules(ctx).Find(ctx, moduleID); err != nil {
		return nil, err
	}
	perm := &Permission{
		ModuleID:    moduleID,
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		Action:      params.Action,
		IsActive:    true,
	}
	if err := s.store.Permissions(ctx).Create(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// SetPermissionActive flips the permission's active flag.
func (s *Service) SetPermissionActive(ctx context.Context, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	return s.store.Permissions(ctx).SetActive(ctx, id, active)
}

// RoleParams carries the fields accepted when creating a role.
type RoleParams struct {
	Name         string
	Code         string
	Description  string
	Level        int
	IsSystemRole bool
}

// CreateRole registers a named privilege bundle.
func (s *Service) CreateRole(ctx context.Context, params RoleParams) (*Role, error) {
	name := strings.TrimSpace(params.Name)
	code := strings.TrimSpace(params.Code)
	if name == "" || code == "" {
		return nil, fmt.Errorf("%w: role name and code are required", ErrInvalidInput)
	}
	if params.Level < LevelSuperAdmin || params.Level > LevelViewer {
		return nil, fmt.Errorf("%w: role level must be between %d and %d", ErrInvalidInput, LevelSuperAdmin, LevelViewer)
	}
	role := &Role{
		Name:         name,
		Code:         code,
		Description:  strings.TrimSpace(params.Description),
		Level:        params.Level,
		IsActive:     true,
		IsSystemRole: params.IsSystemRole,
	}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// SetRoleActive flips the role's active flag.
func (s *Service) SetRoleActive(ctx context.Context, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).SetActive(ctx, id, active)
}

// DeleteRole removes a role. System roles are refused.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.Roles(ctx).Find(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return ErrSystemRole
	}
	return s.store.Roles(ctx).Delete(ctx, id)
}

// GrantPermission links a permission to a role, recording who granted it.
func (s *Service) GrantPermission(ctx context.Context, roleID, permissionID string, grantedBy *string) error {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return fmt.Errorf("%w: role_id and permission_id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).GrantPermission(ctx, RolePermission{
		RoleID:       roleID,
		PermissionID: permissionID,
		GrantedBy:    grantedBy,
	})
}

// RevokePermission removes a role-permission edge.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return fmt.Errorf("%w: role_id and permission_id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).RevokePermission(ctx, roleID, permissionID)
}

// GrantModule links a module to a role, recording who granted it.
func (s *Service) GrantModule(ctx context.Context, roleID, moduleID string, grantedBy *string) error {
	roleID = strings.TrimSpace(roleID)
	moduleID = strings.TrimSpace(moduleID)
	if roleID == "" || moduleID == "" {
		return fmt.Errorf("%w: role_id and module_id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).GrantModule(ctx, RoleModule{
		RoleID:    roleID,
		ModuleID:  moduleID,
		GrantedBy: grantedBy,
	})
}

// RevokeModule removes a role-module edge.
func (s *Service) RevokeModule(ctx context.Context, roleID, moduleID string) error {
	roleID = strings.TrimSpace(roleID)
	moduleID = strings.TrimSpace(moduleID)
	if roleID == "" || moduleID == "" {
		return fmt.Errorf("%w: role_id and module_id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).RevokeModule(ctx, roleID, moduleID)
}

// ProfileParams carries the fields accepted when creating a profile.
type ProfileParams struct {
	UserID         string
	OrganizationID string
	Status         ProfileStatus
	EmployeeID     string
	Department     string
	JobTitle       string
	ManagerID      *string
}

// CreateProfile binds an authorization profile to an account.
func (s *Service) CreateProfile(ctx context.Context, params ProfileParams) (*UserProfile, error) {
	userID := strings.TrimSpace(params.UserID)
	orgID := strings.TrimSpace(params.OrganizationID)
	if userID == "" || orgID == "" {
		return nil, fmt.Errorf("%w: user_id and organization_id are required", ErrInvalidInput)
	}
	status := params.Status
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unsupported status %q", ErrInvalidInput, status)
	}
	if _, err := s.store.Organizations(ctx).Find(ctx, orgID); err != nil {
		return nil, err
	}
	profile := &UserProfile{
		UserID:         userID,
		OrganizationID: orgID,
		Status:         status,
		EmployeeID:     strings.TrimSpace(params.EmployeeID),
		Department:     strings.TrimSpace(params.Department),
		JobTitle:       strings.TrimSpace(params.JobTitle),
		ManagerID:      params.ManagerID,
	}
	if err := s.store.Profiles(ctx).Create(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// SetProfileStatus updates the account status gate.
func (s *Service) SetProfileStatus(ctx context.Context, id string, status ProfileStatus) (*UserProfile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: profile_id is required", ErrInvalidInput)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unsupported status %q", ErrInvalidInput, status)
	}
	return s.store.Profiles(ctx).Update(ctx, id, ProfileUpdate{Status: &status})
}

// SoftDeleteProfile marks the profile deleted without removing the row.
func (s *Service) SoftDeleteProfile(ctx context.Context, id string, deletedBy *string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: profile_id is required", ErrInvalidInput)
	}
	return s.store.Profiles(ctx).SoftDelete(ctx, id, deletedBy, s.now().UTC())
}

// RestoreProfile lifts a soft delete.
func (s *Service) RestoreProfile(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: profile_id is required", ErrInvalidInput)
	}
	return s.store.Profiles(ctx).Restore(ctx, id)
}

// AssignRole assigns a role to a profile. A new primary assignment demotes
// any existing primary first; the flag stays informational otherwise.
func (s *Service) AssignRole(ctx context.Context, profileID, roleID string, assignedBy *string, isPrimary bool) error {
	profileID = strings.TrimSpace(profileID)
	roleID = strings.TrimSpace(roleID)
	if profileID == "" || roleID == "" {
		return fmt.Errorf("%w: profile_id and role_id are required", ErrInvalidInput)
	}
	if _, err := s.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return err
	}
	profiles := s.store.Profiles(ctx)
	if isPrimary {
		if err := profiles.ClearPrimary(ctx, profileID); err != nil {
			return err
		}
	}
	return profiles.AssignRole(ctx, UserRole{
		ProfileID:  profileID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
		IsPrimary:  isPrimary,
	})
}

// RevokeRole removes a role assignment.
func (s *Service) RevokeRole(ctx context.Context, profileID, roleID string) error {
	profileID = strings.TrimSpace(profileID)
	roleID = strings.TrimSpace(roleID)
	if profileID == "" || roleID == "" {
		return fmt.Errorf("%w: profile_id and role_id are required", ErrInvalidInput)
	}
	return s.store.Profiles(ctx).RevokeRole(ctx, profileID, roleID)
}

// RecordLogin stores the login time and source IP and resets the
// failed-attempt counter.
func (s *Service) RecordLogin(ctx context.Context, profileID, ip string) error {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return fmt.Errorf("%w: profile_id is required", ErrInvalidInput)
	}
	return s.store.Profiles(ctx).RecordLogin(ctx, profileID, ip, s.now().UTC())
}

// RecordFailedLogin increments the failed-attempt counter and locks the
// profile once the threshold is reached. Returns true when the profile is
// now locked.
func (s *Service) RecordFailedLogin(ctx context.Context, profileID string) (bool, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return false, fmt.Errorf("%w: profile_id is required", ErrInvalidInput)
	}
	profiles := s.store.Profiles(ctx)
	profile, err := profiles.Find(ctx, profileID)
	if err != nil {
		return false, err
	}
	attempts := profile.FailedLoginAttempts + 1
	upd := ProfileUpdate{FailedLoginAttempts: &attempts}
	locked := false
	if attempts >= s.maxFailedLogins {
		until := s.now().UTC().Add(s.lockoutDuration)
		upd.LockedUntil = &until
		locked = true
	}
	if _, err := profiles.Update(ctx, profileID, upd); err != nil {
		return false, err
	}
	return locked, nil
}

// UnlockProfile clears the lockout and failed-attempt counter.
func (s *Service) UnlockProfile(ctx context.Context, profileID string) error {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return fmt.Errorf("%w: profile_id is required", ErrInvalidInput)
	}
	zero := 0
	_, err := s.store.Profiles(ctx).Update(ctx, profileID, ProfileUpdate{
		FailedLoginAttempts: &zero,
		ClearLockedUntil:    true,
	})
	return err
}
