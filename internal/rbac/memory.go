package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests and local development. All
// methods are safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	orgs     map[string]*Organization
	modules  map[string]*Module
	perms    map[string]*Permission
	roles    map[string]*Role
	profiles map[string]*UserProfile

	rolePerms   map[string]RolePermission // keyed role_id|permission_id
	roleModules map[string]RoleModule     // keyed role_id|module_id
	userRoles   map[string]UserRole       // keyed profile_id|role_id

	now func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the time source.
func WithMemoryClock(fn func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		orgs:        make(map[string]*Organization),
		modules:     make(map[string]*Module),
		perms:       make(map[string]*Permission),
		roles:       make(map[string]*Role),
		profiles:    make(map[string]*UserProfile),
		rolePerms:   make(map[string]RolePermission),
		roleModules: make(map[string]RoleModule),
		userRoles:   make(map[string]UserRole),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Organizations(ctx context.Context) OrganizationStore { return memOrgStore{s} }
func (s *MemoryStore) Modules(ctx context.Context) ModuleStore             { return memModuleStore{s} }
func (s *MemoryStore) Permissions(ctx context.Context) PermissionStore     { return memPermStore{s} }
func (s *MemoryStore) Roles(ctx context.Context) RoleStore                 { return memRoleStore{s} }
func (s *MemoryStore) Profiles(ctx context.Context) ProfileStore           { return memProfileStore{s} }

func edgeKey(a, b string) string { return a + "|" + b }

// --- organizations ---

type memOrgStore struct{ s *MemoryStore }

func (m memOrgStore) Create(ctx context.Context, org *Organization) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.ID == "" {
		org.ID = ids.New()
	}
	for _, existing := range s.orgs {
		if existing.Code == org.Code || existing.Name == org.Name {
			return ErrConflict
		}
	}
	now := s.now().UTC()
	org.CreatedAt, org.UpdatedAt = now, now
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (m memOrgStore) Find(ctx context.Context, id string) (*Organization, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	org, ok := m.s.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (m memOrgStore) FindByCode(ctx context.Context, code string) (*Organization, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, org := range m.s.orgs {
		if org.Code == code {
			cp := *org
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memOrgStore) List(ctx context.Context) ([]*Organization, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]*Organization, 0, len(m.s.orgs))
	for _, org := range m.s.orgs {
		cp := *org
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memOrgStore) SetActive(ctx context.Context, id string, active bool) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return ErrNotFound
	}
	org.IsActive = active
	org.UpdatedAt = s.now().UTC()
	return nil
}

// --- modules ---

type memModuleStore struct{ s *MemoryStore }

func (m memModuleStore) Create(ctx context.Context, mod *Module) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if mod.ID == "" {
		mod.ID = ids.New()
	}
	for _, existing := range s.modules {
		if existing.Code == mod.Code {
			return ErrConflict
		}
	}
	now := s.now().UTC()
	mod.CreatedAt, mod.UpdatedAt = now, now
	cp := *mod
	s.modules[mod.ID] = &cp
	return nil
}

func (m memModuleStore) Find(ctx context.Context, id string) (*Module, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	mod, ok := m.s.modules[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mod
	return &cp, nil
}

func (m memModuleStore) FindByCode(ctx context.Context, code string) (*Module, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, mod := range m.s.modules {
		if mod.Code == code {
			cp := *mod
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memModuleStore) List(ctx context.Context) ([]*Module, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]*Module, 0, len(m.s.modules))
	for _, mod := range m.s.modules {
		cp := *mod
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m memModuleStore) SetActive(ctx context.Context, id string, active bool) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	mod, ok := s.modules[id]
	if !ok {
		return ErrNotFound
	}
	mod.IsActive = active
	mod.UpdatedAt = s.now().UTC()
	return nil
}

func (m memModuleStore) HasActiveGrant(ctx context.Context, roleIDs []string, code string) (bool, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	roleSet := toSet(roleIDs)
	for _, edge := range m.s.roleModules {
		if !roleSet[edge.RoleID] {
			continue
		}
		mod, ok := m.s.modules[edge.ModuleID]
		if ok && mod.IsActive && mod.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m memModuleStore) ActiveCodesForRoles(ctx context.Context, roleIDs []string) ([]string, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	roleSet := toSet(roleIDs)
	seen := map[string]bool{}
	var out []string
	for _, edge := range m.s.roleModules {
		if !roleSet[edge.RoleID] {
			continue
		}
		mod, ok := m.s.modules[edge.ModuleID]
		if ok && mod.IsActive && !seen[mod.Code] {
			seen[mod.Code] = true
			out = append(out, mod.Code)
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- permissions ---

type memPermStore struct{ s *MemoryStore }

func (m memPermStore) Create(ctx context.Context, perm *Permission) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	if _, ok := s.modules[perm.ModuleID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.perms {
		if existing.Code == perm.Code {
			return ErrConflict
		}
	}
	now := s.now().UTC()
	perm.CreatedAt, perm.UpdatedAt = now, now
	cp := *perm
	s.perms[perm.ID] = &cp
	return nil
}

func (m memPermStore) Find(ctx context.Context, id string) (*Permission, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	perm, ok := m.s.perms[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *perm
	return &cp, nil
}

func (m memPermStore) FindByCode(ctx context.Context, code string) (*Permission, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, perm := range m.s.perms {
		if perm.Code == code {
			cp := *perm
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memPermStore) List(ctx context.Context) ([]*Permission, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]*Permission, 0, len(m.s.perms))
	for _, perm := range m.s.perms {
		cp := *perm
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m memPermStore) ListByModule(ctx context.Context, moduleID string) ([]*Permission, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []*Permission
	for _, perm := range m.s.perms {
		if perm.ModuleID == moduleID {
			cp := *perm
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m memPermStore) SetActive(ctx context.Context, id string, active bool) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	perm, ok := s.perms[id]
	if !ok {
		return ErrNotFound
	}
	perm.IsActive = active
	perm.UpdatedAt = s.now().UTC()
	return nil
}

func (m memPermStore) HasActiveGrant(ctx context.Context, roleIDs []string, code string) (bool, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	roleSet := toSet(roleIDs)
	for _, edge := range m.s.rolePerms {
		if !roleSet[edge.RoleID] {
			continue
		}
		perm, ok := m.s.perms[edge.PermissionID]
		if ok && perm.IsActive && perm.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m memPermStore) ActiveCodesForRoles(ctx context.Context, roleIDs []string) ([]string, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	roleSet := toSet(roleIDs)
	seen := map[string]bool{}
	var out []string
	for _, edge := range m.s.rolePerms {
		if !roleSet[edge.RoleID] {
			continue
		}
		perm, ok := m.s.perms[edge.PermissionID]
		if ok && perm.IsActive && !seen[perm.Code] {
			seen[perm.Code] = true
			out = append(out, perm.Code)
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- roles ---

type memRoleStore struct{ s *MemoryStore }

func (m memRoleStore) Create(ctx context.Context, role *Role) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	for _, existing := range s.roles {
		if existing.Code == role.Code {
			return ErrConflict
		}
	}
	now := s.now().UTC()
	role.CreatedAt, role.UpdatedAt = now, now
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (m memRoleStore) Find(ctx context.Context, id string) (*Role, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	role, ok := m.s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (m memRoleStore) FindByCode(ctx context.Context, code string) (*Role, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, role := range m.s.roles {
		if role.Code == code {
			cp := *role
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memRoleStore) List(ctx context.Context) ([]*Role, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]*Role, 0, len(m.s.roles))
	for _, role := range m.s.roles {
		cp := *role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m memRoleStore) SetActive(ctx context.Context, id string, active bool) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return ErrNotFound
	}
	role.IsActive = active
	role.UpdatedAt = s.now().UTC()
	return nil
}

func (m memRoleStore) Delete(ctx context.Context, id string) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return ErrNotFound
	}
	delete(s.roles, id)
	for key, edge := range s.rolePerms {
		if edge.RoleID == id {
			delete(s.rolePerms, key)
		}
	}
	for key, edge := range s.roleModules {
		if edge.RoleID == id {
			delete(s.roleModules, key)
		}
	}
	for key, ur := range s.userRoles {
		if ur.RoleID == id {
			delete(s.userRoles, key)
		}
	}
	return nil
}

func (m memRoleStore) GrantPermission(ctx context.Context, grant RolePermission) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[grant.RoleID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.perms[grant.PermissionID]; !ok {
		return ErrNotFound
	}
	key := edgeKey(grant.RoleID, grant.PermissionID)
	if _, ok := s.rolePerms[key]; ok {
		return nil
	}
	if grant.ID == "" {
		grant.ID = ids.New()
	}
	grant.CreatedAt = s.now().UTC()
	s.rolePerms[key] = grant
	return nil
}

func (m memRoleStore) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey(roleID, permissionID)
	if _, ok := s.rolePerms[key]; !ok {
		return ErrNotFound
	}
	delete(s.rolePerms, key)
	return nil
}

func (m memRoleStore) GrantModule(ctx context.Context, grant RoleModule) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[grant.RoleID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.modules[grant.ModuleID]; !ok {
		return ErrNotFound
	}
	key := edgeKey(grant.RoleID, grant.ModuleID)
	if _, ok := s.roleModules[key]; ok {
		return nil
	}
	if grant.ID == "" {
		grant.ID = ids.New()
	}
	grant.CreatedAt = s.now().UTC()
	s.roleModules[key] = grant
	return nil
}

func (m memRoleStore) RevokeModule(ctx context.Context, roleID, moduleID string) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey(roleID, moduleID)
	if _, ok := s.roleModules[key]; !ok {
		return ErrNotFound
	}
	delete(s.roleModules, key)
	return nil
}

func (m memRoleStore) ListForProfile(ctx context.Context, profileID string) ([]*Role, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []*Role
	for _, ur := range m.s.userRoles {
		if ur.ProfileID != profileID {
			continue
		}
		if role, ok := m.s.roles[ur.RoleID]; ok {
			cp := *role
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// --- profiles ---

type memProfileStore struct{ s *MemoryStore }

func (m memProfileStore) Create(ctx context.Context, profile *UserProfile) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile.ID == "" {
		profile.ID = ids.New()
	}
	if _, ok := s.orgs[profile.OrganizationID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.profiles {
		if existing.UserID == profile.UserID {
			return ErrConflict
		}
	}
	now := s.now().UTC()
	profile.CreatedAt, profile.UpdatedAt = now, now
	cp := *profile
	s.profiles[profile.ID] = &cp
	return nil
}

func (m memProfileStore) Find(ctx context.Context, id string) (*UserProfile, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	profile, ok := m.s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *profile
	return &cp, nil
}

func (m memProfileStore) FindByUser(ctx context.Context, userID string) (*UserProfile, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, profile := range m.s.profiles {
		if profile.UserID == userID {
			cp := *profile
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memProfileStore) ListByOrg(ctx context.Context, orgID string) ([]*UserProfile, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []*UserProfile
	for _, profile := range m.s.profiles {
		if profile.OrganizationID == orgID && !profile.IsDeleted {
			cp := *profile
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m memProfileStore) Update(ctx context.Context, id string, upd ProfileUpdate) (*UserProfile, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		profile.Status = *upd.Status
	}
	if upd.IsMFAEnabled != nil {
		profile.IsMFAEnabled = *upd.IsMFAEnabled
	}
	if upd.EmployeeID != nil {
		profile.EmployeeID = *upd.EmployeeID
	}
	if upd.Department != nil {
		profile.Department = *upd.Department
	}
	if upd.JobTitle != nil {
		profile.JobTitle = *upd.JobTitle
	}
	if upd.Metadata != nil {
		profile.Metadata = upd.Metadata
	}
	if upd.ManagerID != nil {
		profile.ManagerID = upd.ManagerID
	}
	if upd.FailedLoginAttempts != nil {
		profile.FailedLoginAttempts = *upd.FailedLoginAttempts
	}
	if upd.ClearLockedUntil {
		profile.LockedUntil = nil
	} else if upd.LockedUntil != nil {
		t := *upd.LockedUntil
		profile.LockedUntil = &t
	}
	if upd.MustChangePassword != nil {
		profile.MustChangePassword = *upd.MustChangePassword
	}
	profile.UpdatedAt = s.now().UTC()
	cp := *profile
	return &cp, nil
}

func (m memProfileStore) RecordLogin(ctx context.Context, id, ip string, at time.Time) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[id]
	if !ok {
		return ErrNotFound
	}
	profile.LastLoginIP = ip
	t := at
	profile.LastLoginAt = &t
	profile.FailedLoginAttempts = 0
	profile.LockedUntil = nil
	profile.UpdatedAt = s.now().UTC()
	return nil
}

func (m memProfileStore) SoftDelete(ctx context.Context, id string, deletedBy *string, at time.Time) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[id]
	if !ok || profile.IsDeleted {
		return ErrNotFound
	}
	profile.IsDeleted = true
	t := at
	profile.DeletedAt = &t
	profile.DeletedBy = deletedBy
	profile.UpdatedAt = s.now().UTC()
	return nil
}

func (m memProfileStore) Restore(ctx context.Context, id string) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[id]
	if !ok || !profile.IsDeleted {
		return ErrNotFound
	}
	profile.IsDeleted = false
	profile.DeletedAt = nil
	profile.DeletedBy = nil
	profile.UpdatedAt = s.now().UTC()
	return nil
}

func (m memProfileStore) AssignRole(ctx context.Context, assignment UserRole) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[assignment.ProfileID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.roles[assignment.RoleID]; !ok {
		return ErrNotFound
	}
	key := edgeKey(assignment.ProfileID, assignment.RoleID)
	if existing, ok := s.userRoles[key]; ok {
		existing.AssignedBy = assignment.AssignedBy
		existing.IsPrimary = assignment.IsPrimary
		s.userRoles[key] = existing
		return nil
	}
	if assignment.ID == "" {
		assignment.ID = ids.New()
	}
	assignment.CreatedAt = s.now().UTC()
	s.userRoles[key] = assignment
	return nil
}

func (m memProfileStore) RevokeRole(ctx context.Context, profileID, roleID string) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey(profileID, roleID)
	if _, ok := s.userRoles[key]; !ok {
		return ErrNotFound
	}
	delete(s.userRoles, key)
	return nil
}

func (m memProfileStore) Assignments(ctx context.Context, profileID string) ([]UserRole, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []UserRole
	for _, ur := range m.s.userRoles {
		if ur.ProfileID == profileID {
			out = append(out, ur)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m memProfileStore) ClearPrimary(ctx context.Context, profileID string) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ur := range s.userRoles {
		if ur.ProfileID == profileID && ur.IsPrimary {
			ur.IsPrimary = false
			s.userRoles[key] = ur
		}
	}
	return nil
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
