package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/ids"
)

const (
	pgErrUniqueViolation = "23505"
	pgErrFKViolation     = "23503"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Organizations(ctx context.Context) OrganizationStore { return pgOrgStore{s.db} }
func (s *PGStore) Modules(ctx context.Context) ModuleStore             { return pgModuleStore{s.db} }
func (s *PGStore) Permissions(ctx context.Context) PermissionStore     { return pgPermStore{s.db} }
func (s *PGStore) Roles(ctx context.Context) RoleStore                 { return pgRoleStore{s.db} }
func (s *PGStore) Profiles(ctx context.Context) ProfileStore           { return pgProfileStore{s.db} }

func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return ErrConflict
		case pgErrFKViolation:
			return fmt.Errorf("%w: referenced row does not exist", ErrInvalidInput)
		}
	}
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// inPlaceholders renders $N placeholders for an IN clause starting at first.
func inPlaceholders(first, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", first+i)
	}
	return strings.Join(parts, ",")
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// --- organizations ---

type pgOrgStore struct{ db *sql.DB }

const orgColumns = `id, name, code, description, is_active,
	contact_name, contact_email, contact_phone,
	storage_bucket, storage_region, created_at, updated_at`

func (s pgOrgStore) Create(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into organizations (id, name, code, description, is_active,
			contact_name, contact_email, contact_phone, storage_bucket, storage_region)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		returning created_at, updated_at
	`, org.ID, org.Name, org.Code, org.Description, org.IsActive,
		org.ContactName, org.ContactEmail, org.ContactPhone,
		org.StorageBucket, org.StorageRegion,
	).Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return mapPGError(err)
	}
	return nil
}

func (s pgOrgStore) Find(ctx context.Context, id string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where id = $1`, id)
	return scanOrganization(row)
}

func (s pgOrgStore) FindByCode(ctx context.Context, code string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where code = $1`, code)
	return scanOrganization(row)
}

func (s pgOrgStore) List(ctx context.Context) ([]*Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+orgColumns+` from organizations order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

func (s pgOrgStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update organizations set is_active = $2, updated_at = now() where id = $1
	`, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanOrganization(row rowScanner) (*Organization, error) {
	var o Organization
	err := row.Scan(
		&o.ID, &o.Name, &o.Code, &o.Description, &o.IsActive,
		&o.ContactName, &o.ContactEmail, &o.ContactPhone,
		&o.StorageBucket, &o.StorageRegion, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// --- modules ---

type pgModuleStore struct{ db *sql.DB }

const moduleColumns = `id, name, code, description, is_active, icon, display_order, created_at, updated_at`

func (s pgModuleStore) Create(ctx context.Context, mod *Module) error {
	if mod.ID == "" {
		mod.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into modules (id, name, code, description, is_active, icon, display_order)
		values ($1,$2,$3,$4,$5,$6,$7)
		returning created_at, updated_at
	`, mod.ID, mod.Name, mod.Code, mod.Description, mod.IsActive, mod.Icon, mod.Order,
	).Scan(&mod.CreatedAt, &mod.UpdatedAt)
	if err != nil {
		return mapPGError(err)
	}
	return nil
}

func (s pgModuleStore) Find(ctx context.Context, id string) (*Module, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+moduleColumns+` from modules where id = $1`, id)
	return scanModule(row)
}

func (s pgModuleStore) FindByCode(ctx context.Context, code string) (*Module, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+moduleColumns+` from modules where code = $1`, code)
	return scanModule(row)
}

func (s pgModuleStore) List(ctx context.Context) ([]*Module, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+moduleColumns+` from modules order by display_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Module
	for rows.Next() {
		mod, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mod)
	}
	return out, rows.Err()
}

func (s pgModuleStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update modules set is_active = $2, updated_at = now() where id = $1
	`, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s pgModuleStore) HasActiveGrant(ctx context.Context, roleIDs []string, code string) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}
	args := append([]any{code}, idArgs(roleIDs)...)
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1
			from role_modules rm
			join modules m on m.id = rm.module_id
			where m.code = $1 and m.is_active and rm.role_id in (`+inPlaceholders(2, len(roleIDs))+`)
		)
	`, args...).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s pgModuleStore) ActiveCodesForRoles(ctx context.Context, roleIDs []string) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct m.code
		from role_modules rm
		join modules m on m.id = rm.module_id
		where m.is_active and rm.role_id in (`+inPlaceholders(1, len(roleIDs))+`)
		order by m.code
	`, idArgs(roleIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCodes(rows)
}

func scanModule(row rowScanner) (*Module, error) {
	var m Module
	err := row.Scan(
		&m.ID, &m.Name, &m.Code, &m.Description, &m.IsActive,
		&m.Icon, &m.Order, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanCodes(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

// --- permissions ---

type pgPermStore struct{ db *sql.DB }

const permColumns = `id, module_id, code, name, description, action, is_active, created_at, updated_at`

func (s pgPermStore) Create(ctx context.Context, perm *Permission) error {
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into permissions (id, module_id, code, name, description, action, is_active)
		values ($1,$2,$3,$4,$5,$6,$7)
		returning created_at, updated_at
	`, perm.ID, perm.ModuleID, perm.Code, perm.Name, perm.Description, string(perm.Action), perm.IsActive,
	).Scan(&perm.CreatedAt, &perm.UpdatedAt)
	if err != nil {
		return mapPGError(err)
	}
	return nil
}

func (s pgPermStore) Find(ctx context.Context, id string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+permColumns+` from permissions where id = $1`, id)
	return scanPermission(row)
}

func (s pgPermStore) FindByCode(ctx context.Context, code string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+permColumns+` from permissions where code = $1`, code)
	return scanPermission(row)
}

func (s pgPermStore) List(ctx context.Context) ([]*Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+permColumns+` from permissions order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s pgPermStore) ListByModule(ctx context.Context, moduleID string) ([]*Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+permColumns+` from permissions where module_id = $1 order by code`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s pgPermStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update permissions set is_active = $2, updated_at = now() where id = $1
	`, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s pgPermStore) HasActiveGrant(ctx context.Context, roleIDs []string, code string) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}
	args := append([]any{code}, idArgs(roleIDs)...)
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1
			from role_permissions rp
			join permissions p on p.id = rp.permission_id
			where p.code = $1 and p.is_active and rp.role_id in (`+inPlaceholders(2, len(roleIDs))+`)
		)
	`, args...).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s pgPermStore) ActiveCodesForRoles(ctx context.Context, roleIDs []string) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.code
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where p.is_active and rp.role_id in (`+inPlaceholders(1, len(roleIDs))+`)
		order by p.code
	`, idArgs(roleIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCodes(rows)
}

func scanPermission(row rowScanner) (*Permission, error) {
	var p Permission
	var action string
	err := row.Scan(
		&p.ID, &p.ModuleID, &p.Code, &p.Name, &p.Description,
		&action, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Action = Action(action)
	return &p, nil
}

func collectPermissions(rows *sql.Rows) ([]*Permission, error) {
	var out []*Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, perm)
	}
	return out, rows.Err()
}

// --- roles ---

type pgRoleStore struct{ db *sql.DB }

const roleColumns = `id, name, code, description, level, is_active, is_system_role, created_at, updated_at`

func (s pgRoleStore) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, code, description, level, is_active, is_system_role)
		values ($1,$2,$3,$4,$5,$6,$7)
		returning created_at, updated_at
	`, role.ID, role.Name, role.Code, role.Description, role.Level, role.IsActive, role.IsSystemRole,
	).Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return mapPGError(err)
	}
	return nil
}

func (s pgRoleStore) Find(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id = $1`, id)
	return scanRole(row)
}

func (s pgRoleStore) FindByCode(ctx context.Context, code string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where code = $1`, code)
	return scanRole(row)
}

func (s pgRoleStore) List(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+roleColumns+` from roles order by level, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (s pgRoleStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update roles set is_active = $2, updated_at = now() where id = $1
	`, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s pgRoleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return mapPGError(err)
	}
	return requireRow(res)
}

func (s pgRoleStore) GrantPermission(ctx context.Context, grant RolePermission) error {
	if grant.ID == "" {
		grant.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions (id, role_id, permission_id, granted_by)
		values ($1,$2,$3,$4)
		on conflict (role_id, permission_id) do nothing
	`, grant.ID, grant.RoleID, grant.PermissionID, grant.GrantedBy)
	return mapPGError(err)
}

func (s pgRoleStore) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from role_permissions where role_id = $1 and permission_id = $2
	`, roleID, permissionID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s pgRoleStore) GrantModule(ctx context.Context, grant RoleModule) error {
	if grant.ID == "" {
		grant.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into role_modules (id, role_id, module_id, granted_by)
		values ($1,$2,$3,$4)
		on conflict (role_id, module_id) do nothing
	`, grant.ID, grant.RoleID, grant.ModuleID, grant.GrantedBy)
	return mapPGError(err)
}

func (s pgRoleStore) RevokeModule(ctx context.Context, roleID, moduleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from role_modules where role_id = $1 and module_id = $2
	`, roleID, moduleID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s pgRoleStore) ListForProfile(ctx context.Context, profileID string) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.code, r.description, r.level, r.is_active, r.is_system_role,
			r.created_at, r.updated_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.profile_id = $1
		order by r.level, r.name
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func scanRole(row rowScanner) (*Role, error) {
	var r Role
	err := row.Scan(
		&r.ID, &r.Name, &r.Code, &r.Description, &r.Level,
		&r.IsActive, &r.IsSystemRole, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRoles(rows *sql.Rows) ([]*Role, error) {
	var out []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// --- profiles ---

type pgProfileStore struct{ db *sql.DB }

const profileColumns = `id, user_id, organization_id, status, is_mfa_enabled,
	employee_id, department, job_title, metadata, manager_id,
	last_login_ip, last_login_at, failed_login_attempts, locked_until,
	must_change_password, is_deleted, deleted_at, deleted_by, created_at, updated_at`

func (s pgProfileStore) Create(ctx context.Context, profile *UserProfile) error {
	if profile.ID == "" {
		profile.ID = ids.New()
	}
	meta, err := marshalMetadata(profile.Metadata)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, `
		insert into user_profiles (id, user_id, organization_id, status, is_mfa_enabled,
			employee_id, department, job_title, metadata, manager_id)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		returning created_at, updated_at
	`, profile.ID, profile.UserID, profile.OrganizationID, string(profile.Status), profile.IsMFAEnabled,
		profile.EmployeeID, profile.Department, profile.JobTitle, meta, profile.ManagerID,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return mapPGError(err)
	}
	return nil
}

func (s pgProfileStore) Find(ctx context.Context, id string) (*UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+profileColumns+` from user_profiles where id = $1`, id)
	return scanProfile(row)
}

func (s pgProfileStore) FindByUser(ctx context.Context, userID string) (*UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+profileColumns+` from user_profiles where user_id = $1`, userID)
	return scanProfile(row)
}

func (s pgProfileStore) ListByOrg(ctx context.Context, orgID string) ([]*UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+profileColumns+` from user_profiles
		where organization_id = $1 and not is_deleted
		order by created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UserProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, profile)
	}
	return out, rows.Err()
}

// Update builds the SET list dynamically from the non-nil fields so unrelated
// columns are never rewritten with stale values.
func (s pgProfileStore) Update(ctx context.Context, id string, upd ProfileUpdate) (*UserProfile, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	next := 2

	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}

	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.IsMFAEnabled != nil {
		add("is_mfa_enabled", *upd.IsMFAEnabled)
	}
	if upd.EmployeeID != nil {
		add("employee_id", *upd.EmployeeID)
	}
	if upd.Department != nil {
		add("department", *upd.Department)
	}
	if upd.JobTitle != nil {
		add("job_title", *upd.JobTitle)
	}
	if upd.Metadata != nil {
		meta, err := marshalMetadata(upd.Metadata)
		if err != nil {
			return nil, err
		}
		add("metadata", meta)
	}
	if upd.ManagerID != nil {
		add("manager_id", *upd.ManagerID)
	}
	if upd.FailedLoginAttempts != nil {
		add("failed_login_attempts", *upd.FailedLoginAttempts)
	}
	if upd.ClearLockedUntil {
		sets = append(sets, "locked_until = null")
	} else if upd.LockedUntil != nil {
		add("locked_until", *upd.LockedUntil)
	}
	if upd.MustChangePassword != nil {
		add("must_change_password", *upd.MustChangePassword)
	}

	row := s.db.QueryRowContext(ctx, `
		update user_profiles set `+strings.Join(sets, ", ")+`
		where id = $1
		returning `+profileColumns,
		args...)
	profile, err := scanProfile(row)
	if err != nil {
		return nil, mapPGError(err)
	}
	return profile, nil
}

func (s pgProfileStore) RecordLogin(ctx context.Context, id, ip string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update user_profiles
		set last_login_ip = $2, last_login_at = $3,
			failed_login_attempts = 0, locked_until = null, updated_at = now()
		where id = $1
	`, id, ip, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s pgProfileStore) SoftDelete(ctx context.Context, id string, deletedBy *string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update user_profiles
		set is_deleted = true, deleted_at = $2, deleted_by = $3, updated_at = now()
		where id = $1 and not is_deleted
	`, id, at, deletedBy)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s pgProfileStore) Restore(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update user_profiles
		set is_deleted = false, deleted_at = null, deleted_by = null, updated_at = now()
		where id = $1 and is_deleted
	`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s pgProfileStore) AssignRole(ctx context.Context, assignment UserRole) error {
	if assignment.ID == "" {
		assignment.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (id, profile_id, role_id, assigned_by, is_primary)
		values ($1,$2,$3,$4,$5)
		on conflict (profile_id, role_id)
		do update set assigned_by = excluded.assigned_by, is_primary = excluded.is_primary
	`, assignment.ID, assignment.ProfileID, assignment.RoleID, assignment.AssignedBy, assignment.IsPrimary)
	return mapPGError(err)
}

func (s pgProfileStore) RevokeRole(ctx context.Context, profileID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles where profile_id = $1 and role_id = $2
	`, profileID, roleID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s pgProfileStore) Assignments(ctx context.Context, profileID string) ([]UserRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, profile_id, role_id, assigned_by, is_primary, created_at
		from user_roles
		where profile_id = $1
		order by created_at
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserRole
	for rows.Next() {
		var ur UserRole
		if err := rows.Scan(&ur.ID, &ur.ProfileID, &ur.RoleID, &ur.AssignedBy, &ur.IsPrimary, &ur.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ur)
	}
	return out, rows.Err()
}

func (s pgProfileStore) ClearPrimary(ctx context.Context, profileID string) error {
	_, err := s.db.ExecContext(ctx, `
		update user_roles set is_primary = false where profile_id = $1 and is_primary
	`, profileID)
	return err
}

func scanProfile(row rowScanner) (*UserProfile, error) {
	var p UserProfile
	var status string
	var meta []byte
	err := row.Scan(
		&p.ID, &p.UserID, &p.OrganizationID, &status, &p.IsMFAEnabled,
		&p.EmployeeID, &p.Department, &p.JobTitle, &meta, &p.ManagerID,
		&p.LastLoginIP, &p.LastLoginAt, &p.FailedLoginAttempts, &p.LockedUntil,
		&p.MustChangePassword, &p.IsDeleted, &p.DeletedAt, &p.DeletedBy,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = ProfileStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode profile metadata: %w", err)
		}
	}
	return &p, nil
}

func marshalMetadata(meta map[string]string) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	out, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode profile metadata: %w", err)
	}
	return out, nil
}
