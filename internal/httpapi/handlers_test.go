package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/activity"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/audit"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/identity"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/passreset"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/rbac"
)

type testEnv struct {
	api      *API
	handler  http.Handler
	accounts *identity.MemoryAccountStore
	store    *rbac.MemoryStore
	service  *rbac.Service
	reset    *passreset.Service
	auditLog *audit.MemoryStore

	org *rbac.Organization
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("USERMGMT_AUTH_SECRET", "handlers-test-secret")
	identity.ResetSecretForTests()
	t.Cleanup(identity.ResetSecretForTests)

	ctx := context.Background()
	accounts := identity.NewMemoryAccountStore()
	store := rbac.NewMemoryStore()
	service, err := rbac.NewService(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	resolver, err := rbac.NewResolver(store)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	guard, err := rbac.NewGuard(store, resolver)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	reset, err := passreset.NewService(accounts, passreset.NewMemoryTokenStore())
	if err != nil {
		t.Fatalf("new reset service: %v", err)
	}
	auditLog := audit.NewMemoryStore()

	org, err := service.CreateOrganization(ctx, rbac.OrganizationParams{Name: "Acme", Code: "acme"})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}

	api, err := New(Config{
		Accounts: accounts,
		Store:    store,
		Service:  service,
		Resolver: resolver,
		Guard:    guard,
		Reset:    reset,
		Auditor:  audit.NewLogger(auditLog),
		Tracker:  activity.NewTracker(activity.NewMemoryStore()),
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("new api: %v", err)
	}
	return &testEnv{
		api:      api,
		handler:  api.Handler(),
		accounts: accounts,
		store:    store,
		service:  service,
		reset:    reset,
		auditLog: auditLog,
		org:      org,
	}
}

// newAccount creates an account with the password and, unless skipProfile,
// an active profile in the fixture org.
func (e *testEnv) newAccount(t *testing.T, email, password string, superuser bool) (*identity.Account, *rbac.UserProfile) {
	t.Helper()
	ctx := context.Background()
	hash, err := identity.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	acct := &identity.Account{Email: email, PasswordHash: hash, IsSuperuser: superuser}
	if err := e.accounts.Create(ctx, acct); err != nil {
		t.Fatalf("create account: %v", err)
	}
	profile, err := e.service.CreateProfile(ctx, rbac.ProfileParams{
		UserID:         acct.ID,
		OrganizationID: e.org.ID,
	})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return acct, profile
}

func (e *testEnv) token(t *testing.T, acct *identity.Account) string {
	t.Helper()
	token, err := identity.GenerateToken(acct, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndInfo(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "user-management") {
		t.Fatalf("healthz body = %s", rec.Body.String())
	}
	rec = e.do(t, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}
}

func TestLoginSuccessAndLockout(t *testing.T) {
	e := newTestEnv(t)
	acct, profile := e.newAccount(t, "user@example.com", "correct-horse", false)

	// Wrong password until the profile locks.
	for i := 0; i < 5; i++ {
		rec := e.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{
			Email: "user@example.com", Password: "wrong",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: code = %d", i, rec.Code)
		}
	}
	rec := e.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{
		Email: "user@example.com", Password: "correct-horse",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("locked login = %d, want 403", rec.Code)
	}

	// Unlock and log in.
	if err := e.service.UnlockProfile(context.Background(), profile.ID); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	rec = e.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{
		Email: "user@example.com", Password: "correct-horse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}

	// Login is recorded on the profile.
	updated, err := e.store.Profiles(context.Background()).Find(context.Background(), profile.ID)
	if err != nil {
		t.Fatalf("find profile: %v", err)
	}
	if updated.LastLoginAt == nil || updated.FailedLoginAttempts != 0 {
		t.Fatalf("login not recorded: %+v", updated)
	}
	_ = acct
}

func TestLoginUnknownUser(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{
		Email: "ghost@example.com", Password: "whatever",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	e := newTestEnv(t)
	user, _ := e.newAccount(t, "plain@example.com", "password-1", false)

	// No token.
	rec := e.do(t, http.MethodPost, "/v1/organizations", "", createOrganizationRequest{Name: "X", Code: "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d, want 401", rec.Code)
	}
	// Authenticated, not an admin.
	rec = e.do(t, http.MethodPost, "/v1/organizations", e.token(t, user), createOrganizationRequest{Name: "X", Code: "x"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin = %d, want 403", rec.Code)
	}
}

func TestOrganizationLifecycle(t *testing.T) {
	e := newTestEnv(t)
	admin, _ := e.newAccount(t, "admin@example.com", "password-1", true)
	token := e.token(t, admin)

	rec := e.do(t, http.MethodPost, "/v1/organizations", token, createOrganizationRequest{
		Name: "Globex", Code: "globex",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", rec.Code, rec.Body.String())
	}
	var org rbac.Organization
	if err := json.Unmarshal(rec.Body.Bytes(), &org); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Header().Get("Location") != "/v1/organizations/"+org.ID {
		t.Fatalf("location = %q", rec.Header().Get("Location"))
	}

	// Duplicate code conflicts.
	rec = e.do(t, http.MethodPost, "/v1/organizations", token, createOrganizationRequest{
		Name: "Globex 2", Code: "globex",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate = %d, want 409", rec.Code)
	}

	// Deactivate, then read back.
	rec = e.do(t, http.MethodPut, "/v1/organizations/"+org.ID+"/status", token, statusUpdateRequest{Active: false})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate = %d", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/v1/organizations/"+org.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &org); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if org.IsActive {
		t.Fatal("organization still active")
	}
}

func TestRoleGrantAndMyPermissions(t *testing.T) {
	e := newTestEnv(t)
	admin, _ := e.newAccount(t, "admin@example.com", "password-1", true)
	user, userProfile := e.newAccount(t, "eng@example.com", "password-1", false)
	token := e.token(t, admin)

	rec := e.do(t, http.MethodPost, "/v1/modules", token, createModuleRequest{Name: "Finance", Code: "finance"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create module = %d, body = %s", rec.Code, rec.Body.String())
	}
	var module rbac.Module
	if err := json.Unmarshal(rec.Body.Bytes(), &module); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = e.do(t, http.MethodPost, "/v1/permissions", token, createPermissionRequest{
		ModuleID: module.ID, Code: "finance.read", Name: "Read finance", Action: "read",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create permission = %d, body = %s", rec.Code, rec.Body.String())
	}
	var perm rbac.Permission
	if err := json.Unmarshal(rec.Body.Bytes(), &perm); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = e.do(t, http.MethodPost, "/v1/roles", token, createRoleRequest{
		Name: "Engineer", Code: "engineer", Level: rbac.LevelEngineer,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create role = %d, body = %s", rec.Code, rec.Body.String())
	}
	var role rbac.Role
	if err := json.Unmarshal(rec.Body.Bytes(), &role); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = e.do(t, http.MethodPost, "/v1/roles/"+role.ID+"/permissions", token, grantRequest{PermissionID: perm.ID})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("grant permission = %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/v1/roles/"+role.ID+"/modules", token, grantRequest{ModuleID: module.ID})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("grant module = %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/v1/profiles/"+userProfile.ID+"/roles", token, assignRoleRequest{
		RoleID: role.ID, IsPrimary: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("assign role = %d", rec.Code)
	}

	// The user now sees the grant through /v1/me.
	userToken := e.token(t, user)
	rec = e.do(t, http.MethodGet, "/v1/me/permissions", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("my permissions = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "finance.read") {
		t.Fatalf("permissions body = %s", rec.Body.String())
	}
	rec = e.do(t, http.MethodGet, "/v1/me/modules", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("my modules = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "finance") {
		t.Fatalf("modules body = %s", rec.Body.String())
	}
}

func TestProfileGateBlocksSuspendedAccount(t *testing.T) {
	e := newTestEnv(t)
	user, profile := e.newAccount(t, "user@example.com", "password-1", false)
	token := e.token(t, user)

	rec := e.do(t, http.MethodGet, "/v1/me/permissions", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("active = %d", rec.Code)
	}

	if _, err := e.service.SetProfileStatus(context.Background(), profile.ID, rbac.StatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	rec = e.do(t, http.MethodGet, "/v1/me/permissions", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("suspended = %d, want 403", rec.Code)
	}
}

func TestPasswordResetOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.newAccount(t, "reset@example.com", "old-password-1", false)

	// Request always answers 202, known address or not.
	for _, email := range []string{"reset@example.com", "ghost@example.com"} {
		rec := e.do(t, http.MethodPost, "/v1/auth/password-reset/request", "", resetRequestBody{Email: email})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %s = %d, want 202", email, rec.Code)
		}
	}

	// Mint a token directly and drive verify/complete over HTTP.
	plaintext, err := e.reset.CreateResetToken(context.Background(), "reset@example.com")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	rec := e.do(t, http.MethodPost, "/v1/auth/password-reset/verify", "", resetVerifyBody{
		Email: "reset@example.com", Token: plaintext,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/v1/auth/password-reset/verify", "", resetVerifyBody{
		Email: "reset@example.com", Token: "bogus",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("verify bogus = %d, want 400", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/v1/auth/password-reset/complete", "", resetCompleteBody{
		Email: "reset@example.com", Token: plaintext, NewPassword: "new-password-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Old password is dead, new one works.
	rec = e.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{
		Email: "reset@example.com", Password: "old-password-1",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password = %d, want 401", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{
		Email: "reset@example.com", Password: "new-password-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("new password = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestWriteAuditTrail(t *testing.T) {
	e := newTestEnv(t)
	admin, _ := e.newAccount(t, "admin@example.com", "password-1", true)
	token := e.token(t, admin)

	rec := e.do(t, http.MethodPost, "/v1/roles", token, createRoleRequest{
		Name: "Viewer", Code: "viewer", Level: rbac.LevelViewer,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create role = %d", rec.Code)
	}

	entries, err := e.auditLog.ForActor(context.Background(), admin.ID, 10)
	if err != nil {
		t.Fatalf("for actor: %v", err)
	}
	var found bool
	for _, entry := range entries {
		if entry.Action == "post" && entry.ResourceType == "roles" && entry.Success {
			found = true
		}
	}
	if !found {
		t.Fatalf("no audit entry for role creation: %+v", entries)
	}
}

// grantManagement gives the profile a role holding the manage permission.
func (e *testEnv) grantManagement(t *testing.T, profile *rbac.UserProfile, moduleCode, permCode string) {
	t.Helper()
	ctx := context.Background()
	module, err := e.service.CreateModule(ctx, rbac.ModuleParams{Name: moduleCode, Code: moduleCode})
	if err != nil {
		t.Fatalf("create module: %v", err)
	}
	perm, err := e.service.CreatePermission(ctx, rbac.PermissionParams{
		ModuleID: module.ID, Code: permCode, Name: permCode, Action: rbac.ActionExecute,
	})
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	role, err := e.service.CreateRole(ctx, rbac.RoleParams{
		Name: permCode + " holder", Code: permCode + "-holder", Level: rbac.LevelManager,
	})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := e.service.GrantPermission(ctx, role.ID, perm.ID, nil); err != nil {
		t.Fatalf("grant permission: %v", err)
	}
	if err := e.service.AssignRole(ctx, profile.ID, role.ID, nil, false); err != nil {
		t.Fatalf("assign role: %v", err)
	}
}

func TestManagementDelegationWithoutAdminRole(t *testing.T) {
	e := newTestEnv(t)
	hr, hrProfile := e.newAccount(t, "hr@example.com", "password-1", false)
	e.grantManagement(t, hrProfile, "users", rbac.PermManageUsers)
	hrToken := e.token(t, hr)

	// users.manage opens the profile routes.
	subject, _ := e.newAccount(t, "subject@example.com", "password-1", false)
	rec := e.do(t, http.MethodPost, "/v1/profiles", hrToken, createProfileRequest{
		UserID: subject.ID + "-second", OrganizationID: e.org.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create profile = %d, body = %s", rec.Code, rec.Body.String())
	}

	// ...but not the role routes.
	rec = e.do(t, http.MethodPost, "/v1/roles", hrToken, createRoleRequest{
		Name: "Viewer", Code: "viewer", Level: rbac.LevelViewer,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("create role = %d, want 403", rec.Code)
	}

	// roles.manage opens the role routes without an admin role.
	curator, curatorProfile := e.newAccount(t, "curator@example.com", "password-1", false)
	e.grantManagement(t, curatorProfile, "roles", rbac.PermManageRoles)
	rec = e.do(t, http.MethodPost, "/v1/roles", e.token(t, curator), createRoleRequest{
		Name: "Viewer", Code: "viewer", Level: rbac.LevelViewer,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create role = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestSystemRoleDeleteForbidden(t *testing.T) {
	e := newTestEnv(t)
	admin, _ := e.newAccount(t, "admin@example.com", "password-1", true)
	token := e.token(t, admin)

	role, err := e.service.CreateRole(context.Background(), rbac.RoleParams{
		Name: "Super Admin", Code: rbac.RoleSuperAdmin, Level: rbac.LevelSuperAdmin, IsSystemRole: true,
	})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	rec := e.do(t, http.MethodDelete, fmt.Sprintf("/v1/roles/%s", role.ID), token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("delete system role = %d, want 403", rec.Code)
	}
}
