package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/rbac"
)

type statusUpdateRequest struct {
	Active bool `json:"active"`
}

// --- organizations ---

type createOrganizationRequest struct {
	Name          string `json:"name"`
	Code          string `json:"code"`
	Description   string `json:"description"`
	ContactName   string `json:"contact_name"`
	ContactEmail  string `json:"contact_email"`
	ContactPhone  string `json:"contact_phone"`
	StorageBucket string `json:"storage_bucket"`
	StorageRegion string `json:"storage_region"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireAdmin(w, r); !ok {
			return
		}
		orgs, err := a.store.Organizations(r.Context()).List(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, orgs)
	case http.MethodPost:
		if _, ok := a.requireAdmin(w, r); !ok {
			return
		}
		var req createOrganizationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		org, err := a.service.CreateOrganization(r.Context(), rbac.OrganizationParams{
			Name:          req.Name,
			Code:          req.Code,
			Description:   req.Description,
			ContactName:   req.ContactName,
			ContactEmail:  req.ContactEmail,
			ContactPhone:  req.ContactPhone,
			StorageBucket: req.StorageBucket,
			StorageRegion: req.StorageRegion,
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/organizations/"+org.ID)
		writeJSON(w, http.StatusCreated, org)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleOrganizationResource(w http.ResponseWriter, r *http.Request) {
	parts := trimPathSegment(r.URL.Path, "/v1/organizations/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if _, ok := a.requireAdmin(w, r); !ok {
			return
		}
		org, err := a.store.Organizations(r.Context()).Find(r.Context(), parts[0])
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, org)
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if _, ok := a.requireAdmin(w, r); !ok {
			return
		}
		var req statusUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.service.SetOrganizationActive(r.Context(), parts[0], req.Active); err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// --- modules ---

type createModuleRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Order       int    `json:"order"`
}

func (a *API) handleModules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireAdmin(w, r); !ok {
			return
		}
		modules, err := a.store.Modules(r.Context()).List(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, modules)
	case http.MethodPost:
		if _, ok := a.requireAdmin(w, r); !ok {
			return
		}
		var req createModuleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		mod, err := a.service.CreateModule(r.Context(), rbac.ModuleParams{
			Name:        req.Name,
			Code:        req.Code,
			Description: req.Description,
			Icon:        req.Icon,
			Order:       req.Order,
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/modules/"+mod.ID)
		writeJSON(w, http.StatusCreated, mod)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleModuleResource(w http.ResponseWriter, r *http.Request) {
	parts := trimPathSegment(r.URL.Path, "/v1/modules/")
	if len(parts) != 2 || parts[1] != "status" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	var req statusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.service.SetModuleActive(r.Context(), parts[0], req.Active); err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- permissions ---

type createPermissionRequest struct {
	ModuleID    string `json:"module_id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireAdmin(w, r); !ok {
			return
		}
		perms, err := a.store.Permissions(r.Context()).List(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, perms)
	case http.MethodPost:
		if _, ok := a.requireAdmin(w, r); !ok {
			return
		}
		var req createPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.service.CreatePermission(r.Context(), rbac.PermissionParams{
			ModuleID:    req.ModuleID,
			Code:        req.Code,
			Name:        req.Name,
			Description: req.Description,
			Action:      rbac.Action(req.Action),
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/permissions/"+perm.ID)
		writeJSON(w, http.StatusCreated, perm)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePermissionResource(w http.ResponseWriter, r *http.Request) {
	parts := trimPathSegment(r.URL.Path, "/v1/permissions/")
	if len(parts) != 2 || parts[1] != "status" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	var req statusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.service.SetPermissionActive(r.Context(), parts[0], req.Active); err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- roles ---

type createRoleRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Level       int    `json:"level"`
}

type grantRequest struct {
	PermissionID string `json:"permission_id,omitempty"`
	ModuleID     string `json:"module_id,omitempty"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireRoleManager(w, r); !ok {
			return
		}
		roles, err := a.store.Roles(r.Context()).List(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, roles)
	case http.MethodPost:
		if _, ok := a.requireRoleManager(w, r); !ok {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.service.CreateRole(r.Context(), rbac.RoleParams{
			Name:        req.Name,
			Code:        req.Code,
			Description: req.Description,
			Level:       req.Level,
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/roles/"+role.ID)
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	parts := trimPathSegment(r.URL.Path, "/v1/roles/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleRole(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		a.handleRoleStatus(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRoleGrant(w, r, parts[0], "permission")
	case len(parts) == 2 && parts[1] == "modules":
		a.handleRoleGrant(w, r, parts[0], "module")
	case len(parts) == 3 && parts[1] == "permissions":
		a.handleRoleRevoke(w, r, parts[0], "permission", parts[2])
	case len(parts) == 3 && parts[1] == "modules":
		a.handleRoleRevoke(w, r, parts[0], "module", parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireRoleManager(w, r); !ok {
			return
		}
		role, err := a.store.Roles(r.Context()).Find(r.Context(), roleID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if _, ok := a.requireRoleManager(w, r); !ok {
			return
		}
		if err := a.service.DeleteRole(r.Context(), roleID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleRoleStatus(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if _, ok := a.requireRoleManager(w, r); !ok {
		return
	}
	var req statusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.service.SetRoleActive(r.Context(), roleID, req.Active); err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRoleGrant(w http.ResponseWriter, r *http.Request, roleID, kind string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ident, ok := a.requireRoleManager(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grantedBy := ident.ID
	var err error
	if kind == "permission" {
		err = a.service.GrantPermission(r.Context(), roleID, req.PermissionID, &grantedBy)
	} else {
		err = a.service.GrantModule(r.Context(), roleID, req.ModuleID, &grantedBy)
	}
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRoleRevoke(w http.ResponseWriter, r *http.Request, roleID, kind, targetID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if _, ok := a.requireRoleManager(w, r); !ok {
		return
	}
	var err error
	if kind == "permission" {
		err = a.service.RevokePermission(r.Context(), roleID, targetID)
	} else {
		err = a.service.RevokeModule(r.Context(), roleID, targetID)
	}
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- profiles ---

type createProfileRequest struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Status         string `json:"status"`
	EmployeeID     string `json:"employee_id"`
	Department     string `json:"department"`
	JobTitle       string `json:"job_title"`
}

type assignRoleRequest struct {
	RoleID    string `json:"role_id"`
	IsPrimary bool   `json:"is_primary"`
}

type profileStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireUserManager(w, r); !ok {
		return
	}
	var req createProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	profile, err := a.service.CreateProfile(r.Context(), rbac.ProfileParams{
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		Status:         rbac.ProfileStatus(req.Status),
		EmployeeID:     req.EmployeeID,
		Department:     req.Department,
		JobTitle:       req.JobTitle,
	})
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/profiles/"+profile.ID)
	writeJSON(w, http.StatusCreated, profile)
}

func (a *API) handleProfileResource(w http.ResponseWriter, r *http.Request) {
	parts := trimPathSegment(r.URL.Path, "/v1/profiles/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleProfile(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		a.handleProfileStatus(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "restore":
		a.handleProfileAction(w, r, parts[0], a.service.RestoreProfile)
	case len(parts) == 2 && parts[1] == "unlock":
		a.handleProfileAction(w, r, parts[0], a.service.UnlockProfile)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleProfileRoles(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "roles":
		a.handleProfileRoleRevoke(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request, profileID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireUserManager(w, r); !ok {
			return
		}
		profile, err := a.store.Profiles(r.Context()).Find(r.Context(), profileID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	case http.MethodDelete:
		ident, ok := a.requireUserManager(w, r)
		if !ok {
			return
		}
		deletedBy := ident.ID
		if err := a.service.SoftDeleteProfile(r.Context(), profileID, &deletedBy); err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleProfileStatus(w http.ResponseWriter, r *http.Request, profileID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if _, ok := a.requireUserManager(w, r); !ok {
		return
	}
	var req profileStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	profile, err := a.service.SetProfileStatus(r.Context(), profileID, rbac.ProfileStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleProfileAction(w http.ResponseWriter, r *http.Request, profileID string, action func(ctx context.Context, id string) error) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireUserManager(w, r); !ok {
		return
	}
	if err := action(r.Context(), profileID); err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleProfileRoles(w http.ResponseWriter, r *http.Request, profileID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ident, ok := a.requireUserManager(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	assignedBy := ident.ID
	if err := a.service.AssignRole(r.Context(), profileID, req.RoleID, &assignedBy, req.IsPrimary); err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *API) handleProfileRoleRevoke(w http.ResponseWriter, r *http.Request, profileID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if _, ok := a.requireUserManager(w, r); !ok {
		return
	}
	if err := a.service.RevokeRole(r.Context(), profileID, roleID); err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
