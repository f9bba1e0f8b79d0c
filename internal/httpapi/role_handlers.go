package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"accessd.org/internal/rbac"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

type assignResourcesRequest struct {
	ResourceIDs []int64 `json:"resource_ids"`
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireResource(w, r, rbac.ResourceGetAllRoles) {
			return
		}
		roles, err := a.svc.ListRoles(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, roles)
	case http.MethodPost:
		if !a.requireResource(w, r, rbac.ResourceCreateRole) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), req.Name, req.Description, req.Active)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "access.role.create", "role", role.ID, map[string]string{
			"name": role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%d", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id, ok := pathID(parts[0])
	if !ok {
		writeError(w, r, http.StatusNotFound, "role not found")
		return
	}

	switch {
	case len(parts) == 1:
		a.roleByID(w, r, id)
	case len(parts) == 2 && parts[1] == "resources":
		a.roleResources(w, r, id)
	case len(parts) == 2 && parts[1] == "claims":
		a.roleClaims(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) roleByID(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireResource(w, r, rbac.ResourceGetRoleByID) {
			return
		}
		role, err := a.svc.GetRole(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPut:
		if !a.requireResource(w, r, rbac.ResourceUpdateRole) {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.UpdateRole(r.Context(), id, rbac.RoleUpdate{
			Name:        req.Name,
			Description: req.Description,
			Active:      req.Active,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "access.role.update", "role", role.ID, nil)
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if !a.requireResource(w, r, rbac.ResourceDeleteRole) {
			return
		}
		if err := a.svc.DeleteRole(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "access.role.delete", "role", id, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) roleResources(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireResource(w, r, rbac.ResourceGetResourcesByRoleID) {
			return
		}
		role, err := a.svc.GetRole(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role.Resources)
	case http.MethodPut:
		if !a.requireResource(w, r, rbac.ResourceAssignResources) {
			return
		}
		var req assignResourcesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.AssignResourcesToRole(r.Context(), id, req.ResourceIDs); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "access.role.assign_resources", "role", id, map[string]string{
			"count": fmt.Sprintf("%d", len(req.ResourceIDs)),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) roleClaims(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodPut:
		if !a.requireResource(w, r, rbac.ResourceUpdateRole) {
			return
		}
		var req claimRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		err := a.svc.ReplaceRoleClaim(r.Context(), id, rbac.Claim{
			Type: req.Type, Value: req.Value,
			Issuer: req.Issuer, ValueType: req.ValueType,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if !a.requireResource(w, r, rbac.ResourceUpdateRole) {
			return
		}
		deleted, err := a.svc.DeleteRoleClaim(r.Context(), id,
			r.URL.Query().Get("type"), r.URL.Query().Get("value"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}
