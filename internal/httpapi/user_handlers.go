package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"accessd.org/internal/auth"
	"accessd.org/internal/rbac"
)

type createUserRequest struct {
	UserName string  `json:"user_name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Active   bool    `json:"active"`
	RoleIDs  []int64 `json:"role_ids"`
}

type updateUserRequest struct {
	UserName *string `json:"user_name"`
	Email    *string `json:"email"`
	Active   *bool   `json:"active"`
}

type assignRolesRequest struct {
	RoleIDs []int64 `json:"role_ids"`
}

type changePasswordRequest struct {
	Password string `json:"password"`
}

type claimRequest struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Issuer    string `json:"issuer"`
	ValueType string `json:"value_type"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireResource(w, r, rbac.ResourceGetAllUsers) {
			return
		}
		users, err := a.svc.ListUsers(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireResource(w, r, rbac.ResourceCreateUser) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.CreateUser(r.Context(), rbac.NewUser{
		UserName:     req.UserName,
		Email:        req.Email,
		PasswordHash: hash,
		Active:       req.Active,
		RoleIDs:      req.RoleIDs,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r.Context(), "access.user.create", "user", user.ID, map[string]string{
		"user_name": user.UserName,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%d", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id, ok := pathID(parts[0])
	if !ok {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}

	switch {
	case len(parts) == 1:
		a.userByID(w, r, id)
	case len(parts) == 2 && parts[1] == "roles":
		a.userRoles(w, r, id)
	case len(parts) == 3 && parts[1] == "roles":
		a.revokeUserRole(w, r, id, parts[2])
	case len(parts) == 2 && parts[1] == "password":
		a.changePassword(w, r, id)
	case len(parts) == 2 && parts[1] == "claims":
		a.userClaims(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) userByID(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireResource(w, r, rbac.ResourceGetUserByID) {
			return
		}
		user, err := a.svc.GetUser(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		if !a.requireResource(w, r, rbac.ResourceUpdateUser) {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.svc.UpdateUser(r.Context(), id, rbac.UserUpdate{
			UserName: req.UserName,
			Email:    req.Email,
			Active:   req.Active,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "access.user.update", "user", user.ID, nil)
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if !a.requireResource(w, r, rbac.ResourceDeleteUser) {
			return
		}
		if err := a.svc.DeleteUser(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "access.user.delete", "user", id, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) userRoles(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireResource(w, r, rbac.ResourceGetRolesByUserID) {
			return
		}
		user, err := a.svc.GetUser(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user.Roles)
	case http.MethodPut:
		if !a.requireResource(w, r, rbac.ResourceAssignRolesToUser) {
			return
		}
		var req assignRolesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.AssignRolesToUser(r.Context(), id, req.RoleIDs); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "access.user.assign_roles", "user", id, map[string]string{
			"count": fmt.Sprintf("%d", len(req.RoleIDs)),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) revokeUserRole(w http.ResponseWriter, r *http.Request, id int64, roleName string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.requireResource(w, r, rbac.ResourceRevokeRoleFromUser) {
		return
	}
	revoked, err := a.svc.RevokeRole(r.Context(), id, roleName)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if revoked {
		a.audit(r.Context(), "access.user.revoke_role", "user", id, map[string]string{
			"role": roleName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.requireResource(w, r, rbac.ResourceChangePassword) {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ChangePassword(r.Context(), id, hash); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r.Context(), "access.user.change_password", "user", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) userClaims(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodPut:
		if !a.requireResource(w, r, rbac.ResourceUpdateUser) {
			return
		}
		var req claimRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		err := a.svc.ReplaceUserClaim(r.Context(), id, rbac.Claim{
			Type: req.Type, Value: req.Value,
			Issuer: req.Issuer, ValueType: req.ValueType,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if !a.requireResource(w, r, rbac.ResourceUpdateUser) {
			return
		}
		claimType := r.URL.Query().Get("type")
		claimValue := r.URL.Query().Get("value")
		deleted, err := a.svc.DeleteUserClaim(r.Context(), id, claimType, claimValue)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}
