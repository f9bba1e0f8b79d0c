package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"accessd.org/internal/rbac"
)

type createResourceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateResourceRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (a *API) handleResourcesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireResource(w, r, rbac.ResourceGetAllResources) {
			return
		}
		resources, err := a.svc.ListResources(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resources)
	case http.MethodPost:
		if !a.requireResource(w, r, rbac.ResourceCreateResource) {
			return
		}
		var req createResourceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		res, err := a.svc.CreateResource(r.Context(), req.Name, req.Description)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "access.resource.create", "resource", res.ID, map[string]string{
			"name": res.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/resources/%d", res.ID))
		writeJSON(w, http.StatusCreated, res)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleResourceResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/resources/"), "/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, ok := pathID(path)
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.requireResource(w, r, rbac.ResourceGetResourceByID) {
			return
		}
		res, err := a.svc.GetResource(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case http.MethodPut:
		if !a.requireResource(w, r, rbac.ResourceUpdateResource) {
			return
		}
		var req updateResourceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		res, err := a.svc.UpdateResource(r.Context(), id, rbac.ResourceUpdate{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "access.resource.update", "resource", res.ID, nil)
		writeJSON(w, http.StatusOK, res)
	case http.MethodDelete:
		if !a.requireResource(w, r, rbac.ResourceDeleteResource) {
			return
		}
		if err := a.svc.DeleteResource(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), "access.resource.delete", "resource", id, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
