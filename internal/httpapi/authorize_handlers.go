package httpapi

import (
	"net/http"
	"strings"
	"time"

	"accessd.org/internal/rbac"
	"accessd.org/internal/stream"
)

type authorizeRequest struct {
	UserName string `json:"user_name"`
	Resource string `json:"resource"`
}

type authorizeResponse struct {
	UserName string `json:"user_name"`
	Resource string `json:"resource"`
	Allowed  bool   `json:"allowed"`
}

// handleAuthorize answers "may this principal act on this resource" for an
// arbitrary principal. The caller itself needs the CheckAccess grant.
func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireResource(w, r, rbac.ResourceCheckAccess) {
		return
	}

	var req authorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.UserName = strings.TrimSpace(req.UserName)
	req.Resource = strings.TrimSpace(req.Resource)

	decision, err := a.az.Authorize(r.Context(), req.UserName, req.Resource)
	if err != nil {
		// An infrastructure failure is never reported as a deny.
		writeError(w, r, http.StatusInternalServerError, "authorization check failed")
		return
	}

	a.decisions.Publish(stream.DecisionEvent{
		Principal: req.UserName,
		Resource:  req.Resource,
		Allowed:   decision.Allowed(),
		RequestID: RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, authorizeResponse{
		UserName: req.UserName,
		Resource: req.Resource,
		Allowed:  decision.Allowed(),
	})
}
