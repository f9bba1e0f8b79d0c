package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"accessd.org/internal/audit"
	"accessd.org/internal/auth"
	"accessd.org/internal/rbac"
)

type tokenRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userName := strings.TrimSpace(req.UserName)
	if userName == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "user_name and password are required")
		return
	}

	user, err := a.svc.GetUserByName(r.Context(), userName)
	if err != nil {
		// An unknown user and a wrong password look the same to the caller.
		if errors.Is(err, rbac.ErrNotFound) || errors.Is(err, rbac.ErrInvalidInput) {
			writeError(w, r, http.StatusUnauthorized, "bad credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication failed")
		return
	}
	if !user.Active {
		writeError(w, r, http.StatusUnauthorized, "bad credentials")
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			writeError(w, r, http.StatusUnauthorized, "bad credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication failed")
		return
	}

	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		if role.Active {
			roles = append(roles, role.Name)
		}
	}

	token, err := auth.GenerateToken(user.UserName, roles, auth.DefaultTokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(auth.DefaultTokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user":       user.UserName,
		"roles":      roles,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
