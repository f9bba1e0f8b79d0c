package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"accessd.org/internal/audit"
	"accessd.org/internal/auth"
	"accessd.org/internal/stream"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/openapi.yaml",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				respondError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			respondError(w, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireResource runs the authorization check for the authenticated caller
// against the named resource. Every check, allowed or denied, is published
// on the decision stream. Reports whether the handler may proceed; on false
// the response has already been written.
func (a *API) requireResource(w http.ResponseWriter, r *http.Request, resourceName string) bool {
	principal, ok := auth.UserNameFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return false
	}

	decision, err := a.az.Authorize(r.Context(), principal, resourceName)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authorization check failed")
		return false
	}

	a.decisions.Publish(stream.DecisionEvent{
		Principal: principal,
		Resource:  resourceName,
		Allowed:   decision.Allowed(),
		RequestID: RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC(),
	})

	if !decision.Allowed() {
		_ = audit.LogEvent(r.Context(), "authz.deny", map[string]any{
			"resource": resourceName,
		})
		writeError(w, r, http.StatusForbidden, "access denied")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
