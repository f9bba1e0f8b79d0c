package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"accessd.org/internal/auth"
	"accessd.org/internal/rbac"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	auth.ResetSecretForTests()
	t.Setenv("ACCESSD_AUTH_SECRET", "test-secret")
	t.Cleanup(auth.ResetSecretForTests)

	store := rbac.NewInMemory()
	svc, err := rbac.NewServiceFromStore(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("ensure builtins: %v", err)
	}
	az, err := rbac.NewAuthorizer(store.Users())
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}

	adminRole := findRoleByName(t, svc, "Administrator")
	hash, err := auth.HashPassword("admin-pass-1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := svc.CreateUser(context.Background(), rbac.NewUser{
		UserName:     "root",
		Email:        "root@example.com",
		PasswordHash: hash,
		Active:       true,
		RoleIDs:      []int64{adminRole.ID},
	}); err != nil {
		t.Fatalf("create admin user: %v", err)
	}

	api := New(svc, az, ReadyProbe{}, "test")
	api.ratePerSec = 100
	api.rateBurst = 100

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func findRoleByName(t *testing.T, svc *rbac.Service, name string) *rbac.Role {
	t.Helper()
	roles, err := svc.ListRoles(context.Background())
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	for _, role := range roles {
		if role.Name == name {
			return role
		}
	}
	t.Fatalf("role %q not found", name)
	return nil
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) put(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPut, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(userName, password string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{
		"user_name": userName,
		"password":  password,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestAPIAccessControlFlow(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken("root", "admin-pass-1"))

	// Create a resource and a role that grants it.
	resp := api.post("/v1/resources", map[string]any{
		"name":        "ViewReports",
		"description": "Read the reporting dashboards",
	}, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create resource: unexpected status %d", resp.StatusCode)
	}
	res := decode[map[string]any](t, resp)
	resourceID := int64(res["id"].(float64))

	resp = api.post("/v1/roles", map[string]any{
		"name":   "Analyst",
		"active": true,
	}, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create role: unexpected status %d", resp.StatusCode)
	}
	role := decode[map[string]any](t, resp)
	roleID := int64(role["id"].(float64))

	resp = api.put(fmt.Sprintf("/v1/roles/%d/resources", roleID), map[string]any{
		"resource_ids": []int64{resourceID},
	}, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("assign resources: unexpected status %d", resp.StatusCode)
	}

	// Create a user holding the role.
	resp = api.post("/v1/users", map[string]any{
		"user_name": "alice",
		"email":     "alice@example.com",
		"password":  "alice-pass-1",
		"active":    true,
		"role_ids":  []int64{roleID},
	}, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: unexpected status %d", resp.StatusCode)
	}
	user := decode[map[string]any](t, resp)
	userID := int64(user["id"].(float64))

	// Grant through the role is visible to the decision endpoint.
	resp = api.post("/v1/authorize", map[string]any{
		"user_name": "alice",
		"resource":  "ViewReports",
	}, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorize: unexpected status %d", resp.StatusCode)
	}
	decision := decode[authorizeResponse](t, resp)
	if !decision.Allowed {
		t.Fatalf("expected alice to be allowed ViewReports")
	}

	// A resource the role never granted is denied with 200, not an error.
	resp = api.post("/v1/authorize", map[string]any{
		"user_name": "alice",
		"resource":  "ExportReports",
	}, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorize deny: unexpected status %d", resp.StatusCode)
	}
	decision = decode[authorizeResponse](t, resp)
	if decision.Allowed {
		t.Fatalf("expected deny for ungranted resource")
	}

	// Replacing the user's roles with a different set removes the grant.
	resp = api.post("/v1/roles", map[string]any{
		"name":   "Empty",
		"active": true,
	}, admin)
	emptyRole := decode[map[string]any](t, resp)
	emptyRoleID := int64(emptyRole["id"].(float64))

	resp = api.put(fmt.Sprintf("/v1/users/%d/roles", userID), map[string]any{
		"role_ids": []int64{emptyRoleID},
	}, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("assign roles: unexpected status %d", resp.StatusCode)
	}

	resp = api.post("/v1/authorize", map[string]any{
		"user_name": "alice",
		"resource":  "ViewReports",
	}, admin)
	decision = decode[authorizeResponse](t, resp)
	if decision.Allowed {
		t.Fatalf("expected deny after roles were replaced")
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/users", map[string]any{
		"user_name": "mallory",
		"email":     "mallory@example.com",
		"password":  "mallory-pass",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestAPIRejectsGarbageToken(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/users", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAPIForbidsUserWithoutGrant(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken("root", "admin-pass-1"))

	// A user with no roles authenticates but holds no resources.
	resp := api.post("/v1/users", map[string]any{
		"user_name": "bob",
		"email":     "bob@example.com",
		"password":  "bob-pass-12",
		"active":    true,
	}, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: unexpected status %d", resp.StatusCode)
	}

	limited := bearerHeader(api.obtainToken("bob", "bob-pass-12"))
	resp = api.get("/v1/users", nil, limited)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestTokenEndpointRejectsBadCredentials(t *testing.T) {
	api := newTestAPI(t)

	for name, body := range map[string]map[string]any{
		"wrong password": {"user_name": "root", "password": "wrong-password"},
		"unknown user":   {"user_name": "ghost", "password": "whatever-123"},
	} {
		resp := api.post("/v1/auth/token", body, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, resp.StatusCode)
		}
	}
}

func TestTokenEndpointRejectsInactiveUser(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken("root", "admin-pass-1"))

	resp := api.post("/v1/users", map[string]any{
		"user_name": "frozen",
		"email":     "frozen@example.com",
		"password":  "frozen-pass",
		"active":    false,
	}, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: unexpected status %d", resp.StatusCode)
	}

	resp = api.post("/v1/auth/token", map[string]any{
		"user_name": "frozen",
		"password":  "frozen-pass",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive user, got %d", resp.StatusCode)
	}
}

func TestDeleteSystemRoleForbidden(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken("root", "admin-pass-1"))

	resp := api.get("/v1/roles", nil, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list roles: unexpected status %d", resp.StatusCode)
	}
	roles := decode[[]map[string]any](t, resp)
	var adminRoleID int64
	for _, role := range roles {
		if role["name"] == "Administrator" {
			adminRoleID = int64(role["id"].(float64))
		}
	}
	if adminRoleID == 0 {
		t.Fatalf("Administrator role missing")
	}

	resp = api.do(http.MethodDelete, fmt.Sprintf("/v1/roles/%d", adminRoleID), nil, admin)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for system role delete, got %d", resp.StatusCode)
	}
}

func TestAssignEmptyRoleSetRejected(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken("root", "admin-pass-1"))

	resp := api.post("/v1/users", map[string]any{
		"user_name": "carol",
		"email":     "carol@example.com",
		"password":  "carol-pass-1",
		"active":    true,
	}, admin)
	user := decode[map[string]any](t, resp)
	userID := int64(user["id"].(float64))

	resp = api.put(fmt.Sprintf("/v1/users/%d/roles", userID), map[string]any{
		"role_ids": []int64{},
	}, admin)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty role set, got %d", resp.StatusCode)
	}
}

func TestCreateUserConflictMapsTo409(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken("root", "admin-pass-1"))

	body := map[string]any{
		"user_name": "dave",
		"email":     "dave@example.com",
		"password":  "dave-pass-12",
		"active":    true,
	}
	resp := api.post("/v1/users", body, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: unexpected status %d", resp.StatusCode)
	}

	resp = api.post("/v1/users", body, admin)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate user, got %d", resp.StatusCode)
	}
}

func TestRevokeRoleByName(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken("root", "admin-pass-1"))

	resp := api.post("/v1/roles", map[string]any{"name": "Temp", "active": true}, admin)
	role := decode[map[string]any](t, resp)
	roleID := int64(role["id"].(float64))

	resp = api.post("/v1/users", map[string]any{
		"user_name": "erin",
		"email":     "erin@example.com",
		"password":  "erin-pass-12",
		"active":    true,
		"role_ids":  []int64{roleID},
	}, admin)
	user := decode[map[string]any](t, resp)
	userID := int64(user["id"].(float64))

	resp = api.do(http.MethodDelete, fmt.Sprintf("/v1/users/%d/roles/Temp", userID), nil, admin)
	out := decode[map[string]bool](t, resp)
	if !out["revoked"] {
		t.Fatalf("expected role to be revoked")
	}

	// Revoking again is a miss, not an error.
	resp = api.do(http.MethodDelete, fmt.Sprintf("/v1/users/%d/roles/Temp", userID), nil, admin)
	out = decode[map[string]bool](t, resp)
	if out["revoked"] {
		t.Fatalf("expected second revoke to report false")
	}
}

func TestAuthorizeRequiresResourceAndPrincipal(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken("root", "admin-pass-1"))

	for name, body := range map[string]map[string]any{
		"blank resource":  {"user_name": "root", "resource": "  "},
		"blank principal": {"user_name": "", "resource": "GetAllUsers"},
	} {
		resp := api.post("/v1/authorize", body, admin)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: unexpected status %d", name, resp.StatusCode)
		}
		decision := decode[authorizeResponse](t, resp)
		if decision.Allowed {
			t.Fatalf("%s: expected deny", name)
		}
	}
}

func TestHealthAndInfoArePublic(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := api.get(path, nil, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}

	resp := api.get("/openapi.yaml", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("openapi: expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/yaml; charset=utf-8" {
		t.Fatalf("unexpected content type: %s", ct)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, map[string]string{"X-Request-Id": "req-test-42"})
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-Id"); got != "req-test-42" {
		t.Fatalf("expected request id echo, got %q", got)
	}

	resp = api.get("/healthz", nil, nil)
	resp.Body.Close()
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id")
	}
}
