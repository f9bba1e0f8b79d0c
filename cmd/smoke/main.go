package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// End-to-end smoke check against a running accessd-api: log in, build a
// role that grants one resource, attach it to a fresh user and verify
// the decision endpoint allows the grant and denies everything else.
func main() {
	baseURL := os.Getenv("ACCESSD_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	adminUser := os.Getenv("ACCESSD_ADMIN_USER")
	if adminUser == "" {
		adminUser = "admin"
	}
	adminPass := os.Getenv("ACCESSD_ADMIN_PASSWORD")
	if adminPass == "" {
		log.Fatal("ACCESSD_ADMIN_PASSWORD is required")
	}

	c := &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	c.call(http.MethodPost, "/v1/auth/token", map[string]any{
		"user_name": adminUser,
		"password":  adminPass,
	}, http.StatusOK, &tokenResp)
	c.token = tokenResp.Token

	suffix := rand.New(rand.NewSource(time.Now().UnixNano())).Intn(1_000_000)

	var resource struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	c.call(http.MethodPost, "/v1/resources", map[string]any{
		"name":        fmt.Sprintf("SmokeResource%d", suffix),
		"description": "created by the smoke check",
	}, http.StatusCreated, &resource)

	var role struct {
		ID int64 `json:"id"`
	}
	c.call(http.MethodPost, "/v1/roles", map[string]any{
		"name":   fmt.Sprintf("SmokeRole%d", suffix),
		"active": true,
	}, http.StatusCreated, &role)

	c.call(http.MethodPut, fmt.Sprintf("/v1/roles/%d/resources", role.ID), map[string]any{
		"resource_ids": []int64{resource.ID},
	}, http.StatusNoContent, nil)

	userName := fmt.Sprintf("smoke%d", suffix)
	var user struct {
		ID int64 `json:"id"`
	}
	c.call(http.MethodPost, "/v1/users", map[string]any{
		"user_name": userName,
		"email":     userName + "@example.com",
		"password":  fmt.Sprintf("smoke-pass-%d", suffix),
		"active":    true,
		"role_ids":  []int64{role.ID},
	}, http.StatusCreated, &user)

	var decision struct {
		Allowed bool `json:"allowed"`
	}
	c.call(http.MethodPost, "/v1/authorize", map[string]any{
		"user_name": userName,
		"resource":  resource.Name,
	}, http.StatusOK, &decision)
	if !decision.Allowed {
		log.Fatalf("expected allow for %s on %s", userName, resource.Name)
	}

	c.call(http.MethodPost, "/v1/authorize", map[string]any{
		"user_name": userName,
		"resource":  "DeleteUser",
	}, http.StatusOK, &decision)
	if decision.Allowed {
		log.Fatalf("expected deny for %s on DeleteUser", userName)
	}

	// Clean up the smoke fixtures.
	c.call(http.MethodDelete, fmt.Sprintf("/v1/users/%d", user.ID), nil, http.StatusNoContent, nil)
	c.call(http.MethodDelete, fmt.Sprintf("/v1/roles/%d", role.ID), nil, http.StatusNoContent, nil)
	c.call(http.MethodDelete, fmt.Sprintf("/v1/resources/%d", resource.ID), nil, http.StatusNoContent, nil)

	fmt.Printf("✅ accessd smoke test passed: user=%s resource=%s\n", userName, resource.Name)
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *client) call(method, path string, body any, wantStatus int, out any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("%s %s: marshal: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: expected %d, got %d", method, path, wantStatus, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}
