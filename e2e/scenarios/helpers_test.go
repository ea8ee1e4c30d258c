//go:build e2e
// +build e2e

package scenarios

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"stock-analyst/e2e"
)

func setupHarness(t *testing.T, mode string) *e2e.TestHarness {
	t.Helper()
	e2e.RequireDockerCompose(t)

	harness := e2e.NewTestHarness(t)
	if err := harness.SetupWithMode(mode); err != nil {
		t.Fatalf("failed to setup test harness: %v", err)
	}
	t.Cleanup(harness.Teardown)
	return harness
}

// signup registers an account and returns a bearer token for it
func signup(t *testing.T, h *e2e.TestHarness, email, password string) string {
	t.Helper()

	body := fmt.Sprintf(`{"name":"E2E User","email":%q,"password":%q}`, email, password)
	if resp := h.DoRequest(http.MethodPost, "/api/register", body); resp.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp := h.DoRequest(http.MethodPost, "/api/login", fmt.Sprintf(`{"email":%q,"password":%q}`, email, password))
	if resp.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var login struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decode(t, resp.Body.Bytes(), &login)
	if login.AccessToken == "" || login.TokenType != "bearer" {
		t.Fatalf("unexpected login response: %s", resp.Body.String())
	}
	return login.AccessToken
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("failed to decode %s: %v", string(body), err)
	}
}
