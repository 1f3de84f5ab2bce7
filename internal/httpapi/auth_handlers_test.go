package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"opsdesk.org/internal/directory"
)

func newTestAPI(t *testing.T) (*API, *directory.Memory) {
	t.Helper()
	dir := directory.NewMemory()
	if _, err := dir.SeedUser("alice@example.com", "Alice Cooper", "s3cret", []directory.Membership{
		{CompanyID: "company-1", CompanyName: "Acme", Role: "admin"},
		{CompanyID: "company-2", CompanyName: "Globex", Role: "employee"},
	}); err != nil {
		t.Fatalf("SeedUser: %v", err)
	}
	api, err := New(Config{Secret: "test-secret"}, dir, dir, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return api, dir
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLoginSuccess(t *testing.T) {
	api, _ := newTestAPI(t)

	rr := postJSON(t, api.Handler(), "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "s3cret",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" || resp.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", resp)
	}
	if !strings.Contains(resp.RefreshToken, ".") {
		t.Fatalf("refresh token %q not in id.secret form", resp.RefreshToken)
	}
	if resp.Email != "alice@example.com" || resp.Name != "Alice Cooper" {
		t.Fatalf("unexpected identity: %+v", resp)
	}
	if len(resp.Companies) != 2 || resp.Companies[0].CompanyID != "company-1" || resp.Companies[1].Role != "employee" {
		t.Fatalf("unexpected companies: %+v", resp.Companies)
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Fatalf("expiry %v not in the future", resp.ExpiresAt)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	api, _ := newTestAPI(t)

	rr := postJSON(t, api.Handler(), "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "nope",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "invalid credentials" {
		t.Fatalf("error = %v", body["error"])
	}
	if rid, _ := body["request_id"].(string); rid == "" {
		t.Fatalf("error body missing request_id: %v", body)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	api, _ := newTestAPI(t)

	rr := postJSON(t, api.Handler(), "/api/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "s3cret",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestLoginNoMemberships(t *testing.T) {
	dir := directory.NewMemory()
	if _, err := dir.SeedUser("lonely@example.com", "Lonely", "s3cret", nil); err != nil {
		t.Fatalf("SeedUser: %v", err)
	}
	api, err := New(Config{Secret: "test-secret"}, dir, dir, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rr := postJSON(t, api.Handler(), "/api/auth/login", map[string]string{
		"email":    "lonely@example.com",
		"password": "s3cret",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestLoginRejectsBadBody(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.c","extra":true}`))
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestLoginMethodNotAllowed(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); allow != "POST" {
		t.Fatalf("Allow = %q", allow)
	}
}

func TestRefreshRotation(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	login := postJSON(t, h, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "s3cret",
	})
	if login.Code != http.StatusOK {
		t.Fatalf("login status = %d", login.Code)
	}
	var first loginResponse
	if err := json.Unmarshal(login.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	refresh := postJSON(t, h, "/api/auth/refresh", map[string]string{
		"refresh_token": first.RefreshToken,
	})
	if refresh.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", refresh.Code, refresh.Body.String())
	}
	var second loginResponse
	if err := json.Unmarshal(refresh.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}
	if second.UserID != first.UserID || len(second.Companies) != 2 {
		t.Fatalf("refresh payload lost identity: %+v", second)
	}

	// Rotation consumed the old token.
	replay := postJSON(t, h, "/api/auth/refresh", map[string]string{
		"refresh_token": first.RefreshToken,
	})
	if replay.Code != http.StatusUnauthorized {
		t.Fatalf("replayed token status = %d, want 401", replay.Code)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	api, _ := newTestAPI(t)

	rr := postJSON(t, api.Handler(), "/api/auth/refresh", map[string]string{
		"refresh_token": "not-a-token",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
	}
}
