package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func tokenAuth(t *testing.T) *Auth {
	t.Helper()
	return NewAuth(nil, ServerConfig{
		Security: SecurityConfig{AdminToken: "grade-master-token"},
	})
}

func TestAuthenticateRequestAdminToken(t *testing.T) {
	auth := tokenAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/runs", nil)
	req.Header.Set("X-Admin-Token", "grade-master-token")
	principal, err := auth.AuthenticateRequest(req)
	if err != nil {
		t.Fatalf("header token rejected: %v", err)
	}
	if principal.Role != roleAdmin {
		t.Fatalf("expected admin role, got %q", principal.Role)
	}

	bearer := httptest.NewRequest(http.MethodGet, "/api/v1/admin/runs", nil)
	bearer.Header.Set("Authorization", "Bearer grade-master-token")
	if _, err := auth.AuthenticateRequest(bearer); err != nil {
		t.Fatalf("bearer token rejected: %v", err)
	}

	wrong := httptest.NewRequest(http.MethodGet, "/api/v1/admin/runs", nil)
	wrong.Header.Set("X-Admin-Token", "not-the-token")
	if _, err := auth.AuthenticateRequest(wrong); err == nil {
		t.Fatal("wrong token must not authenticate")
	}
}

func TestRequireAdminBlocksNonAdmins(t *testing.T) {
	auth := tokenAuth(t)
	handler := auth.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	anonymous := httptest.NewRecorder()
	handler.ServeHTTP(anonymous, httptest.NewRequest(http.MethodGet, "/", nil))
	if anonymous.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous, got %d", anonymous.Code)
	}

	asAdmin := httptest.NewRequest(http.MethodGet, "/", nil)
	asAdmin.Header.Set("X-Admin-Token", "grade-master-token")
	admin := httptest.NewRecorder()
	handler.ServeHTTP(admin, asAdmin)
	if admin.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin token, got %d", admin.Code)
	}
}

func TestLoginUnavailableWithoutDatabase(t *testing.T) {
	auth := tokenAuth(t)
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"alice","password":"pw"}`))
	auth.HandleLogin(recorder, request)
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without database, got %d", recorder.Code)
	}
}

func TestSessionCookieDefaults(t *testing.T) {
	auth := NewAuth(nil, ServerConfig{})
	cookie := auth.sessionCookie("tok", true)
	if cookie.Name != "bench_session" {
		t.Fatalf("expected bench_session cookie, got %q", cookie.Name)
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie attributes wrong: %+v", cookie)
	}
}

func TestBearerToken(t *testing.T) {
	if got := bearerToken("Bearer abc"); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := bearerToken("bearer abc"); got != "abc" {
		t.Fatalf("case-insensitive scheme expected, got %q", got)
	}
	if got := bearerToken("Basic abc"); got != "" {
		t.Fatalf("non-bearer scheme must yield empty, got %q", got)
	}
}
