package api

import (
	"net/http"
	"testing"
)

func TestSetupAndLogin(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/setup", "", map[string]string{
		"username": "admin",
		"password": "correct-horse-battery",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("setup status = %d, want 201 (body %q)", rec.Code, rec.Body.String())
	}

	// Setup only works once.
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/setup", "", map[string]string{
		"username": "admin2",
		"password": "correct-horse-battery",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second setup status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "correct-horse-battery",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}

	var login loginResponse
	decodeData(t, rec, &login)
	if login.Token == "" {
		t.Fatal("login returned no token")
	}
	if login.Username != "admin" {
		t.Errorf("username = %q, want admin", login.Username)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/auth/me", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, want 200", rec.Code)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	srv, _, _ := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/api/v1/setup", "", map[string]string{
		"username": "admin",
		"password": "correct-horse-battery",
	})

	tests := []struct {
		name string
		body map[string]string
	}{
		{"wrong password", map[string]string{"username": "admin", "password": "wrong-password-1"}},
		{"unknown user", map[string]string{"username": "nobody", "password": "correct-horse-battery"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", "", tt.body)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if msg := envelopeError(t, rec); msg != "invalid credentials" {
				t.Errorf("error = %q, want invalid credentials", msg)
			}
		})
	}
}

func TestSetupValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/setup", "", map[string]string{
		"username": "admin",
		"password": "short",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	paths := []string{
		"/api/v1/auth/me",
		"/api/v1/calls",
		"/api/v1/customers/1",
		"/api/v1/dashboard/stats",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodGet, path, "", nil)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}

	// A garbage token is rejected too.
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/auth/me", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHealthUnauthenticated(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status map[string]string
	decodeData(t, rec, &status)
	if status["status"] != "ok" {
		t.Errorf("status = %q, want ok", status["status"])
	}
}
