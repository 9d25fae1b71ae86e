package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/sydlexius/camwatch/internal/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeVerifier map[string]*auth.Principal

func (f fakeVerifier) Verify(_ context.Context, token string) (*auth.Principal, error) {
	if p, ok := f[token]; ok {
		return p, nil
	}
	return nil, auth.ErrUnauthenticated
}

var testVerifier = fakeVerifier{
	"admin-token":  {Subject: "a", Email: "admin@example.com", Admin: true},
	"viewer-token": {Subject: "v", Email: "viewer@example.com"},
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(testVerifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := PrincipalFromContext(r.Context()); p == nil || !p.Admin {
			t.Error("principal missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusForbidden},
		{"malformed header", "Basic abc", http.StatusForbidden},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"non-admin", "Bearer viewer-token", http.StatusForbidden},
		{"admin", "Bearer admin-token", http.StatusOK},
		{"lowercase scheme", "bearer admin-token", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/update-camera-info", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	var gotAdmin bool
	var gotPrincipal *auth.Principal
	handler := OptionalAuth(testVerifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAdmin = IsAdmin(r.Context())
		gotPrincipal = PrincipalFromContext(r.Context())
	}))

	tests := []struct {
		name      string
		header    string
		admin     bool
		principal bool
	}{
		{"anonymous", "", false, false},
		{"invalid token stays anonymous", "Bearer nope", false, false},
		{"viewer", "Bearer viewer-token", false, true},
		{"admin", "Bearer admin-token", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status-cameras", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
			if gotAdmin != tt.admin || (gotPrincipal != nil) != tt.principal {
				t.Errorf("admin = %v principal = %v", gotAdmin, gotPrincipal)
			}
		})
	}
}

func TestWithPrincipal(t *testing.T) {
	if IsAdmin(context.Background()) || PrincipalFromContext(context.Background()) != nil {
		t.Error("empty context should carry no principal")
	}
	ctx := WithPrincipal(context.Background(), &auth.Principal{Subject: "ops", Email: "ops@example.com", Admin: true, Method: "test"})
	if !IsAdmin(ctx) || PrincipalFromContext(ctx).Email != "ops@example.com" {
		t.Error("WithPrincipal should attach an admin principal")
	}
}
