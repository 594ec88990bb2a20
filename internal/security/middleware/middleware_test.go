package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fintrack/fintrack/internal/security"
	"github.com/fintrack/fintrack/internal/security/audit"
	"github.com/fintrack/fintrack/internal/security/auth"
	"github.com/fintrack/fintrack/internal/security/ratelimit"
	"github.com/fintrack/fintrack/internal/session"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func issue(t *testing.T, tm *auth.TokenManager, sessions *session.MemoryStore, staff bool) (string, string) {
	t.Helper()
	sid, err := sessions.Create(context.Background(), 7, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	token, err := tm.GenerateToken(7, sid, "ivan", staff, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token, sid
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestAuthenticate(t *testing.T) {
	tm := auth.NewTokenManager("secret", "")
	sessions := session.NewMemoryStore()
	h := Authenticate(tm, sessions, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaimsFromContext(r.Context()) == nil {
			t.Errorf("claims missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))
	token, sid := issue(t, tm, sessions, false)

	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/profile", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if rec := serve(h, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}

	ws := httptest.NewRequest(http.MethodGet, "/ws/stats?token="+token, nil)
	if rec := serve(h, ws); rec.Code != http.StatusOK {
		t.Fatalf("expected query token on websocket path to pass, got %d", rec.Code)
	}
	api := httptest.NewRequest(http.MethodGet, "/api/profile?token="+token, nil)
	if rec := serve(h, api); rec.Code != http.StatusUnauthorized {
		t.Fatalf("query token must not work outside websocket paths, got %d", rec.Code)
	}

	_ = sessions.Revoke(context.Background(), sid)
	req = httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if rec := serve(h, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestAuthenticateSkipsPublicPaths(t *testing.T) {
	h := Authenticate(auth.NewTokenManager("secret", ""), session.NewMemoryStore(), nil)(okHandler)
	for _, path := range []string{"/health", "/metrics", "/api/auth/login", "/api/auth/register"} {
		if rec := serve(h, httptest.NewRequest(http.MethodPost, path, nil)); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected public access, got %d", path, rec.Code)
		}
	}
}

func TestRequirePermission(t *testing.T) {
	h := RequirePermission(security.NewAuthorizationService(nil), audit.NewLogger(nil), security.PermManageClients)(okHandler)

	user := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	user = user.WithContext(WithClaims(user.Context(), &auth.Claims{UserID: 1}))
	if rec := serve(h, user); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for regular user, got %d", rec.Code)
	}

	staff := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	staff = staff.WithContext(WithClaims(staff.Context(), &auth.Claims{UserID: 2, IsStaff: true}))
	if rec := serve(h, staff); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for staff, got %d", rec.Code)
	}
}

func TestRateLimitLogin(t *testing.T) {
	limiter := ratelimit.NewLimiter(1000, time.Minute)
	defer limiter.Stop()
	h := RateLimit(limiter, slogDiscard())(okHandler)

	for i := 0; i < LoginAttempts; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		if rec := serve(h, req); rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	if rec := serve(h, req); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d attempts, got %d", LoginAttempts, rec.Code)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	other.RemoteAddr = "10.1.1.1:5000"
	if rec := serve(h, other); rec.Code != http.StatusOK {
		t.Fatalf("other address should not be limited, got %d", rec.Code)
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	h := RequestID(slogDiscard())(CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if audit.RequestID(r.Context()) == "" {
			t.Errorf("request id not in context")
		}
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := serve(h, req)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("unexpected origin header %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	preflight := httptest.NewRequest(http.MethodOptions, "/api/profile", nil)
	if rec := serve(h, preflight); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
}

func TestRequireJSONFieldsRestoresBody(t *testing.T) {
	h := RequireJSONFields(slogDiscard(), "username", "password")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(r.Body); err != nil || !strings.Contains(buf.String(), "ivan") {
			t.Errorf("body not restored: %q %v", buf.String(), err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	good := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"ivan","password":"x"}`))
	if rec := serve(h, good); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	missing := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"ivan"}`))
	if rec := serve(h, missing); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing field, got %d", rec.Code)
	}
	broken := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{`))
	if rec := serve(h, broken); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for broken json, got %d", rec.Code)
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
