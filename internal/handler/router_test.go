package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/repository/memory"
	"github.com/fintrack/fintrack/internal/security/auth"
	"github.com/fintrack/fintrack/internal/service"
	"github.com/fintrack/fintrack/internal/session"
)

type testServer struct {
	store   *memory.Store
	auth    *service.AuthService
	catalog *service.TierCatalog
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	sessions := session.NewMemoryStore()
	tokens := auth.NewTokenManager("test-secret", "")

	prov := service.NewProvisioningService(store, log)
	authSvc := service.NewAuthService(store, sessions, tokens, time.Hour, prov, log)
	authSvc.OnIdentityCreated(prov.HandleIdentityCreated)
	authSvc.OnIdentityUpdated(prov.SyncIdentity)
	transitions := service.NewTierTransitionService(store, log)
	catalog := service.NewTierCatalog(store, log)

	h := NewRouter(Dependencies{
		Logger:        log,
		Store:         store,
		Sessions:      sessions,
		Tokens:        tokens,
		Auth:          authSvc,
		Profiles:      service.NewProfileService(store, prov, log),
		Subscriptions: service.NewSubscriptionService(store.Clients(), transitions),
		Gate:          service.NewCapabilityGate(store.Clients()),
		Clients:       service.NewClientService(store, transitions, log),
		Catalog:       catalog,
		Stats:         service.NewStatisticsAggregator(store.Clients()),
	})
	return &testServer{store: store, auth: authSvc, catalog: catalog, handler: h}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func (s *testServer) register(t *testing.T, username string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register", "",
		`{"username":"`+username+`","email":"`+username+`@example.com","password":"Password123","firstName":"Ivan","lastName":"Petrov","client":{"middleName":"Ivanovich"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", username, rec.Code, rec.Body.String())
	}
	return decode[service.RegisterResult](t, rec).Token
}

func (s *testServer) staffToken(t *testing.T) string {
	t.Helper()
	hash, err := auth.HashPassword("StaffPassword1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	staff := &domain.User{Username: "admin", Email: "admin@example.com", PasswordHash: hash, IsStaff: true, IsActive: true}
	if err := s.store.Users().Create(context.Background(), staff); err != nil {
		t.Fatalf("create staff: %v", err)
	}
	rec := s.do(t, http.MethodPost, "/api/auth/login", "", `{"login":"admin","password":"StaffPassword1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("staff login: %d %s", rec.Code, rec.Body.String())
	}
	return decode[service.LoginResult](t, rec).Token
}

func TestRegisterProvisionsClient(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "ivan")

	rec := s.do(t, http.MethodGet, "/api/profile", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: %d %s", rec.Code, rec.Body.String())
	}
	profile := decode[ProfileResponse](t, rec)
	if profile.Client == nil {
		t.Fatalf("registration did not provision a client")
	}
	if profile.Client.FullName != "Petrov Ivan Ivanovich" || profile.Client.Tier.Name != domain.TierBasic || profile.Client.IsPremium {
		t.Fatalf("unexpected client: %+v", profile.Client)
	}
	if !profile.Profile.HasClientData {
		t.Fatalf("profile not linked to client")
	}
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ivan")

	rec := s.do(t, http.MethodPost, "/api/auth/register", "", `{"username":"other","email":"IVAN@example.com","password":"Password123"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", rec.Code, rec.Body.String())
	}
	if msg := decode[ErrorResponse](t, rec).Error; msg != "user with this email already exists" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestUpgradeFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "ivan")

	rec := s.do(t, http.MethodPost, "/api/subscription/upgrade", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a Premium tier, got %d", rec.Code)
	}

	if _, err := s.catalog.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec = s.do(t, http.MethodGet, "/api/capabilities/export_data", token, "")
	if got := decode[CapabilityResponse](t, rec); got.Allowed || got.IsPremium {
		t.Fatalf("basic client allowed export: %+v", got)
	}

	rec = s.do(t, http.MethodPost, "/api/subscription/upgrade", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("upgrade: %d %s", rec.Code, rec.Body.String())
	}
	if resp := decode[TierChangeResponse](t, rec); !resp.Client.IsPremium {
		t.Fatalf("upgrade response not premium: %+v", resp.Client)
	}

	rec = s.do(t, http.MethodGet, "/api/capabilities/export_data", token, "")
	if got := decode[CapabilityResponse](t, rec); !got.Allowed || !got.IsPremium {
		t.Fatalf("premium client denied export: %+v", got)
	}

	rec = s.do(t, http.MethodGet, "/api/subscription", token, "")
	plans := decode[map[string][]service.Plan](t, rec)["plans"]
	if len(plans) != 2 || !plans[1].IsCurrent || plans[0].IsCurrent {
		t.Fatalf("unexpected plans: %+v", plans)
	}
}

func TestStaffEndpointsRequireStaff(t *testing.T) {
	s := newTestServer(t)
	userToken := s.register(t, "ivan")

	for _, path := range []string{"/api/clients", "/api/tiers", "/api/stats"} {
		if rec := s.do(t, http.MethodGet, path, userToken, ""); rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for regular user, got %d", path, rec.Code)
		}
	}
	if rec := s.do(t, http.MethodGet, "/api/clients", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// Owning the record does not open the staff routes; users reach it through /api/profile.
	own := "/api/clients/1"
	if rec := s.do(t, http.MethodGet, own, userToken, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 reading own client by id, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPut, own, userToken, `{"tierId":1}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 editing own client by id, got %d", rec.Code)
	}
}

func TestStaffClientAndTierAdministration(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ivan")
	s.register(t, "petr")
	staff := s.staffToken(t)

	rec := s.do(t, http.MethodGet, "/api/clients?q=petr@example", staff, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	list := decode[ClientListResponse](t, rec)
	if list.TotalCount != 1 || len(list.Clients) != 1 {
		t.Fatalf("expected one match, got %+v", list)
	}
	client := list.Clients[0]

	rec = s.do(t, http.MethodPut, "/api/clients/"+itoa(client.ID), staff, `{"city":"Almaty","isActive":false,"birthDate":"1990-05-17"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	updated := decode[ClientResponse](t, rec)
	if updated.City != "Almaty" || updated.IsActive || updated.BirthDate != "1990-05-17" {
		t.Fatalf("update not applied: %+v", updated)
	}

	rec = s.do(t, http.MethodGet, "/api/stats", staff, "")
	stats := decode[domain.ClientStatistics](t, rec)
	if stats.Total != 2 || stats.Active != 1 || stats.Inactive != 1 || stats.Basic != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	rec = s.do(t, http.MethodDelete, "/api/tiers/"+itoa(client.Tier.ID), staff, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 deleting a tier in use, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPut, "/api/tiers/"+itoa(client.Tier.ID), staff, `{"canExportData":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("tier update: %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodGet, "/api/clients/"+itoa(client.ID), staff, "")
	if got := decode[ClientResponse](t, rec); !got.Tier.CanExportData {
		t.Fatalf("tier edit not visible on client: %+v", got.Tier)
	}

	if rec := s.do(t, http.MethodGet, "/api/clients/999", staff, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown client, got %d", rec.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "ivan")

	if rec := s.do(t, http.MethodPost, "/api/auth/logout", token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/profile", token, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ivan")

	if rec := s.do(t, http.MethodPost, "/api/auth/login", "", `{"login":"ivan","password":"nope-nope"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/auth/login", "", `{"login":"ivan"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", rec.Code)
	}
}

func TestProfileUpdate(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "ivan")
	s.register(t, "petr")

	rec := s.do(t, http.MethodPut, "/api/profile", token, `{"user":{"lastName":"Sidorov"},"profile":{"bio":"hello"},"client":{"phone":"+77010000000"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	profile := decode[ProfileResponse](t, rec)
	if profile.User.LastName != "Sidorov" || profile.Client.LastName != "Sidorov" || profile.Profile.Bio != "hello" || profile.Client.Phone != "+77010000000" {
		t.Fatalf("profile update not applied: %+v %+v", profile.User, profile.Client)
	}

	rec = s.do(t, http.MethodPut, "/api/profile", token, `{"client":{"email":"petr@example.com"}}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate client email, got %d", rec.Code)
	}
}

func TestProfileUpdateRejectsInvalidClientData(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "ivan")

	long := strings.Repeat("a", 60)
	for _, body := range []string{
		`{"client":{"firstName":"` + long + `"}}`,
		`{"user":{"firstName":"` + long + `"}}`,
		`{"client":{"phone":"auto9"}}`,
	} {
		rec := s.do(t, http.MethodPut, "/api/profile", token, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d %s", body, rec.Code, rec.Body.String())
		}
	}

	rec := s.do(t, http.MethodPost, "/api/auth/register", "",
		`{"username":"petr","email":"petr@example.com","password":"Password123","client":{"phone":"AUTO3"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for reserved phone at registration, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestConverterEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "ivan")

	rec := s.do(t, http.MethodPost, "/api/converter/convert", token, `{"amount":"100","from":"USD","to":"EUR"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("convert: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"value":"93"`) {
		t.Fatalf("unexpected conversion: %s", rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/api/converter/convert", token, `{"amount":"1","from":"USD","to":"BTC"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown code, got %d", rec.Code)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if got := decode[HealthResponse](t, rec); got.Status != "ok" || got.Database != "ok" || got.Detail != "healthy" {
		t.Fatalf("unexpected health: %+v", got)
	}

	h := NewHealthHandler(failingPinger{}, failingPinger{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when database is down, got %d", rec.Code)
	}
	if got := decode[HealthResponse](t, rec); got.Status != "error" || got.Detail != "connection refused" {
		t.Fatalf("unexpected failing health: %+v", got)
	}

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from readiness, got %d", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
