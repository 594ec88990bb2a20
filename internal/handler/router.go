package handler

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/observability/metrics"
	"github.com/fintrack/fintrack/internal/security"
	"github.com/fintrack/fintrack/internal/security/audit"
	"github.com/fintrack/fintrack/internal/security/auth"
	"github.com/fintrack/fintrack/internal/security/middleware"
	"github.com/fintrack/fintrack/internal/security/ratelimit"
	"github.com/fintrack/fintrack/internal/service"
)

// Dependencies are the collaborators the HTTP surface is built from
type Dependencies struct {
	Logger   *slog.Logger
	Store    domain.Store
	Sessions domain.SessionStore
	Tokens   *auth.TokenManager
	Limiter  *ratelimit.Limiter
	Audit    *audit.Logger
	Authz    *security.AuthorizationService

	Auth          *service.AuthService
	Profiles      *service.ProfileService
	Subscriptions *service.SubscriptionService
	Gate          *service.CapabilityGate
	Clients       *service.ClientService
	Catalog       *service.TierCatalog
	Stats         *service.StatisticsAggregator

	CORSAllowedOrigins    []string
	MetricsIgnorePrefixes []string
	StatsStream           bool
	StatsStreamInterval   time.Duration
}

// NewRouter wires every route and wraps the mux in the middleware chain:
// tracing -> request ID -> CORS -> authentication -> rate limit -> audit -> input checks
func NewRouter(deps Dependencies) http.Handler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger(log)
	}
	if deps.Authz == nil {
		deps.Authz = security.NewAuthorizationService(log)
	}

	mux := http.NewServeMux()
	recorder := metrics.NewRecorder(deps.MetricsIgnorePrefixes)
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, recorder.InstrumentRoute(pattern, h))
	}
	require := func(perm security.Permission, h http.HandlerFunc) http.Handler {
		return middleware.RequirePermission(deps.Authz, deps.Audit, perm)(h)
	}

	health := NewHealthHandler(deps.Store, deps.Sessions, log)
	handle("GET /health", http.HandlerFunc(health.Health))
	handle("GET /healthz", http.HandlerFunc(health.Live))
	handle("GET /readyz", http.HandlerFunc(health.Ready))
	handle("GET /metrics", metrics.Handler(deps.Stats, deps.Sessions, log))

	authH := NewAuthHandler(deps.Auth, deps.Audit, log)
	handle("POST /api/auth/register", middleware.RequireJSONFields(log, "username", "email", "password")(http.HandlerFunc(authH.Register)))
	handle("POST /api/auth/login", middleware.RequireJSONFields(log, "password")(http.HandlerFunc(authH.Login)))
	handle("POST /api/auth/logout", http.HandlerFunc(authH.Logout))
	handle("POST /api/auth/change-password", http.HandlerFunc(authH.ChangePassword))

	profile := NewProfileHandler(deps.Profiles, deps.Auth, deps.Store.Users(), log)
	handle("GET /api/profile", require(security.PermManageOwnProfile, profile.Get))
	handle("PUT /api/profile", require(security.PermManageOwnProfile, profile.Update))

	subs := NewSubscriptionHandler(deps.Subscriptions, deps.Audit, log)
	handle("GET /api/subscription", require(security.PermManageOwnTier, subs.Plans))
	handle("POST /api/subscription/upgrade", require(security.PermManageOwnTier, subs.Upgrade))
	handle("POST /api/subscription/downgrade", require(security.PermManageOwnTier, subs.Downgrade))

	handle("GET /api/capabilities/{capability}", NewCapabilityHandler(deps.Gate, log))

	conv := NewConverterHandler(log)
	handle("GET /api/converter", require(security.PermUseConverter, conv.Rates))
	handle("POST /api/converter/convert", require(security.PermUseConverter, conv.Convert))

	clients := NewClientsHandler(deps.Clients, deps.Audit, log)
	handle("GET /api/clients", require(security.PermManageClients, clients.List))
	handle("GET /api/clients/{id}", require(security.PermManageClients, clients.Get))
	handle("PUT /api/clients/{id}", require(security.PermManageClients, clients.Update))

	tiers := NewTiersHandler(deps.Catalog, deps.Audit, log)
	handle("GET /api/tiers", require(security.PermManageTiers, tiers.List))
	handle("PUT /api/tiers/{id}", require(security.PermManageTiers, tiers.Update))
	handle("DELETE /api/tiers/{id}", require(security.PermManageTiers, tiers.Delete))

	stats := NewStatsHandler(deps.Stats, log)
	handle("GET /api/stats", require(security.PermViewStatistics, stats.ServeHTTP))
	if deps.StatsStream {
		stream := NewStatsStreamHandler(deps.Stats, deps.StatsStreamInterval, deps.CORSAllowedOrigins, log)
		handle("GET /ws/stats", require(security.PermViewStatistics, stream.ServeHTTP))
	}

	var root http.Handler = mux
	root = middleware.ValidateJSONContentType(log)(root)
	root = middleware.SanitizeInputs(log)(root)
	root = middleware.Audit(deps.Audit)(root)
	if deps.Limiter != nil {
		root = middleware.RateLimit(deps.Limiter, log)(root)
	}
	root = middleware.Authenticate(deps.Tokens, deps.Sessions, log)(root)
	root = middleware.CORS(deps.CORSAllowedOrigins)(root)
	root = middleware.RequestID(log)(root)
	return otelhttp.NewHandler(root, "fintrack")
}
