package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/security"
	"github.com/fintrack/fintrack/internal/security/audit"
	"github.com/fintrack/fintrack/internal/security/auth"
	"github.com/fintrack/fintrack/internal/security/ratelimit"
)

type ClaimsContextKey struct{}

// Login attempts allowed per client address per window
const (
	LoginAttempts = 5
	LoginWindow   = time.Minute
)

var publicPaths = map[string]bool{
	"/health":            true,
	"/healthz":           true,
	"/readyz":            true,
	"/metrics":           true,
	"/api/auth/register": true,
	"/api/auth/login":    true,
}

func isPublic(path string) bool {
	return publicPaths[path]
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Authenticate validates the bearer token and checks that its session is still open.
// Websocket upgrades may pass the token as ?token= since browsers cannot set headers.
func Authenticate(tm *auth.TokenManager, sessions domain.SessionStore, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := ""
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				var err error
				tokenString, err = auth.ExtractToken(authHeader)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "invalid auth")
					return
				}
			} else if strings.HasPrefix(r.URL.Path, "/ws/") {
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "missing auth")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			open, err := sessions.Exists(r.Context(), claims.SessionID)
			if err != nil {
				log.Error("session lookup failed", slog.String("error", err.Error()))
				writeError(w, http.StatusServiceUnavailable, "session store unavailable")
				return
			}
			if !open {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequirePermission rejects callers whose role lacks perm
func RequirePermission(authz *security.AuthorizationService, auditLog *audit.Logger, perm security.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "missing auth")
				return
			}
			if err := authz.ValidatePermission(security.RoleFor(claims.IsStaff), perm); err != nil {
				auditLog.LogDenied(r.Context(), claims.UserID, string(perm))
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit limits authenticated callers per user and anonymous callers per address.
// Login gets its own stricter budget.
func RateLimit(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/health", "/healthz", "/readyz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			if r.URL.Path == "/api/auth/login" && !limiter.AllowStrict(ip, LoginAttempts, LoginWindow) {
				log.Warn("login rate limit exceeded", slog.String("ip", ip))
				writeError(w, http.StatusTooManyRequests, "too many login attempts")
				return
			}

			key := "ip:" + ip
			if claims := GetClaimsFromContext(r.Context()); claims != nil {
				key = "user:" + strconv.FormatInt(claims.UserID, 10)
			}
			if !limiter.Allow(key) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Audit records every state-changing API call
func Audit(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				var actorID int64
				if claims := GetClaimsFromContext(r.Context()); claims != nil {
					actorID = claims.UserID
				}
				if strings.HasPrefix(r.URL.Path, "/api/") {
					auditLog.LogAction(r.Context(), actorID, strings.ToLower(r.Method), "api", r.URL.Path, "initiated", "")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID attaches a request ID to the context and response headers for traceability
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			ctx := audit.WithRequestID(r.Context(), reqID)
			start := time.Now()

			next.ServeHTTP(w, r.WithContext(ctx))

			log.Info("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration_ms", time.Since(start)),
			)
		})
	}
}

// CORS honors the configured origins and answers preflight requests
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else if len(allowed) > 0 {
				w.Header().Set("Access-Control-Allow-Origin", allowed[0])
			}
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(ClaimsContextKey{}).(*auth.Claims); ok {
		return c
	}
	return nil
}

// WithClaims returns ctx carrying claims, as Authenticate would
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey{}, claims)
}
