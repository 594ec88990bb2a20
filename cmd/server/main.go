package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/featureflags"
	"github.com/fintrack/fintrack/internal/handler"
	"github.com/fintrack/fintrack/internal/infrastructure/logger"
	"github.com/fintrack/fintrack/internal/infrastructure/redis"
	"github.com/fintrack/fintrack/internal/observability/tracing"
	"github.com/fintrack/fintrack/internal/reliability/retry"
	"github.com/fintrack/fintrack/internal/repository"
	"github.com/fintrack/fintrack/internal/repository/memory"
	"github.com/fintrack/fintrack/internal/security"
	"github.com/fintrack/fintrack/internal/security/audit"
	"github.com/fintrack/fintrack/internal/security/auth"
	"github.com/fintrack/fintrack/internal/security/ratelimit"
	"github.com/fintrack/fintrack/internal/service"
	"github.com/fintrack/fintrack/internal/session"
	"github.com/fintrack/fintrack/internal/worker"
	"github.com/fintrack/fintrack/pkg/config"
	"github.com/fintrack/fintrack/pkg/database"
)

const sessionCountTTL = 5 * time.Second

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting FinTrack server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, log, "fintrack", cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Initialize storage
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	// 5. Initialize session store
	sessions, closeSessions, err := openSessions(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize session store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeSessions()

	// 6. Initialize services
	secret := cfg.JWTSecret
	if secret == "" {
		secret = "dev-secret-change-me"
		log.Warn("JWT_SECRET not set, using development secret")
	}
	tokens := auth.NewTokenManager(secret, "fintrack")

	provisioning := service.NewProvisioningService(store, log)
	authService := service.NewAuthService(store, sessions, tokens, cfg.SessionTTL, provisioning, log)
	if featureflags.Enabled(featureflags.DisableAutoProvision) {
		log.Warn("automatic client provisioning disabled")
	} else {
		authService.OnIdentityCreated(provisioning.HandleIdentityCreated)
	}
	authService.OnIdentityUpdated(provisioning.SyncIdentity)

	catalog := service.NewTierCatalog(store, log)
	transitions := service.NewTierTransitionService(store, log)
	stats := service.NewStatisticsAggregator(store.Clients())

	// 7. Seed default tiers
	if _, err := catalog.EnsureDefaults(ctx); err != nil {
		log.Error("failed to seed access tiers", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Initialize security components
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMin, time.Minute)
	auditLogger := audit.NewLogger(log)
	authz := security.NewAuthorizationService(log)

	// 9. Setup HTTP routes
	router := handler.NewRouter(handler.Dependencies{
		Logger:        log,
		Store:         store,
		Sessions:      sessions,
		Tokens:        tokens,
		Limiter:       rateLimiter,
		Audit:         auditLogger,
		Authz:         authz,
		Auth:          authService,
		Profiles:      service.NewProfileService(store, provisioning, log),
		Subscriptions: service.NewSubscriptionService(store.Clients(), transitions),
		Gate:          service.NewCapabilityGate(store.Clients()),
		Clients:       service.NewClientService(store, transitions, log),
		Catalog:       catalog,
		Stats:         stats,

		CORSAllowedOrigins:    cfg.CORSAllowedOrigins,
		MetricsIgnorePrefixes: cfg.MetricsIgnorePrefix,
		StatsStream:           featureflags.Enabled(featureflags.StatsStream),
		StatsStreamInterval:   cfg.StatsStreamInterval,
	})

	// 10. Start backfill worker in background
	if cfg.BackfillInterval > 0 {
		backfill := worker.NewBackfillWorker(store.Users(), provisioning, log, cfg.BackfillInterval)
		go backfill.Start(ctx)
	}

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("storage", cfg.StorageDriver),
		slog.String("sessions", cfg.SessionDriver),
		slog.Int("rate_limit", cfg.RateLimitPerMin),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop background workers
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// openStore connects to PostgreSQL and applies migrations, or returns the in-memory store
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.Store, func(), error) {
	if cfg.StorageDriver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := retry.Do(ctx, retry.DefaultConfig(), log, "connect database",
		func(ctx context.Context) (*database.ConnectionPool, error) {
			pool, err := database.NewConnectionPool(ctx, cfg.Database(), log)
			if errors.Is(err, database.ErrMissingURL) {
				return nil, retry.Permanent(err)
			}
			return pool, err
		})
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	closeFn := func() {
		if err := pool.Close(); err != nil {
			log.Error("failed to close database", slog.String("error", err.Error()))
		}
	}
	return repository.NewPostgresStore(pool.GetDB(), log), closeFn, nil
}

// openSessions connects the Redis session store, or an in-memory one. Counts are cached
// briefly so metric scrapes do not scan the keyspace every time.
func openSessions(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.SessionStore, func(), error) {
	if cfg.SessionDriver == config.DriverMemory {
		return session.WithCountCache(session.NewMemoryStore(), sessionCountTTL), func() {}, nil
	}

	client, err := retry.Do(ctx, retry.DefaultConfig(), log, "connect redis",
		func(ctx context.Context) (*redis.Client, error) {
			client, err := redis.NewClient(ctx, cfg.RedisURL, log)
			if errors.Is(err, redis.ErrInvalidURL) {
				return nil, retry.Permanent(err)
			}
			return client, err
		})
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Error("failed to close redis", slog.String("error", err.Error()))
		}
	}
	return session.WithCountCache(session.NewRedisStore(client, log), sessionCountTTL), closeFn, nil
}
