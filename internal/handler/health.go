package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency that can report its health
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	database Pinger
	sessions Pinger
	logger   *slog.Logger
	now      func() time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(database, sessions Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthHandler{
		database: database,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// HealthResponse represents the health status response
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /health. It reports 500 when the database cannot be reached.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Database:  "ok",
		Timestamp: h.now().UTC(),
		Detail:    "healthy",
	}
	status := http.StatusOK
	if err := h.database.Ping(ctx); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		resp.Status = "error"
		resp.Database = "error"
		resp.Detail = err.Error()
		status = http.StatusInternalServerError
	}
	writeJSON(w, h.logger, status, resp)
}

// Live handles GET /healthz - Simple liveness check
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Ready handles GET /readyz - Returns 200 only if all dependencies are healthy
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": check(ctx, h.database),
		"sessions": check(ctx, h.sessions),
	}

	status := "ready"
	statusCode := http.StatusOK
	for _, result := range checks {
		if result != "ok" {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, h.logger, statusCode, ReadinessResponse{Status: status, Checks: checks})

	h.logger.Debug("readiness check",
		slog.String("status", status),
		slog.String("database", checks["database"]),
		slog.String("sessions", checks["sessions"]),
	)
}

func check(ctx context.Context, p Pinger) string {
	if p == nil {
		return "not configured"
	}
	if err := p.Ping(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
