package audit

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

type requestIDKey struct{}

// WithRequestID stores the request ID used to correlate audit records
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, if any
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("component", "audit"))}
}

func (al *Logger) LogAction(ctx context.Context, actorID int64, action, resource, resourceID, status, details string) {
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.Int64("actor_id", actorID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", RequestID(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogRegistration(ctx context.Context, userID, clientID int64) {
	al.LogAction(ctx, userID, "register", "client", strconv.FormatInt(clientID, 10), "success", "")
}

func (al *Logger) LogTierChange(ctx context.Context, actorID, clientID int64, tier, status string) {
	al.LogAction(ctx, actorID, "tier_change", "client", strconv.FormatInt(clientID, 10), status, tier)
}

func (al *Logger) LogClientEdit(ctx context.Context, actorID, clientID int64, status string) {
	al.LogAction(ctx, actorID, "edit", "client", strconv.FormatInt(clientID, 10), status, "")
}

func (al *Logger) LogTierEdit(ctx context.Context, actorID, tierID int64, action, status string) {
	al.LogAction(ctx, actorID, action, "access_tier", strconv.FormatInt(tierID, 10), status, "")
}

func (al *Logger) LogDenied(ctx context.Context, actorID int64, reason string) {
	al.LogAction(ctx, actorID, "access_denied", "api", "", "denied", reason)
}
