package domain

import (
	"context"
	"time"
)

// SessionStore tracks authenticated sessions so tokens can be revoked and counted
type SessionStore interface {
	Create(ctx context.Context, userID int64, ttl time.Duration) (string, error)
	Exists(ctx context.Context, sessionID string) (bool, error)
	Revoke(ctx context.Context, sessionID string) error
	CountActive(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}
