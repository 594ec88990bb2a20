// Package session tracks authenticated sessions so tokens can be revoked and counted.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/fintrack/internal/reliability/circuitbreaker"
)

const keyPrefix = "session:"

// kv is the subset of the Redis wrapper used here
type kv interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	CountKeys(ctx context.Context, pattern string) (int, error)
	Ping(ctx context.Context) error
}

// RedisStore keeps one TTL key per session
type RedisStore struct {
	client  kv
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRedisStore creates a session store backed by Redis
func NewRedisStore(client kv, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("session store circuit changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return &RedisStore{client: client, breaker: breaker, logger: logger}
}

func callerCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Create stores a new session for userID that expires after ttl
func (s *RedisStore) Create(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	id := uuid.NewString()
	err := s.breaker.Execute(func() error {
		return s.client.Set(ctx, keyPrefix+id, strconv.FormatInt(userID, 10), ttl)
	}, callerCanceled)
	if err != nil {
		s.logger.Error("failed to create session",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// Exists reports whether the session is still live
func (s *RedisStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	var ok bool
	err := s.breaker.Execute(func() error {
		var err error
		ok, err = s.client.Exists(ctx, keyPrefix+sessionID)
		return err
	}, callerCanceled)
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return ok, nil
}

// Revoke deletes the session
func (s *RedisStore) Revoke(ctx context.Context, sessionID string) error {
	err := s.breaker.Execute(func() error {
		return s.client.Delete(ctx, keyPrefix+sessionID)
	}, callerCanceled)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// CountActive counts live session keys
func (s *RedisStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.breaker.Execute(func() error {
		var err error
		n, err = s.client.CountKeys(ctx, keyPrefix+"*")
		return err
	}, callerCanceled)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// Ping checks the backing Redis
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
