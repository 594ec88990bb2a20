package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/service"
)

// Provisioner creates the client for an identity
type Provisioner interface {
	Provision(ctx context.Context, identity *domain.User, overrides service.ClientOverrides) (*domain.Client, error)
}

// BackfillWorker periodically provisions clients for identities that have none.
// Such identities exist when automatic provisioning is switched off or when accounts
// were created outside the API.
type BackfillWorker struct {
	users       domain.UserRepository
	provisioner Provisioner
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
}

// NewBackfillWorker creates a new backfill worker
func NewBackfillWorker(
	users domain.UserRepository,
	provisioner Provisioner,
	logger *slog.Logger,
	interval time.Duration,
) *BackfillWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackfillWorker{
		users:       users,
		provisioner: provisioner,
		logger:      logger,
		interval:    interval,
		batchSize:   100,
	}
}

// Start runs a pass immediately and then once per interval until ctx is done
func (w *BackfillWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("backfill worker started", slog.Duration("interval", w.interval))
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("backfill worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce provisions one batch of orphan identities and returns how many clients it created.
// An identity that gained a client concurrently is skipped.
func (w *BackfillWorker) RunOnce(ctx context.Context) int {
	users, err := w.users.ListWithoutClient(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list identities without client",
			slog.String("error", err.Error()),
		)
		return 0
	}
	if len(users) == 0 {
		return 0
	}

	created := 0
	for _, u := range users {
		if ctx.Err() != nil {
			break
		}
		logger := w.logger.With(slog.Int64("user_id", u.ID))

		_, err := w.provisioner.Provision(ctx, u, service.ClientOverrides{})
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrConflict):
			logger.Debug("identity already provisioned, skipping")
		default:
			logger.Warn("backfill provisioning failed", slog.String("error", err.Error()))
		}
	}

	w.logger.Info("backfill pass finished",
		slog.Int("candidates", len(users)),
		slog.Int("created", created),
	)
	return created
}
