package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/observability/metrics"
)

// TierTransitionService moves clients between access tiers
type TierTransitionService struct {
	store  domain.Store
	logger *slog.Logger
}

// NewTierTransitionService creates a new tier transition service
func NewTierTransitionService(store domain.Store, logger *slog.Logger) *TierTransitionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TierTransitionService{store: store, logger: logger}
}

// UpgradeToPremium moves the client to the Premium tier. It reports false and leaves the
// client untouched when that tier does not exist.
func (s *TierTransitionService) UpgradeToPremium(ctx context.Context, client *domain.Client) (bool, error) {
	return s.transition(ctx, client, domain.TierPremium)
}

// DowngradeToStandard moves the client to the Standard tier, or to Basic when Standard
// does not exist. It reports false when neither exists.
func (s *TierTransitionService) DowngradeToStandard(ctx context.Context, client *domain.Client) (bool, error) {
	return s.transition(ctx, client, domain.TierStandard, domain.TierBasic)
}

// MoveToTier reassigns the client to the tier with the given ID
func (s *TierTransitionService) MoveToTier(ctx context.Context, client *domain.Client, tierID int64) error {
	ctx, span := s.startMove(ctx, client.ID, tierID)
	defer span.End()

	previous := client.Tier
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		return s.moveTx(ctx, tx, client, tierID)
	})
	if err != nil {
		client.Tier = previous
	}
	s.finishMove(span, client, err)
	return err
}

func (s *TierTransitionService) startMove(ctx context.Context, clientID, tierID int64) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "TierTransitionService.MoveToTier")
	span.SetAttributes(
		attribute.Int64("client.id", clientID),
		attribute.Int64("tier.id", tierID),
	)
	return ctx, span
}

// moveTx assigns the tier inside the caller's transaction and sets client.Tier.
// The caller reports the outcome through finishMove once the transaction resolves.
func (s *TierTransitionService) moveTx(ctx context.Context, tx domain.Repositories, client *domain.Client, tierID int64) error {
	tier, err := tx.Tiers().GetByID(ctx, tierID)
	if err != nil {
		return err
	}
	if err := tx.Clients().UpdateTier(ctx, client.ID, tier.ID); err != nil {
		return err
	}
	client.Tier = tier
	return nil
}

func (s *TierTransitionService) finishMove(span trace.Span, client *domain.Client, err error) {
	if err != nil {
		result := "error"
		if errors.Is(err, domain.ErrNotFound) {
			result = "missing_tier"
		}
		metrics.ObserveTierTransition("unknown", result)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("client tier reassignment failed",
			slog.Int64("client_id", client.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	metrics.ObserveTierTransition(client.Tier.Name, "applied")
	s.logger.Info("client tier reassigned",
		slog.Int64("client_id", client.ID),
		slog.String("tier", client.Tier.Name),
		slog.Bool("is_premium", client.Tier.IsPremium),
	)
}

// transition resolves the first existing tier among names and assigns it in one transaction
func (s *TierTransitionService) transition(ctx context.Context, client *domain.Client, names ...string) (bool, error) {
	ctx, span := tracer.Start(ctx, "TierTransitionService.transition")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("client.id", client.ID),
		attribute.String("tier.target", names[0]),
	)

	var target *domain.AccessTier
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		for _, name := range names {
			tier, err := tx.Tiers().GetByName(ctx, name)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			target = tier
			break
		}
		if target == nil {
			return nil
		}
		return tx.Clients().UpdateTier(ctx, client.ID, target.ID)
	})
	if err != nil {
		metrics.ObserveTierTransition(names[0], "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("tier transition failed",
			slog.Int64("client_id", client.ID),
			slog.String("target", names[0]),
			slog.String("error", err.Error()),
		)
		return false, err
	}

	if target == nil {
		metrics.ObserveTierTransition(names[0], "missing_tier")
		s.logger.Warn("tier transition skipped: target tier does not exist",
			slog.Int64("client_id", client.ID),
			slog.Any("candidates", names),
		)
		return false, nil
	}

	metrics.ObserveTierTransition(names[0], "applied")
	s.logger.Info("client tier changed",
		slog.Int64("client_id", client.ID),
		slog.String("tier", target.Name),
		slog.Bool("is_premium", target.IsPremium),
	)
	client.Tier = target
	return true, nil
}
