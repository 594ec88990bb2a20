package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/fintrack/fintrack/internal/domain"
)

// DefaultTierName is the tier every newly provisioned client starts on
const DefaultTierName = domain.TierBasic

// TierCatalog manages the set of access tiers
type TierCatalog struct {
	store  domain.Store
	logger *slog.Logger
}

// NewTierCatalog creates a new tier catalog
func NewTierCatalog(store domain.Store, logger *slog.Logger) *TierCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &TierCatalog{store: store, logger: logger}
}

// GetOrCreate returns the tier called name, creating it from defaults when absent.
// Concurrent first use converges on a single row.
func (c *TierCatalog) GetOrCreate(ctx context.Context, name string, defaults domain.AccessTier) (*domain.AccessTier, error) {
	return getOrCreateTier(ctx, c.store.Tiers(), name, defaults, c.logger)
}

// ByName returns the tier called name or domain.ErrNotFound
func (c *TierCatalog) ByName(ctx context.Context, name string) (*domain.AccessTier, error) {
	return c.store.Tiers().GetByName(ctx, name)
}

// Get returns a tier by ID
func (c *TierCatalog) Get(ctx context.Context, id int64) (*domain.AccessTier, error) {
	return c.store.Tiers().GetByID(ctx, id)
}

// List returns every tier ordered by name
func (c *TierCatalog) List(ctx context.Context) ([]*domain.AccessTier, error) {
	return c.store.Tiers().List(ctx)
}

// Update applies a staff edit to a tier
func (c *TierCatalog) Update(ctx context.Context, tier *domain.AccessTier) error {
	tier.Name = strings.TrimSpace(tier.Name)
	if tier.Name == "" {
		return fmt.Errorf("%w: tier name is required", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(tier.Name) > domain.MaxTierNameLength {
		return fmt.Errorf("%w: tier name must be at most %d characters", domain.ErrInvalidInput, domain.MaxTierNameLength)
	}
	if tier.MaxTransactionsPerMonth <= 0 {
		return fmt.Errorf("%w: max transactions per month must be positive", domain.ErrInvalidInput)
	}

	if err := c.store.Tiers().Update(ctx, tier); err != nil {
		return err
	}
	c.logger.Info("access tier updated",
		slog.Int64("tier_id", tier.ID),
		slog.String("name", tier.Name),
		slog.Bool("is_premium", tier.IsPremium),
	)
	return nil
}

// Delete removes a tier that no client references
func (c *TierCatalog) Delete(ctx context.Context, id int64) error {
	if err := c.store.Tiers().Delete(ctx, id); err != nil {
		return err
	}
	c.logger.Info("access tier deleted", slog.Int64("tier_id", id))
	return nil
}

// EnsureDefaults seeds the Standard and Premium tiers. Running it again changes nothing.
func (c *TierCatalog) EnsureDefaults(ctx context.Context) ([]*domain.AccessTier, error) {
	var out []*domain.AccessTier
	for _, name := range []string{domain.TierStandard, domain.TierPremium} {
		tier, err := c.GetOrCreate(ctx, name, domain.DefaultTiers[name])
		if err != nil {
			return nil, fmt.Errorf("seed tier %s: %w", name, err)
		}
		out = append(out, tier)
	}
	return out, nil
}

func getOrCreateTier(ctx context.Context, repo domain.TierRepository, name string, defaults domain.AccessTier, logger *slog.Logger) (*domain.AccessTier, error) {
	defaults.ID = 0
	defaults.Name = name
	if defaults.MaxTransactionsPerMonth <= 0 {
		defaults.MaxTransactionsPerMonth = 100
	}

	tier, created, err := repo.GetOrCreate(ctx, &defaults)
	if err != nil {
		return nil, fmt.Errorf("get or create tier %q: %w", name, err)
	}
	if created {
		logger.Info("access tier created",
			slog.String("name", tier.Name),
			slog.Int64("tier_id", tier.ID),
		)
	}
	return tier, nil
}
