package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/fintrack/fintrack/internal/domain"
)

// Plan describes a subscription offering shown to the user
type Plan struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Period    string          `json:"period"`
	Premium   bool            `json:"premium"`
	Popular   bool            `json:"popular,omitempty"`
	Features  []string        `json:"features"`
	IsCurrent bool            `json:"is_current"`
}

var plans = []Plan{
	{
		ID:       "basic",
		Name:     domain.TierBasic,
		Price:    decimal.Zero,
		Currency: "KZT",
		Period:   "month",
		Features: []string{
			"News feed",
			"Currency converter",
			"Up to three savings goals",
			"Limited report periods",
		},
	},
	{
		ID:       "premium",
		Name:     domain.TierPremium,
		Price:    decimal.NewFromInt(2990),
		Currency: "KZT",
		Period:   "month",
		Premium:  true,
		Popular:  true,
		Features: []string{
			"Unlimited savings goals",
			"Custom report periods",
			"Card linking",
			"Priority support",
			"Advanced analytics",
		},
	},
}

// SubscriptionService exposes plans and self-service tier changes
type SubscriptionService struct {
	clients     domain.ClientRepository
	transitions *TierTransitionService
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(clients domain.ClientRepository, transitions *TierTransitionService) *SubscriptionService {
	return &SubscriptionService{clients: clients, transitions: transitions}
}

// Plans lists the plans, marking the one matching the user's current tier.
// Users without a client have no current plan.
func (s *SubscriptionService) Plans(ctx context.Context, userID int64) ([]Plan, error) {
	client, err := s.clients.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	out := make([]Plan, len(plans))
	for i, p := range plans {
		p.Features = append([]string(nil), p.Features...)
		p.IsCurrent = client != nil && client.IsPremium() == p.Premium
		out[i] = p
	}
	return out, nil
}

// Upgrade moves the user's client to Premium. It reports false when the tier is missing.
func (s *SubscriptionService) Upgrade(ctx context.Context, userID int64) (*domain.Client, bool, error) {
	client, err := s.clients.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	ok, err := s.transitions.UpgradeToPremium(ctx, client)
	return client, ok, err
}

// Downgrade moves the user's client to Standard, or Basic when Standard is missing
func (s *SubscriptionService) Downgrade(ctx context.Context, userID int64) (*domain.Client, bool, error) {
	client, err := s.clients.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	ok, err := s.transitions.DowngradeToStandard(ctx, client)
	return client, ok, err
}
