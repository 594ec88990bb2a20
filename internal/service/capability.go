package service

import (
	"context"
	"errors"

	"github.com/fintrack/fintrack/internal/domain"
)

// CapabilityGate answers whether an identity may use a tier-gated feature.
// Every check reads the current client and tier; nothing is cached.
type CapabilityGate struct {
	clients domain.ClientRepository
}

// NewCapabilityGate creates a new capability gate
func NewCapabilityGate(clients domain.ClientRepository) *CapabilityGate {
	return &CapabilityGate{clients: clients}
}

// CanPerform reports whether the identity's current tier grants the capability.
// Identities without a client have no capabilities.
func (g *CapabilityGate) CanPerform(ctx context.Context, userID int64, capability domain.Capability) (bool, error) {
	client, err := g.clients.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return client.Tier.Allows(capability), nil
}

// IsPremium reports whether the identity's client is on a premium tier
func (g *CapabilityGate) IsPremium(ctx context.Context, userID int64) (bool, error) {
	client, err := g.clients.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return client.IsPremium(), nil
}
