package service

import (
	"context"
	"testing"

	"github.com/fintrack/fintrack/internal/domain"
)

func TestCanPerformFollowsTier(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	if _, err := NewTierCatalog(store, nil).EnsureDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	gate := NewCapabilityGate(store.Clients())
	transitions := NewTierTransitionService(store, nil)

	user := createUser(t, store, "ivan", "Ivan", "Petrov")
	check := func(want bool, step string) {
		t.Helper()
		got, err := gate.CanPerform(ctx, user.ID, domain.CapabilityExportData)
		if err != nil {
			t.Fatalf("%s: %v", step, err)
		}
		if got != want {
			t.Fatalf("%s: CanPerform = %v, want %v", step, got, want)
		}
	}

	check(false, "no client")

	client, err := NewProvisioningService(store, nil).Provision(ctx, user, ClientOverrides{})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	check(false, "basic")

	if _, err := transitions.UpgradeToPremium(ctx, client); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	check(true, "premium")

	if _, err := transitions.DowngradeToStandard(ctx, client); err != nil {
		t.Fatalf("downgrade: %v", err)
	}
	check(false, "standard")
}

func TestUnknownCapabilityDenied(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	if _, err := NewTierCatalog(store, nil).EnsureDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	client := provisionUser(t, store, NewProvisioningService(store, nil), "ivan")
	if _, err := NewTierTransitionService(store, nil).UpgradeToPremium(ctx, client); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	ok, err := NewCapabilityGate(store.Clients()).CanPerform(ctx, client.UserID, "teleport")
	if err != nil || ok {
		t.Fatalf("expected unknown capability to be denied, got %v %v", ok, err)
	}
}
