package service

import (
	"context"
	"testing"

	"github.com/fintrack/fintrack/internal/domain"
)

func TestSnapshotTracksChanges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	if _, err := NewTierCatalog(store, nil).EnsureDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	agg := NewStatisticsAggregator(store.Clients())
	clients := NewClientService(store, nil, nil)

	expect := func(want domain.ClientStatistics) {
		t.Helper()
		got, err := agg.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if got != want {
			t.Fatalf("snapshot = %+v, want %+v", got, want)
		}
	}

	expect(domain.ClientStatistics{})

	provisioned := provisionMany(t, store, NewProvisioningService(store, nil), 3)
	expect(domain.ClientStatistics{Total: 3, Active: 3, Basic: 3})

	if _, err := NewTierTransitionService(store, nil).UpgradeToPremium(ctx, provisioned[0]); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	expect(domain.ClientStatistics{Total: 3, Active: 3, Premium: 1, Basic: 2})

	if _, err := clients.Update(ctx, provisioned[1].ID, ClientUpdate{IsActive: ptr(false)}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	expect(domain.ClientStatistics{Total: 3, Active: 2, Premium: 1, Basic: 2, Inactive: 1})
}
