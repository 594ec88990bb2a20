package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/repository/memory"
)

func newTestStore() *memory.Store {
	return memory.NewStore()
}

func createUser(t *testing.T, store domain.Store, username, first, last string) *domain.User {
	t.Helper()
	user := &domain.User{
		Username:  username,
		Email:     username + "@example.com",
		FirstName: first,
		LastName:  last,
		IsActive:  true,
	}
	if err := store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func provisionUser(t *testing.T, store domain.Store, p *ProvisioningService, username string) *domain.Client {
	t.Helper()
	user := createUser(t, store, username, "First", "Last")
	client, err := p.Provision(context.Background(), user, ClientOverrides{})
	if err != nil {
		t.Fatalf("provision %s: %v", username, err)
	}
	return client
}

func provisionMany(t *testing.T, store domain.Store, p *ProvisioningService, n int) []*domain.Client {
	t.Helper()
	out := make([]*domain.Client, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, provisionUser(t, store, p, fmt.Sprintf("user%02d", i)))
	}
	return out
}

func ptr[T any](v T) *T { return &v }
