package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fintrack/fintrack/internal/domain"
)

func TestProvisionDefaults(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	p := NewProvisioningService(store, nil)

	user := createUser(t, store, "ivan", "Ivan", "Petrov")
	client, err := p.Provision(ctx, user, ClientOverrides{})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if client.Tier == nil || client.Tier.Name != domain.TierBasic {
		t.Fatalf("expected Basic tier, got %+v", client.Tier)
	}
	if client.IsPremium() {
		t.Fatalf("new client must not be premium")
	}
	if client.Phone != "auto1" {
		t.Fatalf("expected placeholder phone auto1, got %q", client.Phone)
	}
	if !client.BirthDate.Equal(PlaceholderBirthDate) {
		t.Fatalf("expected placeholder birth date, got %v", client.BirthDate)
	}
	if client.Gender != domain.GenderUnspecified {
		t.Fatalf("expected gender O, got %q", client.Gender)
	}
	if client.Email != user.Email || client.FirstName != "Ivan" || client.LastName != "Petrov" {
		t.Fatalf("identity data not copied: %+v", client)
	}
	if !client.IsActive {
		t.Fatalf("new client must be active")
	}

	profile, err := store.Profiles().GetByUserID(ctx, user.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.ClientID == nil || *profile.ClientID != client.ID {
		t.Fatalf("profile not linked to client: %+v", profile)
	}
}

func TestProvisionTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	p := NewProvisioningService(store, nil)

	user := createUser(t, store, "ivan", "Ivan", "Petrov")
	if _, err := p.Provision(ctx, user, ClientOverrides{}); err != nil {
		t.Fatalf("first provision: %v", err)
	}
	_, err := p.Provision(ctx, user, ClientOverrides{})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	stats, _ := store.Clients().Statistics(ctx)
	if stats.Total != 1 {
		t.Fatalf("expected exactly one client, got %d", stats.Total)
	}
}

func TestProvisionOverrides(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	p := NewProvisioningService(store, nil)

	user := createUser(t, store, "ivan", "Ivan", "Petrov")
	client, err := p.Provision(ctx, user, ClientOverrides{
		MiddleName:    "Ivanovich",
		Phone:         "+77010000000",
		Gender:        domain.GenderMale,
		City:          "Almaty",
		MonthlyIncome: decimal.NewNullDecimal(decimal.RequireFromString("350000.50")),
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if client.Phone != "+77010000000" || client.Gender != domain.GenderMale || client.City != "Almaty" {
		t.Fatalf("overrides not applied: %+v", client)
	}
	if got := client.FullName(); got != "Petrov Ivan Ivanovich" {
		t.Fatalf("unexpected full name %q", got)
	}

	stored, err := store.Clients().GetByID(ctx, client.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.MonthlyIncome.Decimal.Equal(decimal.RequireFromString("350000.5")) {
		t.Fatalf("income not stored: %v", stored.MonthlyIncome)
	}
}

func TestProvisionRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	p := NewProvisioningService(store, nil)
	user := createUser(t, store, "ivan", "Ivan", "Petrov")

	cases := []ClientOverrides{
		{Phone: "+7701000000000000000000"},
		{Gender: "X"},
		{FirstName: strings.Repeat("a", 60)},
		{MiddleName: strings.Repeat("я", 51)},
		{City: strings.Repeat("c", 101)},
		{PostalCode: strings.Repeat("1", 21)},
		{Occupation: strings.Repeat("o", 101)},
		{MonthlyIncome: decimal.NewNullDecimal(decimal.RequireFromString("10000000000"))},
		{MonthlyIncome: decimal.NewNullDecimal(decimal.NewFromInt(-1))},
	}
	for _, o := range cases {
		if _, err := p.Provision(ctx, user, o); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", o, err)
		}
	}
	if _, err := p.Provision(ctx, nil, ClientOverrides{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for nil identity, got %v", err)
	}
}

func TestProvisionPhoneCollisionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	p := NewProvisioningService(store, nil)

	// A record written before placeholders were reserved still holds "auto2".
	legacy := createUser(t, store, "legacy", "A", "A")
	def := domain.DefaultTiers[domain.TierBasic]
	basic, _, err := store.Tiers().GetOrCreate(ctx, &def)
	if err != nil {
		t.Fatalf("seed tier: %v", err)
	}
	if err := store.Clients().Create(ctx, &domain.Client{
		UserID: legacy.ID, Tier: basic, FirstName: "A", LastName: "A",
		Phone: "auto2", Email: "legacy@example.com", Gender: domain.GenderUnspecified,
		BirthDate: PlaceholderBirthDate, Country: domain.DefaultCountry, IsActive: true,
	}); err != nil {
		t.Fatalf("seed legacy client: %v", err)
	}

	second := createUser(t, store, "second", "B", "B")
	if second.ID != 2 {
		t.Fatalf("expected identity 2, got %d", second.ID)
	}
	_, err = p.Provision(ctx, second, ClientOverrides{})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "phone" {
		t.Fatalf("expected phone conflict, got %v", err)
	}

	if _, err := store.Clients().GetByUserID(ctx, second.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no client for second identity, got %v", err)
	}
	if _, err := store.Profiles().GetByUserID(ctx, second.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected profile creation rolled back, got %v", err)
	}

	third := createUser(t, store, "third", "C", "C")
	if _, err := p.Provision(ctx, third, ClientOverrides{}); err != nil {
		t.Fatalf("next identity should not inherit the collision: %v", err)
	}
}

func TestProvisionRejectsPlaceholderPhones(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	p := NewProvisioningService(store, nil)
	user := createUser(t, store, "ivan", "Ivan", "Petrov")

	for _, phone := range []string{"auto2", "AUTO99", " auto"} {
		if _, err := p.Provision(ctx, user, ClientOverrides{Phone: phone}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input for phone %q, got %v", phone, err)
		}
	}
	client, err := p.Provision(ctx, user, ClientOverrides{Phone: "+7auto"})
	if err != nil {
		t.Fatalf("phone containing the prefix later should be accepted: %v", err)
	}
	if client.Phone != "+7auto" {
		t.Fatalf("unexpected phone %q", client.Phone)
	}
}

func TestProvisionRecreatesDeletedDefaultTier(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	p := NewProvisioningService(store, nil)

	if _, err := store.Tiers().GetByName(ctx, domain.TierBasic); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no Basic tier yet, got %v", err)
	}
	client := provisionUser(t, store, p, "ivan")

	tier, err := store.Tiers().GetByName(ctx, domain.TierBasic)
	if err != nil {
		t.Fatalf("Basic tier was not created: %v", err)
	}
	if tier.ID != client.Tier.ID || tier.IsPremium {
		t.Fatalf("unexpected default tier %+v", tier)
	}
}

func TestRegisterOverwritesHookClient(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	p := NewProvisioningService(store, nil)
	tiers := NewTierCatalog(store, nil)
	if _, err := tiers.EnsureDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	client := provisionUser(t, store, p, "ivan")
	if ok, err := NewTierTransitionService(store, nil).UpgradeToPremium(ctx, client); err != nil || !ok {
		t.Fatalf("upgrade: ok=%v err=%v", ok, err)
	}

	user, _ := store.Users().GetByID(ctx, client.UserID)
	var registered *domain.Client
	err := store.WithinTx(ctx, func(tx domain.Repositories) error {
		var err error
		registered, err = p.Register(ctx, tx, user, ClientOverrides{Phone: "+77020000000", City: "Astana"})
		return err
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if registered.ID != client.ID {
		t.Fatalf("expected existing client %d to be reused, got %d", client.ID, registered.ID)
	}
	if registered.Tier.Name != domain.TierBasic || registered.Phone != "+77020000000" || registered.City != "Astana" {
		t.Fatalf("client not overwritten: %+v", registered)
	}
}

func TestSyncIdentityKeepsClientValuesForEmptyFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	p := NewProvisioningService(store, nil)
	client := provisionUser(t, store, p, "ivan")

	user, _ := store.Users().GetByID(ctx, client.UserID)
	user.FirstName = ""
	user.LastName = "Sidorov"
	err := store.WithinTx(ctx, func(tx domain.Repositories) error {
		return p.SyncIdentity(ctx, tx, user)
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	got, _ := store.Clients().GetByID(ctx, client.ID)
	if got.FirstName != "First" || got.LastName != "Sidorov" {
		t.Fatalf("unexpected names after sync: %q %q", got.FirstName, got.LastName)
	}
}

func TestPlaceholderPhoneFitsColumn(t *testing.T) {
	if got := PlaceholderPhone(42); got != "auto42" {
		t.Fatalf("unexpected placeholder %q", got)
	}
	if got := PlaceholderPhone(9223372036854775807); len(got) > domain.MaxPhoneLength {
		t.Fatalf("placeholder %q exceeds %d characters", got, domain.MaxPhoneLength)
	}
}
