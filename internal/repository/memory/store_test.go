package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fintrack/fintrack/internal/domain"
)

func seedUser(t *testing.T, s *Store, username string) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, Email: username + "@example.com", IsActive: true}
	if err := s.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func seedTier(t *testing.T, s *Store, name string) *domain.AccessTier {
	t.Helper()
	def := domain.DefaultTiers[name]
	tier, _, err := s.Tiers().GetOrCreate(context.Background(), &def)
	if err != nil {
		t.Fatalf("get or create tier: %v", err)
	}
	return tier
}

func seedClient(t *testing.T, s *Store, u *domain.User, tier *domain.AccessTier, last string) *domain.Client {
	t.Helper()
	c := &domain.Client{
		UserID:    u.ID,
		Tier:      tier,
		FirstName: u.Username,
		LastName:  last,
		Phone:     "auto" + u.Username,
		Email:     u.Email,
		Gender:    domain.GenderUnspecified,
		BirthDate: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		Country:   domain.DefaultCountry,
		IsActive:  true,
	}
	if err := s.Clients().Create(context.Background(), c); err != nil {
		t.Fatalf("create client: %v", err)
	}
	return c
}

func TestUserEmailUniqueIgnoresCase(t *testing.T) {
	s := NewStore()
	seedUser(t, s, "alice")

	err := s.Users().Create(context.Background(), &domain.User{Username: "alice2", Email: "ALICE@example.com"})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}

	u, err := s.Users().GetByEmail(context.Background(), "Alice@Example.com")
	if err != nil || u.Username != "alice" {
		t.Fatalf("lookup by email: %v %v", u, err)
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	s := NewStore()
	def := domain.DefaultTiers[domain.TierBasic]

	first, created, err := s.Tiers().GetOrCreate(context.Background(), &def)
	if err != nil || !created {
		t.Fatalf("first call: created=%v err=%v", created, err)
	}
	second, created, err := s.Tiers().GetOrCreate(context.Background(), &def)
	if err != nil || created {
		t.Fatalf("second call: created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same id, got %d and %d", first.ID, second.ID)
	}
}

func TestConcurrentGetOrCreateYieldsOneTier(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	ids := make([]int64, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			def := domain.DefaultTiers[domain.TierPremium]
			tier, _, err := s.Tiers().GetOrCreate(context.Background(), &def)
			if err != nil {
				t.Errorf("get or create: %v", err)
				return
			}
			ids[i] = tier.ID
		}(i)
	}
	wg.Wait()

	tiers, _ := s.Tiers().List(context.Background())
	if len(tiers) != 1 {
		t.Fatalf("expected exactly one tier, got %d", len(tiers))
	}
	for _, id := range ids {
		if id != tiers[0].ID {
			t.Fatalf("caller saw id %d, stored %d", id, tiers[0].ID)
		}
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := NewStore()
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(tx domain.Repositories) error {
		u := &domain.User{Username: "bob", Email: "bob@example.com"}
		if err := tx.Users().Create(context.Background(), u); err != nil {
			return err
		}
		def := domain.DefaultTiers[domain.TierBasic]
		if _, _, err := tx.Tiers().GetOrCreate(context.Background(), &def); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := s.Users().GetByUsername(context.Background(), "bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("user should not exist after rollback, got %v", err)
	}
	if tiers, _ := s.Tiers().List(context.Background()); len(tiers) != 0 {
		t.Fatalf("expected no tiers after rollback, got %d", len(tiers))
	}
}

func TestWithinTxCommits(t *testing.T) {
	s := NewStore()
	err := s.WithinTx(context.Background(), func(tx domain.Repositories) error {
		return tx.Users().Create(context.Background(), &domain.User{Username: "carol", Email: "carol@example.com"})
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}
	if _, err := s.Users().GetByUsername(context.Background(), "carol"); err != nil {
		t.Fatalf("expected committed user: %v", err)
	}
}

func TestRolledBackIDsAreNotReused(t *testing.T) {
	s := NewStore()
	boom := errors.New("boom")

	var discarded int64
	err := s.WithinTx(context.Background(), func(tx domain.Repositories) error {
		u := &domain.User{Username: "dave", Email: "dave@example.com"}
		if err := tx.Users().Create(context.Background(), u); err != nil {
			return err
		}
		discarded = u.ID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	u := seedUser(t, s, "erin")
	if u.ID == discarded {
		t.Fatalf("user id %d was handed out twice", u.ID)
	}
	if u.ID <= discarded {
		t.Fatalf("expected id after %d, got %d", discarded, u.ID)
	}
}

func TestClientUniqueness(t *testing.T) {
	s := NewStore()
	basic := seedTier(t, s, domain.TierBasic)
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	seedClient(t, s, alice, basic, "A")

	dup := &domain.Client{UserID: alice.ID, Tier: basic, Phone: "other", Email: "other@example.com", Gender: domain.GenderUnspecified}
	var conflict *domain.ConflictError
	if err := s.Clients().Create(context.Background(), dup); !errors.As(err, &conflict) || conflict.Field != "user_id" {
		t.Fatalf("expected user_id conflict, got %v", err)
	}

	samePhone := &domain.Client{UserID: bob.ID, Tier: basic, Phone: "autoalice", Email: "bob@example.com", Gender: domain.GenderUnspecified}
	if err := s.Clients().Create(context.Background(), samePhone); !errors.As(err, &conflict) || conflict.Field != "phone" {
		t.Fatalf("expected phone conflict, got %v", err)
	}
}

func TestClientRequiresExistingUserAndTier(t *testing.T) {
	s := NewStore()
	basic := seedTier(t, s, domain.TierBasic)

	err := s.Clients().Create(context.Background(), &domain.Client{UserID: 42, Tier: basic, Phone: "p", Email: "e"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing user, got %v", err)
	}

	u := seedUser(t, s, "dave")
	err = s.Clients().Create(context.Background(), &domain.Client{UserID: u.ID, Tier: &domain.AccessTier{ID: 99}, Phone: "p", Email: "e"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing tier, got %v", err)
	}
}

func TestTierDeleteRefusedWhileInUse(t *testing.T) {
	s := NewStore()
	basic := seedTier(t, s, domain.TierBasic)
	premium := seedTier(t, s, domain.TierPremium)
	seedClient(t, s, seedUser(t, s, "erin"), basic, "E")

	if err := s.Tiers().Delete(context.Background(), basic.ID); !errors.Is(err, domain.ErrTierInUse) {
		t.Fatalf("expected ErrTierInUse, got %v", err)
	}
	if err := s.Tiers().Delete(context.Background(), premium.ID); err != nil {
		t.Fatalf("unused tier should delete: %v", err)
	}
}

func TestClientReadsReflectTierChanges(t *testing.T) {
	s := NewStore()
	basic := seedTier(t, s, domain.TierBasic)
	c := seedClient(t, s, seedUser(t, s, "frank"), basic, "F")

	basic.CanExportData = true
	if err := s.Tiers().Update(context.Background(), basic); err != nil {
		t.Fatalf("update tier: %v", err)
	}

	got, err := s.Clients().GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if !got.Tier.Allows(domain.CapabilityExportData) {
		t.Fatalf("client should see updated tier flags")
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	s := NewStore()
	basic := seedTier(t, s, domain.TierBasic)
	premium := seedTier(t, s, domain.TierPremium)

	for i, name := range []string{"u1", "u2", "u3", "u4", "u5"} {
		tier := basic
		if i%2 == 0 {
			tier = premium
		}
		seedClient(t, s, seedUser(t, s, name), tier, "Last"+name)
	}

	page, total, err := s.Clients().List(context.Background(), domain.ClientFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(page) != 2 || page[0].LastName != "Lastu3" {
		t.Fatalf("unexpected page: total=%d len=%d", total, len(page))
	}

	_, total, _ = s.Clients().List(context.Background(), domain.ClientFilter{TierID: premium.ID}, 20, 0)
	if total != 3 {
		t.Fatalf("expected 3 premium clients, got %d", total)
	}

	found, total, _ := s.Clients().List(context.Background(), domain.ClientFilter{Query: "U4@EXAMPLE"}, 20, 0)
	if total != 1 || found[0].Email != "u4@example.com" {
		t.Fatalf("expected search hit on email, got %d", total)
	}

	if rest, total, _ := s.Clients().List(context.Background(), domain.ClientFilter{}, 20, 40); len(rest) != 0 || total != 5 {
		t.Fatalf("offset past end should return an empty page")
	}
}

func TestStatistics(t *testing.T) {
	s := NewStore()
	basic := seedTier(t, s, domain.TierBasic)
	premium := seedTier(t, s, domain.TierPremium)
	seedClient(t, s, seedUser(t, s, "g1"), basic, "G")
	seedClient(t, s, seedUser(t, s, "g2"), premium, "G")
	c := seedClient(t, s, seedUser(t, s, "g3"), basic, "G")

	c.IsActive = false
	if err := s.Clients().Update(context.Background(), c); err != nil {
		t.Fatalf("update client: %v", err)
	}

	stats, err := s.Clients().Statistics(context.Background())
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	want := domain.ClientStatistics{Total: 3, Active: 2, Premium: 1, Basic: 2}
	if stats != want {
		t.Fatalf("got %+v, want %+v", stats, want)
	}
}

func TestProfileClientLinkIsUnique(t *testing.T) {
	s := NewStore()
	basic := seedTier(t, s, domain.TierBasic)
	h1 := seedUser(t, s, "h1")
	h2 := seedUser(t, s, "h2")
	c := seedClient(t, s, h1, basic, "H")

	if err := s.Profiles().Create(context.Background(), &domain.Profile{UserID: h1.ID, ClientID: &c.ID}); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	err := s.Profiles().Create(context.Background(), &domain.Profile{UserID: h2.ID, ClientID: &c.ID})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on client_id, got %v", err)
	}
}
