package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/fintrack/fintrack/internal/domain"
)

// ProfileView is a user's profile together with their client, if provisioned
type ProfileView struct {
	Profile *domain.Profile
	Client  *domain.Client
}

// ProfileUpdate carries optional profile changes
type ProfileUpdate struct {
	AvatarURL *string
	Bio       *string
	Website   *string
}

// ProfileService handles the self-service profile page
type ProfileService struct {
	store        domain.Store
	provisioning *ProvisioningService
	logger       *slog.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(store domain.Store, provisioning *ProvisioningService, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{store: store, provisioning: provisioning, logger: logger}
}

// Get returns the user's profile, creating an empty one on first access
func (s *ProfileService) Get(ctx context.Context, userID int64) (*ProfileView, error) {
	view := &ProfileView{}
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		profile, err := getOrCreateProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		view.Profile = profile

		client, err := tx.Clients().GetByUserID(ctx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		view.Client = client
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Update changes the profile's avatar, bio or website
func (s *ProfileService) Update(ctx context.Context, userID int64, u ProfileUpdate) (*domain.Profile, error) {
	if u.Bio != nil && utf8.RuneCountInString(*u.Bio) > domain.MaxBioLength {
		return nil, fmt.Errorf("%w: bio must be at most %d characters", domain.ErrInvalidInput, domain.MaxBioLength)
	}

	var profile *domain.Profile
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		var err error
		profile, err = getOrCreateProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		setString(&profile.AvatarURL, u.AvatarURL)
		setString(&profile.Website, u.Website)
		if u.Bio != nil {
			profile.Bio = strings.TrimSpace(*u.Bio)
		}
		return tx.Profiles().Update(ctx, profile)
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// UpdateClientData edits the user's own client contact data. A user without a client is
// provisioned from the submitted data. Activation and tier are never changed here.
func (s *ProfileService) UpdateClientData(ctx context.Context, user *domain.User, u ClientUpdate) (*domain.Client, error) {
	u.IsActive = nil
	u.TierID = nil

	var client *domain.Client
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		existing, err := tx.Clients().GetByUserID(ctx, user.ID)
		if errors.Is(err, domain.ErrNotFound) {
			client, err = s.provisioning.provisionTx(ctx, tx, user, u.Overrides())
			return err
		}
		if err != nil {
			return err
		}
		if err := applyClientUpdate(existing, u); err != nil {
			return err
		}
		client = existing
		return tx.Clients().Update(ctx, existing)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("client data updated by owner",
		slog.Int64("client_id", client.ID),
		slog.Int64("user_id", user.ID),
	)
	return client, nil
}

func getOrCreateProfile(ctx context.Context, tx domain.Repositories, userID int64) (*domain.Profile, error) {
	profile, err := tx.Profiles().GetByUserID(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	profile = &domain.Profile{UserID: userID}
	if client, err := tx.Clients().GetByUserID(ctx, userID); err == nil {
		profile.ClientID = &client.ID
	}
	if err := tx.Profiles().Create(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// Overrides converts the update into provisioning data; unset fields stay unsupplied
func (u ClientUpdate) Overrides() ClientOverrides {
	var o ClientOverrides
	get := func(v *string) string {
		if v == nil {
			return ""
		}
		return strings.TrimSpace(*v)
	}
	o.FirstName = get(u.FirstName)
	o.LastName = get(u.LastName)
	o.MiddleName = get(u.MiddleName)
	o.Phone = get(u.Phone)
	o.Email = get(u.Email)
	o.Address = get(u.Address)
	o.City = get(u.City)
	o.PostalCode = get(u.PostalCode)
	o.Country = get(u.Country)
	o.Occupation = get(u.Occupation)
	o.BirthDate = u.BirthDate
	if u.Gender != nil {
		o.Gender = *u.Gender
	}
	if u.MonthlyIncome != nil {
		o.MonthlyIncome = *u.MonthlyIncome
	}
	return o
}
