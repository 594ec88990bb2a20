package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/observability/metrics"
)

var tracer = otel.Tracer("github.com/fintrack/fintrack/internal/service")

// PlaceholderBirthDate is stored when no birth date was supplied
var PlaceholderBirthDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ClientOverrides carries caller-supplied client data. Zero values mean "not supplied".
type ClientOverrides struct {
	FirstName     string
	LastName      string
	MiddleName    string
	Email         string
	Phone         string
	BirthDate     *time.Time
	Gender        domain.Gender
	Address       string
	City          string
	PostalCode    string
	Country       string
	MonthlyIncome decimal.NullDecimal
	Occupation    string
}

// ProvisioningService creates the client record that backs every identity
type ProvisioningService struct {
	store  domain.Store
	logger *slog.Logger
}

// NewProvisioningService creates a new provisioning service
func NewProvisioningService(store domain.Store, logger *slog.Logger) *ProvisioningService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProvisioningService{store: store, logger: logger}
}

// PlaceholderPhone derives a phone value from the identity ID. Identity IDs are unique,
// so placeholders of different identities never collide with each other.
func PlaceholderPhone(identityID int64) string {
	phone := domain.PlaceholderPhonePrefix + strconv.FormatInt(identityID, 10)
	if len(phone) > domain.MaxPhoneLength {
		phone = phone[:domain.MaxPhoneLength]
	}
	return phone
}

// Provision creates the client for identity on the default tier and links its profile,
// all in one transaction.
func (s *ProvisioningService) Provision(ctx context.Context, identity *domain.User, overrides ClientOverrides) (*domain.Client, error) {
	ctx, span := tracer.Start(ctx, "ProvisioningService.Provision")
	defer span.End()
	start := time.Now()

	var client *domain.Client
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		var err error
		client, err = s.provisionTx(ctx, tx, identity, overrides)
		return err
	})
	if err != nil {
		metrics.ObserveProvision(provisionResult(err), time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("client provisioning failed", slog.String("error", err.Error()))
		return nil, err
	}

	metrics.ObserveProvision("success", time.Since(start))
	span.SetAttributes(
		attribute.Int64("client.id", client.ID),
		attribute.Int64("identity.id", client.UserID),
	)
	s.logger.Info("client provisioned",
		slog.Int64("client_id", client.ID),
		slog.Int64("user_id", client.UserID),
		slog.String("tier", client.Tier.Name),
	)
	return client, nil
}

// HandleIdentityCreated provisions a client with defaults inside the transaction that
// created the identity. It has the shape of domain.IdentityHook.
func (s *ProvisioningService) HandleIdentityCreated(ctx context.Context, tx domain.Repositories, identity *domain.User) error {
	_, err := s.provisionTx(ctx, tx, identity, ClientOverrides{})
	return err
}

// Register applies registration data. A client already created by the identity hook is
// overwritten with the resolved fields and put back on the default tier; otherwise a new
// client is provisioned.
func (s *ProvisioningService) Register(ctx context.Context, tx domain.Repositories, identity *domain.User, overrides ClientOverrides) (*domain.Client, error) {
	if identity == nil || identity.ID == 0 {
		return nil, fmt.Errorf("%w: identity is required", domain.ErrInvalidInput)
	}

	existing, err := tx.Clients().GetByUserID(ctx, identity.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.provisionTx(ctx, tx, identity, overrides)
	}
	if err != nil {
		return nil, err
	}

	tier, err := getOrCreateTier(ctx, tx.Tiers(), DefaultTierName, domain.DefaultTiers[DefaultTierName], s.logger)
	if err != nil {
		return nil, err
	}

	resolved, err := resolveClient(identity, overrides)
	if err != nil {
		return nil, err
	}
	resolved.ID = existing.ID
	resolved.IsActive = existing.IsActive
	resolved.LastLoginDate = existing.LastLoginDate
	resolved.Tier = tier

	if err := tx.Clients().Update(ctx, resolved); err != nil {
		return nil, err
	}
	if err := reconcileProfile(ctx, tx, identity.ID, resolved.ID); err != nil {
		return nil, err
	}
	return resolved, nil
}

// SyncIdentity mirrors identity name and email changes onto its client.
// Empty identity fields keep the client's current value.
func (s *ProvisioningService) SyncIdentity(ctx context.Context, tx domain.Repositories, identity *domain.User) error {
	client, err := tx.Clients().GetByUserID(ctx, identity.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	client.FirstName = firstNonEmpty(identity.FirstName, client.FirstName)
	client.LastName = firstNonEmpty(identity.LastName, client.LastName)
	client.Email = firstNonEmpty(identity.Email, client.Email)
	if err := client.Validate(); err != nil {
		return err
	}
	return tx.Clients().Update(ctx, client)
}

func (s *ProvisioningService) provisionTx(ctx context.Context, tx domain.Repositories, identity *domain.User, overrides ClientOverrides) (*domain.Client, error) {
	if identity == nil || identity.ID == 0 {
		return nil, fmt.Errorf("%w: identity is required", domain.ErrInvalidInput)
	}

	_, err := tx.Clients().GetByUserID(ctx, identity.ID)
	if err == nil {
		return nil, &domain.ConflictError{Entity: "client", Field: "user_id"}
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// The tier row must exist before the client references it.
	tier, err := getOrCreateTier(ctx, tx.Tiers(), DefaultTierName, domain.DefaultTiers[DefaultTierName], s.logger)
	if err != nil {
		return nil, err
	}

	client, err := resolveClient(identity, overrides)
	if err != nil {
		return nil, err
	}
	client.Tier = tier
	client.IsActive = true

	if err := tx.Clients().Create(ctx, client); err != nil {
		return nil, err
	}
	if err := reconcileProfile(ctx, tx, identity.ID, client.ID); err != nil {
		return nil, err
	}
	return client, nil
}

func resolveClient(identity *domain.User, o ClientOverrides) (*domain.Client, error) {
	if domain.IsPlaceholderPhone(o.Phone) {
		return nil, fmt.Errorf("%w: phone may not start with %q", domain.ErrInvalidInput, domain.PlaceholderPhonePrefix)
	}

	client := &domain.Client{
		UserID:        identity.ID,
		FirstName:     firstNonEmpty(o.FirstName, identity.FirstName),
		LastName:      firstNonEmpty(o.LastName, identity.LastName),
		MiddleName:    o.MiddleName,
		Email:         firstNonEmpty(o.Email, identity.Email),
		Phone:         firstNonEmpty(o.Phone, PlaceholderPhone(identity.ID)),
		BirthDate:     PlaceholderBirthDate,
		Gender:        domain.GenderUnspecified,
		Address:       o.Address,
		City:          o.City,
		PostalCode:    o.PostalCode,
		Country:       firstNonEmpty(o.Country, domain.DefaultCountry),
		MonthlyIncome: o.MonthlyIncome,
		Occupation:    o.Occupation,
	}

	if o.BirthDate != nil {
		client.BirthDate = *o.BirthDate
	}
	if o.Gender != "" {
		client.Gender = o.Gender
	}
	if err := client.Validate(); err != nil {
		return nil, err
	}
	return client, nil
}

// reconcileProfile points the identity's profile at clientID, creating the profile if needed
func reconcileProfile(ctx context.Context, tx domain.Repositories, userID, clientID int64) error {
	profile, err := tx.Profiles().GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return tx.Profiles().Create(ctx, &domain.Profile{UserID: userID, ClientID: &clientID})
	}
	if err != nil {
		return err
	}
	if profile.ClientID != nil && *profile.ClientID == clientID {
		return nil
	}
	profile.ClientID = &clientID
	return tx.Profiles().Update(ctx, profile)
}

func provisionResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
