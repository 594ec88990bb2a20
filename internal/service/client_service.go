package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/fintrack/fintrack/internal/domain"
)

// ClientUpdate carries optional client changes; nil fields are left alone
type ClientUpdate struct {
	FirstName     *string
	LastName      *string
	MiddleName    *string
	BirthDate     *time.Time
	Gender        *domain.Gender
	Phone         *string
	Email         *string
	Address       *string
	City          *string
	PostalCode    *string
	Country       *string
	MonthlyIncome *decimal.NullDecimal
	Occupation    *string

	// Staff only
	IsActive *bool
	TierID   *int64
}

// ClientService backs the staff client administration
type ClientService struct {
	store       domain.Store
	transitions *TierTransitionService
	logger      *slog.Logger
}

// NewClientService creates a new client service. Tier reassignments go through transitions.
func NewClientService(store domain.Store, transitions *TierTransitionService, logger *slog.Logger) *ClientService {
	if logger == nil {
		logger = slog.Default()
	}
	if transitions == nil {
		transitions = NewTierTransitionService(store, logger)
	}
	return &ClientService{store: store, transitions: transitions, logger: logger}
}

// List returns one page of clients matching filter
func (s *ClientService) List(ctx context.Context, filter domain.ClientFilter) (*domain.ClientPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	offset := (filter.Page - 1) * domain.ClientPageSize

	clients, total, err := s.store.Clients().List(ctx, filter, domain.ClientPageSize, offset)
	if err != nil {
		return nil, err
	}

	pages := (total + domain.ClientPageSize - 1) / domain.ClientPageSize
	if pages == 0 {
		pages = 1
	}
	return &domain.ClientPage{
		Clients:    clients,
		Page:       filter.Page,
		TotalCount: total,
		TotalPages: pages,
	}, nil
}

// Get returns a client by ID
func (s *ClientService) Get(ctx context.Context, id int64) (*domain.Client, error) {
	return s.store.Clients().GetByID(ctx, id)
}

// Update applies a staff edit, including activation and tier reassignment, in one transaction
func (s *ClientService) Update(ctx context.Context, id int64, u ClientUpdate) (*domain.Client, error) {
	var span trace.Span
	if u.TierID != nil {
		ctx, span = s.transitions.startMove(ctx, id, *u.TierID)
		defer span.End()
	}

	var (
		client *domain.Client
		moved  bool
	)
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		var err error
		client, err = tx.Clients().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := applyClientUpdate(client, u); err != nil {
			return err
		}
		if u.IsActive != nil {
			client.IsActive = *u.IsActive
		}
		if u.TierID != nil && *u.TierID != client.Tier.ID {
			moved = true
			if err := s.transitions.moveTx(ctx, tx, client, *u.TierID); err != nil {
				return err
			}
		}
		return tx.Clients().Update(ctx, client)
	})
	if moved {
		s.transitions.finishMove(span, client, err)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("client updated",
		slog.Int64("client_id", client.ID),
		slog.String("tier", client.Tier.Name),
		slog.Bool("is_active", client.IsActive),
	)
	return client, nil
}

// applyClientUpdate copies the self-service fields of u onto c and validates the result
func applyClientUpdate(c *domain.Client, u ClientUpdate) error {
	previousPhone := c.Phone
	setString(&c.FirstName, u.FirstName)
	setString(&c.LastName, u.LastName)
	setString(&c.MiddleName, u.MiddleName)
	setString(&c.Phone, u.Phone)
	setString(&c.Email, u.Email)
	setString(&c.Address, u.Address)
	setString(&c.City, u.City)
	setString(&c.PostalCode, u.PostalCode)
	setString(&c.Country, u.Country)
	setString(&c.Occupation, u.Occupation)

	if u.BirthDate != nil {
		c.BirthDate = *u.BirthDate
	}
	if u.Gender != nil {
		c.Gender = *u.Gender
	}
	if u.MonthlyIncome != nil {
		c.MonthlyIncome = *u.MonthlyIncome
	}

	// A client may keep its generated placeholder but not switch to another one.
	if c.Phone != previousPhone && domain.IsPlaceholderPhone(c.Phone) {
		return fmt.Errorf("%w: phone may not start with %q", domain.ErrInvalidInput, domain.PlaceholderPhonePrefix)
	}
	return c.Validate()
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
