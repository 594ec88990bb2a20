package handler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/service"
)

const dateLayout = "2006-01-02"

// ClientPayload carries client fields in requests. Omitted fields are left unchanged.
type ClientPayload struct {
	FirstName     *string          `json:"firstName"`
	LastName      *string          `json:"lastName"`
	MiddleName    *string          `json:"middleName"`
	BirthDate     *string          `json:"birthDate"`
	Gender        *string          `json:"gender"`
	Phone         *string          `json:"phone"`
	Email         *string          `json:"email"`
	Address       *string          `json:"address"`
	City          *string          `json:"city"`
	PostalCode    *string          `json:"postalCode"`
	Country       *string          `json:"country"`
	MonthlyIncome *decimal.Decimal `json:"monthlyIncome"`
	Occupation    *string          `json:"occupation"`

	// Honored on the staff endpoint only
	IsActive *bool  `json:"isActive"`
	TierID   *int64 `json:"tierId"`
}

func (p *ClientPayload) toUpdate() (service.ClientUpdate, error) {
	if p == nil {
		return service.ClientUpdate{}, nil
	}
	u := service.ClientUpdate{
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		MiddleName: p.MiddleName,
		Phone:      p.Phone,
		Email:      p.Email,
		Address:    p.Address,
		City:       p.City,
		PostalCode: p.PostalCode,
		Country:    p.Country,
		Occupation: p.Occupation,
		IsActive:   p.IsActive,
		TierID:     p.TierID,
	}
	if p.BirthDate != nil {
		d, err := time.Parse(dateLayout, *p.BirthDate)
		if err != nil {
			return u, fmt.Errorf("%w: birthDate must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		u.BirthDate = &d
	}
	if p.Gender != nil {
		g := domain.Gender(*p.Gender)
		u.Gender = &g
	}
	if p.MonthlyIncome != nil {
		income := decimal.NewNullDecimal(*p.MonthlyIncome)
		u.MonthlyIncome = &income
	}
	return u, nil
}

// ClientResponse is the client as rendered by the API
type ClientResponse struct {
	ID               int64              `json:"id"`
	UserID           int64              `json:"userId"`
	FullName         string             `json:"fullName"`
	FirstName        string             `json:"firstName"`
	LastName         string             `json:"lastName"`
	MiddleName       string             `json:"middleName,omitempty"`
	BirthDate        string             `json:"birthDate"`
	Gender           domain.Gender      `json:"gender"`
	Phone            string             `json:"phone"`
	Email            string             `json:"email"`
	Address          string             `json:"address,omitempty"`
	City             string             `json:"city,omitempty"`
	PostalCode       string             `json:"postalCode,omitempty"`
	Country          string             `json:"country"`
	MonthlyIncome    *decimal.Decimal   `json:"monthlyIncome,omitempty"`
	Occupation       string             `json:"occupation,omitempty"`
	IsActive         bool               `json:"isActive"`
	IsPremium        bool               `json:"isPremium"`
	Tier             *domain.AccessTier `json:"tier"`
	RegistrationDate time.Time          `json:"registrationDate"`
	LastLoginDate    *time.Time         `json:"lastLoginDate,omitempty"`
}

func newClientResponse(c *domain.Client) *ClientResponse {
	if c == nil {
		return nil
	}
	resp := &ClientResponse{
		ID:               c.ID,
		UserID:           c.UserID,
		FullName:         c.FullName(),
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		MiddleName:       c.MiddleName,
		BirthDate:        c.BirthDate.Format(dateLayout),
		Gender:           c.Gender,
		Phone:            c.Phone,
		Email:            c.Email,
		Address:          c.Address,
		City:             c.City,
		PostalCode:       c.PostalCode,
		Country:          c.Country,
		Occupation:       c.Occupation,
		IsActive:         c.IsActive,
		IsPremium:        c.IsPremium(),
		Tier:             c.Tier,
		RegistrationDate: c.RegistrationDate,
		LastLoginDate:    c.LastLoginDate,
	}
	if c.MonthlyIncome.Valid {
		income := c.MonthlyIncome.Decimal
		resp.MonthlyIncome = &income
	}
	return resp
}

// UserResponse is the identity without its credentials
type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	IsStaff   bool   `json:"isStaff"`
}

func newUserResponse(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsStaff:   u.IsStaff,
	}
}

// ProfileResponse combines the identity, its profile and its client
type ProfileResponse struct {
	User    *UserResponse   `json:"user"`
	Profile ProfileBody     `json:"profile"`
	Client  *ClientResponse `json:"client"`
}

// ProfileBody is the editable part of a profile
type ProfileBody struct {
	AvatarURL     string `json:"avatarUrl"`
	Bio           string `json:"bio"`
	Website       string `json:"website"`
	HasClientData bool   `json:"hasClientData"`
}
