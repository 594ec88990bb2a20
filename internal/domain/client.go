package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Gender of a client
type Gender string

const (
	GenderMale        Gender = "M"
	GenderFemale      Gender = "F"
	GenderUnspecified Gender = "O"
)

// Valid reports whether g is one of the known gender codes
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderUnspecified:
		return true
	}
	return false
}

const (
	// MaxPhoneLength is the width of the phone column
	MaxPhoneLength = 20
	// PlaceholderPhonePrefix starts every generated phone. Clients may not choose it.
	PlaceholderPhonePrefix = "auto"
	// DefaultCountry is assigned to clients that do not specify one
	DefaultCountry = "Russia"
	// ClientPageSize is the number of clients per page in listings
	ClientPageSize = 20
)

// Client is the provisioned customer record, one per identity
type Client struct {
	ID     int64
	UserID int64 // Owning identity, immutable after creation
	Tier   *AccessTier

	FirstName  string
	LastName   string
	MiddleName string
	BirthDate  time.Time
	Gender     Gender

	Phone string // Unique across clients
	Email string // Unique across clients

	Address    string
	City       string
	PostalCode string
	Country    string

	MonthlyIncome decimal.NullDecimal
	Occupation    string

	IsActive         bool
	RegistrationDate time.Time
	LastLoginDate    *time.Time
	UpdatedAt        time.Time
}

// FullName renders "last first" with the middle name appended when present
func (c *Client) FullName() string {
	if c.MiddleName != "" {
		return c.LastName + " " + c.FirstName + " " + c.MiddleName
	}
	return c.LastName + " " + c.FirstName
}

// IsPremium is always derived from the current tier, never stored
func (c *Client) IsPremium() bool {
	return c.Tier != nil && c.Tier.IsPremium
}

// IsPlaceholderPhone reports whether phone is in the generated placeholder namespace
func IsPlaceholderPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	return len(phone) >= len(PlaceholderPhonePrefix) &&
		strings.EqualFold(phone[:len(PlaceholderPhonePrefix)], PlaceholderPhonePrefix)
}

// Column widths of the clients table, in characters
var clientFieldLimits = []struct {
	name  string
	max   int
	value func(*Client) string
}{
	{"first name", 50, func(c *Client) string { return c.FirstName }},
	{"last name", 50, func(c *Client) string { return c.LastName }},
	{"middle name", 50, func(c *Client) string { return c.MiddleName }},
	{"phone", MaxPhoneLength, func(c *Client) string { return c.Phone }},
	{"email", 254, func(c *Client) string { return c.Email }},
	{"city", 100, func(c *Client) string { return c.City }},
	{"postal code", 20, func(c *Client) string { return c.PostalCode }},
	{"country", 100, func(c *Client) string { return c.Country }},
	{"occupation", 100, func(c *Client) string { return c.Occupation }},
}

// maxMonthlyIncome is the first value a NUMERIC(12,2) column cannot hold
var maxMonthlyIncome = decimal.New(1, 10)

// Validate checks the client against the storage constraints
func (c *Client) Validate() error {
	if c.Phone == "" {
		return fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}
	if c.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	for _, f := range clientFieldLimits {
		if utf8.RuneCountInString(f.value(c)) > f.max {
			return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidInput, f.name, f.max)
		}
	}
	if !c.Gender.Valid() {
		return fmt.Errorf("%w: unknown gender %q", ErrInvalidInput, c.Gender)
	}
	if c.MonthlyIncome.Valid {
		if c.MonthlyIncome.Decimal.IsNegative() {
			return fmt.Errorf("%w: monthly income must not be negative", ErrInvalidInput)
		}
		if c.MonthlyIncome.Decimal.GreaterThanOrEqual(maxMonthlyIncome) {
			return fmt.Errorf("%w: monthly income is too large", ErrInvalidInput)
		}
	}
	return nil
}

// ClientFilter narrows client listings
type ClientFilter struct {
	Query    string // Case-insensitive match on first/last name, phone or email
	TierID   int64
	IsActive *bool
	City     string
	Page     int // 1-based
}

// ClientPage is one page of a client listing
type ClientPage struct {
	Clients    []*Client
	Page       int
	TotalCount int
	TotalPages int
}

// ClientStatistics are aggregate counts over all client records
type ClientStatistics struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Premium  int `json:"premium"`
	Basic    int `json:"basic"`
	Inactive int `json:"inactive"`
}

// ClientRepository defines data access for clients. Returned clients carry their tier.
type ClientRepository interface {
	Create(ctx context.Context, client *Client) error
	GetByID(ctx context.Context, id int64) (*Client, error)
	GetByUserID(ctx context.Context, userID int64) (*Client, error)
	Update(ctx context.Context, client *Client) error
	UpdateTier(ctx context.Context, clientID, tierID int64) error
	TouchLastLogin(ctx context.Context, clientID int64, at time.Time) error
	List(ctx context.Context, filter ClientFilter, limit, offset int) ([]*Client, int, error)
	// Statistics fills Total, Active, Premium and Basic.
	Statistics(ctx context.Context) (ClientStatistics, error)
}
