package domain

import (
	"context"
	"time"
)

// Well-known tier names
const (
	TierBasic    = "Basic"
	TierStandard = "Standard"
	TierPremium  = "Premium"
)

// MaxTierNameLength is the width of the tier name column
const MaxTierNameLength = 50

// Capability is a boolean-gated feature checked against a client's current tier
type Capability string

const (
	CapabilityExportData        Capability = "export_data"
	CapabilityAdvancedAnalytics Capability = "advanced_analytics"
)

// AccessTier is a named bundle of capability flags and quotas
type AccessTier struct {
	ID                      int64     `json:"id"`
	Name                    string    `json:"name"`
	Description             string    `json:"description"`
	IsPremium               bool      `json:"isPremium"`
	MaxTransactionsPerMonth int       `json:"maxTransactionsPerMonth"`
	CanExportData           bool      `json:"canExportData"`
	CanAdvancedAnalytics    bool      `json:"canAdvancedAnalytics"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// Allows reports whether the tier grants the capability. Unknown capabilities are denied.
func (t *AccessTier) Allows(c Capability) bool {
	if t == nil {
		return false
	}
	switch c {
	case CapabilityExportData:
		return t.CanExportData
	case CapabilityAdvancedAnalytics:
		return t.CanAdvancedAnalytics
	default:
		return false
	}
}

// Label renders the tier for listings, e.g. "Premium (premium)"
func (t *AccessTier) Label() string {
	if t.IsPremium {
		return t.Name + " (premium)"
	}
	return t.Name + " (regular)"
}

// DefaultTiers holds the definitions used when a well-known tier has to be created.
var DefaultTiers = map[string]AccessTier{
	TierBasic: {
		Name:                    TierBasic,
		Description:             "Basic access level for every registered user",
		MaxTransactionsPerMonth: 50,
	},
	TierStandard: {
		Name:                    TierStandard,
		Description:             "Standard access level for regular users",
		MaxTransactionsPerMonth: 50,
	},
	TierPremium: {
		Name:                    TierPremium,
		Description:             "Extended access level with data export and advanced analytics",
		IsPremium:               true,
		MaxTransactionsPerMonth: 1000,
		CanExportData:           true,
		CanAdvancedAnalytics:    true,
	},
}

// TierRepository defines data access for access tiers
type TierRepository interface {
	// GetOrCreate inserts tier unless a tier with the same name exists and returns the stored row.
	// The boolean reports whether this call created it.
	GetOrCreate(ctx context.Context, tier *AccessTier) (*AccessTier, bool, error)
	GetByID(ctx context.Context, id int64) (*AccessTier, error)
	GetByName(ctx context.Context, name string) (*AccessTier, error)
	List(ctx context.Context) ([]*AccessTier, error)
	Update(ctx context.Context, tier *AccessTier) error
	// Delete fails with ErrTierInUse while any client references the tier.
	Delete(ctx context.Context, id int64) error
}
