package domain

import (
	"context"
	"time"
)

// Profile is optional enrichment of an identity, linked to its client once provisioned
type Profile struct {
	ID        int64
	UserID    int64
	ClientID  *int64
	AvatarURL string
	Bio       string // Up to MaxBioLength characters
	Website   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MaxBioLength bounds Profile.Bio
const MaxBioLength = 500

// HasClientData reports whether the profile points at a client record
func (p *Profile) HasClientData() bool {
	return p.ClientID != nil
}

// ProfileRepository defines data access for profiles
type ProfileRepository interface {
	Create(ctx context.Context, profile *Profile) error
	GetByUserID(ctx context.Context, userID int64) (*Profile, error)
	Update(ctx context.Context, profile *Profile) error
}
