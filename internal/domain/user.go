package domain

import (
	"context"
	"time"
)

// User represents an authenticated identity
type User struct {
	ID           int64
	Username     string // Unique login name
	Email        string // Unique email address (compared case-insensitively)
	FirstName    string
	LastName     string
	PasswordHash string // Bcrypt hashed password (not returned in API)
	IsStaff      bool   // Grants access to client and tier administration
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepository defines data access for identities
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, user *User) error
	// ListWithoutClient returns up to limit identities that have no client, oldest first
	ListWithoutClient(ctx context.Context, limit int) ([]*User, error)
}

// IdentityHook is invoked inside the transaction that created or updated an identity.
// Returning an error rolls the whole transaction back.
type IdentityHook func(ctx context.Context, tx Repositories, user *User) error
