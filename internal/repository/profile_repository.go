package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fintrack/fintrack/internal/domain"
)

// PostgresProfileRepository implements domain.ProfileRepository using PostgreSQL
type PostgresProfileRepository struct {
	db     querier
	logger *slog.Logger
}

// Create creates a new profile
func (r *PostgresProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	query := `
		INSERT INTO profiles (user_id, client_id, avatar_url, bio, website)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		profile.UserID,
		nullableID(profile.ClientID),
		profile.AvatarURL,
		profile.Bio,
		profile.Website,
	).Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)

	if err != nil {
		if derr := translateError("profile", err); derr != nil {
			return derr
		}
		r.logger.Error("failed to create profile",
			slog.Int64("user_id", profile.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByUserID retrieves the profile of an identity
func (r *PostgresProfileRepository) GetByUserID(ctx context.Context, userID int64) (*domain.Profile, error) {
	query := `
		SELECT id, user_id, client_id, avatar_url, bio, website, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	p := &domain.Profile{}
	var clientID sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.ID,
		&p.UserID,
		&clientID,
		&p.AvatarURL,
		&p.Bio,
		&p.Website,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "profile"}
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if clientID.Valid {
		id := clientID.Int64
		p.ClientID = &id
	}
	return p, nil
}

// Update updates an existing profile
func (r *PostgresProfileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	query := `
		UPDATE profiles
		SET client_id = $1, avatar_url = $2, bio = $3, website = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		nullableID(profile.ClientID),
		profile.AvatarURL,
		profile.Bio,
		profile.Website,
		profile.ID,
	).Scan(&profile.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.NotFoundError{Entity: "profile"}
		}
		if derr := translateError("profile", err); derr != nil {
			return derr
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
