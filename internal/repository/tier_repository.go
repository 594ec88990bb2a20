package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fintrack/fintrack/internal/domain"
)

const tierColumns = `id, name, description, is_premium, max_transactions_per_month, can_export_data, can_advanced_analytics, created_at, updated_at`

// PostgresTierRepository implements domain.TierRepository using PostgreSQL
type PostgresTierRepository struct {
	db     querier
	logger *slog.Logger
}

// GetOrCreate inserts the tier unless its name is taken, then reads the stored row back.
// ON CONFLICT DO NOTHING makes concurrent first use converge on a single row.
func (r *PostgresTierRepository) GetOrCreate(ctx context.Context, tier *domain.AccessTier) (*domain.AccessTier, bool, error) {
	insert := `
		INSERT INTO access_tiers (name, description, is_premium, max_transactions_per_month, can_export_data, can_advanced_analytics)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, insert,
		tier.Name,
		tier.Description,
		tier.IsPremium,
		tier.MaxTransactionsPerMonth,
		tier.CanExportData,
		tier.CanAdvancedAnalytics,
	)
	if err != nil {
		r.logger.Error("failed to insert access tier",
			slog.String("name", tier.Name),
			slog.String("error", err.Error()),
		)
		return nil, false, fmt.Errorf("failed to create access tier: %w", err)
	}

	created := false
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		created = true
	}

	stored, err := r.GetByName(ctx, tier.Name)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// GetByID retrieves a tier by ID
func (r *PostgresTierRepository) GetByID(ctx context.Context, id int64) (*domain.AccessTier, error) {
	t, err := scanTier(r.db.QueryRowContext(ctx, `SELECT `+tierColumns+` FROM access_tiers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "access tier"}
		}
		return nil, fmt.Errorf("failed to get access tier: %w", err)
	}
	return t, nil
}

// GetByName retrieves a tier by name
func (r *PostgresTierRepository) GetByName(ctx context.Context, name string) (*domain.AccessTier, error) {
	t, err := scanTier(r.db.QueryRowContext(ctx, `SELECT `+tierColumns+` FROM access_tiers WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "access tier"}
		}
		return nil, fmt.Errorf("failed to get access tier by name: %w", err)
	}
	return t, nil
}

// List returns all tiers ordered by name
func (r *PostgresTierRepository) List(ctx context.Context) ([]*domain.AccessTier, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tierColumns+` FROM access_tiers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list access tiers: %w", err)
	}
	defer rows.Close()

	var out []*domain.AccessTier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access tier: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update updates an existing tier
func (r *PostgresTierRepository) Update(ctx context.Context, tier *domain.AccessTier) error {
	query := `
		UPDATE access_tiers
		SET name = $1, description = $2, is_premium = $3, max_transactions_per_month = $4,
		    can_export_data = $5, can_advanced_analytics = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		tier.Name,
		tier.Description,
		tier.IsPremium,
		tier.MaxTransactionsPerMonth,
		tier.CanExportData,
		tier.CanAdvancedAnalytics,
		tier.ID,
	).Scan(&tier.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.NotFoundError{Entity: "access tier"}
		}
		if derr := translateError("access tier", err); derr != nil {
			return derr
		}
		return fmt.Errorf("failed to update access tier: %w", err)
	}
	return nil
}

// Delete removes a tier. The RESTRICT foreign key refuses it while clients reference the tier.
func (r *PostgresTierRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM access_tiers WHERE id = $1`, id)
	if err != nil {
		if derr := translateError("access tier", err); derr != nil {
			return derr
		}
		return fmt.Errorf("failed to delete access tier: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.NotFoundError{Entity: "access tier"}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTier(row rowScanner) (*domain.AccessTier, error) {
	t := &domain.AccessTier{}
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.IsPremium,
		&t.MaxTransactionsPerMonth,
		&t.CanExportData,
		&t.CanAdvancedAnalytics,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
