package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintrack/fintrack/internal/domain"
)

const clientSelect = `
	SELECT c.id, c.user_id, c.first_name, c.last_name, c.middle_name, c.birth_date, c.gender,
	       c.phone, c.email, c.address, c.city, c.postal_code, c.country,
	       c.monthly_income, c.occupation, c.is_active, c.registration_date, c.last_login_date, c.updated_at,
	       t.id, t.name, t.description, t.is_premium, t.max_transactions_per_month,
	       t.can_export_data, t.can_advanced_analytics, t.created_at, t.updated_at
	FROM clients c
	JOIN access_tiers t ON t.id = c.access_tier_id
`

// PostgresClientRepository implements domain.ClientRepository using PostgreSQL
type PostgresClientRepository struct {
	db     querier
	logger *slog.Logger
}

// Create inserts a client. The tier must already be stored.
func (r *PostgresClientRepository) Create(ctx context.Context, client *domain.Client) error {
	if client.Tier == nil {
		return fmt.Errorf("%w: client tier is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO clients (
			user_id, access_tier_id, first_name, last_name, middle_name, birth_date, gender,
			phone, email, address, city, postal_code, country, monthly_income, occupation, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, registration_date, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		client.UserID,
		client.Tier.ID,
		client.FirstName,
		client.LastName,
		client.MiddleName,
		client.BirthDate,
		string(client.Gender),
		client.Phone,
		client.Email,
		client.Address,
		client.City,
		client.PostalCode,
		client.Country,
		client.MonthlyIncome,
		client.Occupation,
		client.IsActive,
	).Scan(&client.ID, &client.RegistrationDate, &client.UpdatedAt)

	if err != nil {
		if derr := translateError("client", err); derr != nil {
			return derr
		}
		r.logger.Error("failed to create client",
			slog.Int64("user_id", client.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create client: %w", err)
	}

	return nil
}

// GetByID retrieves a client by ID
func (r *PostgresClientRepository) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	client, err := scanClient(r.db.QueryRowContext(ctx, clientSelect+` WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "client"}
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// GetByUserID retrieves the client owned by an identity
func (r *PostgresClientRepository) GetByUserID(ctx context.Context, userID int64) (*domain.Client, error) {
	client, err := scanClient(r.db.QueryRowContext(ctx, clientSelect+` WHERE c.user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "client"}
		}
		return nil, fmt.Errorf("failed to get client by user: %w", err)
	}
	return client, nil
}

// Update writes every mutable column. user_id is never changed.
func (r *PostgresClientRepository) Update(ctx context.Context, client *domain.Client) error {
	if client.Tier == nil {
		return fmt.Errorf("%w: client tier is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE clients
		SET access_tier_id = $1, first_name = $2, last_name = $3, middle_name = $4, birth_date = $5,
		    gender = $6, phone = $7, email = $8, address = $9, city = $10, postal_code = $11,
		    country = $12, monthly_income = $13, occupation = $14, is_active = $15, updated_at = NOW()
		WHERE id = $16
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		client.Tier.ID,
		client.FirstName,
		client.LastName,
		client.MiddleName,
		client.BirthDate,
		string(client.Gender),
		client.Phone,
		client.Email,
		client.Address,
		client.City,
		client.PostalCode,
		client.Country,
		client.MonthlyIncome,
		client.Occupation,
		client.IsActive,
		client.ID,
	).Scan(&client.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.NotFoundError{Entity: "client"}
		}
		if derr := translateError("client", err); derr != nil {
			return derr
		}
		return fmt.Errorf("failed to update client: %w", err)
	}
	return nil
}

// UpdateTier reassigns the client's tier
func (r *PostgresClientRepository) UpdateTier(ctx context.Context, clientID, tierID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE clients SET access_tier_id = $1, updated_at = NOW() WHERE id = $2`,
		tierID, clientID,
	)
	if err != nil {
		if derr := translateError("client", err); derr != nil {
			return derr
		}
		return fmt.Errorf("failed to update client tier: %w", err)
	}
	return requireRow(res, "client")
}

// TouchLastLogin records the time of the owner's latest login
func (r *PostgresClientRepository) TouchLastLogin(ctx context.Context, clientID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE clients SET last_login_date = $1 WHERE id = $2`,
		at, clientID,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return requireRow(res, "client")
}

// List returns one window of clients ordered by name along with the total match count
func (r *PostgresClientRepository) List(ctx context.Context, filter domain.ClientFilter, limit, offset int) ([]*domain.Client, int, error) {
	where, args := clientFilterClause(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM clients c` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count clients: %w", err)
	}

	query := clientSelect + where +
		fmt.Sprintf(` ORDER BY c.last_name, c.first_name, c.id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		r.logger.Error("failed to list clients", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*domain.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return clients, total, nil
}

// Statistics counts clients in one pass
func (r *PostgresClientRepository) Statistics(ctx context.Context) (domain.ClientStatistics, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE c.is_active),
		       COUNT(*) FILTER (WHERE t.is_premium),
		       COUNT(*) FILTER (WHERE NOT t.is_premium)
		FROM clients c
		JOIN access_tiers t ON t.id = c.access_tier_id
	`
	var stats domain.ClientStatistics
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Active, &stats.Premium, &stats.Basic)
	if err != nil {
		return domain.ClientStatistics{}, fmt.Errorf("failed to compute client statistics: %w", err)
	}
	return stats, nil
}

func clientFilterClause(filter domain.ClientFilter) (string, []any) {
	var conds []string
	var args []any

	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(c.first_name ILIKE $%d OR c.last_name ILIKE $%d OR c.phone ILIKE $%d OR c.email ILIKE $%d)",
			n, n, n, n,
		))
	}
	if filter.TierID != 0 {
		args = append(args, filter.TierID)
		conds = append(conds, fmt.Sprintf("c.access_tier_id = $%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, fmt.Sprintf("c.is_active = $%d", len(args)))
	}
	if city := strings.TrimSpace(filter.City); city != "" {
		args = append(args, "%"+city+"%")
		conds = append(conds, fmt.Sprintf("c.city ILIKE $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanClient(row rowScanner) (*domain.Client, error) {
	c := &domain.Client{Tier: &domain.AccessTier{}}
	var (
		gender    string
		income    decimal.NullDecimal
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.FirstName,
		&c.LastName,
		&c.MiddleName,
		&c.BirthDate,
		&gender,
		&c.Phone,
		&c.Email,
		&c.Address,
		&c.City,
		&c.PostalCode,
		&c.Country,
		&income,
		&c.Occupation,
		&c.IsActive,
		&c.RegistrationDate,
		&lastLogin,
		&c.UpdatedAt,
		&c.Tier.ID,
		&c.Tier.Name,
		&c.Tier.Description,
		&c.Tier.IsPremium,
		&c.Tier.MaxTransactionsPerMonth,
		&c.Tier.CanExportData,
		&c.Tier.CanAdvancedAnalytics,
		&c.Tier.CreatedAt,
		&c.Tier.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Gender = domain.Gender(gender)
	c.MonthlyIncome = income
	if lastLogin.Valid {
		t := lastLogin.Time
		c.LastLoginDate = &t
	}
	return c, nil
}

func requireRow(res sql.Result, entity string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.NotFoundError{Entity: entity}
	}
	return nil
}
