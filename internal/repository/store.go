package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/pkg/database"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore implements domain.Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
	repos  *repositories
}

// NewPostgresStore creates a store over an open database handle
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		logger: logger,
		repos:  newRepositories(db, logger),
	}
}

func (s *PostgresStore) Users() domain.UserRepository { return s.repos.users }
func (s *PostgresStore) Tiers() domain.TierRepository { return s.repos.tiers }
func (s *PostgresStore) Clients() domain.ClientRepository { return s.repos.clients }
func (s *PostgresStore) Profiles() domain.ProfileRepository { return s.repos.profiles }

// WithinTx runs fn with repositories bound to a single transaction
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx domain.Repositories) error) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(newRepositories(tx, s.logger))
	})
}

// Ping executes a trivial round-trip
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

type repositories struct {
	users    *PostgresUserRepository
	tiers    *PostgresTierRepository
	clients  *PostgresClientRepository
	profiles *PostgresProfileRepository
}

func newRepositories(q querier, logger *slog.Logger) *repositories {
	return &repositories{
		users:    &PostgresUserRepository{db: q, logger: logger},
		tiers:    &PostgresTierRepository{db: q, logger: logger},
		clients:  &PostgresClientRepository{db: q, logger: logger},
		profiles: &PostgresProfileRepository{db: q, logger: logger},
	}
}

func (r *repositories) Users() domain.UserRepository { return r.users }
func (r *repositories) Tiers() domain.TierRepository { return r.tiers }
func (r *repositories) Clients() domain.ClientRepository { return r.clients }
func (r *repositories) Profiles() domain.ProfileRepository { return r.profiles }
