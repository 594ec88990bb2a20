package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	migrationTable = "schema_migrations"
	migrationRoot  = "migrations"

	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Migrate applies the bundled schema migrations that have not been recorded yet.
// Each file runs in its own transaction together with its bookkeeping row.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	return ApplyMigrations(ctx, cp.db, migrationFS, migrationRoot, cp.logger)
}

// ApplyMigrations executes the .sql files under root at most once per file, in name order.
// Only the Up section of a file is executed.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrations fs.FS, root string, logger *slog.Logger) error {
	if db == nil {
		return fmt.Errorf("sql db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}

	files, err := migrationFiles(migrations, root)
	if err != nil {
		return err
	}

	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, migrationTable)
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		applied, err := isApplied(ctx, db, name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(migrations, path.Join(root, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		upSQL := ExtractUpMigration(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		err = WithTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, upSQL); err != nil {
				return err
			}
			return recordMigration(ctx, tx, name)
		})
		if err != nil && IsAlreadyExistsError(err) {
			// A failed statement aborts the transaction, so the schema that is
			// already in place is recorded separately.
			logger.Warn("migration objects already exist, recording as applied", slog.String("name", name))
			err = recordMigration(ctx, db, name)
		}
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		logger.Info("migration applied", slog.String("name", name))
	}

	return nil
}

// ExtractUpMigration returns the SQL in the Up section. Files without markers run whole.
func ExtractUpMigration(content string) string {
	upIdx := strings.Index(content, upMarker)
	if upIdx == -1 {
		return content
	}
	body := content[upIdx+len(upMarker):]
	if downIdx := strings.Index(body, downMarker); downIdx != -1 {
		return body[:downIdx]
	}
	return body
}

// IsAlreadyExistsError reports whether err means the DDL target is already in place
func IsAlreadyExistsError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func recordMigration(ctx context.Context, db execer, name string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO `+migrationTable+` (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	return err
}

func isApplied(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var applied bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+migrationTable+` WHERE name = $1)`, name,
	).Scan(&applied)
	return applied, err
}

func migrationFiles(migrations fs.FS, root string) ([]string, error) {
	entries, err := fs.ReadDir(migrations, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil and rolling back otherwise.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
