package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrMigrationFailed wraps every failure of Migrate.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one forward step of the schema. Down is kept for manual use.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Migrator applies embedded migrations that are not yet recorded in
// schema_migrations. Each step runs in its own transaction.
type Migrator struct {
	db    *sqlx.DB
	steps []Migration
}

// NewMigrator uses the embedded schema.
func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{db: db, steps: GetMigrations()}
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migrate returns the number of steps applied by this call.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if _, err := m.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("%w: create table: %v", ErrMigrationFailed, err)
	}

	var versions []int
	if err := m.db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations`); err != nil {
		return 0, fmt.Errorf("%w: read applied: %v", ErrMigrationFailed, err)
	}
	done := make(map[int]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}

	applied := 0
	for _, step := range m.steps {
		if done[step.Version] {
			continue
		}
		if err := m.apply(ctx, step); err != nil {
			return applied, fmt.Errorf("%w: %d_%s: %v", ErrMigrationFailed, step.Version, step.Name, err)
		}
		applied++
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, step Migration) error {
	if step.UpSQL == "" {
		return errors.New("empty up script")
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, step.UpSQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
		step.Version, step.Name,
	); err != nil {
		return err
	}
	return tx.Commit()
}
