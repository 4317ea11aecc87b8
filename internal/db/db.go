// Package db provides the hot tier of session storage: one small row per
// session holding cv_data, metadata and the version used for optimistic
// concurrency. PostgreSQL backs deployments; SQLite backs single-node runs.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonathan/cv-tailor/internal/session"
)

//go:embed migrations/*.sql
var postgresMigrations embed.FS

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

var _ session.HotStore = (*DB)(nil)

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate applies embedded migrations that have not run yet, each in its own
// transaction. It returns the names of the migrations it applied.
func (db *DB) Migrate(ctx context.Context) ([]string, error) {
	_, err := db.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure migration table: %w", err)
	}

	files, err := migrationFiles(postgresMigrations, "migrations")
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range files {
		var exists bool
		err := db.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name,
		).Scan(&exists)
		if err != nil {
			return applied, fmt.Errorf("failed to check migration %s: %w", name, err)
		}
		if exists {
			continue
		}

		content, err := fs.ReadFile(postgresMigrations, "migrations/"+name)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		err = pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// Load implements session.HotStore.
func (db *DB) Load(ctx context.Context, id string) (*session.Record, error) {
	var rec session.Record
	err := db.pool.QueryRow(ctx,
		`SELECT id, cv_data, metadata, version, created_at, updated_at
		 FROM cv_sessions WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.CVData, &rec.Metadata, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return &rec, nil
}

// Save implements session.HotStore.
func (db *DB) Save(ctx context.Context, rec *session.Record, expectedVersion int64) error {
	if expectedVersion == 0 {
		tag, err := db.pool.Exec(ctx,
			`INSERT INTO cv_sessions (id, cv_data, metadata, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			rec.ID, rec.CVData, rec.Metadata, rec.Version, rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session %s: %w", rec.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return session.ErrVersionConflict
		}
		return nil
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE cv_sessions
		 SET cv_data = $2, metadata = $3, version = $4, updated_at = $5
		 WHERE id = $1 AND version = $6`,
		rec.ID, rec.CVData, rec.Metadata, rec.Version, rec.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrVersionConflict
	}
	return nil
}

// Delete removes a session row. Deleting an unknown id is not an error.
func (db *DB) Delete(ctx context.Context, id string) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM cv_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func migrationFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
