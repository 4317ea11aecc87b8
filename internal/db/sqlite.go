package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/cv-tailor/internal/session"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed sqlitemigrations/*.sql
var sqliteMigrations embed.FS

// SQLite is a session.HotStore over an embedded SQLite database.
type SQLite struct {
	sqlDB *sql.DB
}

var _ session.HotStore = (*SQLite)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens a SQLite hot store and applies embedded migrations. The
// path ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s := &SQLite{sqlDB: sqlDB}
	if err := s.migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLite) migrate(ctx context.Context) error {
	_, err := s.sqlDB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	files, err := migrationFiles(sqliteMigrations, "sqlitemigrations")
	if err != nil {
		return err
	}
	for _, name := range files {
		var count int
		err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}
		content, err := fs.ReadFile(sqliteMigrations, "sqlitemigrations/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := s.sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// Load implements session.HotStore.
func (s *SQLite) Load(ctx context.Context, id string) (*session.Record, error) {
	var (
		rec                session.Record
		cvData, metadata   string
		createdAt, updated int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, cv_data, metadata, version, created_at, updated_at FROM cv_sessions WHERE id = ?`,
		id,
	).Scan(&rec.ID, &cvData, &metadata, &rec.Version, &createdAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrRecordNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	rec.CVData = []byte(cvData)
	rec.Metadata = []byte(metadata)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updated)
	return &rec, nil
}

// Save implements session.HotStore.
func (s *SQLite) Save(ctx context.Context, rec *session.Record, expectedVersion int64) error {
	if expectedVersion == 0 {
		_, err := s.sqlDB.ExecContext(ctx,
			`INSERT INTO cv_sessions (id, cv_data, metadata, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, string(rec.CVData), string(rec.Metadata), rec.Version,
			toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
		)
		if isUniqueViolation(err) {
			return session.ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("insert session %s: %w", rec.ID, err)
		}
		return nil
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE cv_sessions SET cv_data = ?, metadata = ?, version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(rec.CVData), string(rec.Metadata), rec.Version, toMillis(rec.UpdatedAt),
		rec.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %s: %w", rec.ID, err)
	}
	if n == 0 {
		return session.ErrVersionConflict
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
