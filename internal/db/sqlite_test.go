package db

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonathan/cv-tailor/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(id string, version int64) *session.Record {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &session.Record{
		ID:        id,
		CVData:    json.RawMessage(`{"profile":"hello"}`),
		Metadata:  json.RawMessage(`{"stage":"bootstrap"}`),
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLite_InsertAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	require.NoError(t, s.Save(ctx, testRecord("s1", 1), 0))

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.JSONEq(t, `{"profile":"hello"}`, string(got.CVData))
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestSQLite_LoadMissing(t *testing.T) {
	s := openTestSQLite(t)
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, session.ErrRecordNotFound)
}

func TestSQLite_DuplicateInsert(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	require.NoError(t, s.Save(ctx, testRecord("s1", 1), 0))
	assert.ErrorIs(t, s.Save(ctx, testRecord("s1", 1), 0), session.ErrVersionConflict)
}

func TestSQLite_OptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	require.NoError(t, s.Save(ctx, testRecord("s1", 1), 0))

	next := testRecord("s1", 2)
	next.Metadata = json.RawMessage(`{"stage":"extract"}`)
	require.NoError(t, s.Save(ctx, next, 1))

	// stale writer
	assert.ErrorIs(t, s.Save(ctx, testRecord("s1", 2), 1), session.ErrVersionConflict)

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.JSONEq(t, `{"stage":"extract"}`, string(got.Metadata))
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, testRecord("s1", 1), 0))
	require.NoError(t, s.Close())

	// migrations are idempotent
	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Load(ctx, "s1")
	require.NoError(t, err)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

func TestSQLite_BacksSessionStore(t *testing.T) {
	ctx := context.Background()
	hot, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer hot.Close()

	store := session.NewStore(hot, nil, session.DefaultOptions())
	sess, err := store.Create(ctx, "s1", nil, "en")
	require.NoError(t, err)

	updated, err := store.Update(ctx, sess.ID, session.Changes{Meta: session.MetaPatch{Confirm: map[string]bool{"contact": true}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.Meta.ConfirmedFlags["contact"])
}

func TestMigrationFiles(t *testing.T) {
	names, err := migrationFiles(postgresMigrations, "migrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_sessions.sql"}, names)

	names, err = migrationFiles(sqliteMigrations, "sqlitemigrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_sessions.sql"}, names)
}
