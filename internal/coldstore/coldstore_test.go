package coldstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jonathan/cv-tailor/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyedBlobStore interface {
	session.BlobStore
	Keys(ctx context.Context, prefix string) ([]string, error)
}

func stores(t *testing.T) map[string]keyedBlobStore {
	t.Helper()
	mem, err := OpenBadger(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	disk, err := OpenBadger(DefaultConfig(filepath.Join(t.TempDir(), "blobs")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = disk.Close() })

	return map[string]keyedBlobStore{
		"badger_in_memory": mem,
		"badger_disk":      disk,
		"memory":           NewMemory(),
	}
}

func TestBlobStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "sessions/s1/pdf/a", []byte("%PDF-1.7")))
			require.NoError(t, store.Put(ctx, "sessions/s1/events/v2", []byte(`[]`)))
			require.NoError(t, store.Put(ctx, "sessions/s2/events/v2", []byte(`[]`)))

			got, err := store.Get(ctx, "sessions/s1/pdf/a")
			require.NoError(t, err)
			assert.Equal(t, []byte("%PDF-1.7"), got)

			keys, err := store.Keys(ctx, "sessions/s1/")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"sessions/s1/pdf/a", "sessions/s1/events/v2"}, keys)

			require.NoError(t, store.Delete(ctx, "sessions/s1/pdf/a"))
			_, err = store.Get(ctx, "sessions/s1/pdf/a")
			assert.ErrorIs(t, err, session.ErrBlobNotFound)

			// deleting twice is fine
			assert.NoError(t, store.Delete(ctx, "sessions/s1/pdf/a"))
		})
	}
}

func TestBlobStores_GetMissing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, session.ErrBlobNotFound)
		})
	}
}

func TestBadger_CancelledContext(t *testing.T) {
	store, err := OpenBadger(InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Put(ctx, "k", []byte("v")), context.Canceled)
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "blobs")

	store, err := OpenBadger(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "k", []byte("v")))
	require.NoError(t, store.Close())

	store, err = OpenBadger(DefaultConfig(dir))
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestStoreOverBadger(t *testing.T) {
	ctx := context.Background()
	blobs, err := OpenBadger(InMemoryConfig())
	require.NoError(t, err)
	defer blobs.Close()

	s := session.NewStore(session.NewMemoryHotStore(), blobs, session.DefaultOptions())
	sess, err := s.Create(ctx, "s1", nil, "en")
	require.NoError(t, err)

	_, err = s.Update(ctx, sess.ID, session.Changes{
		Events: []session.Event{{Tool: "advance_stage"}},
		PDF:    &session.PDFArtifact{Data: []byte("%PDF"), ContentHash: "h"},
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Aux.Events, 1)
	ref, ok := got.LatestPDF()
	require.True(t, ok)
	data, err := s.LoadBlob(ctx, ref.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)
}
