package journal

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stubmill/simbridge/simbridge-srv/config"
	"github.com/stubmill/simbridge/simbridge-srv/simulation"
)

func testEntry(path string) Entry {
	return NewEntry("capture",
		simulation.Request{Method: "GET", Scheme: "http", Host: "example.com", Path: path},
		simulation.Response{Status: 200, Headers: http.Header{"Content-Type": {"text/plain"}}, Body: "ok"},
		12*time.Millisecond)
}

func TestNewEntry(t *testing.T) {
	entry := testEntry("/a")
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Time.IsZero())
	assert.Equal(t, "capture", entry.Mode)

	other := testEntry("/a")
	assert.NotEqual(t, entry.ID, other.ID)
}

// exerciseStore runs the shared backend contract against a store.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	first := testEntry("/first")
	second := testEntry("/second")
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	entries, err = store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/first", entries[0].Request.Path)
	assert.Equal(t, "/second", entries[1].Request.Path)
	assert.Equal(t, 200, entries[0].Response.Status)
	assert.Equal(t, "ok", entries[0].Response.Body)
	assert.Equal(t, 12*time.Millisecond, entries[0].Latency)

	require.NoError(t, store.Reset(ctx))
	entries, err = store.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(0)
	defer func() {
		_ = store.Close()
	}()
	exerciseStore(t, store)
}

func TestMemoryStoreLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)
	require.NoError(t, store.Append(ctx, testEntry("/1")))
	require.NoError(t, store.Append(ctx, testEntry("/2")))
	require.NoError(t, store.Append(ctx, testEntry("/3")))

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/2", entries[0].Request.Path)
	assert.Equal(t, "/3", entries[1].Request.Path)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer func() {
		_ = store.Close()
	}()
	exerciseStore(t, store)
}

func TestSQLiteStorePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, testEntry("/persisted")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() {
		_ = reopened.Close()
	}()
	entries, err := reopened.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/persisted", entries[0].Request.Path)
}

func TestNewStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, err := NewStore(&config.JournalConfig{Backend: config.JournalMemory})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("default is memory", func(t *testing.T) {
		store, err := NewStore(&config.JournalConfig{})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		store, err := NewStore(&config.JournalConfig{
			Backend: config.JournalSQLite,
			Path:    filepath.Join(t.TempDir(), "j.db"),
		})
		require.NoError(t, err)
		defer func() {
			_ = store.Close()
		}()
		assert.IsType(t, &SQLiteStore{}, store)
	})

	t.Run("sqlite without path", func(t *testing.T) {
		_, err := NewStore(&config.JournalConfig{Backend: config.JournalSQLite})
		require.Error(t, err)
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		_, err := NewStore(&config.JournalConfig{Backend: config.JournalPostgres})
		require.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewStore(&config.JournalConfig{Backend: "redis"})
		require.Error(t, err)
	})
}
