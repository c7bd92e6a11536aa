//go:build cgo

package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, clock *fakeClock) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "cache.db")
	s, err := OpenSQLite(dbPath, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("Error closing store: %v", err)
		}
	})

	_, err = os.Stat(dbPath)
	require.NoError(t, err, "database file should exist")
	return s
}

func TestSQLiteRequestCache_TTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(0)
	s := openTestStore(t, clock)
	requestCacheTTL(t, s.RequestCache(100*time.Second), clock)
}

func TestSQLiteRequestCache_Prune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(1000)
	c := openTestStore(t, clock).RequestCache(10 * time.Second)

	require.NoError(t, c.Put(ctx, "old", "x"))
	clock.Set(1020)
	require.NoError(t, c.Put(ctx, "new", "y"))

	n, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteMetadataStore_CompositeKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := openTestStore(t, newFakeClock(1)).MetadataStore()

	v, err := m.Get(ctx, "allanime", "abc", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", v)

	require.NoError(t, m.Set(ctx, "allanime", "abc", "Frieren"))
	require.NoError(t, m.Set(ctx, "nguonc", "abc", "Other"))
	require.NoError(t, m.Set(ctx, "allanime", "abc", "Sousou no Frieren"))

	v, err = m.Get(ctx, "allanime", "abc", "")
	require.NoError(t, err)
	assert.Equal(t, "Sousou no Frieren", v)

	v, err = m.Get(ctx, "nguonc", "abc", "")
	require.NoError(t, err)
	assert.Equal(t, "Other", v)
}

func TestSQLiteStore_ConcurrentWriters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t, newFakeClock(5))
	c := s.RequestCache(time.Hour)
	m := s.MetadataStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			assert.NoError(t, c.Put(ctx, key, "body"))
			assert.NoError(t, m.Set(ctx, "p", key, "v"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		_, ok, err := c.Get(ctx, string(rune('a'+i)))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
