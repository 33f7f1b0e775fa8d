package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinefluent/sublearn/internal/persistence"
	"github.com/cinefluent/sublearn/internal/subtitle"
)

func descriptors(ids ...string) []subtitle.Metadata {
	ret := make([]subtitle.Metadata, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, subtitle.Metadata{
			ID:       id,
			VideoID:  "movie-1",
			Language: "en",
			Source:   subtitle.SourceExternal,
		})
	}
	return ret
}

func newPersistentManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cfg.Store = store
	return NewManager(cfg)
}

func TestKey_Stable(t *testing.T) {
	a := Key("movie-1", "en", "The Matrix")
	b := Key("movie-1", "en", "  the matrix ")
	c := Key("movie-1", "es", "The Matrix")

	assert.Equal(t, a, b, "title normalization must not change the key")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestManager_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	manager := newPersistentManager(t, Config{})
	ctx := context.Background()

	subs := descriptors("a", "b")
	manager.Put(ctx, "movie-1", "en", "The Matrix", subs, 0)

	got, ok := manager.Get(ctx, "movie-1", "en", "The Matrix")
	require.True(t, ok)
	assert.Equal(t, subs, got)

	_, ok = manager.Get(ctx, "movie-1", "fr", "The Matrix")
	assert.False(t, ok)

	stats := manager.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 50.0, stats.HitRatio)
}

func TestManager_ExpiredEntryMisses(t *testing.T) {
	t.Parallel()

	manager := newPersistentManager(t, Config{})
	ctx := context.Background()

	manager.Put(ctx, "movie-1", "en", "Title", descriptors("a"), time.Hour)

	// force the clock past the expiry
	manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, ok := manager.Get(ctx, "movie-1", "en", "Title")
	assert.False(t, ok)
}

func TestManager_PersistentTierPromotion(t *testing.T) {
	t.Parallel()

	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	writer := NewManager(Config{Store: store})
	ctx := context.Background()
	writer.Put(ctx, "movie-1", "en", "Title", descriptors("a"), time.Hour)

	// a fresh manager has a cold memory tier but shares the store
	reader := NewManager(Config{Store: store})
	got, ok := reader.Get(ctx, "movie-1", "en", "Title")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	// second read must be served from the promoted memory entry
	assert.Equal(t, 1, reader.Stats().MemorySize)
}

func TestManager_LRUEviction(t *testing.T) {
	t.Parallel()

	manager := NewManager(Config{MaxMemoryItems: 3})
	ctx := context.Background()

	base := time.Now().UTC()
	clock := base
	manager.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		clock = base.Add(time.Duration(i) * time.Second)
		manager.Put(ctx, fmt.Sprintf("movie-%d", i), "en", "t", descriptors("x"), time.Hour)
	}

	// touch movie-0 so movie-1 becomes the least recently accessed
	clock = base.Add(10 * time.Second)
	_, ok := manager.Get(ctx, "movie-0", "en", "t")
	require.True(t, ok)

	clock = base.Add(11 * time.Second)
	manager.Put(ctx, "movie-3", "en", "t", descriptors("y"), time.Hour)

	assert.Equal(t, 3, manager.Stats().MemorySize)
	_, ok = manager.Get(ctx, "movie-1", "en", "t")
	assert.False(t, ok, "least recently accessed entry must be evicted")
	_, ok = manager.Get(ctx, "movie-0", "en", "t")
	assert.True(t, ok)
	_, ok = manager.Get(ctx, "movie-3", "en", "t")
	assert.True(t, ok)
}

func TestManager_Cleanup(t *testing.T) {
	t.Parallel()

	manager := newPersistentManager(t, Config{})
	ctx := context.Background()

	manager.Put(ctx, "movie-1", "en", "t", descriptors("a"), time.Minute)
	manager.Put(ctx, "movie-2", "en", "t", descriptors("b"), time.Hour)

	manager.now = func() time.Time { return time.Now().Add(30 * time.Minute) }
	manager.Cleanup(ctx)

	stats := manager.Stats()
	assert.Equal(t, 1, stats.MemorySize)
	assert.False(t, stats.LastCleanup.IsZero())

	_, ok := manager.Get(ctx, "movie-1", "en", "t")
	assert.False(t, ok)
	_, ok = manager.Get(ctx, "movie-2", "en", "t")
	assert.True(t, ok)
}

func TestManager_MemoryOnly(t *testing.T) {
	t.Parallel()

	manager := NewManager(Config{})
	ctx := context.Background()

	manager.Put(ctx, "movie-1", "en", "t", descriptors("a"), 0)
	got, ok := manager.Get(ctx, "movie-1", "en", "t")
	require.True(t, ok)
	assert.Len(t, got, 1)

	manager.Cleanup(ctx)
	_, ok = manager.Get(ctx, "movie-1", "en", "t")
	assert.True(t, ok, "unexpired entries survive cleanup")
}
