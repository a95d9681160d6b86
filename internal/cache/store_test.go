package cache_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"contentweaver/internal/cache"
	"contentweaver/internal/core"
)

// runStoreContract exercises the behavior every Store must share.
func runStoreContract(t *testing.T, store cache.Store) {
	t.Helper()
	ctx := context.Background()

	key := cache.NewKey("site/0", 12345)
	docs, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok, "expected miss on empty store")
	require.Nil(t, docs)

	in := []*core.Document{
		core.NewStringDocument("first", map[string]any{"Title": "One", "Order": 1, "Draft": false}),
		core.NewStringDocument("second", map[string]any{"Tags": []any{"a", "b"}}),
	}
	require.NoError(t, store.Put(ctx, key, in))

	out, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, out, 2)

	for i := range in {
		want, err := in[i].CacheCode(ctx)
		require.NoError(t, err)
		got, err := out[i].CacheCode(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got, "document %d changed across the store", i)
	}
	require.Equal(t, "One", out[0].GetString("title"))

	// Overwrite replaces the entry.
	require.NoError(t, store.Put(ctx, key, []*core.Document{core.NewStringDocument("only", nil)}))
	out, ok, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, out, 1)

	// Empty sets are valid entries, distinct from a miss.
	emptyKey := cache.NewKey("site/1", 0)
	require.NoError(t, store.Put(ctx, emptyKey, nil))
	out, ok, err = store.Get(ctx, emptyKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, out)

	_, _, err = store.Get(ctx, cache.Key("../escape"))
	require.ErrorIs(t, err, cache.ErrInvalidKey)
}

func TestNewKey_StableAndNamespaced(t *testing.T) {
	a := cache.NewKey("blog/2", 99)
	require.Equal(t, a, cache.NewKey("blog/2", 99))
	require.NotEqual(t, a, cache.NewKey("blog/3", 99))
	require.NotEqual(t, a, cache.NewKey("blog/2", 100))
	require.NoError(t, a.Validate())
	require.Len(t, a.String(), 16)
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, cache.NewMemoryStore())
}

func TestFileStore_Contract(t *testing.T) {
	runStoreContract(t, cache.NewFileStore(t.TempDir()))
}

func TestFileStore_ConcurrentPutsOfOneKey(t *testing.T) {
	dir := t.TempDir()
	store := cache.NewFileStore(dir)
	key := cache.NewKey("site/0", 7)
	docs := []*core.Document{core.NewStringDocument("same", map[string]any{"Title": "One"})}

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				if err := store.Put(context.Background(), key, docs); err != nil {
					return err
				}
				// A read racing a commit may miss but never fails.
				if _, _, err := store.Get(context.Background(), key); err != nil {
					return fmt.Errorf("get during puts: %w", err)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	out, ok, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, out, 1)

	leftovers, err := filepath.Glob(filepath.Join(dir, string(key)[:2], "tmp-entry-*"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := cache.NewFileStore(dir)
	key := cache.NewKey("ns", 1)
	require.NoError(t, store.Put(context.Background(), key, []*core.Document{core.NewStringDocument("x", nil)}))

	k := key.String()
	_, err := os.Stat(filepath.Join(dir, k[:2], k, "entry.json"))
	require.NoError(t, err)

	// No temp directories are left behind after a commit.
	entries, err := os.ReadDir(filepath.Join(dir, k[:2]))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileStore_CorruptEntryIsError(t *testing.T) {
	dir := t.TempDir()
	store := cache.NewFileStore(dir)
	key := cache.NewKey("ns", 2)
	k := key.String()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, k[:2], k), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, k[:2], k, "entry.json"), []byte("{"), 0o644))

	_, ok, err := store.Get(context.Background(), key)
	require.Error(t, err)
	require.False(t, ok)
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newMiniredis(t)
	store := cache.NewRedisStoreFromClient(client)
	require.NoError(t, store.Ping(context.Background()))
	runStoreContract(t, store)
}

func TestRedisStore_PrefixAndTTL(t *testing.T) {
	mr, client := newMiniredis(t)
	store := cache.NewRedisStoreFromClient(client, cache.WithPrefix("test:"), cache.WithTTL(time.Minute))

	key := cache.NewKey("ns", 3)
	require.NoError(t, store.Put(context.Background(), key, []*core.Document{core.NewStringDocument("x", nil)}))

	require.True(t, mr.Exists("test:"+key.String()))
	require.Equal(t, time.Minute, mr.TTL("test:"+key.String()))

	mr.FastForward(2 * time.Minute)
	_, ok, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNopStore_NeverHits(t *testing.T) {
	var s cache.NopStore
	key := cache.NewKey("ns", 4)
	require.NoError(t, s.Put(context.Background(), key, []*core.Document{core.NewStringDocument("x", nil)}))
	_, ok, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	require.False(t, ok)
}
