package speechcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellhopd/bellhop/tts"
)

// setupRedisIndex creates a test Redis index with miniredis
func setupRedisIndex(t *testing.T, opts ...RedisIndexOption) *RedisIndex {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewRedisIndex(client, opts...)
}

func TestRedisIndex_GetNotFound(t *testing.T) {
	idx := setupRedisIndex(t)
	ctx := context.Background()

	_, err := idx.Get(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisIndex_GetInvalidKey(t *testing.T) {
	idx := setupRedisIndex(t)
	ctx := context.Background()

	_, err := idx.Get(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestRedisIndex_PutGet(t *testing.T) {
	idx := setupRedisIndex(t)
	ctx := context.Background()

	entry := &Entry{
		Key:       "abc123",
		Path:      "/var/cache/bellhop/abc123.mp3",
		Provider:  "coqui",
		Text:      "dinner is ready",
		Size:      2048,
		CreatedAt: time.Now().Truncate(time.Second),
	}
	require.NoError(t, idx.Put(ctx, entry))

	got, err := idx.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, entry.Path, got.Path)
	assert.Equal(t, entry.Provider, got.Provider)
	assert.Equal(t, entry.Size, got.Size)
	assert.True(t, entry.CreatedAt.Equal(got.CreatedAt))
}

func TestRedisIndex_PutInvalid(t *testing.T) {
	idx := setupRedisIndex(t)
	ctx := context.Background()

	assert.ErrorIs(t, idx.Put(ctx, nil), ErrInvalidKey)
	assert.ErrorIs(t, idx.Put(ctx, &Entry{}), ErrInvalidKey)
}

func TestRedisIndex_Delete(t *testing.T) {
	idx := setupRedisIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, &Entry{Key: "abc", Path: "/tmp/abc.mp3"}))
	require.NoError(t, idx.Delete(ctx, "abc"))

	_, err := idx.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error.
	assert.NoError(t, idx.Delete(ctx, "abc"))
}

func TestRedisIndex_AllAndLen(t *testing.T) {
	idx := setupRedisIndex(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, idx.Put(ctx, &Entry{Key: key, Path: "/tmp/" + key + ".mp3"}))
	}

	n, err := idx.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := idx.All(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRedisIndex_Prefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	idx := NewRedisIndex(client, WithRedisPrefix("agent-a"))
	other := NewRedisIndex(redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		WithRedisPrefix("agent-b"))
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, &Entry{Key: "abc", Path: "/tmp/abc.mp3"}))

	_, err := other.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound, "prefixes must isolate indexes")
}

func TestStoreWithRedisIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := NewStore(t.TempDir(), WithIndex(NewRedisIndex(client)))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	params := tts.Params{Language: "pt-br"}

	_, ok := store.Lookup(ctx, "dinner is ready", "coqui", params)
	assert.False(t, ok)

	synthesize(t, store, "dinner is ready", "coqui", params)

	path, ok := store.Lookup(ctx, "dinner is ready", "coqui", params)
	assert.True(t, ok)
	assert.NotEmpty(t, path)
}
