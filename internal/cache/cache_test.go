package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerodte/internal/config"
)

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(2 * time.Second)
	_, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = s.Get(ctx, "b")
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "b"))
	_, ok, _ = s.Get(ctx, "b")
	assert.False(t, ok)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	in := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", in, 0))
	in[0] = 'x'
	out, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(out))
}

func TestOpen(t *testing.T) {
	s, err := Open(config.CacheConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(config.CacheConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(config.CacheConfig{Backend: "redis", RedisAddr: "localhost:6379"})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)

	_, err = Open(config.CacheConfig{Backend: "redis"})
	assert.Error(t, err)
	_, err = Open(config.CacheConfig{Backend: "memcached"})
	assert.Error(t, err)
}
