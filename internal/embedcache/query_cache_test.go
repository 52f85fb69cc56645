package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/bizdir/internal/cache"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Coffee   Shops ", "coffee shops"},
		{"coffee shops", "coffee shops"},
		{"\tBEST\n pizza  ", "best pizza"},
		{"", ""},
	}
	for _, tt := range tests {
		got := NormalizeQuery(tt.in)
		require.Equal(t, tt.want, got)
		// idempotent
		require.Equal(t, got, NormalizeQuery(got))
	}
}

func TestQueryCacheSharedKey(t *testing.T) {
	c := NewQueryCache(cache.NewMemory(16, time.Minute), "m1", time.Minute)
	require.Equal(t, c.Key("  Coffee   Shops "), c.Key("coffee shops"))
	require.NotEqual(t, c.Key("coffee shops"), c.Key("tea shops"))
}

func TestQueryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(cache.NewMemory(16, time.Minute), "m1", time.Minute)

	_, ok := c.Get(ctx, "coffee shops", 0)
	require.False(t, ok)

	require.NoError(t, c.Put(ctx, "Coffee Shops", []float32{1, 2, 3}))
	got, ok := c.Get(ctx, "  coffee   SHOPS ", 0)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, got)
}

func TestQueryCacheDimensionMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(cache.NewMemory(16, time.Minute), "m1", time.Minute)
	require.NoError(t, c.Put(ctx, "coffee", []float32{1, 2, 3}))

	_, ok := c.Get(ctx, "coffee", 4)
	require.False(t, ok)

	got, ok := c.Get(ctx, "coffee", 3)
	require.True(t, ok)
	require.Len(t, got, 3)
}

func TestQueryCacheModelScopedKeys(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory(16, time.Minute)
	old := NewQueryCache(store, "model-a", time.Minute)
	cur := NewQueryCache(store, "model-b", time.Minute)

	require.NoError(t, old.Put(ctx, "coffee", []float32{1}))
	_, ok := cur.Get(ctx, "coffee", 0)
	require.False(t, ok)
}
