package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetRoundTrip(t *testing.T) {
	c, err := NewMemory(10)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	key := Key{Database: "db", UID: 1, Model: "res.partner", Method: "search_read", Args: []any{"a"}}

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, key, []map[string]any{{"id": 1}}, time.Minute))

	v, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, v)
}

func TestMemoryExpiry(t *testing.T) {
	c, err := NewMemory(10)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	key := Key{Database: "db", UID: 1, Model: "res.partner", Method: "read", Args: nil}
	require.NoError(t, c.Set(ctx, key, "x", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryInvalidateModelOrphansEntries(t *testing.T) {
	c, err := NewMemory(10)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	key := Key{Database: "db", UID: 1, Model: "res.partner", Method: "search_read"}
	require.NoError(t, c.Set(ctx, key, "cached", time.Minute))

	require.NoError(t, c.InvalidateModel(ctx, "res.partner"))

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok, "entries keyed to the old schema version must not be visible")
}

func TestKeyHashStableForEqualArgs(t *testing.T) {
	k1 := Key{Database: "db", UID: 1, Model: "res.partner", Method: "search_read", Args: []any{"x", 1}}
	k2 := Key{Database: "db", UID: 1, Model: "res.partner", Method: "search_read", Args: []any{"x", 1}}
	h1, err := k1.hash(0)
	require.NoError(t, err)
	h2, err := k2.hash(0)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}
