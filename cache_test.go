package veloq_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloq"
)

func TestCacheKey(t *testing.T) {
	k1 := veloq.CacheKey{Table: "users", Operation: "select", Command: "SELECT 1", Args: []any{"a", 1}}
	k2 := veloq.CacheKey{Table: "users", Operation: "select", Command: "SELECT 1", Args: []any{"a", 1}}
	k3 := veloq.CacheKey{Table: "users", Operation: "select", Command: "SELECT 1", Args: []any{"b", 1}}

	assert.Equal(t, k1.String(), k2.String())
	assert.NotEqual(t, k1.String(), k3.String())
	assert.True(t, len(k1.String()) > len(veloq.TablePrefix("users")))
	assert.Equal(t, "users:", k1.String()[:len("users:")])
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := veloq.NewMemoryCache()

	v, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, c.Set(ctx, "users:a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "users:b", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "orders:a", []byte("3"), 0))

	v, err = c.Get(ctx, "users:b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	require.NoError(t, c.DeletePrefix(ctx, veloq.TablePrefix("users")))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete(ctx, "orders:a"))
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.Set(ctx, "x", []byte("y"), 0))
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := veloq.NewMemoryCache()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Nanosecond))
	time.Sleep(time.Millisecond)
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCacheValueCodec(t *testing.T) {
	type row struct {
		ID   int64
		Name *string
	}
	name := "ada"
	in := []row{{ID: 1, Name: &name}, {ID: 2}}
	b, err := veloq.EncodeCacheValue(in)
	require.NoError(t, err)

	var out []row
	require.NoError(t, veloq.DecodeCacheValue(b, &out))
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].ID)
	require.NotNil(t, out[0].Name)
	assert.Equal(t, "ada", *out[0].Name)
	assert.Nil(t, out[1].Name)
}
