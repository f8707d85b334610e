package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "shipment:BCE123456:current", []byte(`{"currentStatus":"created"}`), time.Minute))

	b, ok, err := c.Get(ctx, "shipment:BCE123456:current")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"currentStatus":"created"}`), b)
}

func TestRedisCache_Miss(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	_, ok, err := c.Get(context.Background(), "shipment:NOPE:current")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_Invalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "shipment:BCE123456:current", []byte(`{"currentStatus":"out_for_delivery"}`), time.Minute))
	require.NoError(t, c.Invalidate(ctx, "shipment:BCE123456:current"))

	_, ok, err := c.Get(ctx, "shipment:BCE123456:current")
	require.NoError(t, err)
	require.False(t, ok)

	// Dropping an absent key is not an error.
	require.NoError(t, c.Invalidate(ctx, "shipment:NOPE:current"))
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "ingest:courier-7", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "ingest:courier-7", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "ingest:courier-7", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}
