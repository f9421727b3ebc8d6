package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisAdapter_MissingKeyReturnsNil(t *testing.T) {
	a := NewRedisAdapter(newTestRedis(t))
	v, err := a.GetItem(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestRedisAdapter_RoundTrip(t *testing.T) {
	a := NewRedisAdapter(newTestRedis(t))
	ctx := context.Background()
	want := map[string]interface{}{"a": map[string]interface{}{"failCount": float64(2)}}

	require.NoError(t, a.SetItem(ctx, "k", want))
	got, err := a.GetItem(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, want, got)
}
