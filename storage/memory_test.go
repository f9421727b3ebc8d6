package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryAdapter_MissingKeyReturnsNil(t *testing.T) {
	m := NewMemoryAdapter()
	v, err := m.GetItem(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestMemoryAdapter_RoundTrip(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	want := map[string]interface{}{"a": map[string]interface{}{"failCount": float64(2)}}

	require.NoError(t, m.SetItem(ctx, "k", want))
	got, err := m.GetItem(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestMemoryAdapter_GetReturnsCopy(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, m.SetItem(ctx, "k", map[string]interface{}{"a": 1}))

	got, _ := m.GetItem(ctx, "k")
	got["a"] = 999

	got2, _ := m.GetItem(ctx, "k")
	require.Equal(t, 1, got2["a"])
}
