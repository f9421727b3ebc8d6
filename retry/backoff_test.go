package retry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff_WithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{6, 64 * time.Second}, // capped at MAX_BACKOFF
		{10, 64 * time.Second},
	}
	for _, tt := range tests {
		d := Backoff(tt.attempt, rng)
		require.GreaterOrEqual(t, d, tt.base)
		require.LessOrEqual(t, d, tt.base+time.Second)
	}
}

func TestBackoff_JitterVaries(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	first := Backoff(0, rng)
	second := Backoff(0, rng)
	require.NotEqual(t, first, second)
}
