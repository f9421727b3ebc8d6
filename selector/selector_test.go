package selector

import (
	"math/rand"
	"testing"
	"time"

	"github.com/keyrotate/keyrotate/classifier"
	"github.com/keyrotate/keyrotate/keystate"
	"github.com/stretchr/testify/require"
)

func TestStandard_PrefersFewestFailures(t *testing.T) {
	now := time.Unix(1000, 0)
	a := keystate.NewKey("a", 1.0, "", now)
	b := keystate.NewKey("b", 1.0, "", now)
	a.MarkFailed(classifier.Classification{MarkKeyFailed: true, CooldownMs: 1}, now)

	got := Standard{}.Next([]*keystate.Key{a, b}, nil)
	require.Equal(t, "b", got.ID())
}

func TestStandard_TieBreaksOnLastUsed(t *testing.T) {
	now := time.Unix(1000, 0)
	a := keystate.NewKey("a", 1.0, "", now)
	b := keystate.NewKey("b", 1.0, "", now)
	a.Touch(now.Add(time.Minute))
	b.Touch(now)

	got := Standard{}.Next([]*keystate.Key{a, b}, nil)
	require.Equal(t, "b", got.ID())
}

func TestWeighted_ZeroTotalReturnsFirst(t *testing.T) {
	now := time.Unix(1000, 0)
	a := keystate.NewKey("a", 0, "", now)
	b := keystate.NewKey("b", 0, "", now)
	rng := rand.New(rand.NewSource(1))
	got := Weighted{}.Next([]*keystate.Key{a, b}, rng)
	require.Equal(t, "a", got.ID())
}

func TestWeighted_DistributionApproximatesWeights(t *testing.T) {
	now := time.Unix(1000, 0)
	a := keystate.NewKey("a", 1, "", now)
	b := keystate.NewKey("b", 3, "", now)
	rng := rand.New(rand.NewSource(42))

	counts := map[string]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		got := Weighted{}.Next([]*keystate.Key{a, b}, rng)
		counts[got.ID()]++
	}

	shareB := float64(counts["b"]) / float64(n)
	require.InDelta(t, 0.75, shareB, 0.04)
}

func TestLatency_PrefersLowerAverage(t *testing.T) {
	now := time.Unix(1000, 0)
	a := keystate.NewKey("a", 1.0, "", now)
	b := keystate.NewKey("b", 1.0, "", now)
	a.MarkSuccess(now, 500*time.Millisecond)
	b.MarkSuccess(now, 10*time.Millisecond)

	got := Latency{}.Next([]*keystate.Key{a, b}, nil)
	require.Equal(t, "b", got.ID())
}

func TestStrategies_EmptyCandidates(t *testing.T) {
	require.Nil(t, Standard{}.Next(nil, nil))
	require.Nil(t, Weighted{}.Next(nil, rand.New(rand.NewSource(1))))
	require.Nil(t, Latency{}.Next(nil, nil))
}
