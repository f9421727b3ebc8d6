// Package selector implements the pluggable key-selection strategies: pure
// functions over a snapshot of eligible keys. The empty-eligible fallback
// and DEAD-key exclusion live in the manager/registry layer — a Strategy
// only ever sees keys it's allowed to return.
package selector

import (
	"math/rand"

	"github.com/keyrotate/keyrotate/keystate"
)

// Strategy picks one key from a non-empty candidate list. Implementations
// must not mutate the candidates; they are a pure function of the
// snapshot passed in.
type Strategy interface {
	Next(candidates []*keystate.Key, rng *rand.Rand) *keystate.Key
}

// Standard sorts by (failCount asc, lastUsed asc) and picks the first:
// the least-failed key, stalest-use as tie-breaker.
type Standard struct{}

func (Standard) Next(candidates []*keystate.Key, _ *rand.Rand) *keystate.Key {
	if len(candidates) == 0 {
		return nil
	}
	ordered := append([]*keystate.Key(nil), candidates...)
	keystate.SortByFailCountThenLastUsed(ordered)
	return ordered[0]
}

// Weighted picks by weighted random draw over candidate weights. Weights
// must be non-negative; if the total is zero, it returns the first
// candidate.
type Weighted struct{}

func (Weighted) Next(candidates []*keystate.Key, rng *rand.Rand) *keystate.Key {
	if len(candidates) == 0 {
		return nil
	}
	var total float64
	weights := make([]float64, len(candidates))
	for i, k := range candidates {
		w := k.Weight()
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return candidates[0]
	}

	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

// Latency sorts by (averageLatency asc, lastUsed asc) and picks the first.
type Latency struct{}

func (Latency) Next(candidates []*keystate.Key, _ *rand.Rand) *keystate.Key {
	if len(candidates) == 0 {
		return nil
	}
	ordered := append([]*keystate.Key(nil), candidates...)
	keystate.SortByLatencyThenLastUsed(ordered)
	return ordered[0]
}
