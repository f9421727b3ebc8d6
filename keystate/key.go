// Package keystate owns the key registry and per-key circuit breaker: the
// identity, weight and provider tag of every configured key, and the
// mutable health record the rest of the module reads and updates.
//
// Breaker transitions live here rather than in a separate package because
// they operate on exactly the same mutable fields the registry defines —
// splitting them would mean either exporting every field for an external
// package to poke at, or threading accessor methods back and forth for no
// benefit.
package keystate

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keyrotate/keyrotate/classifier"
	"github.com/keyrotate/keyrotate/core"
)

// CircuitState is the per-key breaker state.
type CircuitState string

const (
	Closed   CircuitState = "CLOSED"
	Open     CircuitState = "OPEN"
	HalfOpen CircuitState = "HALF_OPEN"
	Dead     CircuitState = "DEAD"
)

// Key is one credential in the pool: an immutable identity, weight and
// provider tag, plus the mutable health record the breaker and selector
// operate on. All mutating methods take the lock; callers never need to.
type Key struct {
	mu sync.Mutex

	id       string
	weight   float64
	provider string

	circuitState     CircuitState
	failCount        int
	failedAt         time.Time
	hasFailedAt      bool
	isQuotaError     bool
	customCooldown   time.Duration
	hasCustomCooldown bool
	halfOpenTestTime time.Time
	lastUsed         time.Time

	successCount   int64
	totalRequests  int64
	latencySamples int64
	totalLatency   time.Duration
	averageLatency time.Duration

	createdAt time.Time
}

// NewKey constructs a key in its initial CLOSED state. weight must be
// positive; callers normalize non-positive input to 1.0 before calling.
func NewKey(id string, weight float64, provider string, now time.Time) *Key {
	return &Key{
		id:           id,
		weight:       weight,
		provider:     provider,
		circuitState: Closed,
		createdAt:    now,
	}
}

func (k *Key) ID() string       { k.mu.Lock(); defer k.mu.Unlock(); return k.id }
func (k *Key) Weight() float64  { k.mu.Lock(); defer k.mu.Unlock(); return k.weight }
func (k *Key) Provider() string { k.mu.Lock(); defer k.mu.Unlock(); return k.provider }

// Snapshot is an immutable, lock-free copy of a Key's health record, used
// for selector strategy input and for persistence.
type Snapshot struct {
	ID               string
	Weight           float64
	Provider         string
	CircuitState     CircuitState
	FailCount        int
	FailedAt         time.Time
	HasFailedAt      bool
	IsQuotaError     bool
	CustomCooldown   time.Duration
	HasCustomCooldown bool
	HalfOpenTestTime time.Time
	LastUsed         time.Time
	SuccessCount     int64
	TotalRequests    int64
	LatencySamples   int64
	TotalLatency     time.Duration
	AverageLatency   time.Duration
	CreatedAt        time.Time
}

// Snapshot copies the current state out under lock.
func (k *Key) Snapshot() Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Snapshot{
		ID:                k.id,
		Weight:            k.weight,
		Provider:          k.provider,
		CircuitState:      k.circuitState,
		FailCount:         k.failCount,
		FailedAt:          k.failedAt,
		HasFailedAt:       k.hasFailedAt,
		IsQuotaError:      k.isQuotaError,
		CustomCooldown:    k.customCooldown,
		HasCustomCooldown: k.hasCustomCooldown,
		HalfOpenTestTime:  k.halfOpenTestTime,
		LastUsed:          k.lastUsed,
		SuccessCount:      k.successCount,
		TotalRequests:     k.totalRequests,
		LatencySamples:    k.latencySamples,
		TotalLatency:      k.totalLatency,
		AverageLatency:    k.averageLatency,
		CreatedAt:         k.createdAt,
	}
}

// Restore overwrites the mutable health fields from a persisted snapshot.
// Identity fields (id, weight, provider) are left untouched — the snapshot
// is applied onto an already-constructed key by identity.
func (k *Key) Restore(s Snapshot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.circuitState = s.CircuitState
	k.failCount = s.FailCount
	k.failedAt = s.FailedAt
	k.hasFailedAt = s.HasFailedAt
	k.isQuotaError = s.IsQuotaError
	k.customCooldown = s.CustomCooldown
	k.hasCustomCooldown = s.HasCustomCooldown
	k.halfOpenTestTime = s.HalfOpenTestTime
	k.lastUsed = s.LastUsed
	k.successCount = s.SuccessCount
	k.totalRequests = s.TotalRequests
	k.latencySamples = s.LatencySamples
	k.totalLatency = s.TotalLatency
	k.averageLatency = s.AverageLatency
}

// Touch sets lastUsed to now; called by the selector on the key it returns.
func (k *Key) Touch(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastUsed = now
}

// IsOnCooldown reports whether the key is still cooling down, applying the
// lazy OPEN→HALF_OPEN transition along the way. Returns the transition
// event that fired, if any ("" for none).
func (k *Key) IsOnCooldown(now time.Time) (onCooldown bool, transitioned string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.circuitState == Dead {
		return true, ""
	}

	if k.circuitState == Open {
		if !now.Before(k.halfOpenTestTime) {
			k.circuitState = HalfOpen
			return false, "circuitHalfOpen"
		}
		return true, ""
	}

	if k.hasFailedAt {
		cooldown := core.CooldownTransient
		if k.isQuotaError {
			cooldown = core.CooldownQuota
		}
		if k.hasCustomCooldown {
			cooldown = k.customCooldown
		}
		if now.Sub(k.failedAt) < cooldown {
			return true, ""
		}
	}
	return false, ""
}

// MarkSuccess resets failure bookkeeping, transitions HALF_OPEN→CLOSED,
// and records latency. Returns "keyRecovered" if the breaker closed from
// HALF_OPEN, else "".
func (k *Key) MarkSuccess(now time.Time, latency time.Duration) (event string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	wasHalfOpen := k.circuitState == HalfOpen
	k.circuitState = Closed
	k.failCount = 0
	k.hasFailedAt = false
	k.isQuotaError = false
	k.hasCustomCooldown = false

	k.successCount++
	k.totalRequests++
	k.latencySamples++
	k.totalLatency += latency
	k.averageLatency = k.totalLatency / time.Duration(k.latencySamples)

	if wasHalfOpen {
		return "keyRecovered"
	}
	return ""
}

// MarkFailed applies classification-driven breaker transitions. Returns
// the events that fired, in order (a key emits at most one
// breaker-transition event per call).
func (k *Key) MarkFailed(c classifier.Classification, now time.Time) (events []string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !c.MarkKeyFailed && !c.MarkKeyDead {
		return nil
	}

	wasHalfOpen := k.circuitState == HalfOpen

	k.failCount++
	k.failedAt = now
	k.hasFailedAt = true
	k.isQuotaError = c.Type == classifier.Quota
	if c.CooldownMs > 0 {
		k.customCooldown = time.Duration(c.CooldownMs) * time.Millisecond
		k.hasCustomCooldown = true
	} else {
		k.hasCustomCooldown = false
	}
	k.totalRequests++

	if c.MarkKeyDead {
		k.circuitState = Dead
		return []string{"keyDead"}
	}

	if wasHalfOpen {
		k.circuitState = Open
		k.halfOpenTestTime = now.Add(core.HalfOpenTestDelay)
		return []string{"circuitOpen"}
	}

	if k.failCount >= core.MaxConsecutiveFailures || c.Type == classifier.Quota {
		k.circuitState = Open
		cooldown := time.Duration(c.CooldownMs) * time.Millisecond
		if cooldown <= 0 {
			cooldown = core.HalfOpenTestDelay
		}
		k.halfOpenTestTime = now.Add(cooldown)
		return []string{"circuitOpen"}
	}

	return nil
}

// Registry holds the full key pool. Keys are created once at construction
// and never removed; a DEAD key stays in the registry, permanently
// ineligible for selection.
type Registry struct {
	mu   sync.RWMutex
	keys []*Key
}

// Input describes one configured key: a bare identity string, or a record
// with an optional weight/provider override.
type Input struct {
	Key      string
	Weight   float64
	Provider string
}

// NewRegistry builds a registry from the initial key list. Every
// Input.Key, whether or not the input sets a weight or provider, may be
// comma-separated and is split before deduplication by identity; each
// split identity takes that input's weight and provider.
func NewRegistry(inputs []Input, now time.Time) *Registry {
	r := &Registry{}
	seen := make(map[string]bool)
	for _, in := range inputs {
		for _, id := range splitIDs(in.Key) {
			if seen[id] {
				continue
			}
			seen[id] = true
			weight := in.Weight
			if weight <= 0 {
				weight = 1.0
			}
			r.keys = append(r.keys, NewKey(id, weight, in.Provider, now))
		}
	}
	return r
}

func splitIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// All returns every key in the registry, in construction order.
func (r *Registry) All() []*Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Key, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get looks a key up by identity.
func (r *Registry) Get(id string) (*Key, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		if k.id == id {
			return k, true
		}
	}
	return nil, false
}

// Len reports how many keys are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// AllDead reports whether every registered key is DEAD.
func (r *Registry) AllDead() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.keys) == 0 {
		return true
	}
	for _, k := range r.keys {
		k.mu.Lock()
		dead := k.circuitState == Dead
		k.mu.Unlock()
		if !dead {
			return false
		}
	}
	return true
}

// NonDead returns every non-DEAD key, optionally filtered to provider.
func (r *Registry) NonDead(provider string) []*Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Key
	for _, k := range r.keys {
		k.mu.Lock()
		dead := k.circuitState == Dead
		kp := k.provider
		k.mu.Unlock()
		if dead {
			continue
		}
		if provider != "" && kp != provider {
			continue
		}
		out = append(out, k)
	}
	return out
}

// ClosestToRecovery returns the non-DEAD key with the oldest failedAt,
// used as the fallback when no key is currently eligible. Keys with no
// recorded failure are preferred (they are "closest" by definition — they
// aren't failing at all), falling back to oldest-failedAt among the rest.
func ClosestToRecovery(keys []*Key) *Key {
	var best *Key
	var bestFailedAt time.Time
	bestHasFailedAt := true
	for _, k := range keys {
		k.mu.Lock()
		hasFailedAt := k.hasFailedAt
		failedAt := k.failedAt
		k.mu.Unlock()

		if !hasFailedAt {
			return k
		}
		if best == nil || !bestHasFailedAt || failedAt.Before(bestFailedAt) {
			best = k
			bestFailedAt = failedAt
			bestHasFailedAt = hasFailedAt
		}
	}
	return best
}

// SortByFailCountThenLastUsed implements the Standard strategy ordering.
func SortByFailCountThenLastUsed(keys []*Key) {
	sort.SliceStable(keys, func(i, j int) bool {
		si, sj := keys[i].Snapshot(), keys[j].Snapshot()
		if si.FailCount != sj.FailCount {
			return si.FailCount < sj.FailCount
		}
		return si.LastUsed.Before(sj.LastUsed)
	})
}

// SortByLatencyThenLastUsed implements the Latency strategy ordering.
func SortByLatencyThenLastUsed(keys []*Key) {
	sort.SliceStable(keys, func(i, j int) bool {
		si, sj := keys[i].Snapshot(), keys[j].Snapshot()
		if si.AverageLatency != sj.AverageLatency {
			return si.AverageLatency < sj.AverageLatency
		}
		return si.LastUsed.Before(sj.LastUsed)
	})
}
