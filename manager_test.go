package keyrotate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keyrotate/keyrotate/core"
	"github.com/keyrotate/keyrotate/events"
	"github.com/keyrotate/keyrotate/keystate"
	"github.com/keyrotate/keyrotate/selector"
	"github.com/stretchr/testify/require"
)

type statusErr struct {
	status int
	msg    string
}

func (e *statusErr) Error() string   { return e.msg }
func (e *statusErr) StatusCode() int { return e.status }

func inputsFor(ids ...string) []keystate.Input {
	out := make([]keystate.Input, len(ids))
	for i, id := range ids {
		out[i] = keystate.Input{Key: id}
	}
	return out
}

func TestExecute_RotatesOn429(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1000, 0))
	m, err := NewManager(inputsFor("A", "B", "C"), WithClock(clock), WithStrategy(selector.Standard{}))
	require.NoError(t, err)

	calls := map[string]int{}
	fn := func(_ context.Context, keyID string) (interface{}, error) {
		calls[keyID]++
		if keyID == "A" {
			return nil, &statusErr{status: 429, msg: "rate limit"}
		}
		return "ok-" + keyID, nil
	}

	result, err := m.Execute(context.Background(), fn, ExecuteOptions{MaxRetries: 3})
	require.NoError(t, err)
	require.Equal(t, "ok-B", result)
	require.Equal(t, 1, calls["A"])
	require.Equal(t, 1, calls["B"])
	require.Equal(t, 0, calls["C"])

	a, _ := m.registry.Get("A")
	aSnap := a.Snapshot()
	require.Equal(t, 1, aSnap.FailCount)
	require.Equal(t, keystate.Open, aSnap.CircuitState)

	b, _ := m.registry.Get("B")
	require.Equal(t, int64(1), b.Snapshot().SuccessCount)
}

func TestExecute_AuthKillsKey(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1000, 0))
	m, err := NewManager(inputsFor("A"), WithClock(clock))
	require.NoError(t, err)

	fn := func(_ context.Context, keyID string) (interface{}, error) {
		return nil, &statusErr{status: 403, msg: "forbidden"}
	}

	_, err = m.Execute(context.Background(), fn, ExecuteOptions{MaxRetries: 0})
	require.Error(t, err)

	a, _ := m.registry.Get("A")
	require.Equal(t, keystate.Dead, a.Snapshot().CircuitState)

	_, err = m.Execute(context.Background(), fn, ExecuteOptions{MaxRetries: 0})
	require.True(t, errors.Is(err, core.ErrAllKeysExhausted))
}

func TestExecute_TimeoutSurfacesAsTimeout(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1000, 0))
	m, err := NewManager(inputsFor("A"), WithClock(clock))
	require.NoError(t, err)

	fn := func(ctx context.Context, keyID string) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err = m.Execute(context.Background(), fn, ExecuteOptions{MaxRetries: 0, Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	require.True(t, errors.Is(err, core.ErrTimeout))

	a, _ := m.registry.Get("A")
	require.Equal(t, 1, a.Snapshot().FailCount)
}

func TestExecute_BackoffRetriesThenFails(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1000, 0))
	m, err := NewManager(inputsFor("A"), WithClock(clock))
	require.NoError(t, err)

	var attempts int
	fn := func(_ context.Context, keyID string) (interface{}, error) {
		attempts++
		return nil, &statusErr{status: 500, msg: "internal error"}
	}

	_, err = m.Execute(context.Background(), fn, ExecuteOptions{MaxRetries: 2})
	require.Error(t, err)
	require.Equal(t, 3, attempts)
}

func TestExecute_CacheHitBypassesLivePath(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1000, 0))
	vector := []float64{1, 0, 0}
	m, err := NewManager(inputsFor("A"), WithClock(clock), WithSemanticCache(SemanticCacheConfig{
		Threshold: 0.95,
		Embedding: func(_ context.Context, prompt string) ([]float64, error) { return vector, nil },
	}))
	require.NoError(t, err)
	m.semanticCache.Store("x", vector, "R")

	called := false
	fn := func(_ context.Context, keyID string) (interface{}, error) {
		called = true
		return "live", nil
	}

	result, err := m.Execute(context.Background(), fn, ExecuteOptions{Prompt: "x"})
	require.NoError(t, err)
	require.Equal(t, "R", result)
	require.False(t, called)
	require.Equal(t, 0, m.bulkhead.InFlight())
}

func TestExecute_EmptyKeyListFailsWithAllKeysExhausted(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1000, 0))
	m, err := NewManager(nil, WithClock(clock))
	require.NoError(t, err)

	fn := func(_ context.Context, keyID string) (interface{}, error) { return "x", nil }
	_, err = m.Execute(context.Background(), fn, ExecuteOptions{})
	require.True(t, errors.Is(err, core.ErrAllKeysExhausted))
}

func TestExecute_ZeroMaxConcurrencyRejectsFirstCall(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1000, 0))
	m, err := NewManager(inputsFor("A"), WithClock(clock), WithConcurrency(0))
	require.NoError(t, err)

	fn := func(_ context.Context, keyID string) (interface{}, error) { return "x", nil }
	_, err = m.Execute(context.Background(), fn, ExecuteOptions{})
	require.True(t, errors.Is(err, core.ErrBulkheadRejected))
}

func TestExecute_FallbackOnRetryExhaustion(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1000, 0))
	m, err := NewManager(inputsFor("A"), WithClock(clock), WithFallback(func(_ context.Context) (interface{}, error) {
		return "fallback-result", nil
	}))
	require.NoError(t, err)

	fn := func(_ context.Context, keyID string) (interface{}, error) {
		return nil, &statusErr{status: 500, msg: "internal error"}
	}

	result, err := m.Execute(context.Background(), fn, ExecuteOptions{MaxRetries: 1})
	require.NoError(t, err)
	require.Equal(t, "fallback-result", result)
}

func TestExecute_FallbackNotEngagedOnNonRetryable(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1000, 0))
	fallbackCalled := false
	m, err := NewManager(inputsFor("A"), WithClock(clock), WithFallback(func(_ context.Context) (interface{}, error) {
		fallbackCalled = true
		return "fallback-result", nil
	}))
	require.NoError(t, err)

	fn := func(_ context.Context, keyID string) (interface{}, error) {
		return nil, &statusErr{status: 400, msg: "bad request"}
	}

	_, err = m.Execute(context.Background(), fn, ExecuteOptions{MaxRetries: 3})
	require.Error(t, err)
	require.False(t, fallbackCalled)
}

func TestExecute_EventsEmittedOnSuccess(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1000, 0))
	m, err := NewManager(inputsFor("A"), WithClock(clock))
	require.NoError(t, err)

	var names []string
	m.On(func(e events.Event) { names = append(names, events.Name(e)) })

	fn := func(_ context.Context, keyID string) (interface{}, error) { return "ok", nil }
	_, err = m.Execute(context.Background(), fn, ExecuteOptions{})
	require.NoError(t, err)
	require.Contains(t, names, "executeSuccess")
}

func TestStats_ReportsPoolHealth(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1000, 0))
	m, err := NewManager(inputsFor("A", "B"), WithClock(clock))
	require.NoError(t, err)

	fn := func(_ context.Context, keyID string) (interface{}, error) {
		return nil, &statusErr{status: 403, msg: "forbidden"}
	}
	_, _ = m.Execute(context.Background(), fn, ExecuteOptions{Provider: "", MaxRetries: 0})

	stats := m.Stats()
	require.Equal(t, 2, stats.TotalKeys)
}
