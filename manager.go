// Package keyrotate is the execute orchestrator: it composes the key
// registry, classifier, breaker, selector, bulkhead, retry loop and
// semantic cache into a single execute(fn, options) contract.
package keyrotate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyrotate/keyrotate/bulkhead"
	"github.com/keyrotate/keyrotate/cache"
	"github.com/keyrotate/keyrotate/classifier"
	"github.com/keyrotate/keyrotate/core"
	"github.com/keyrotate/keyrotate/events"
	"github.com/keyrotate/keyrotate/keystate"
	"github.com/keyrotate/keyrotate/retry"
	"github.com/keyrotate/keyrotate/selector"
)

// ExecuteOptions tunes a single Execute call.
type ExecuteOptions struct {
	// Timeout bounds a single attempt, not the whole call. Zero means no
	// per-attempt deadline.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt; 0
	// means a single attempt total.
	MaxRetries int
	// FinishReason is an optional model finish-reason fed to the
	// classifier ahead of the raised error (SAFETY/RECITATION).
	FinishReason string
	// Provider restricts selection to keys tagged with this provider.
	Provider string
	// Prompt enables the semantic cache for this call, if configured.
	Prompt string
}

// Manager is the execute orchestrator. Construct with NewManager; the
// zero value is not usable.
type Manager struct {
	registry       *keystate.Registry
	strategy       selector.Strategy
	fallback       FallbackFunc
	bulkhead       *bulkhead.Bulkhead
	storageAdapter storageAdapter
	storageKey     string
	bus            *events.Bus
	logger         core.ComponentAwareLogger
	metrics        core.MetricsRegistry
	clock          core.Clock
	tracer         core.Tracer

	semanticCache *cache.Cache
	embeddingFn   EmbeddingFunc

	rngMu sync.Mutex
	rng   *rand.Rand
}

// storageAdapter is the narrow slice of storage.Adapter the manager uses;
// declared locally so this file doesn't need to import the storage
// package just for the interface name.
type storageAdapter interface {
	GetItem(ctx context.Context, key string) (map[string]interface{}, error)
	SetItem(ctx context.Context, key string, value map[string]interface{}) error
}

// NewManager builds a Manager from an initial key list and Options.
// String inputs may be comma-separated; they are split and deduplicated
// by identity before keys are constructed.
func NewManager(inputs []keystate.Input, opts ...Option) (*Manager, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.EventBus == nil {
		cfg.EventBus = events.NewBus(cfg.Logger)
	}

	now := cfg.Clock.Now()
	registry := keystate.NewRegistry(inputs, now)

	m := &Manager{
		registry:       registry,
		strategy:       cfg.Strategy,
		fallback:       cfg.Fallback,
		bulkhead:       bulkhead.New(cfg.MaxConcurrency),
		storageAdapter: cfg.Storage,
		storageKey:     cfg.StorageKey,
		bus:            cfg.EventBus,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		clock:          cfg.Clock,
		tracer:         cfg.Tracer,
		rng:            rand.New(rand.NewSource(now.UnixNano())),
	}

	if cfg.SemanticCache != nil {
		sc := cfg.SemanticCache
		m.semanticCache = cache.New(sc.Threshold, sc.TTL, sc.Capacity, cfg.Clock)
		m.embeddingFn = sc.Embedding
	}

	if m.storageAdapter != nil {
		if err := m.load(context.Background()); err != nil {
			return nil, fmt.Errorf("keyrotate: loading persisted state: %w", err)
		}
	}

	return m, nil
}

// On registers a lifecycle event listener.
func (m *Manager) On(l events.Listener) { m.bus.On(l) }

// Execute runs fn against a selected key, retrying on retryable failures.
func (m *Manager) Execute(ctx context.Context, fn CallFunc, opts ExecuteOptions) (interface{}, error) {
	executionID := uuid.NewString()
	ctx = withExecutionID(ctx, executionID)

	var vector []float64
	if m.semanticCache != nil && opts.Prompt != "" {
		if hit, ok := m.lookupCache(ctx, opts.Prompt, &vector); ok {
			m.emitSuccess("CACHE_HIT", 0)
			return hit, nil
		}
	}

	if err := m.bulkhead.Acquire(); err != nil {
		m.bus.Emit(events.BulkheadRejected{})
		m.logger.Warn("bulkhead rejected execute", map[string]interface{}{"executionId": executionID})
		return nil, core.NewError("Manager.Execute", "bulkhead", err)
	}
	defer m.bulkhead.Release()

	return m.executeWithRetry(ctx, fn, opts, vector)
}

type executionIDKey struct{}

func withExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey{}, id)
}

// ExecutionID returns the correlation ID Execute generated for ctx's call
// chain, or "" if ctx did not come from Execute.
func ExecutionID(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}

func (m *Manager) lookupCache(ctx context.Context, prompt string, vector *[]float64) (interface{}, bool) {
	if cache.IsResolvingEmbedding(ctx) {
		return nil, false
	}
	embedCtx := cache.WithResolvingEmbedding(ctx)
	v, err := m.embeddingFn(embedCtx, prompt)
	if err != nil {
		m.logger.Warn("semantic cache embedding failed, falling back to live path", map[string]interface{}{"error": err.Error()})
		return nil, false
	}
	*vector = v
	return m.semanticCache.Lookup(ctx, v)
}

func (m *Manager) executeWithRetry(ctx context.Context, fn CallFunc, opts ExecuteOptions, vector []float64) (interface{}, error) {
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		outcome := m.runAttempt(ctx, fn, opts, vector, attempt)
		if outcome.done {
			return outcome.result, outcome.err
		}

		lastErr = outcome.err
		isLastAttempt := attempt == maxRetries
		if isLastAttempt {
			if m.fallback != nil {
				m.bus.Emit(events.Fallback{Reason: "max retries exceeded"})
				return m.fallback(ctx)
			}
			return nil, outcome.err
		}

		delay := m.backoff(attempt)
		m.bus.Emit(events.Retry{KeyID: outcome.keyID, Attempt: attempt, DelayMs: delay.Milliseconds()})
		m.clock.Sleep(delay)
	}
	return nil, lastErr
}

// attemptOutcome is runAttempt's result: done is true when the retry
// loop should stop and return (result, err) to the caller as-is; false
// means err was retryable and the loop should back off and continue,
// with keyID identifying which key to attribute the coming retry event
// to.
type attemptOutcome struct {
	result interface{}
	err    error
	keyID  string
	done   bool
}

// runAttempt executes one retry attempt inside its own span, tagged
// with the execute call's correlation ID and attempt index — each
// attempt is a natural child-span boundary under the call's root
// context.
func (m *Manager) runAttempt(ctx context.Context, fn CallFunc, opts ExecuteOptions, vector []float64, attempt int) attemptOutcome {
	spanCtx, span := m.tracer.StartSpan(ctx, "keyrotate.execute_attempt")
	span.SetAttribute("keyrotate.execution_id", ExecutionID(ctx))
	span.SetAttribute("keyrotate.attempt", attempt)
	defer span.End()

	key, selErr := m.selectKey(spanCtx, opts.Provider)
	if selErr != nil {
		span.RecordError(selErr)
		result, err := m.handleSelectionFailure(spanCtx, selErr)
		return attemptOutcome{result: result, err: err, done: true}
	}
	span.SetAttribute("keyrotate.key_id", key.ID())

	result, err := m.invoke(spanCtx, fn, key, opts.Timeout)
	if err == nil {
		return attemptOutcome{result: result, err: m.onSuccess(spanCtx, key, opts, vector, result), done: true}
	}

	span.RecordError(err)
	classification := classifier.Classify(err, classifier.NormalizeFinishReason(opts.FinishReason))
	m.onFailure(spanCtx, key, classification, err)

	if !classification.Retryable {
		return attemptOutcome{err: err, done: true}
	}
	return attemptOutcome{err: err, keyID: key.ID(), done: false}
}

// backoff draws jitter from the manager's shared rand.Rand under lock;
// rand.Rand is not safe for concurrent use, so the draw — not just the
// pointer — must happen while the lock is held.
func (m *Manager) backoff(attempt int) time.Duration {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return retry.Backoff(attempt, m.rng)
}

func (m *Manager) selectKey(ctx context.Context, provider string) (*keystate.Key, error) {
	now := m.clock.Now()
	nonDead := m.registry.NonDead(provider)
	if len(nonDead) == 0 {
		return nil, core.ErrAllKeysExhausted
	}

	var eligible []*keystate.Key
	for _, k := range nonDead {
		onCooldown, transitioned := k.IsOnCooldown(now)
		if transitioned != "" {
			m.emitBreakerEvent(k, transitioned)
			m.persist(ctx)
		}
		if !onCooldown {
			eligible = append(eligible, k)
		}
	}

	var chosen *keystate.Key
	if len(eligible) > 0 {
		chosen = m.pickWithStrategy(eligible)
	} else {
		chosen = keystate.ClosestToRecovery(nonDead)
	}
	if chosen == nil {
		return nil, core.ErrAllKeysExhausted
	}

	chosen.Touch(now)
	m.persist(ctx)
	return chosen, nil
}

// pickWithStrategy runs the configured Strategy under the rng lock, since
// Weighted draws from the shared rand.Rand and it is not safe for
// concurrent use.
func (m *Manager) pickWithStrategy(eligible []*keystate.Key) *keystate.Key {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return m.strategy.Next(eligible, m.rng)
}

func (m *Manager) handleSelectionFailure(ctx context.Context, selErr error) (interface{}, error) {
	m.bus.Emit(events.AllKeysExhausted{})
	if m.fallback != nil {
		m.bus.Emit(events.Fallback{Reason: "all keys exhausted"})
		return m.fallback(ctx)
	}
	return nil, core.NewError("Manager.Execute", "selection", selErr)
}

func (m *Manager) invoke(ctx context.Context, fn CallFunc, key *keystate.Key, timeout time.Duration) (interface{}, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := fn(callCtx, key.ID())
	if err != nil && timeout > 0 && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = timeoutError{cause: core.ErrTimeout}
	}
	return result, err
}

func (m *Manager) onSuccess(ctx context.Context, key *keystate.Key, opts ExecuteOptions, vector []float64, result interface{}) error {
	now := m.clock.Now()
	latency := now.Sub(key.Snapshot().LastUsed)
	if latency < 0 {
		latency = 0
	}
	event := key.MarkSuccess(now, latency)
	m.persist(ctx)

	if event == "keyRecovered" {
		m.bus.Emit(events.KeyRecovered{KeyID: key.ID()})
	}
	m.emitSuccess(key.ID(), latency.Milliseconds())

	if m.semanticCache != nil && opts.Prompt != "" && vector != nil {
		m.semanticCache.Store(opts.Prompt, vector, result)
	}
	return nil
}

func (m *Manager) onFailure(ctx context.Context, key *keystate.Key, c classifier.Classification, err error) {
	breakerEvents := key.MarkFailed(c, m.clock.Now())
	m.persist(ctx)
	for _, e := range breakerEvents {
		m.emitBreakerEvent(key, e)
	}
	m.bus.Emit(events.ExecuteFailed{KeyID: key.ID(), Err: err})
	m.logger.Debug("attempt failed", map[string]interface{}{
		"executionId":    ExecutionID(ctx),
		"keyId":          key.ID(),
		"classification": string(c.Type),
	})
	if m.metrics != nil {
		m.metrics.Counter("keyrotate_execute_total", "result", "failure", "classification", string(c.Type))
	}
}

func (m *Manager) emitBreakerEvent(key *keystate.Key, name string) {
	switch name {
	case "circuitOpen":
		m.bus.Emit(events.CircuitOpen{KeyID: key.ID()})
	case "circuitHalfOpen":
		m.bus.Emit(events.CircuitHalfOpen{KeyID: key.ID()})
	case "keyDead":
		m.bus.Emit(events.KeyDead{KeyID: key.ID()})
	}
}

func (m *Manager) emitSuccess(keyID string, durationMs int64) {
	m.bus.Emit(events.ExecuteSuccess{KeyID: keyID, DurationMs: durationMs})
	if m.metrics != nil {
		m.metrics.Counter("keyrotate_execute_total", "result", "success")
		m.metrics.Histogram("keyrotate_execute_duration_ms", float64(durationMs))
	}
}

// GetKey returns a selected key directly, for callers that want manual
// control over which key backs an outbound call. It mutates lastUsed and
// persists state exactly as Execute's internal selection does.
func (m *Manager) GetKey(ctx context.Context) (string, error) {
	k, err := m.selectKey(ctx, "")
	if err != nil {
		return "", err
	}
	return k.ID(), nil
}

// GetKeyByProvider is GetKey restricted to a provider tag.
func (m *Manager) GetKeyByProvider(ctx context.Context, provider string) (string, error) {
	k, err := m.selectKey(ctx, provider)
	if err != nil {
		return "", err
	}
	return k.ID(), nil
}

// timeoutError marks an error as a deadline expiry for the classifier's
// TimeoutError check, independent of the wrapped error's message text.
type timeoutError struct{ cause error }

func (e timeoutError) Error() string { return e.cause.Error() }
func (e timeoutError) Timeout() bool { return true }
func (e timeoutError) Unwrap() error { return e.cause }
