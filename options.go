package keyrotate

import (
	"context"
	"time"

	"github.com/keyrotate/keyrotate/bulkhead"
	"github.com/keyrotate/keyrotate/core"
	"github.com/keyrotate/keyrotate/events"
	"github.com/keyrotate/keyrotate/selector"
	"github.com/keyrotate/keyrotate/storage"
)

// CallFunc is the caller-supplied operation executed against a selected
// key. Its returned error feeds the classifier; ctx carries the
// per-attempt timeout when one is configured.
type CallFunc func(ctx context.Context, keyID string) (interface{}, error)

// FallbackFunc is the caller's escape hatch, invoked when key selection
// comes up empty or the retry budget is exhausted on a retryable error.
type FallbackFunc func(ctx context.Context) (interface{}, error)

// EmbeddingFunc computes a prompt's embedding vector for the semantic
// cache. It may itself call Execute on the same Manager; the reentrancy
// guard in package cache prevents that from recursing into the cache.
type EmbeddingFunc func(ctx context.Context, prompt string) ([]float64, error)

// HealthCheckFunc probes whether a key is currently usable. Surfaced for
// preset wrappers; not exercised by the core execute path.
type HealthCheckFunc func(ctx context.Context, keyID string) (bool, error)

// SemanticCacheConfig enables and tunes the optional semantic cache.
type SemanticCacheConfig struct {
	Threshold float64
	TTL       time.Duration
	Capacity  int
	Embedding EmbeddingFunc
}

// Config is the assembled manager configuration. Built by applying
// Options over sane defaults; callers never construct it directly.
type Config struct {
	Storage        storage.Adapter
	StorageKey     string
	Strategy       selector.Strategy
	Fallback       FallbackFunc
	MaxConcurrency int
	SemanticCache  *SemanticCacheConfig
	Logger         core.ComponentAwareLogger
	Metrics        core.MetricsRegistry
	EventBus       *events.Bus
	Clock          core.Clock
	Tracer         core.Tracer
}

// Option configures a Manager at construction time.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		StorageKey:     core.DefaultStorageKey,
		Strategy:       selector.Standard{},
		MaxConcurrency: bulkhead.Unbounded,
		Logger:         core.NewStructuredLogger("keyrotate"),
		Clock:          core.RealClock{},
		Tracer:         core.NoOpTracer{},
	}
}

// WithStorage configures a persistence adapter. Without one, key state is
// in-memory only and does not survive process restart.
func WithStorage(a storage.Adapter) Option {
	return func(c *Config) { c.Storage = a }
}

// WithStorageKey overrides the single checkpoint key state is persisted
// under (default core.DefaultStorageKey).
func WithStorageKey(key string) Option {
	return func(c *Config) { c.StorageKey = key }
}

// WithStrategy selects the key-selection strategy (default Standard{}).
func WithStrategy(s selector.Strategy) Option {
	return func(c *Config) { c.Strategy = s }
}

// WithFallback configures the escape hatch invoked when selection is
// empty or the retry budget is exhausted on a retryable error.
func WithFallback(fn FallbackFunc) Option {
	return func(c *Config) { c.Fallback = fn }
}

// WithConcurrency bounds concurrent in-flight Execute calls. Pass 0 to
// reject every call (a fully closed bulkhead); omit this option for the
// default of unbounded.
func WithConcurrency(max int) Option {
	return func(c *Config) { c.MaxConcurrency = max }
}

// WithSemanticCache enables the optional prompt-similarity cache.
func WithSemanticCache(cfg SemanticCacheConfig) Option {
	return func(c *Config) { c.SemanticCache = &cfg }
}

// WithLogger overrides the default StructuredLogger.
func WithLogger(l core.ComponentAwareLogger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics installs a metrics sink (e.g. telemetry.OtelMetrics).
// Without one, metrics are simply not emitted.
func WithMetrics(m core.MetricsRegistry) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithEventBus installs the bus Execute emits lifecycle events to. A bus
// is always present (NewManager creates a default one); pass this to
// share a bus across managers or to pre-register listeners.
func WithEventBus(b *events.Bus) Option {
	return func(c *Config) { c.EventBus = b }
}

// WithClock overrides the wall clock; intended for tests.
func WithClock(clock core.Clock) Option {
	return func(c *Config) { c.Clock = clock }
}

// WithTracer installs a tracer Execute starts a span with on every
// retry attempt (e.g. telemetry.NewOtelTracer wrapping a provider's
// Tracer("keyrotate")). Without one, spans are no-ops.
func WithTracer(t core.Tracer) Option {
	return func(c *Config) { c.Tracer = t }
}
