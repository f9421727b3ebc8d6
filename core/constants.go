package core

import "time"

// Environment variable names for operational tuning. Only the two log
// variables are read (by NewStructuredLogger); NewManager does not read
// EnvMaxConcurrency or EnvMaxRetries, so the concurrency cap and retry
// budget come from WithConcurrency and ExecuteOptions.MaxRetries alone.
const (
	// EnvMaxConcurrency names a concurrency-cap override; not read.
	EnvMaxConcurrency = "KEYROTATE_MAX_CONCURRENCY"

	// EnvMaxRetries names a retry-budget override; not read.
	EnvMaxRetries = "KEYROTATE_MAX_RETRIES"

	// EnvLogLevel and EnvLogFormat configure StructuredLogger.
	EnvLogLevel  = "KEYROTATE_LOG_LEVEL"
	EnvLogFormat = "KEYROTATE_LOG_FORMAT"
)

// Failure-policy constants shared by the classifier and breaker.
const (
	MaxConsecutiveFailures = 5

	CooldownTransient  = 60 * time.Second
	CooldownQuota      = 5 * time.Minute
	CooldownQuotaDaily = time.Hour

	HalfOpenTestDelay = 60 * time.Second

	BaseBackoff = 1 * time.Second
	MaxBackoff  = 64 * time.Second

	// SemanticCacheDefaultThreshold and SemanticCacheDefaultTTL are the
	// defaults for WithSemanticCache when the caller omits them.
	SemanticCacheDefaultThreshold = 0.95
	SemanticCacheDefaultTTL       = 24 * time.Hour
	SemanticCacheCapacity         = 500

	// DefaultStorageKey is the single storage key the core checkpoints
	// all key state under.
	DefaultStorageKey = "keyrotate_state_v2"
)
