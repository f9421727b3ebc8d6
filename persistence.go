package keyrotate

import (
	"context"
	"time"

	"github.com/keyrotate/keyrotate/keystate"
)

// persist checkpoints every key's full health record through the
// configured storage adapter after a state-mutating operation. Failures
// are logged and non-fatal — they must never abort Execute.
func (m *Manager) persist(ctx context.Context) {
	if m.storageAdapter == nil {
		return
	}

	doc := make(map[string]interface{}, m.registry.Len())
	for _, k := range m.registry.All() {
		doc[k.ID()] = snapshotToAttributes(k.Snapshot())
	}

	if err := m.storageAdapter.SetItem(ctx, m.storageKey, doc); err != nil {
		m.logger.Warn("failed to persist key state", map[string]interface{}{"error": err.Error()})
	}
}

// load restores persisted health records onto the matching in-memory
// keys by identity. Unknown keys in the snapshot are ignored; known keys
// absent from the snapshot retain their constructed defaults.
func (m *Manager) load(ctx context.Context) error {
	doc, err := m.storageAdapter.GetItem(ctx, m.storageKey)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	for _, k := range m.registry.All() {
		raw, ok := doc[k.ID()]
		if !ok {
			continue
		}
		attrs, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		k.Restore(attributesToSnapshot(k.Snapshot(), attrs))
	}
	return nil
}

func snapshotToAttributes(s keystate.Snapshot) map[string]interface{} {
	attrs := map[string]interface{}{
		"circuitState":      string(s.CircuitState),
		"failCount":         s.FailCount,
		"hasFailedAt":       s.HasFailedAt,
		"isQuotaError":      s.IsQuotaError,
		"hasCustomCooldown": s.HasCustomCooldown,
		"customCooldownMs":  int64(s.CustomCooldown / time.Millisecond),
		"halfOpenTestTime":  s.HalfOpenTestTime.UnixMilli(),
		"lastUsed":          s.LastUsed.UnixMilli(),
		"successCount":      s.SuccessCount,
		"totalRequests":     s.TotalRequests,
		"latencySamples":    s.LatencySamples,
		"totalLatencyMs":    int64(s.TotalLatency / time.Millisecond),
		"averageLatencyMs":  int64(s.AverageLatency / time.Millisecond),
	}
	if s.HasFailedAt {
		attrs["failedAt"] = s.FailedAt.UnixMilli()
	}
	return attrs
}

func attributesToSnapshot(existing keystate.Snapshot, attrs map[string]interface{}) keystate.Snapshot {
	out := existing

	if v, ok := attrs["circuitState"].(string); ok {
		out.CircuitState = keystate.CircuitState(v)
	}
	if v, ok := asInt(attrs["failCount"]); ok {
		out.FailCount = v
	}
	if v, ok := attrs["hasFailedAt"].(bool); ok {
		out.HasFailedAt = v
	}
	if v, ok := attrs["isQuotaError"].(bool); ok {
		out.IsQuotaError = v
	}
	if v, ok := attrs["hasCustomCooldown"].(bool); ok {
		out.HasCustomCooldown = v
	}
	if v, ok := asInt64(attrs["customCooldownMs"]); ok {
		out.CustomCooldown = time.Duration(v) * time.Millisecond
	}
	if v, ok := asInt64(attrs["halfOpenTestTime"]); ok {
		out.HalfOpenTestTime = time.UnixMilli(v)
	}
	if v, ok := asInt64(attrs["lastUsed"]); ok {
		out.LastUsed = time.UnixMilli(v)
	}
	if v, ok := asInt64(attrs["successCount"]); ok {
		out.SuccessCount = v
	}
	if v, ok := asInt64(attrs["totalRequests"]); ok {
		out.TotalRequests = v
	}
	if v, ok := asInt64(attrs["latencySamples"]); ok {
		out.LatencySamples = v
	}
	if v, ok := asInt64(attrs["totalLatencyMs"]); ok {
		out.TotalLatency = time.Duration(v) * time.Millisecond
	}
	if v, ok := asInt64(attrs["averageLatencyMs"]); ok {
		out.AverageLatency = time.Duration(v) * time.Millisecond
	}
	if v, ok := asInt64(attrs["failedAt"]); ok {
		out.FailedAt = time.UnixMilli(v)
	}
	return out
}

// asInt64/asInt tolerate both json.Number-free map[string]interface{}
// (float64, from a JSON round trip) and the native int64 this package
// writes directly (e.g. via MemoryAdapter, which never serializes).
func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func asInt(v interface{}) (int, bool) {
	n, ok := asInt64(v)
	return int(n), ok
}
