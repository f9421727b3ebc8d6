// Package events implements the lifecycle event bus: a closed tagged union
// of event variants, dispatched synchronously and panic-isolated to
// registered listeners.
package events

import (
	"github.com/keyrotate/keyrotate/core"
)

// Event is the closed set of lifecycle notifications. A type switch on
// the concrete struct recovers the variant; there is no loose
// string-keyed map.
type Event interface {
	eventName() string
}

type CircuitOpen struct{ KeyID string }
type CircuitHalfOpen struct{ KeyID string }
type KeyDead struct{ KeyID string }
type KeyRecovered struct{ KeyID string }
type AllKeysExhausted struct{}
type BulkheadRejected struct{}
type Retry struct {
	KeyID   string
	Attempt int
	DelayMs int64
}
type Fallback struct{ Reason string }
type ExecuteSuccess struct {
	KeyID      string // "CACHE_HIT" for a cache-satisfied call
	DurationMs int64
}
type ExecuteFailed struct {
	KeyID string
	Err   error
}

func (CircuitOpen) eventName() string      { return "circuitOpen" }
func (CircuitHalfOpen) eventName() string   { return "circuitHalfOpen" }
func (KeyDead) eventName() string          { return "keyDead" }
func (KeyRecovered) eventName() string     { return "keyRecovered" }
func (AllKeysExhausted) eventName() string { return "allKeysExhausted" }
func (BulkheadRejected) eventName() string { return "bulkheadRejected" }
func (Retry) eventName() string            { return "retry" }
func (Fallback) eventName() string         { return "fallback" }
func (ExecuteSuccess) eventName() string   { return "executeSuccess" }
func (ExecuteFailed) eventName() string    { return "executeFailed" }

// Name returns the wire/log name of an event's variant.
func Name(e Event) string { return e.eventName() }

// Listener receives every emitted Event; it type-switches on the variants
// it cares about.
type Listener func(Event)

// Bus is a synchronous, panic-isolated event dispatcher. Listener
// panics are caught and logged; they never interrupt other listeners or
// the firing path.
type Bus struct {
	listeners []Listener
	logger    core.Logger
}

// NewBus returns a Bus that logs recovered listener panics through
// logger. A nil logger is replaced with core.NoOpLogger.
func NewBus(logger core.Logger) *Bus {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Bus{logger: logger}
}

// On registers a listener. Listeners fire in registration order.
func (b *Bus) On(l Listener) {
	b.listeners = append(b.listeners, l)
}

// Emit dispatches e to every registered listener in order, isolating each
// one behind a recover so a panicking listener can't break the others or
// the caller.
func (b *Bus) Emit(e Event) {
	for _, l := range b.listeners {
		b.dispatch(l, e)
	}
}

func (b *Bus) dispatch(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked", map[string]interface{}{
				"event": Name(e),
				"panic": r,
			})
		}
	}()
	l(e)
}
