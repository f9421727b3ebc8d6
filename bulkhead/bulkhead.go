// Package bulkhead bounds concurrent in-flight execute retry loops with a
// global counter. Rejected callers fail immediately — there is no queueing.
package bulkhead

import (
	"sync"

	"github.com/keyrotate/keyrotate/core"
)

// Unbounded is the maxConcurrency sentinel meaning "no cap" — the default
// when the caller configures no concurrency limit at all. It is distinct
// from a configured cap of 0, which rejects every call.
const Unbounded = -1

// Bulkhead is a compare-and-increment admission gate. The zero value is
// not usable; construct with New.
type Bulkhead struct {
	mu       sync.Mutex
	inFlight int
	max      int // Unbounded means no cap; 0 means "reject everything"
}

// New returns a Bulkhead capped at maxConcurrency. Pass bulkhead.Unbounded
// for no cap; 0 means every Acquire is rejected.
func New(maxConcurrency int) *Bulkhead {
	return &Bulkhead{max: maxConcurrency}
}

// Acquire attempts to admit one more in-flight execute. It returns
// core.ErrBulkheadRejected if admitting would exceed the configured cap.
func (b *Bulkhead) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max != Unbounded && b.inFlight >= b.max {
		return core.ErrBulkheadRejected
	}
	b.inFlight++
	return nil
}

// Release returns one admitted slot. Always called on the exit path of a
// successfully-acquired execute, success or failure.
func (b *Bulkhead) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight > 0 {
		b.inFlight--
	}
}

// InFlight reports the current count, for metrics/tests.
func (b *Bulkhead) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}
