// Package retry implements the backoff calculation: capped exponential
// backoff with additive jitter. The retry loop itself — select, invoke,
// classify, update breaker, sleep — is orchestrated by the manager, since
// it needs the classifier, breaker and selector together; this package
// only owns the one pure function.
package retry

import (
	"math/rand"
	"time"

	"github.com/keyrotate/keyrotate/core"
)

// Backoff returns the delay before retry attempt a+1:
// min(BASE_BACKOFF * 2^a, MAX_BACKOFF) + uniform(0, 1000)ms. rng supplies
// the jitter source; pass a per-manager *rand.Rand so tests can seed it.
func Backoff(attempt int, rng *rand.Rand) time.Duration {
	capped := core.BaseBackoff << uint(attempt)
	if capped > core.MaxBackoff || capped <= 0 {
		capped = core.MaxBackoff
	}
	jitter := time.Duration(rng.Int63n(int64(time.Second)))
	return capped + jitter
}
