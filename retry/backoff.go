package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

/* Backoff returns the delay before attempt n+1 after attempt n failed:
 * base * 2^(n-1), capped at max
 * The schedule is deterministic, randomization is disabled
 */
func Backoff(base, max time.Duration, n int) time.Duration {
	if base <= 0 {
		return 0
	}
	if n < 1 {
		n = 1
	}
	limit := max
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64)
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         limit,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	var delay time.Duration
	for i := 0; i < n; i++ {
		delay = b.NextBackOff()
		if delay >= limit {
			return limit
		}
	}
	return delay
}
