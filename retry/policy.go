package retry

import (
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/subscription"
)

const (
	DefaultRetryDelay       = 30 * time.Second
	DefaultMaxBackoff       = time.Hour
	DefaultFailureThreshold = 5
)

// Config holds the engine-wide retry settings, subscriptions may override the delay
type Config struct {
	DefaultRetryDelay time.Duration
	MaxBackoff        time.Duration
	// FailureThreshold is the consecutive failure count that triggers a notification, 0 disables
	FailureThreshold int
}

// Decision is what happens to a chain after one attempt
type Decision struct {
	// Status is the next queue status: Delivered, Pending or Abandoned
	Status delivery.Status
	// LogStatus is the status written to the attempt's log record
	LogStatus   delivery.Status
	NextAttempt int
	Delay       time.Duration
	ScheduledAt time.Time
}

// Retrying reports whether the chain gets another attempt
func (d Decision) Retrying() bool {
	return d.Status == delivery.Pending
}

type Policy struct {
	cfg Config
}

// NewPolicy fills unset values with defaults
func NewPolicy(cfg Config) Policy {
	if cfg.DefaultRetryDelay <= 0 {
		cfg.DefaultRetryDelay = DefaultRetryDelay
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.FailureThreshold < 0 {
		cfg.FailureThreshold = 0
	}
	return Policy{cfg: cfg}
}

// Config returns the effective settings
func (p Policy) Config() Config {
	return p.cfg
}

/* Decide applies the retry rules to the outcome of attempt a
 * A retryable failure is retried while AttemptNumber <= RetryCount,
 * so a chain makes at most RetryCount+1 attempts
 * retryAfter comes from the subscriber's Retry-After header, zero when absent
 */
func (p Policy) Decide(a delivery.Attempt, sub subscription.Subscription, outcome delivery.Outcome, retryAfter time.Duration, now time.Time) Decision {
	switch outcome {
	case delivery.OutcomeDelivered:
		return Decision{Status: delivery.Delivered, LogStatus: delivery.Delivered, NextAttempt: a.AttemptNumber}
	case delivery.OutcomeRetryable:
		if a.AttemptNumber > sub.RetryCount {
			return Decision{Status: delivery.Abandoned, LogStatus: delivery.Abandoned, NextAttempt: a.AttemptNumber}
		}
	default:
		return Decision{Status: delivery.Abandoned, LogStatus: delivery.Abandoned, NextAttempt: a.AttemptNumber}
	}

	delay := p.Delay(sub, a.AttemptNumber, retryAfter)
	return Decision{
		Status:      delivery.Pending,
		LogStatus:   delivery.Failed,
		NextAttempt: a.AttemptNumber + 1,
		Delay:       delay,
		ScheduledAt: sub.ScheduleAt(now.Add(delay)),
	}
}

// Exhausted reports whether a has no attempt left, true once a lost attempt pushed it past RetryCount+1
func (p Policy) Exhausted(a delivery.Attempt, sub subscription.Subscription) bool {
	return a.AttemptNumber > sub.RetryCount+1
}

// Delay is the wait after attempt n, never shorter than the subscriber's Retry-After
func (p Policy) Delay(sub subscription.Subscription, n int, retryAfter time.Duration) time.Duration {
	delay := Backoff(sub.RetryDelay(p.cfg.DefaultRetryDelay), p.cfg.MaxBackoff, n)
	if retryAfter > delay {
		delay = retryAfter
	}
	if delay > p.cfg.MaxBackoff {
		delay = p.cfg.MaxBackoff
	}
	return delay
}

// ShouldNotify fires once per failure streak, when the streak reaches the threshold
func (p Policy) ShouldNotify(stats subscription.Stats) bool {
	return p.cfg.FailureThreshold > 0 && stats.ConsecutiveFailures == int64(p.cfg.FailureThreshold)
}
