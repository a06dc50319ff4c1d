package subscription

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("subscription not found")

// Outcome is what a finished attempt reports back to the subscription counters
type Outcome struct {
	Delivered    bool
	ResponseCode int
	At           time.Time
}

// Reader is the read contract the dispatcher and workers consume
type Reader interface {
	/* FindActiveByEvent returns active subscriptions whose events match eventType
	 * at is only a scheduling hint, the store never filters by active window
	 */
	FindActiveByEvent(ctx context.Context, eventType string, at time.Time) ([]Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
	List(ctx context.Context) ([]Subscription, error)
}

// Writer provides write operations for subscriptions
type Writer interface {
	Save(ctx context.Context, sub Subscription) error
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status Status) error
}

/* Recorder updates rolling counters after an attempt
 * Implementations serialize concurrent increments for the same subscription
 */
type Recorder interface {
	RecordOutcome(ctx context.Context, id string, outcome Outcome) (Stats, error)
}

type Repository interface {
	Reader
	Writer
	Recorder
	Close(ctx context.Context) error
}

// Apply folds an outcome into the counters
func (s Stats) Apply(o Outcome) Stats {
	if o.Delivered {
		s.SuccessCount++
		s.ConsecutiveFailures = 0
	} else {
		s.FailureCount++
		s.ConsecutiveFailures++
	}
	s.LastTriggeredAt = o.At
	s.LastResponseCode = o.ResponseCode
	return s
}
