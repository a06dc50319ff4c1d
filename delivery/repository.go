package delivery

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("delivery not found")
	ErrNotClaimable      = errors.New("delivery is not pending or not yet due")
	ErrInvalidTransition = errors.New("invalid delivery status transition")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrAlreadyExists     = errors.New("delivery already exists")
)

// ReasonWorkerLost is the error stored on an attempt reset by the stale sweep
const ReasonWorkerLost = "worker lost before the attempt finished"

/* Small, focused interfaces over the retry queue
 * The queue is one of only two pieces of shared mutable state
 */

// Reader provides read operations for attempts
type Reader interface {
	Get(ctx context.Context, id string) (Attempt, error)
	/* Due returns pending attempts with ScheduledAt <= now, oldest first
	 * Used by the retry sweep, the result may race with other claimers
	 */
	Due(ctx context.Context, now time.Time, limit int) ([]Attempt, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

// Writer provides state transitions for attempts
type Writer interface {
	Create(ctx context.Context, a Attempt) error
	/* Claim is the compare-and-swap Pending -> Processing
	 * Returns ErrNotClaimable when another worker won or the attempt is not due
	 */
	Claim(ctx context.Context, id string, now time.Time) (Attempt, error)
	/* Resolve moves a Processing attempt to a.Status (Pending, Delivered or Abandoned)
	 * storing the result fields; any other current status is ErrInvalidTransition
	 */
	Resolve(ctx context.Context, a Attempt) error
	/* ResetStale returns Processing attempts claimed before the cutoff to Pending
	 * The lost attempt counts as failed: the attempt number moves to the next one
	 */
	ResetStale(ctx context.Context, claimedBefore time.Time, now time.Time) (int, error)
}

type Repository interface {
	Reader
	Writer
	Close(ctx context.Context) error
}

// CanResolveTo reports whether a processing attempt may move to s
func CanResolveTo(s Status) bool {
	return s == Pending || s == Delivered || s == Abandoned
}
