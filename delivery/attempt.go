package delivery

import (
	"fmt"
	"time"

	"github.com/marcelsud/webhook-dispatcher/payload"
	"github.com/oklog/ulid/v2"
)

/* Attempt is the live queue row of one delivery chain
 * ID is both the delivery id handed to producers and the chain id;
 * retries reuse the row with AttemptNumber incremented
 * Uses value semantics as it represents data, not behavior
 */
type Attempt struct {
	ID              string
	WebhookID       string
	EventType       string
	Payload         []byte // canonical envelope snapshot taken at enqueue, never rewritten
	AttemptNumber   int
	Status          Status
	ScheduledAt     time.Time
	ClaimedAt       time.Time
	ResponseCode    int
	ResponseExcerpt string
	ResponseTimeMs  int64
	Error           string
	RetryOf         string // set on manual retries, the chain this one was copied from
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Due reports whether the attempt may be claimed at now
func (a Attempt) Due(now time.Time) bool {
	return a.Status == Pending && !a.ScheduledAt.After(now)
}

/* Event is a fired domain event as handed over by the producer
 * Ephemeral: only the attempts derived from it are persisted
 */
type Event struct {
	Type       string
	Data       payload.Value
	OccurredAt time.Time
}

// Validate checks the event type format
func (e Event) Validate() error {
	if err := payload.ValidateEventType(e.Type); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// NewID returns a time-sortable delivery id
func NewID() string {
	return ulid.Make().String()
}
