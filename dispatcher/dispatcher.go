package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	"github.com/marcelsud/webhook-dispatcher/internal/clock"
	"github.com/marcelsud/webhook-dispatcher/payload"
	"github.com/marcelsud/webhook-dispatcher/subscription"
	"go.uber.org/zap"
)

// Finder looks up the subscriptions an event fans out to
type Finder interface {
	FindActiveByEvent(ctx context.Context, eventType string, at time.Time) ([]subscription.Subscription, error)
}

// Submitter hands due deliveries to the worker pool without blocking
type Submitter interface {
	TrySubmit(id string) bool
}

// Queue is the part of the retry queue the dispatcher writes to
type Queue interface {
	delivery.Writer
	Get(ctx context.Context, id string) (delivery.Attempt, error)
}

type Deps struct {
	Subscriptions Finder
	Queue         Queue
	Logs          deliverylog.Store
	// Submitter is optional, the retry sweep picks up anything not submitted
	Submitter Submitter
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Dispatcher turns events into delivery attempts, one chain per matching subscription
type Dispatcher struct {
	deps    Deps
	batcher *Batcher
}

func New(deps Deps) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	d := &Dispatcher{deps: deps}
	d.batcher = NewBatcher(d.flushBatch, deps.Logger)
	return d
}

/* Dispatch fans the event out and returns one delivery id per matching subscription
 * Batched subscriptions return the id of the batch the event joined.
 * A store failure aborts the fan-out and is returned
 */
func (d *Dispatcher) Dispatch(ctx context.Context, e delivery.Event) ([]string, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	now := d.deps.Clock.Now()
	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	subs, err := d.deps.Subscriptions.FindActiveByEvent(ctx, e.Type, now)
	if err != nil {
		return nil, fmt.Errorf("finding subscriptions for %s: %w", e.Type, err)
	}

	ids := make([]string, 0, len(subs))
	for _, sub := range subs {
		if sub.Status != subscription.Active || !sub.Listens(e.Type) {
			continue
		}

		envelope := payload.Envelope(e.Type, occurredAt, e.Data, now)

		var id string
		if sub.Batched() {
			id, err = d.batcher.Add(ctx, sub, envelope)
		} else {
			id, err = d.enqueue(ctx, sub, delivery.NewID(), e.Type, envelope)
		}
		if err != nil {
			return nil, fmt.Errorf("dispatching %s to %s: %w", e.Type, sub.ID, err)
		}
		ids = append(ids, id)
	}

	d.deps.Logger.Debug("event dispatched",
		zap.String("event_type", e.Type),
		zap.Int("deliveries", len(ids)),
	)
	return ids, nil
}

func (d *Dispatcher) flushBatch(ctx context.Context, sub subscription.Subscription, id string, envelopes []payload.Value) error {
	body := payload.Batch(d.deps.Clock.Now(), envelopes)
	if _, err := d.enqueue(ctx, sub, id, payload.BatchEventType, body); err != nil {
		return fmt.Errorf("flushing batch %s for %s: %w", id, sub.ID, err)
	}
	d.deps.Logger.Debug("batch flushed",
		zap.String("webhook_id", sub.ID),
		zap.String("delivery_id", id),
		zap.Int("events", len(envelopes)),
	)
	return nil
}

// enqueue snapshots the envelope and creates attempt 1 with its pending log row
func (d *Dispatcher) enqueue(ctx context.Context, sub subscription.Subscription, id, eventType string, envelope payload.Value) (string, error) {
	body, err := envelope.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}

	now := d.deps.Clock.Now()
	scheduledAt := sub.ScheduleAt(now)

	a := delivery.Attempt{
		ID:            id,
		WebhookID:     sub.ID,
		EventType:     eventType,
		Payload:       body,
		AttemptNumber: 1,
		Status:        delivery.Pending,
		ScheduledAt:   scheduledAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch err := d.deps.Queue.Create(ctx, a); {
	case errors.Is(err, delivery.ErrAlreadyExists):
		// a batch flushed again after a partial failure
		existing, gerr := d.deps.Queue.Get(ctx, id)
		if gerr != nil {
			return "", fmt.Errorf("loading existing delivery: %w", gerr)
		}
		if existing.Status != delivery.Pending || existing.AttemptNumber != 1 {
			return id, nil
		}
		body = existing.Payload
		scheduledAt = existing.ScheduledAt
	case err != nil:
		return "", fmt.Errorf("creating delivery: %w", err)
	}

	err = d.deps.Logs.Record(ctx, deliverylog.Record{
		WebhookID:     sub.ID,
		ChainID:       id,
		AttemptNumber: 1,
		EventType:     eventType,
		Status:        delivery.Pending,
		RequestMethod: string(sub.Method),
		RequestURL:    sub.URL,
		RequestBody:   body,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return "", fmt.Errorf("recording pending log: %w", err)
	}

	if !scheduledAt.After(now) && d.deps.Submitter != nil {
		if !d.deps.Submitter.TrySubmit(id) {
			d.deps.Logger.Debug("worker queue full, left for the retry sweep", zap.String("delivery_id", id))
		}
	}

	return id, nil
}

/* Listen dispatches events from a bounded channel until ctx is done or the channel closes
 * Producers block when the channel is full
 */
func (d *Dispatcher) Listen(ctx context.Context, events <-chan delivery.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := d.Dispatch(ctx, e); err != nil {
				d.deps.Logger.Error("failed to dispatch queued event",
					zap.String("event_type", e.Type),
					zap.Error(err),
				)
			}
		}
	}
}

// PendingBatched returns how many events wait in open batches
func (d *Dispatcher) PendingBatched() int {
	return d.batcher.Pending()
}

// Close flushes partial batches, later Dispatch calls for batched subscriptions fail
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.batcher.Close(ctx)
}
