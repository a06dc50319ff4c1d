package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/payload"
	"github.com/marcelsud/webhook-dispatcher/subscription"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("dispatcher is closed")

type stopper interface {
	Stop() bool
}

// FlushFunc enqueues one accumulated batch under its pre-allocated delivery id
type FlushFunc func(ctx context.Context, sub subscription.Subscription, id string, envelopes []payload.Value) error

type batch struct {
	id        string
	sub       subscription.Subscription
	envelopes []payload.Value
	timer     stopper
}

/* Batcher accumulates envelopes per subscription
 * A batch flushes when it reaches BatchSize or when BatchInterval has elapsed
 * since its first event, whichever comes first. Its delivery id is allocated
 * when the batch opens and returned for every event added to it.
 * A batch whose flush fails is kept and flushed again one interval later
 */
type Batcher struct {
	mu      sync.Mutex
	batches map[string]*batch
	failed  map[string]*batch // by delivery id, waiting for another flush
	flush   FlushFunc
	after   func(time.Duration, func()) stopper
	logger  *zap.Logger
	closed  bool
}

func NewBatcher(flush FlushFunc, logger *zap.Logger) *Batcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{
		batches: make(map[string]*batch),
		failed:  make(map[string]*batch),
		flush:   flush,
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		logger: logger,
	}
}

// Add appends an envelope and returns the id of the batch it joined
func (b *Batcher) Add(ctx context.Context, sub subscription.Subscription, envelope payload.Value) (string, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrClosed
	}

	current, ok := b.batches[sub.ID]
	if !ok {
		current = &batch{id: delivery.NewID(), sub: sub}
		id := current.id
		current.timer = b.after(sub.BatchInterval(), func() {
			b.flushExpired(sub.ID, id)
		})
		b.batches[sub.ID] = current
	}
	current.sub = sub
	current.envelopes = append(current.envelopes, envelope)

	if len(current.envelopes) < sub.BatchSize {
		b.mu.Unlock()
		return current.id, nil
	}

	delete(b.batches, sub.ID)
	current.timer.Stop()
	b.mu.Unlock()

	if err := b.flush(ctx, current.sub, current.id, current.envelopes); err != nil {
		b.keep(current, err)
		return "", err
	}
	return current.id, nil
}

// keep parks a batch that failed to flush and schedules another flush
func (b *Batcher) keep(current *batch, err error) {
	b.logger.Error("failed to flush batch, keeping it for the next interval",
		zap.String("webhook_id", current.sub.ID),
		zap.String("delivery_id", current.id),
		zap.Int("events", len(current.envelopes)),
		zap.Error(err),
	)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.failed[current.id] = current
	id := current.id
	current.timer = b.after(current.sub.BatchInterval(), func() {
		b.flushFailed(id)
	})
}

func (b *Batcher) flushFailed(id string) {
	b.mu.Lock()
	current, ok := b.failed[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.failed, id)
	b.mu.Unlock()

	if err := b.flush(context.Background(), current.sub, current.id, current.envelopes); err != nil {
		b.keep(current, err)
	}
}

func (b *Batcher) flushExpired(subID, id string) {
	b.mu.Lock()
	current, ok := b.batches[subID]
	if !ok || current.id != id {
		b.mu.Unlock()
		return
	}
	delete(b.batches, subID)
	b.mu.Unlock()

	if err := b.flush(context.Background(), current.sub, current.id, current.envelopes); err != nil {
		b.keep(current, err)
	}
}

// Pending returns the number of events waiting in open batches
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, current := range b.batches {
		n += len(current.envelopes)
	}
	for _, current := range b.failed {
		n += len(current.envelopes)
	}
	return n
}

// Close flushes every partial batch and rejects further events
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	open := make([]*batch, 0, len(b.batches)+len(b.failed))
	for _, current := range b.batches {
		open = append(open, current)
	}
	for _, current := range b.failed {
		open = append(open, current)
	}
	b.batches = make(map[string]*batch)
	b.failed = make(map[string]*batch)
	b.mu.Unlock()

	var errs []error
	for _, current := range open {
		current.timer.Stop()
		if err := b.flush(ctx, current.sub, current.id, current.envelopes); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
