package dispatcher_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	dmemory "github.com/marcelsud/webhook-dispatcher/delivery/memory"
	dmocks "github.com/marcelsud/webhook-dispatcher/delivery/mocks"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	lmemory "github.com/marcelsud/webhook-dispatcher/deliverylog/memory"
	"github.com/marcelsud/webhook-dispatcher/dispatcher"
	"github.com/marcelsud/webhook-dispatcher/internal/clock"
	"github.com/marcelsud/webhook-dispatcher/payload"
	"github.com/marcelsud/webhook-dispatcher/subscription"
	smemory "github.com/marcelsud/webhook-dispatcher/subscription/memory"
	smocks "github.com/marcelsud/webhook-dispatcher/subscription/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

type recordingSubmitter struct {
	mu  sync.Mutex
	ids []string
}

func (s *recordingSubmitter) TrySubmit(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	return true
}

func (s *recordingSubmitter) submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

type fixture struct {
	subs      *smemory.Repository
	queue     *dmemory.Repository
	logs      *lmemory.Store
	submitter *recordingSubmitter
	d         *dispatcher.Dispatcher
}

func newFixture(t *testing.T, subs ...subscription.Subscription) *fixture {
	t.Helper()

	f := &fixture{
		subs:      smemory.NewRepository(),
		queue:     dmemory.NewRepository(),
		logs:      lmemory.NewStore(),
		submitter: &recordingSubmitter{},
	}
	for _, sub := range subs {
		require.NoError(t, f.subs.Save(context.Background(), sub))
	}
	f.d = dispatcher.New(dispatcher.Deps{
		Subscriptions: f.subs,
		Queue:         f.queue,
		Logs:          f.logs,
		Submitter:     f.submitter,
		Clock:         clock.NewManual(now),
	})
	return f
}

func newSub(id string, status subscription.Status, events ...string) subscription.Subscription {
	return subscription.Subscription{
		ID:     id,
		URL:    "https://" + id + ".example.com/hook",
		Secret: "secret",
		Events: events,
		Status: status,
		Method: subscription.MethodPost,
		Format: payload.JSON,
	}
}

func event(eventType string, id int64) delivery.Event {
	return delivery.Event{Type: eventType, Data: payload.Map(payload.F("id", payload.Int(id)))}
}

func (f *fixture) logCount(t *testing.T) int64 {
	t.Helper()
	page, err := f.logs.Query(context.Background(), deliverylog.Filter{})
	require.NoError(t, err)
	return page.Total
}

func TestDispatch_FansOutToMatchingActiveSubscriptions(t *testing.T) {
	f := newFixture(t,
		newSub("exact", subscription.Active, "booking.created"),
		newSub("wildcard", subscription.Active, "booking.*"),
		newSub("paused", subscription.Paused, "booking.created"),
		newSub("other", subscription.Active, "invoice.paid"),
	)

	ids, err := f.d.Dispatch(context.Background(), event("booking.created", 1))

	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	assert.ElementsMatch(t, ids, f.submitter.submitted())
	assert.Equal(t, int64(2), f.logCount(t))

	webhooks := map[string]bool{}
	for _, id := range ids {
		a, err := f.queue.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, delivery.Pending, a.Status)
		assert.Equal(t, 1, a.AttemptNumber)
		assert.Equal(t, now, a.ScheduledAt)
		assert.Equal(t, "booking.created", a.EventType)
		webhooks[a.WebhookID] = true

		envelope, err := payload.Parse(a.Payload)
		require.NoError(t, err)
		eventType, _ := envelope.Get("event_type")
		assert.Equal(t, "booking.created", eventType.Text())
		data, _ := envelope.Get("data")
		assert.True(t, payload.Equal(payload.Map(payload.F("id", payload.Int(1))), data))
	}
	assert.Equal(t, map[string]bool{"exact": true, "wildcard": true}, webhooks)
}

func TestDispatch_NoMatchingSubscription(t *testing.T) {
	f := newFixture(t, newSub("other", subscription.Active, "invoice.paid"))

	ids, err := f.d.Dispatch(context.Background(), event("booking.created", 1))

	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
	assert.Zero(t, f.logCount(t))
	assert.Empty(t, f.submitter.submitted())
}

func TestDispatch_InvalidEventType(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(context.Background(), event("Not A Type", 1))

	assert.Error(t, err)
}

func TestDispatch_OutsideWindowIsScheduledNotSubmitted(t *testing.T) {
	sub := newSub("nightly", subscription.Active, "booking.created")
	sub.Window = &subscription.ActiveWindow{Start: "22:00", End: "06:00"}
	f := newFixture(t, sub)

	ids, err := f.d.Dispatch(context.Background(), event("booking.created", 1))

	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Empty(t, f.submitter.submitted())

	a, err := f.queue.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 6, 22, 0, 0, 0, time.UTC), a.ScheduledAt)
}

func TestDispatch_StoreFailuresAreReturned(t *testing.T) {
	ctx := context.Background()

	t.Run("error - subscription lookup fails", func(t *testing.T) {
		subs := smocks.NewRepository(t)
		subs.On("FindActiveByEvent", ctx, "booking.created", now).Return(nil, errors.New("db down"))

		d := dispatcher.New(dispatcher.Deps{
			Subscriptions: subs,
			Queue:         dmemory.NewRepository(),
			Logs:          lmemory.NewStore(),
			Clock:         clock.NewManual(now),
		})

		_, err := d.Dispatch(ctx, event("booking.created", 1))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
	})

	t.Run("error - queue write fails", func(t *testing.T) {
		subs := smemory.NewRepository()
		require.NoError(t, subs.Save(ctx, newSub("wh", subscription.Active, "booking.created")))

		queue := dmocks.NewRepository(t)
		queue.On("Create", ctx, delivery.MatchAttempt(func(a delivery.Attempt) bool {
			return a.WebhookID == "wh" && a.AttemptNumber == 1 && a.Status == delivery.Pending
		})).Return(errors.New("redis down"))

		logs := lmemory.NewStore()
		submitter := &recordingSubmitter{}
		d := dispatcher.New(dispatcher.Deps{
			Subscriptions: subs,
			Queue:         queue,
			Logs:          logs,
			Submitter:     submitter,
			Clock:         clock.NewManual(now),
		})

		ids, err := d.Dispatch(ctx, event("booking.created", 1))

		require.Error(t, err)
		assert.Nil(t, ids)
		assert.Contains(t, err.Error(), "redis down")
		assert.Empty(t, submitter.submitted())
	})
}

func TestDispatch_Batching(t *testing.T) {
	ctx := context.Background()
	sub := newSub("batched", subscription.Active, "booking.created")
	sub.BatchSize = 3
	sub.BatchIntervalSeconds = 60

	t.Run("flushes when the batch is full", func(t *testing.T) {
		f := newFixture(t, sub)

		var ids []string
		for i := int64(1); i <= 3; i++ {
			got, err := f.d.Dispatch(ctx, event("booking.created", i))
			require.NoError(t, err)
			require.Len(t, got, 1)
			ids = append(ids, got[0])

			if i < 3 {
				_, err := f.queue.Get(ctx, got[0])
				assert.ErrorIs(t, err, delivery.ErrNotFound, "nothing enqueued before the flush")
			}
		}

		assert.Equal(t, ids[0], ids[1])
		assert.Equal(t, ids[0], ids[2])
		assert.Equal(t, []string{ids[0]}, f.submitter.submitted())

		a, err := f.queue.Get(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, payload.BatchEventType, a.EventType)

		envelope, err := payload.Parse(a.Payload)
		require.NoError(t, err)
		events, ok := envelope.Get("events")
		require.True(t, ok)
		require.Equal(t, 3, events.Len())
		for i, e := range events.Items() {
			data, _ := e.Get("data")
			id, _ := data.Get("id")
			assert.Equal(t, float64(i+1), id.Float(), "accumulation order")
		}

		next, err := f.d.Dispatch(ctx, event("booking.created", 4))
		require.NoError(t, err)
		assert.NotEqual(t, ids[0], next[0], "a new batch gets a new id")
	})

	t.Run("close flushes partial batches", func(t *testing.T) {
		f := newFixture(t, sub)

		first, err := f.d.Dispatch(ctx, event("booking.created", 1))
		require.NoError(t, err)
		_, err = f.d.Dispatch(ctx, event("booking.created", 2))
		require.NoError(t, err)
		assert.Equal(t, 2, f.d.PendingBatched())

		require.NoError(t, f.d.Close(ctx))

		a, err := f.queue.Get(ctx, first[0])
		require.NoError(t, err)
		envelope, err := payload.Parse(a.Payload)
		require.NoError(t, err)
		events, _ := envelope.Get("events")
		assert.Equal(t, 2, events.Len())
		assert.Zero(t, f.d.PendingBatched())

		_, err = f.d.Dispatch(ctx, event("booking.created", 3))
		assert.ErrorIs(t, err, dispatcher.ErrClosed)
	})
}

// failOnce fails the first log write only
type failOnce struct {
	*lmemory.Store
	mu     sync.Mutex
	failed bool
}

func (f *failOnce) Record(ctx context.Context, r deliverylog.Record) error {
	f.mu.Lock()
	first := !f.failed
	f.failed = true
	f.mu.Unlock()
	if first {
		return errors.New("log store down")
	}
	return f.Store.Record(ctx, r)
}

func TestDispatch_BatchFlushedAgainAfterPartialFailure(t *testing.T) {
	ctx := context.Background()
	sub := newSub("batched", subscription.Active, "booking.created")
	sub.BatchSize = 2
	sub.BatchIntervalSeconds = 60

	subs := smemory.NewRepository()
	require.NoError(t, subs.Save(ctx, sub))
	queue := dmemory.NewRepository()
	logs := &failOnce{Store: lmemory.NewStore()}
	submitter := &recordingSubmitter{}
	d := dispatcher.New(dispatcher.Deps{
		Subscriptions: subs,
		Queue:         queue,
		Logs:          logs,
		Submitter:     submitter,
		Clock:         clock.NewManual(now),
	})

	first, err := d.Dispatch(ctx, event("booking.created", 1))
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, event("booking.created", 2))
	require.Error(t, err, "the pending log write failed")
	assert.Equal(t, 2, d.PendingBatched(), "the batch is kept")
	assert.Empty(t, submitter.submitted())

	require.NoError(t, d.Close(ctx))

	a, err := queue.Get(ctx, first[0])
	require.NoError(t, err)
	assert.Equal(t, delivery.Pending, a.Status)
	envelope, err := payload.Parse(a.Payload)
	require.NoError(t, err)
	events, _ := envelope.Get("events")
	assert.Equal(t, 2, events.Len())

	page, err := logs.Query(ctx, deliverylog.Filter{ChainID: first[0]})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, []string{first[0]}, submitter.submitted())
}

func TestListen(t *testing.T) {
	f := newFixture(t, newSub("wh", subscription.Active, "booking.created"))
	events := make(chan delivery.Event, 4)

	events <- event("booking.created", 1)
	events <- event("Bad Type", 2)
	events <- event("booking.created", 3)
	close(events)

	err := f.d.Listen(context.Background(), events)

	require.NoError(t, err)
	assert.Len(t, f.submitter.submitted(), 2, "invalid events are logged and skipped")
}

func TestListen_StopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.d.Listen(ctx, make(chan delivery.Event))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatch_UsesSubscriptionCache(t *testing.T) {
	subs := smocks.NewRepository(t)
	subs.On("FindActiveByEvent", mock.Anything, "booking.created", mock.Anything).
		Return([]subscription.Subscription{newSub("wh", subscription.Active, "booking.created")}, nil).
		Once()

	cache := subscription.NewCache(subs, 16, time.Minute)
	d := dispatcher.New(dispatcher.Deps{
		Subscriptions: cache,
		Queue:         dmemory.NewRepository(),
		Logs:          lmemory.NewStore(),
		Clock:         clock.NewManual(now),
	})

	for i := int64(0); i < 3; i++ {
		ids, err := d.Dispatch(context.Background(), event("booking.created", i))
		require.NoError(t, err)
		assert.Len(t, ids, 1)
	}
}
