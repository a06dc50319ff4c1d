package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	"github.com/marcelsud/webhook-dispatcher/internal/clock"
	"github.com/marcelsud/webhook-dispatcher/subscription"
	"github.com/marcelsud/webhook-dispatcher/worker"
	"go.uber.org/zap"
)

const DefaultIntakeSize = 256

var (
	// ErrNotRetryable is returned when a manual retry targets a chain that is still live
	ErrNotRetryable = errors.New("delivery is still pending or processing")
	// ErrIntakeFull is returned by PublishAsync when the bounded intake has no room
	ErrIntakeFull = errors.New("event intake is full")
)

/* Service is the entry point used by the HTTP API, the NATS bridge and the CLIs
 * Uses pointer semantics as it's an API, not data
 */

// UseCase defines the publish and admin operations of the delivery engine
type UseCase interface {
	Publish(ctx context.Context, e delivery.Event) ([]string, error)
	PublishAsync(ctx context.Context, e delivery.Event) error
	Retry(ctx context.Context, id string) (string, error)
	TestSend(ctx context.Context, webhookID string, e delivery.Event) (worker.Response, error)
	Deliveries(ctx context.Context, f deliverylog.Filter) (deliverylog.Page, error)
	Delivery(ctx context.Context, id string) (delivery.Attempt, error)
	Stats(ctx context.Context, f deliverylog.Filter) (deliverylog.Stats, error)
	Subscriptions(ctx context.Context) ([]subscription.Subscription, error)
}

// Dispatcher fans events out into delivery chains
type Dispatcher interface {
	Dispatch(ctx context.Context, e delivery.Event) ([]string, error)
}

// Tester performs a synchronous send outside the queue
type Tester interface {
	TestSend(ctx context.Context, sub subscription.Subscription, e delivery.Event) (worker.Response, error)
}

// Submitter hands due deliveries to the worker pool without blocking
type Submitter interface {
	TrySubmit(id string) bool
}

type Deps struct {
	Dispatcher    Dispatcher
	Queue         delivery.Repository
	Logs          deliverylog.Store
	Subscriptions subscription.Reader
	Tester        Tester
	// Submitter is optional, the retry sweep picks up anything not submitted
	Submitter Submitter
	Clock     clock.Clock
	Logger    *zap.Logger
}

type Service struct {
	deps   Deps
	intake chan delivery.Event
}

// NewService creates the engine service with an intake channel of intakeSize events
func NewService(deps Deps, intakeSize int) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if intakeSize <= 0 {
		intakeSize = DefaultIntakeSize
	}
	return &Service{
		deps:   deps,
		intake: make(chan delivery.Event, intakeSize),
	}
}

// Publish dispatches the event synchronously and returns one delivery id per matching subscription
func (s *Service) Publish(ctx context.Context, e delivery.Event) ([]string, error) {
	ids, err := s.deps.Dispatcher.Dispatch(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("publishing event: %w", err)
	}
	return ids, nil
}

/* PublishAsync validates the event and queues it on the intake channel
 * The channel is drained by Dispatcher.Listen; a full channel is ErrIntakeFull
 */
func (s *Service) PublishAsync(ctx context.Context, e delivery.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.deps.Clock.Now()
	}

	select {
	case s.intake <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrIntakeFull
	}
}

// Intake is the channel PublishAsync feeds
func (s *Service) Intake() <-chan delivery.Event {
	return s.intake
}

// CloseIntake stops accepting async events, callers must not PublishAsync afterwards
func (s *Service) CloseIntake() {
	close(s.intake)
}

/* Retry starts a new chain from a finished one, with the same payload snapshot
 * The source chain is left untouched and linked through RetryOf
 */
func (s *Service) Retry(ctx context.Context, id string) (string, error) {
	src, err := s.deps.Queue.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("getting delivery %s: %w", id, err)
	}
	if !src.Status.IsFinal() {
		return "", fmt.Errorf("retrying delivery %s: %w", id, ErrNotRetryable)
	}

	sub, err := s.deps.Subscriptions.Get(ctx, src.WebhookID)
	if err != nil {
		return "", fmt.Errorf("getting subscription %s: %w", src.WebhookID, err)
	}

	now := s.deps.Clock.Now()
	a := delivery.Attempt{
		ID:            delivery.NewID(),
		WebhookID:     src.WebhookID,
		EventType:     src.EventType,
		Payload:       src.Payload,
		AttemptNumber: 1,
		Status:        delivery.Pending,
		ScheduledAt:   sub.ScheduleAt(now),
		RetryOf:       src.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.deps.Queue.Create(ctx, a); err != nil {
		return "", fmt.Errorf("creating delivery: %w", err)
	}

	err = s.deps.Logs.Record(ctx, deliverylog.Record{
		WebhookID:     a.WebhookID,
		ChainID:       a.ID,
		AttemptNumber: 1,
		EventType:     a.EventType,
		Status:        delivery.Pending,
		RequestMethod: string(sub.Method),
		RequestURL:    sub.URL,
		RequestBody:   a.Payload,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return "", fmt.Errorf("recording pending log: %w", err)
	}

	if a.Due(now) && s.deps.Submitter != nil {
		s.deps.Submitter.TrySubmit(a.ID)
	}

	s.deps.Logger.Info("manual retry queued",
		zap.String("delivery_id", a.ID),
		zap.String("retry_of", src.ID),
		zap.String("webhook_id", a.WebhookID),
	)
	return a.ID, nil
}

// TestSend performs one synchronous delivery to the subscription outside the queue
func (s *Service) TestSend(ctx context.Context, webhookID string, e delivery.Event) (worker.Response, error) {
	sub, err := s.deps.Subscriptions.Get(ctx, webhookID)
	if err != nil {
		return worker.Response{}, fmt.Errorf("getting subscription %s: %w", webhookID, err)
	}

	resp, err := s.deps.Tester.TestSend(ctx, sub, e)
	if err != nil {
		return worker.Response{}, fmt.Errorf("test sending to %s: %w", webhookID, err)
	}
	return resp, nil
}

func (s *Service) Deliveries(ctx context.Context, f deliverylog.Filter) (deliverylog.Page, error) {
	page, err := s.deps.Logs.Query(ctx, f)
	if err != nil {
		return deliverylog.Page{}, fmt.Errorf("querying delivery logs: %w", err)
	}
	return page, nil
}

func (s *Service) Delivery(ctx context.Context, id string) (delivery.Attempt, error) {
	a, err := s.deps.Queue.Get(ctx, id)
	if err != nil {
		return delivery.Attempt{}, fmt.Errorf("getting delivery %s: %w", id, err)
	}
	return a, nil
}

func (s *Service) Stats(ctx context.Context, f deliverylog.Filter) (deliverylog.Stats, error) {
	stats, err := s.deps.Logs.Stats(ctx, f)
	if err != nil {
		return deliverylog.Stats{}, fmt.Errorf("computing delivery stats: %w", err)
	}
	return stats, nil
}

// Subscriptions lists every subscription with secrets redacted
func (s *Service) Subscriptions(ctx context.Context) ([]subscription.Subscription, error) {
	subs, err := s.deps.Subscriptions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}

	out := make([]subscription.Subscription, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub.Redacted())
	}
	return out, nil
}
