package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	"github.com/marcelsud/webhook-dispatcher/internal/clock"
	"github.com/marcelsud/webhook-dispatcher/payload"
	"github.com/marcelsud/webhook-dispatcher/retry"
	"github.com/marcelsud/webhook-dispatcher/signature"
	"github.com/marcelsud/webhook-dispatcher/subscription"
	"go.uber.org/zap"
)

const (
	ReasonSubscriptionDeleted = "subscription deleted"
	ReasonSubscriptionPaused  = "subscription paused"
	ReasonRetriesExhausted    = "retry limit exceeded"
)

// Observer receives one call per finished attempt, used for metrics
type Observer interface {
	ObserveAttempt(ctx context.Context, webhookID string, outcome delivery.Outcome, status delivery.Status, duration time.Duration)
}

// Subscriptions is what the worker needs from the subscription store
type Subscriptions interface {
	Get(ctx context.Context, id string) (subscription.Subscription, error)
	RecordOutcome(ctx context.Context, id string, o subscription.Outcome) (subscription.Stats, error)
}

// Config holds the worker settings
type Config struct {
	UserAgent string
}

// Deps groups the worker's collaborators
type Deps struct {
	Queue         delivery.Repository
	Subscriptions Subscriptions
	Logs          deliverylog.Store
	Sender        *Sender
	Signer        *signature.Signer
	Policy        retry.Policy
	Notifier      retry.Notifier
	Observer      Observer
	Clock         clock.Clock
	Logger        *zap.Logger
}

// Result reports what Execute did with a delivery
type Result struct {
	DeliveryID    string
	AttemptNumber int
	Outcome       delivery.Outcome // zero when no HTTP call was made
	Status        delivery.Status  // queue status after the attempt
	Skipped       bool             // not claimable, another worker owns it or it is not due
	Deferred      bool             // released to the next active window opening
}

// Worker executes one attempt of a delivery chain end to end
type Worker struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) *Worker {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = retry.NewLogNotifier(deps.Logger)
	}
	if deps.Sender == nil {
		deps.Sender = NewSender(SenderConfig{}, deps.Clock)
	}
	return &Worker{cfg: cfg, deps: deps}
}

/* Execute claims the delivery and performs its current attempt
 * Delivery failures are recorded, not returned; errors are queue failures.
 * The queue row is resolved before the log row is written, a log store
 * failure is only logged
 */
func (w *Worker) Execute(ctx context.Context, id string) (Result, error) {
	logger := w.deps.Logger.With(zap.String("delivery_id", id))
	now := w.deps.Clock.Now()

	a, err := w.deps.Queue.Claim(ctx, id, now)
	if errors.Is(err, delivery.ErrNotClaimable) || errors.Is(err, delivery.ErrNotFound) {
		logger.Debug("delivery not claimable, skipping", zap.Error(err))
		return Result{DeliveryID: id, Skipped: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("claiming delivery %s: %w", id, err)
	}
	logger = logger.With(zap.String("webhook_id", a.WebhookID), zap.Int("attempt", a.AttemptNumber))

	sub, err := w.deps.Subscriptions.Get(ctx, a.WebhookID)
	deleted := errors.Is(err, subscription.ErrNotFound)
	if err != nil && !deleted {
		_ = w.release(ctx, a, now)
		return Result{}, fmt.Errorf("loading subscription %s: %w", a.WebhookID, err)
	}

	if a.Error == delivery.ReasonWorkerLost && a.AttemptNumber > 1 {
		w.recordLost(ctx, logger, a, sub)
	}

	switch {
	case deleted:
		return w.abandon(ctx, a, nil, ReasonSubscriptionDeleted)
	case sub.Status == subscription.Paused:
		return w.abandon(ctx, a, &sub, ReasonSubscriptionPaused)
	case w.deps.Policy.Exhausted(a, sub):
		return w.abandon(ctx, a, &sub, ReasonRetriesExhausted)
	}

	if sub.Window != nil && !sub.Window.Contains(now) {
		next := sub.Window.Next(now)
		if err := w.release(ctx, a, next); err != nil {
			return Result{}, err
		}
		logger.Debug("outside active window, deferred", zap.Time("scheduled_at", next))
		return Result{DeliveryID: id, AttemptNumber: a.AttemptNumber, Status: delivery.Pending, Deferred: true}, nil
	}

	req, err := NewRequest(w.deps.Signer, sub, a, w.cfg.UserAgent, now)
	if err != nil {
		return w.abandon(ctx, a, &sub, err.Error())
	}

	resp := w.deps.Sender.Send(ctx, req)
	if ctx.Err() != nil {
		// shutting down: give the attempt back without consuming it
		_ = w.release(context.WithoutCancel(ctx), a, now)
		return Result{}, ctx.Err()
	}

	return w.complete(ctx, logger, a, sub, req, resp)
}

func (w *Worker) complete(ctx context.Context, logger *zap.Logger, a delivery.Attempt, sub subscription.Subscription, req Request, resp Response) (Result, error) {
	now := w.deps.Clock.Now()
	decision := w.deps.Policy.Decide(a, sub, resp.Outcome, resp.RetryAfter, now)

	record := deliverylog.Record{
		WebhookID:       a.WebhookID,
		ChainID:         a.ID,
		AttemptNumber:   a.AttemptNumber,
		EventType:       a.EventType,
		Status:          decision.LogStatus,
		RequestMethod:   req.Method,
		RequestURL:      req.URL,
		RequestHeaders:  req.LogHeaders(),
		RequestBody:     req.Body,
		ResponseCode:    resp.StatusCode,
		ResponseHeaders: resp.Header,
		ResponseBody:    resp.Body,
		ResponseTimeMs:  resp.ResponseTimeMs(),
		Error:           resp.Err,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       now,
	}

	stats, err := w.deps.Subscriptions.RecordOutcome(ctx, sub.ID, subscription.Outcome{
		Delivered:    resp.Outcome == delivery.OutcomeDelivered,
		ResponseCode: resp.StatusCode,
		At:           now,
	})
	if err != nil {
		logger.Warn("failed to update subscription stats", zap.Error(err))
	} else if resp.Outcome != delivery.OutcomeDelivered && w.deps.Policy.ShouldNotify(stats) {
		alert := retry.NewFailureAlert(sub, stats, resp.Err, now)
		if err := w.deps.Notifier.NotifyFailure(ctx, alert); err != nil {
			logger.Warn("failed to send failure notification", zap.Error(err))
		}
	}

	next := a
	next.Status = decision.Status
	next.ResponseCode = resp.StatusCode
	next.ResponseExcerpt = resp.Body
	next.ResponseTimeMs = resp.ResponseTimeMs()
	next.Error = resp.Err
	next.UpdatedAt = now
	if decision.Retrying() {
		next.AttemptNumber = decision.NextAttempt
		next.ScheduledAt = decision.ScheduledAt
	}

	if err := w.deps.Queue.Resolve(ctx, next); err != nil {
		return Result{}, fmt.Errorf("resolving delivery %s: %w", a.ID, err)
	}
	if err := w.deps.Logs.Record(ctx, record); err != nil {
		logger.Warn("failed to record attempt log", zap.Error(err))
	}

	if decision.Retrying() {
		pending := deliverylog.Record{
			WebhookID:     a.WebhookID,
			ChainID:       a.ID,
			AttemptNumber: next.AttemptNumber,
			EventType:     a.EventType,
			Status:        delivery.Pending,
			RequestMethod: req.Method,
			RequestURL:    req.URL,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := w.deps.Logs.Record(ctx, pending); err != nil {
			logger.Warn("failed to record pending retry log", zap.Error(err))
		}
	}

	if w.deps.Observer != nil {
		w.deps.Observer.ObserveAttempt(ctx, a.WebhookID, resp.Outcome, decision.Status, resp.Duration)
	}

	logger.Info("delivery attempt finished",
		zap.String("outcome", resp.Outcome.String()),
		zap.String("status", decision.Status.String()),
		zap.Int("response_code", resp.StatusCode),
		zap.Int64("response_time_ms", resp.ResponseTimeMs()),
		zap.Time("next_attempt_at", next.ScheduledAt),
	)

	return Result{
		DeliveryID:    a.ID,
		AttemptNumber: a.AttemptNumber,
		Outcome:       resp.Outcome,
		Status:        decision.Status,
	}, nil
}

// recordLost closes the log row of the attempt the stale sweep gave up on
func (w *Worker) recordLost(ctx context.Context, logger *zap.Logger, a delivery.Attempt, sub subscription.Subscription) {
	record := deliverylog.Record{
		WebhookID:     a.WebhookID,
		ChainID:       a.ID,
		AttemptNumber: a.AttemptNumber - 1,
		EventType:     a.EventType,
		Status:        delivery.Failed,
		RequestMethod: string(sub.Method),
		RequestURL:    sub.URL,
		RequestBody:   a.Payload,
		Error:         delivery.ReasonWorkerLost,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     w.deps.Clock.Now(),
	}
	if err := w.deps.Logs.Record(ctx, record); err != nil {
		logger.Warn("failed to record lost attempt", zap.Error(err))
	}
}

// abandon ends the chain without an HTTP call
func (w *Worker) abandon(ctx context.Context, a delivery.Attempt, sub *subscription.Subscription, reason string) (Result, error) {
	now := w.deps.Clock.Now()

	record := deliverylog.Record{
		WebhookID:     a.WebhookID,
		ChainID:       a.ID,
		AttemptNumber: a.AttemptNumber,
		EventType:     a.EventType,
		Status:        delivery.Abandoned,
		RequestBody:   a.Payload,
		Error:         reason,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     now,
	}
	if sub != nil {
		record.RequestMethod = string(sub.Method)
		record.RequestURL = sub.URL
	}
	a.Status = delivery.Abandoned
	a.Error = reason
	a.UpdatedAt = now
	if err := w.deps.Queue.Resolve(ctx, a); err != nil {
		return Result{}, fmt.Errorf("abandoning delivery %s: %w", a.ID, err)
	}
	if err := w.deps.Logs.Record(ctx, record); err != nil {
		w.deps.Logger.Warn("failed to record abandoned attempt", zap.String("delivery_id", a.ID), zap.Error(err))
	}

	if w.deps.Observer != nil {
		w.deps.Observer.ObserveAttempt(ctx, a.WebhookID, delivery.OutcomePermanent, delivery.Abandoned, 0)
	}

	w.deps.Logger.Warn("delivery abandoned",
		zap.String("delivery_id", a.ID),
		zap.String("webhook_id", a.WebhookID),
		zap.String("reason", reason),
	)

	return Result{DeliveryID: a.ID, AttemptNumber: a.AttemptNumber, Status: delivery.Abandoned}, nil
}

// release returns a claimed attempt to pending without consuming it
func (w *Worker) release(ctx context.Context, a delivery.Attempt, at time.Time) error {
	a.Status = delivery.Pending
	a.ScheduledAt = at
	a.UpdatedAt = w.deps.Clock.Now()
	if err := w.deps.Queue.Resolve(ctx, a); err != nil {
		w.deps.Logger.Error("failed to release delivery", zap.String("delivery_id", a.ID), zap.Error(err))
		return fmt.Errorf("releasing delivery %s: %w", a.ID, err)
	}
	return nil
}

/* TestSend performs one synchronous signed request outside the queue
 * Nothing is persisted and subscription counters are not touched;
 * errors are returned only for unusable input, delivery failures are in the Response
 */
func (w *Worker) TestSend(ctx context.Context, sub subscription.Subscription, event delivery.Event) (Response, error) {
	if err := event.Validate(); err != nil {
		return Response{}, err
	}

	now := w.deps.Clock.Now()
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	body, err := payload.Envelope(event.Type, occurredAt, event.Data, now).MarshalJSON()
	if err != nil {
		return Response{}, fmt.Errorf("encoding test envelope: %w", err)
	}

	a := delivery.Attempt{
		ID:            "test_" + uuid.NewString(),
		WebhookID:     sub.ID,
		EventType:     event.Type,
		Payload:       body,
		AttemptNumber: 1,
	}

	req, err := NewRequest(w.deps.Signer, sub, a, w.cfg.UserAgent, now)
	if err != nil {
		return Response{}, err
	}

	resp := w.deps.Sender.Send(ctx, req)
	w.deps.Logger.Info("test send finished",
		zap.String("webhook_id", sub.ID),
		zap.String("outcome", resp.Outcome.String()),
		zap.Int("response_code", resp.StatusCode),
	)
	return resp, nil
}
