package retry_test

import (
	"context"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/retry"
	"github.com/marcelsud/webhook-dispatcher/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var now = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

func newPolicy() retry.Policy {
	return retry.NewPolicy(retry.Config{
		DefaultRetryDelay: 30 * time.Second,
		MaxBackoff:        time.Hour,
		FailureThreshold:  3,
	})
}

func TestNewPolicy_Defaults(t *testing.T) {
	cfg := retry.NewPolicy(retry.Config{FailureThreshold: -1}).Config()
	assert.Equal(t, retry.DefaultRetryDelay, cfg.DefaultRetryDelay)
	assert.Equal(t, retry.DefaultMaxBackoff, cfg.MaxBackoff)
	assert.Equal(t, 0, cfg.FailureThreshold)
}

func TestPolicy_Decide(t *testing.T) {
	sub := subscription.Subscription{ID: "wh", RetryCount: 3}
	policy := newPolicy()

	tests := []struct {
		name        string
		attempt     int
		outcome     delivery.Outcome
		retryAfter  time.Duration
		wantStatus  delivery.Status
		wantLog     delivery.Status
		wantNext    int
		wantDelay   time.Duration
	}{
		{"delivered", 1, delivery.OutcomeDelivered, 0, delivery.Delivered, delivery.Delivered, 1, 0},
		{"permanent abandons immediately", 1, delivery.OutcomePermanent, 0, delivery.Abandoned, delivery.Abandoned, 1, 0},
		{"first retryable failure", 1, delivery.OutcomeRetryable, 0, delivery.Pending, delivery.Failed, 2, 30 * time.Second},
		{"third retryable failure", 3, delivery.OutcomeRetryable, 0, delivery.Pending, delivery.Failed, 4, 2 * time.Minute},
		{"retries exhausted", 4, delivery.OutcomeRetryable, 0, delivery.Abandoned, delivery.Abandoned, 4, 0},
		{"retry-after wins when longer", 1, delivery.OutcomeRetryable, 5 * time.Minute, delivery.Pending, delivery.Failed, 2, 5 * time.Minute},
		{"retry-after ignored when shorter", 2, delivery.OutcomeRetryable, time.Second, delivery.Pending, delivery.Failed, 3, time.Minute},
		{"retry-after capped", 1, delivery.OutcomeRetryable, 48 * time.Hour, delivery.Pending, delivery.Failed, 2, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := delivery.Attempt{ID: "d1", WebhookID: "wh", AttemptNumber: tt.attempt}

			d := policy.Decide(a, sub, tt.outcome, tt.retryAfter, now)

			assert.Equal(t, tt.wantStatus, d.Status)
			assert.Equal(t, tt.wantLog, d.LogStatus)
			assert.Equal(t, tt.wantNext, d.NextAttempt)
			assert.Equal(t, tt.wantDelay, d.Delay)
			if d.Retrying() {
				assert.Equal(t, now.Add(tt.wantDelay), d.ScheduledAt)
			}
		})
	}
}

func TestPolicy_Decide_TerminatesWithinRetryCountPlusOne(t *testing.T) {
	policy := newPolicy()

	for retries := 0; retries <= 6; retries++ {
		sub := subscription.Subscription{ID: "wh", RetryCount: retries}
		a := delivery.Attempt{AttemptNumber: 1}
		attempts := 1

		for {
			d := policy.Decide(a, sub, delivery.OutcomeRetryable, 0, now)
			if !d.Retrying() {
				break
			}
			assert.Greater(t, d.NextAttempt, a.AttemptNumber)
			a.AttemptNumber = d.NextAttempt
			attempts++
		}

		assert.Equal(t, retries+1, attempts, "retry count %d", retries)
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	policy := newPolicy()
	sub := subscription.Subscription{ID: "wh", RetryCount: 2}

	assert.False(t, policy.Exhausted(delivery.Attempt{AttemptNumber: 1}, sub))
	assert.False(t, policy.Exhausted(delivery.Attempt{AttemptNumber: 3}, sub), "the last attempt may still run")
	assert.True(t, policy.Exhausted(delivery.Attempt{AttemptNumber: 4}, sub))
}

func TestPolicy_Decide_SubscriptionDelayAndWindow(t *testing.T) {
	policy := newPolicy()
	sub := subscription.Subscription{
		ID:                "wh",
		RetryCount:        5,
		RetryDelaySeconds: 10,
		Window: &subscription.ActiveWindow{
			Days:  []time.Weekday{time.Monday},
			Start: "09:00",
			End:   "12:00",
		},
	}

	d := policy.Decide(delivery.Attempt{AttemptNumber: 1}, sub, delivery.OutcomeRetryable, 0, now)

	require.True(t, d.Retrying())
	assert.Equal(t, 10*time.Second, d.Delay)
	assert.Equal(t, time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC), d.ScheduledAt, "deferred to next Monday opening")
}

func TestPolicy_ShouldNotify(t *testing.T) {
	policy := newPolicy()

	assert.False(t, policy.ShouldNotify(subscription.Stats{ConsecutiveFailures: 2}))
	assert.True(t, policy.ShouldNotify(subscription.Stats{ConsecutiveFailures: 3}))
	assert.False(t, policy.ShouldNotify(subscription.Stats{ConsecutiveFailures: 4}), "once per streak")

	disabled := retry.NewPolicy(retry.Config{})
	assert.False(t, disabled.ShouldNotify(subscription.Stats{ConsecutiveFailures: 5}))
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	notifier := retry.NewLogNotifier(zap.New(core))

	sub := subscription.Subscription{ID: "wh", Name: "Orders", URL: "https://example.com", Secret: "whsec_hidden"}
	alert := retry.NewFailureAlert(sub, subscription.Stats{ConsecutiveFailures: 3, LastResponseCode: 503}, "HTTP 503", now)

	require.NoError(t, notifier.NotifyFailure(context.Background(), alert))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "webhook failure threshold reached", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "wh", fields["webhook_id"])
	assert.Equal(t, int64(3), fields["consecutive_failures"])
	for _, v := range fields {
		assert.NotEqual(t, "whsec_hidden", v)
	}
}
